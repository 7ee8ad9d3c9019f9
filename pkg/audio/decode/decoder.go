// ABOUTME: Stream interface and codec detection
// ABOUTME: Open sniffs the container and returns the matching decoder
package decode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/Sendspin/hubremote/pkg/audio"
)

// ErrUnsupportedFormat is returned when no decoder recognizes the input
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ErrNotSeekable is returned by Seek on streams opened without an io.Seeker
var ErrNotSeekable = errors.New("stream is not seekable")

// Stream is decoded PCM audio
type Stream interface {
	io.ReadSeeker

	// Format describes the PCM produced by Read
	Format() audio.Format

	// Length is the total PCM size in bytes, or -1 when unknown
	Length() int64

	// Seekable reports whether Seek is supported
	Seekable() bool

	// Close releases decoder resources and the underlying reader
	Close() error
}

const sniffLen = 12

// Sniff identifies a codec from the first bytes of a file, falling back to
// the content type. Returns "" when neither is recognized.
func Sniff(header []byte, contentType string) string {
	switch {
	case bytes.HasPrefix(header, []byte("fLaC")):
		return "flac"
	case len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return "wav"
	case bytes.HasPrefix(header, []byte("ID3")):
		return "mp3"
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return "mp3"
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "audio/mpeg", "audio/mp3", "audio/mpeg3":
		return "mp3"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return "wav"
	}
	return ""
}

// Open detects the codec of r and returns a decoding Stream.
// When r implements io.ReadSeeker the stream is seekable and sized.
func Open(r io.Reader, contentType string) (Stream, error) {
	header := make([]byte, sniffLen)

	rs, seekable := r.(io.ReadSeeker)
	if seekable {
		n, err := io.ReadFull(rs, header)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		header = header[:n]
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind: %w", err)
		}
	} else {
		br := bufio.NewReader(r)
		peeked, err := br.Peek(sniffLen)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		header = peeked
		r = withCloser(br, r)
	}

	codec := Sniff(header, contentType)
	switch codec {
	case "mp3":
		return NewMP3(r)
	case "flac":
		return NewFLAC(r)
	case "wav":
		if !seekable {
			return nil, fmt.Errorf("wav: %w", ErrNotSeekable)
		}
		return NewWAV(rs)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

// withCloser keeps the original Close reachable after wrapping r
func withCloser(r io.Reader, orig io.Reader) io.Reader {
	if c, ok := orig.(io.Closer); ok {
		return readCloser{Reader: r, Closer: c}
	}
	return r
}

func closeReader(r io.Reader) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// resolveSeek converts (offset, whence) into an absolute position
func resolveSeek(offset int64, whence int, pos, length int64) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = pos + offset
	case io.SeekEnd:
		if length < 0 {
			return 0, ErrNotSeekable
		}
		abs = length + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative position: %d", abs)
	}
	if length >= 0 && abs > length {
		abs = length
	}
	return abs, nil
}
