// ABOUTME: MP3 audio decoder
// ABOUTME: Wraps go-mp3, which already yields 16-bit stereo PCM
package decode

import (
	"fmt"
	"io"

	"github.com/Sendspin/hubremote/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Stream decodes MP3 audio
type MP3Stream struct {
	src      io.Reader
	decoder  *mp3.Decoder
	format   audio.Format
	seekable bool
	pos      int64
}

// NewMP3 creates an MP3 stream over r
func NewMP3(r io.Reader) (*MP3Stream, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	_, seekable := r.(io.Seeker)

	return &MP3Stream{
		src:     r,
		decoder: decoder,
		format: audio.Format{
			Codec:      "mp3",
			SampleRate: decoder.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
		seekable: seekable,
	}, nil
}

func (s *MP3Stream) Read(p []byte) (int, error) {
	n, err := s.decoder.Read(p)
	s.pos += int64(n)
	return n, err
}

// Seek moves to a PCM byte offset
func (s *MP3Stream) Seek(offset int64, whence int) (int64, error) {
	if !s.seekable {
		return 0, ErrNotSeekable
	}
	abs, err := resolveSeek(offset, whence, s.pos, s.decoder.Length())
	if err != nil {
		return 0, err
	}
	frame := int64(s.format.FrameSize())
	pos, err := s.decoder.Seek(abs-abs%frame, io.SeekStart)
	if err != nil {
		return 0, err
	}
	s.pos = pos
	return pos, nil
}

func (s *MP3Stream) Format() audio.Format { return s.format }
func (s *MP3Stream) Length() int64        { return s.decoder.Length() }
func (s *MP3Stream) Seekable() bool       { return s.seekable }

func (s *MP3Stream) Close() error {
	return closeReader(s.src)
}
