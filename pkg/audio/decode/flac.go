// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes FLAC frames from mewkiz/flac into 16-bit PCM
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Sendspin/hubremote/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACStream decodes FLAC audio
type FLACStream struct {
	src      io.Reader
	stream   *flac.Stream
	format   audio.Format
	seekable bool

	pending []byte
	skip    int64 // bytes to drop after a seek lands mid-frame
	pos     int64
}

// NewFLAC creates a FLAC stream over r
func NewFLAC(r io.Reader) (*FLACStream, error) {
	var (
		stream   *flac.Stream
		err      error
		seekable bool
	)
	if rs, ok := r.(io.ReadSeeker); ok {
		stream, err = flac.NewSeek(rs)
		seekable = true
	} else {
		stream, err = flac.New(r)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	return &FLACStream{
		src:    r,
		stream: stream,
		format: audio.Format{
			Codec:      "flac",
			SampleRate: int(info.SampleRate),
			Channels:   int(info.NChannels),
			BitDepth:   int(info.BitsPerSample),
		},
		seekable: seekable,
	}, nil
}

func (s *FLACStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if err := s.decodeFrame(); err != nil {
			return 0, err
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	s.pos += int64(n)
	return n, nil
}

// decodeFrame parses one FLAC frame into pending
func (s *FLACStream) decodeFrame() error {
	frame, err := s.stream.ParseNext()
	if err != nil {
		return err
	}

	channels := s.format.Channels
	blockSize := len(frame.Subframes[0].Samples)
	out := make([]byte, blockSize*channels*2)

	for i := 0; i < blockSize; i++ {
		for ch := 0; ch < channels; ch++ {
			sample := audio.ScaleToInt16(frame.Subframes[ch].Samples[i], s.format.BitDepth)
			binary.LittleEndian.PutUint16(out[(i*channels+ch)*2:], uint16(sample))
		}
	}

	if s.skip > 0 {
		drop := s.skip
		if drop > int64(len(out)) {
			drop = int64(len(out))
		}
		out = out[drop:]
		s.skip -= drop
	}
	s.pending = out
	return nil
}

// Seek moves to a PCM byte offset
func (s *FLACStream) Seek(offset int64, whence int) (int64, error) {
	if !s.seekable {
		return 0, ErrNotSeekable
	}
	abs, err := resolveSeek(offset, whence, s.pos, s.Length())
	if err != nil {
		return 0, err
	}

	frameSize := int64(s.format.FrameSize())
	sample := uint64(abs / frameSize)
	start, err := s.stream.Seek(sample)
	if err != nil {
		return 0, fmt.Errorf("flac seek: %w", err)
	}

	// Seek lands on the frame holding sample; drop the lead-in
	s.pending = nil
	s.skip = int64(sample-start) * frameSize
	s.pos = int64(sample) * frameSize
	return s.pos, nil
}

func (s *FLACStream) Format() audio.Format { return s.format }
func (s *FLACStream) Seekable() bool       { return s.seekable }

// Length returns the decoded size when STREAMINFO carries a sample count
func (s *FLACStream) Length() int64 {
	if s.stream.Info.NSamples == 0 {
		return -1
	}
	return int64(s.stream.Info.NSamples) * int64(s.format.FrameSize())
}

func (s *FLACStream) Close() error {
	s.stream.Close()
	return closeReader(s.src)
}
