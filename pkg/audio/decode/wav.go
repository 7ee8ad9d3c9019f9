// ABOUTME: WAV audio decoder
// ABOUTME: Reads a whole WAV file via go-audio/wav and serves 16-bit PCM
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Sendspin/hubremote/pkg/audio"
	"github.com/go-audio/wav"
)

// WAVStream serves decoded WAV samples from memory
type WAVStream struct {
	src    io.Reader
	pcm    *bytes.Reader
	format audio.Format
}

// NewWAV decodes the WAV file in rs
func NewWAV(rs io.ReadSeeker) (*WAVStream, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 || buf.Format.SampleRate == 0 {
		return nil, fmt.Errorf("invalid wav header")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}

	out := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.ScaleToInt16(int32(v), bitDepth)))
	}

	return &WAVStream{
		src: rs,
		pcm: bytes.NewReader(out),
		format: audio.Format{
			Codec:      "wav",
			SampleRate: buf.Format.SampleRate,
			Channels:   buf.Format.NumChannels,
			BitDepth:   bitDepth,
		},
	}, nil
}

func (s *WAVStream) Read(p []byte) (int, error) {
	return s.pcm.Read(p)
}

// Seek moves to a frame-aligned PCM byte offset
func (s *WAVStream) Seek(offset int64, whence int) (int64, error) {
	pos, _ := s.pcm.Seek(0, io.SeekCurrent)
	abs, err := resolveSeek(offset, whence, pos, s.pcm.Size())
	if err != nil {
		return 0, err
	}
	abs -= abs % int64(s.format.FrameSize())
	return s.pcm.Seek(abs, io.SeekStart)
}

func (s *WAVStream) Format() audio.Format { return s.format }
func (s *WAVStream) Length() int64        { return s.pcm.Size() }
func (s *WAVStream) Seekable() bool       { return true }

func (s *WAVStream) Close() error {
	return closeReader(s.src)
}
