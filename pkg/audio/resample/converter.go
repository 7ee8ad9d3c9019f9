// ABOUTME: PCM format converter feeding the audio output
// ABOUTME: Maps channels, resamples and tracks the output byte position
package resample

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/Sendspin/hubremote/pkg/audio"
)

const chunkFrames = 4096

// Source is 16-bit interleaved PCM in a known format
type Source interface {
	io.Reader
	Format() audio.Format
}

// Converter adapts a Source to a fixed output format.
// It is an io.ReadSeeker over output bytes when the source can seek.
type Converter struct {
	src Source
	in  audio.Format
	out audio.Format
	rs  *Resampler

	mu      sync.Mutex
	readBuf []byte
	pending []byte
	eof     bool

	pos atomic.Int64
}

// NewConverter creates a converter from src to out.
// out.Channels must be 1 or 2; mono sources are duplicated, extra
// source channels are dropped.
func NewConverter(src Source, out audio.Format) *Converter {
	in := src.Format()

	c := &Converter{
		src:     src,
		in:      in,
		out:     out,
		readBuf: make([]byte, chunkFrames*in.FrameSize()),
	}
	if in.SampleRate != out.SampleRate {
		c.rs = New(in.SampleRate, out.SampleRate, out.Channels)
	}
	return c
}

// Format returns the output format
func (c *Converter) Format() audio.Format {
	return c.out
}

// Position returns the number of output bytes handed out so far,
// adjusted by seeks. Safe to call while a Read is blocked.
func (c *Converter) Position() int64 {
	return c.pos.Load()
}

func (c *Converter) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.pending) == 0 {
		if c.eof {
			return 0, io.EOF
		}
		if err := c.fill(); err != nil {
			return 0, err
		}
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	c.pos.Add(int64(n))
	return n, nil
}

// fill converts one chunk of source PCM into pending
func (c *Converter) fill() error {
	n, err := io.ReadFull(c.src, c.readBuf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		c.eof = true
		err = nil
	}
	if err != nil {
		return err
	}

	inCh := c.in.Channels
	outCh := c.out.Channels
	frames := n / c.in.FrameSize()
	if frames == 0 {
		return nil
	}

	samples := make([]int32, frames*outCh)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < outCh; ch++ {
			srcCh := ch
			if srcCh >= inCh {
				srcCh = inCh - 1
			}
			s := int16(binary.LittleEndian.Uint16(c.readBuf[(f*inCh+srcCh)*2:]))
			samples[f*outCh+ch] = audio.SampleFromInt16(s)
		}
	}

	if c.rs != nil {
		resampled := make([]int32, c.rs.OutputCapacity(len(samples)))
		samples = resampled[:c.rs.Resample(samples, resampled)]
	}

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.SampleToInt16(s)))
	}
	c.pending = out
	return nil
}

// Seek moves to an output byte offset by seeking the source to the
// matching input frame. Only io.SeekStart and io.SeekCurrent are supported.
func (c *Converter) Seek(offset int64, whence int) (int64, error) {
	seeker, ok := c.src.(io.Seeker)
	if !ok {
		return 0, fmt.Errorf("source is not seekable")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = c.pos.Load() + offset
	default:
		return 0, fmt.Errorf("unsupported whence: %d", whence)
	}
	if abs < 0 {
		abs = 0
	}

	outFrame := abs / int64(c.out.FrameSize())
	inFrame := outFrame * int64(c.in.SampleRate) / int64(c.out.SampleRate)

	got, err := seeker.Seek(inFrame*int64(c.in.FrameSize()), io.SeekStart)
	if err != nil {
		return 0, err
	}

	actualOut := (got / int64(c.in.FrameSize())) * int64(c.out.SampleRate) / int64(c.in.SampleRate)

	c.pending = nil
	c.eof = false
	if c.rs != nil {
		c.rs.Reset()
	}
	c.pos.Store(actualOut * int64(c.out.FrameSize()))
	return c.pos.Load(), nil
}
