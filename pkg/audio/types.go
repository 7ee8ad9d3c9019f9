// ABOUTME: Audio type definitions
// ABOUTME: Defines PCM formats and sample conversion helpers
package audio

import "time"

// Format describes a decoded PCM stream.
// Decoded streams are always signed 16-bit little-endian interleaved.
type Format struct {
	Codec      string // source codec: mp3, flac, wav
	SampleRate int
	Channels   int
	BitDepth   int // source bit depth
}

// FrameSize returns the size in bytes of one 16-bit frame across all channels
func (f Format) FrameSize() int {
	return f.Channels * 2
}

// BytesPerSecond returns the 16-bit PCM byte rate
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// Duration converts a PCM byte count to playback time
func (f Format) Duration(n int64) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(bps) * float64(time.Second))
}

// Offset converts a playback position to a frame-aligned PCM byte offset
func (f Format) Offset(d time.Duration) int64 {
	if d <= 0 || f.FrameSize() == 0 {
		return 0
	}
	frames := int64(d.Seconds() * float64(f.SampleRate))
	return frames * int64(f.FrameSize())
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	// Left-shift to position 16-bit value in upper bits
	return int32(sample) << 8
}

// ScaleToInt16 converts a sample at the given source bit depth to int16.
// 8-bit input is treated as unsigned, as stored in WAV files.
func ScaleToInt16(sample int32, bitDepth int) int16 {
	switch {
	case bitDepth <= 8:
		return int16((sample - 128) << 8)
	case bitDepth <= 16:
		return int16(sample >> (16 - bitDepth))
	default:
		return int16(sample >> (bitDepth - 16))
	}
}
