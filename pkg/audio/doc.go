// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and sample conversion functions
// Package audio provides the PCM types shared by the decoders, the resampler
// and the audio output.
//
// Every decoded stream is signed 16-bit little-endian interleaved PCM; Format
// records the rate, channel count and the source codec/bit depth.
//
// Example:
//
//	format := audio.Format{Codec: "flac", SampleRate: 96000, Channels: 2, BitDepth: 24}
//	offset := format.Offset(45 * time.Second)
package audio
