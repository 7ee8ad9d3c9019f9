// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts decoded PCM to the output device format
// Package resample provides audio sample rate conversion.
//
// Resampler uses linear interpolation for converting between sample rates.
// Converter wraps a decoded stream, maps its channels and rate onto the
// output format and keeps the output byte position for progress reporting.
//
// Example:
//
//	conv := resample.NewConverter(stream, audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16})
//	voice, err := out.NewVoice(conv)
package resample
