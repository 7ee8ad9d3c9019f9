// ABOUTME: Audio decoder package for the local playback engine
// ABOUTME: Turns MP3, FLAC and WAV byte streams into seekable 16-bit PCM
// Package decode provides streaming audio decoders.
//
// Supports: MP3 (go-mp3), FLAC (mewkiz/flac), WAV (go-audio/wav)
//
// Every decoder implements Stream and yields signed 16-bit little-endian
// interleaved PCM. Streams opened on an io.ReadSeeker report their length
// and can seek; streams over a plain io.Reader play through once.
//
// Example:
//
//	stream, err := decode.Open(body, resp.Header.Get("Content-Type"))
//	n, err := stream.Read(pcm)
package decode
