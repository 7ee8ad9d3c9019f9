// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides Output and Voice interfaces and the oto implementation
// Package output provides audio playback interfaces.
//
// Oto owns the single oto context allowed per process. Each load of the
// local player gets its own Voice; Release suspends the device between
// sessions.
//
// Example:
//
//	out := output.NewOto(logger)
//	err := out.Acquire()
//	voice, err := out.NewVoice(converter)
//	voice.Play()
package output
