// ABOUTME: Tests for codec detection and the stream decoders
// ABOUTME: Generates WAV fixtures with go-audio/wav at test time
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeTestWAV encodes samples as a WAV file and returns its bytes
func writeTestWAV(t *testing.T, sampleRate, bitDepth, channels int, data []int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to finish fixture: %v", err)
	}
	f.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	return raw
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name        string
		header      []byte
		contentType string
		want        string
	}{
		{"flac magic", []byte("fLaC\x00\x00\x00\x22"), "", "flac"},
		{"wav magic", []byte("RIFF\x24\x00\x00\x00WAVE"), "application/octet-stream", "wav"},
		{"id3 tag", []byte("ID3\x04\x00"), "", "mp3"},
		{"mpeg sync", []byte{0xFF, 0xFB, 0x90, 0x00}, "", "mp3"},
		{"content type mp3", []byte("????"), "audio/mpeg", "mp3"},
		{"content type flac with params", []byte("????"), "audio/x-flac; charset=binary", "flac"},
		{"content type wav", []byte{}, "audio/wav", "wav"},
		{"unknown", []byte("OggS"), "audio/ogg", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.header, tt.contentType); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open(bytes.NewReader([]byte("OggS\x00\x02 not audio we know")), "audio/ogg")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestOpenWAV(t *testing.T) {
	data := []int{0, 0, 1000, -1000, 32767, -32768, 5, -5}
	raw := writeTestWAV(t, 22050, 16, 2, data)

	stream, err := Open(bytes.NewReader(raw), "")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer stream.Close()

	format := stream.Format()
	if format.Codec != "wav" || format.SampleRate != 22050 || format.Channels != 2 || format.BitDepth != 16 {
		t.Errorf("unexpected format %+v", format)
	}
	if !stream.Seekable() {
		t.Error("expected a seekable stream")
	}
	if stream.Length() != int64(len(data)*2) {
		t.Errorf("expected length %d, got %d", len(data)*2, stream.Length())
	}

	pcm, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for i, want := range data {
		got := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if int(got) != want {
			t.Errorf("sample %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestWAVScales24Bit(t *testing.T) {
	raw := writeTestWAV(t, 48000, 24, 1, []int{0x123456, -256})

	stream, err := NewWAV(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	pcm, _ := io.ReadAll(stream)
	if len(pcm) != 4 {
		t.Fatalf("expected 4 bytes of 16-bit PCM, got %d", len(pcm))
	}
	if got := int16(binary.LittleEndian.Uint16(pcm)); got != 0x1234 {
		t.Errorf("expected 0x1234, got %#x", got)
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[2:])); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}

func TestWAVSeekIsFrameAligned(t *testing.T) {
	data := make([]int, 200)
	for i := range data {
		data[i] = i
	}
	raw := writeTestWAV(t, 8000, 16, 2, data)

	stream, err := NewWAV(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	pos, err := stream.Seek(42, io.SeekStart)
	if err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if pos != 40 {
		t.Errorf("expected seek to snap to 40, got %d", pos)
	}

	sample := make([]byte, 2)
	io.ReadFull(stream, sample)
	if got := int16(binary.LittleEndian.Uint16(sample)); got != 20 {
		t.Errorf("expected sample 20 after seek, got %d", got)
	}

	end, err := stream.Seek(0, io.SeekEnd)
	if err != nil || end != stream.Length() {
		t.Errorf("expected seek to end at %d, got %d (%v)", stream.Length(), end, err)
	}
}

func TestOpenWAVRequiresSeeker(t *testing.T) {
	raw := writeTestWAV(t, 8000, 16, 1, []int{1, 2, 3})

	_, err := Open(io.MultiReader(bytes.NewReader(raw)), "audio/wav")
	if !errors.Is(err, ErrNotSeekable) {
		t.Errorf("expected ErrNotSeekable, got %v", err)
	}
}

func TestOpenMP3Garbage(t *testing.T) {
	_, err := Open(bytes.NewReader([]byte("ID3 but nothing after it")), "audio/mpeg")
	if err == nil {
		t.Error("expected error for truncated mp3")
	}
}

func TestResolveSeek(t *testing.T) {
	tests := []struct {
		name    string
		offset  int64
		whence  int
		pos     int64
		length  int64
		want    int64
		wantErr bool
	}{
		{"start", 10, io.SeekStart, 0, 100, 10, false},
		{"current", 10, io.SeekCurrent, 50, 100, 60, false},
		{"end", -10, io.SeekEnd, 0, 100, 90, false},
		{"clamped", 500, io.SeekStart, 0, 100, 100, false},
		{"negative", -1, io.SeekStart, 0, 100, 0, true},
		{"end of unknown length", 0, io.SeekEnd, 0, -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSeek(tt.offset, tt.whence, tt.pos, tt.length)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
