package flac_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/encoder"
)

func encodeTestStream(t *testing.T, samples []int32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.flac")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := flac.NewEncoder(f, encoder.Options{
		Channels: 1, BitsPerSample: 16, SampleRate: 44100,
		CompressionLevel: 5,
	})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if err := enc.WriteSamples([][]int32{samples}); err != nil {
		t.Fatalf("WriteSamples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenAndDecode(t *testing.T) {
	samples := make([]int32, 10000)
	for i := range samples {
		samples[i] = int32(i%1000) - 500
	}
	path := encodeTestStream(t, samples)

	stream, err := flac.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	if stream.Info.SampleRate != 44100 || stream.Info.ChannelCount != 1 || stream.Info.BitsPerSample != 16 {
		t.Fatalf("stream info = %+v, want 44100 Hz / 1 channel / 16 bps", stream.Info)
	}
	if stream.Info.SampleCount != uint64(len(samples)) {
		t.Errorf("sample count = %d, want %d", stream.Info.SampleCount, len(samples))
	}
	if len(stream.Blocks) == 0 {
		t.Error("no metadata blocks parsed")
	}

	var got []int32
	for {
		f, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, f.Subframes[0].Samples...)
	}
	if len(got) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestNewFromReader(t *testing.T) {
	samples := make([]int32, 5000)
	for i := range samples {
		samples[i] = int32(i % 256)
	}
	path := encodeTestStream(t, samples)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n := 0
	for {
		f, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		n += len(f.Subframes[0].Samples)
	}
	if n != len(samples) {
		t.Fatalf("decoded %d samples, want %d", n, len(samples))
	}
}

func TestStreamSeek(t *testing.T) {
	samples := make([]int32, 50000)
	for i := range samples {
		samples[i] = int32(i % 10000)
	}
	path := encodeTestStream(t, samples)

	stream, err := flac.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	if err := stream.Seek(25000); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	f, err := stream.Next()
	if err != nil {
		t.Fatalf("Next after Seek: %v", err)
	}
	if got := f.Subframes[0].Samples[0]; got != samples[25000] {
		t.Fatalf("first sample after Seek = %d, want %d", got, samples[25000])
	}
}
