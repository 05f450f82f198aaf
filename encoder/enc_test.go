package encoder

import (
	"bytes"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mewkiz/flac/decoder"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/internal/lpc"
	"github.com/mewkiz/flac/internal/rice"
	"github.com/mewkiz/flac/meta"
)

// encodeToBytes runs one whole encode session against a seekable temp
// file (so Close patches STREAMINFO) and returns the produced stream.
func encodeToBytes(t *testing.T, opts Options, channels [][]int32) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.flac")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := New(f, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := enc.WriteSamples(channels); err != nil {
		t.Fatalf("WriteSamples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// decodeAll decodes data to planar per-channel samples, failing the test
// on any stream error including an MD5 mismatch at end of stream.
func decodeAll(t *testing.T, data []byte) (*meta.StreamInfo, []*frame.Frame, [][]int32) {
	t.Helper()
	dec := decoder.New(bytes.NewReader(data), decoder.Options{
		OnError: func(kind decoder.ErrorKind, err error) {
			t.Errorf("decoder error (%v): %v", kind, err)
		},
	})
	if err := dec.ProcessUntilEndOfMetadata(); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	info := dec.StreamInfo()
	channels := make([][]int32, info.ChannelCount)
	var frames []*frame.Frame
	for {
		f, err := dec.Next()
		if err == io.EOF {
			return info, frames, channels
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		frames = append(frames, f)
		for ch := range channels {
			channels[ch] = append(channels[ch], f.Subframes[ch].Samples...)
		}
	}
}

func requireEqualSamples(t *testing.T, want, got [][]int32) {
	t.Helper()
	for ch := range want {
		if len(want[ch]) != len(got[ch]) {
			t.Fatalf("channel %d: decoded %d samples, want %d", ch, len(got[ch]), len(want[ch]))
		}
		for i := range want[ch] {
			if want[ch][i] != got[ch][i] {
				t.Fatalf("channel %d sample %d = %d, want %d", ch, i, got[ch][i], want[ch][i])
			}
		}
	}
}

func TestConstantBlock(t *testing.T) {
	const n = 4096
	samples := make([]int32, n)
	for i := range samples {
		samples[i] = 1234
	}
	data := encodeToBytes(t, Options{
		Channels: 1, BitsPerSample: 16, SampleRate: 44100,
		CompressionLevel: 5, BlockSize: n,
	}, [][]int32{samples})

	info, frames, got := decodeAll(t, data)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Subframes[0].Pred != frame.Constant {
		t.Errorf("subframe prediction = %d, want Constant", frames[0].Subframes[0].Pred)
	}
	if info.SampleCount != n {
		t.Errorf("STREAMINFO sample count = %d, want %d", info.SampleCount, n)
	}
	requireEqualSamples(t, [][]int32{samples}, got)
}

func TestSilenceEncodesConstantZero(t *testing.T) {
	const n = 1152
	silence := make([]int32, n)
	data := encodeToBytes(t, Options{
		Channels: 2, BitsPerSample: 24, SampleRate: 48000,
		CompressionLevel: 5, BlockSize: n,
	}, [][]int32{silence, silence})

	_, frames, got := decodeAll(t, data)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	for ch, sf := range frames[0].Subframes {
		if sf.Pred != frame.Constant {
			t.Errorf("channel %d prediction = %d, want Constant", ch, sf.Pred)
		}
	}
	requireEqualSamples(t, [][]int32{silence, silence}, got)
}

func TestMidSideChosenForIdenticalChannels(t *testing.T) {
	const n = 4096
	left := make([]int32, n)
	for i := range left {
		left[i] = int32(10000 * math.Sin(2*math.Pi*440*float64(i)/44100))
	}
	right := append([]int32(nil), left...)

	data := encodeToBytes(t, Options{
		Channels: 2, BitsPerSample: 16, SampleRate: 44100,
		CompressionLevel: 5, BlockSize: n,
	}, [][]int32{left, right})

	_, frames, got := decodeAll(t, data)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Header.ChannelAssignment.IsIndependent() {
		t.Errorf("channel assignment = independent; want a stereo decorrelation mode for identical channels")
	}
	// The difference channel is silent, so it must collapse to CONSTANT.
	if sf := frames[0].Subframes[1]; sf.Pred != frame.Constant {
		t.Errorf("side subframe prediction = %d, want Constant", sf.Pred)
	}
	requireEqualSamples(t, [][]int32{left, right}, got)
}

func TestFractionalFinalBlock(t *testing.T) {
	const total = 10000
	rng := rand.New(rand.NewSource(42))
	samples := make([]int32, total)
	for i := range samples {
		samples[i] = int32(rng.Intn(4001) - 2000)
	}
	data := encodeToBytes(t, Options{
		Channels: 1, BitsPerSample: 16, SampleRate: 44100,
		CompressionLevel: 5, BlockSize: 4096,
	}, [][]int32{samples})

	info, frames, got := decodeAll(t, data)
	wantSizes := []uint16{4096, 4096, 1808}
	if len(frames) != len(wantSizes) {
		t.Fatalf("got %d frames, want %d", len(frames), len(wantSizes))
	}
	for i, want := range wantSizes {
		if frames[i].Header.BlockSize != want {
			t.Errorf("frame %d blocksize = %d, want %d", i, frames[i].Header.BlockSize, want)
		}
	}
	if info.SampleCount != total {
		t.Errorf("STREAMINFO sample count = %d, want %d", info.SampleCount, total)
	}
	// decodeAll returning io.EOF rather than ErrMD5Mismatch already proves
	// the patched STREAMINFO digest matches the decoded audio.
	requireEqualSamples(t, [][]int32{samples}, got)
}

func TestRiceMethodPromotedForLargeResiduals(t *testing.T) {
	const n = 4096
	rng := rand.New(rand.NewSource(9))
	samples := make([]int32, n)
	for i := range samples {
		// Uniform noise with mean magnitude around 2^15: the order-0 fixed
		// predictor wins over VERBATIM while the Rice parameters land past
		// 14, forcing the 5-bit-parameter method.
		samples[i] = int32(rng.Intn(150001) - 75000)
	}
	data := encodeToBytes(t, Options{
		Channels: 1, BitsPerSample: 18, SampleRate: 44100,
		CompressionLevel: 2, BlockSize: n,
	}, [][]int32{samples})

	_, frames, got := decodeAll(t, data)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	sf := frames[0].Subframes[0]
	if sf.Pred == frame.Constant || sf.Pred == frame.Verbatim {
		t.Skipf("prediction method %d carries no Rice residual", sf.Pred)
	}
	if sf.RiceMethod != rice.PartitionedRice2 {
		t.Errorf("entropy method = %d, want PartitionedRice2 for 17-bit full-scale residuals", sf.RiceMethod)
	}
	requireEqualSamples(t, [][]int32{samples}, got)
}

func TestVerifyRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const n = 10000
	left := make([]int32, n)
	right := make([]int32, n)
	for i := range left {
		left[i] = int32(rng.Intn(20001) - 10000)
		right[i] = left[i]/2 + int32(rng.Intn(101)-50)
	}
	data := encodeToBytes(t, Options{
		Channels: 2, BitsPerSample: 16, SampleRate: 44100,
		CompressionLevel: 8, Verify: true,
	}, [][]int32{left, right})

	_, _, got := decodeAll(t, data)
	requireEqualSamples(t, [][]int32{left, right}, got)
}

func TestPresetTableMatchesSpec(t *testing.T) {
	want := [9]preset{
		{false, false, 0, 0, false, false, false, 0, 3, 0},
		{true, true, 0, 0, false, false, false, 0, 3, 0},
		{true, false, 0, 0, false, false, false, 0, 3, 0},
		{false, false, 6, 0, false, false, false, 0, 4, 0},
		{true, true, 8, 0, false, false, false, 0, 4, 0},
		{true, false, 8, 0, false, false, false, 0, 5, 0},
		{true, false, 8, 0, false, false, false, 0, 6, 0},
		{true, false, 8, 0, false, false, true, 0, 6, 0},
		{true, false, 12, 0, false, false, true, 0, 6, 0},
	}
	if presets != want {
		t.Errorf("preset table = %+v, want %+v", presets, want)
	}
}

func TestInvalidOptionsRejected(t *testing.T) {
	cases := []Options{
		{Channels: 0, BitsPerSample: 16, SampleRate: 44100},
		{Channels: 9, BitsPerSample: 16, SampleRate: 44100},
		{Channels: 2, BitsPerSample: 3, SampleRate: 44100},
		{Channels: 2, BitsPerSample: 33, SampleRate: 44100},
		{Channels: 2, BitsPerSample: 16, SampleRate: 0},
		{Channels: 2, BitsPerSample: 16, SampleRate: 655351},
		{Channels: 2, BitsPerSample: 16, SampleRate: 44100, CompressionLevel: 9},
		{Channels: 2, BitsPerSample: 16, SampleRate: 44100, BlockSize: 15},
		{Channels: 2, BitsPerSample: 16, SampleRate: 44100, QLPCoeffPrecision: 4},
		{Channels: 2, BitsPerSample: 17, SampleRate: 44100, StreamableSubset: true},
	}
	for i, opts := range cases {
		if _, err := New(io.Discard, opts); err == nil {
			t.Errorf("case %d: New accepted invalid options %+v", i, opts)
		}
	}
}

func TestInterleavedMatchesPlanar(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const n = 5000
	left := make([]int32, n)
	right := make([]int32, n)
	interleaved := make([]int32, 0, 2*n)
	for i := range left {
		left[i] = int32(rng.Intn(1001) - 500)
		right[i] = int32(rng.Intn(1001) - 500)
		interleaved = append(interleaved, left[i], right[i])
	}

	opts := Options{
		Channels: 2, BitsPerSample: 16, SampleRate: 44100,
		CompressionLevel: 4,
	}
	planar := encodeToBytes(t, opts, [][]int32{left, right})

	path := filepath.Join(t.TempDir(), "interleaved.flac")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := New(f, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := enc.WriteSamplesInterleaved(interleaved); err != nil {
		t.Fatalf("WriteSamplesInterleaved: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	f.Close()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(planar, got) {
		t.Error("interleaved and planar inputs produced different streams")
	}
}

func TestParseApodization(t *testing.T) {
	specs, err := parseApodization("tukey(0.25);hann;gauss(0.2)")
	if err != nil {
		t.Fatalf("parseApodization: %v", err)
	}
	want := []lpc.WindowSpec{
		{Kind: lpc.Tukey, Param: 0.25},
		{Kind: lpc.Hann},
		{Kind: lpc.Gauss, Param: 0.2},
	}
	if !reflect.DeepEqual(specs, want) {
		t.Errorf("parsed windows = %+v, want %+v", specs, want)
	}

	for _, bad := range []string{"bogus", "gauss(0.9)", "gauss(x)", "tukey(1.5)", ";"} {
		if _, err := parseApodization(bad); err == nil {
			t.Errorf("parseApodization(%q) accepted a malformed list", bad)
		}
	}
}

func TestMetadataListValidation(t *testing.T) {
	st := func() *meta.Block {
		return &meta.Block{Header: meta.BlockHeader{Type: meta.TypeSeekTable}, Body: &meta.SeekTable{}}
	}
	base := Options{Channels: 1, BitsPerSample: 16, SampleRate: 44100}

	opts := base
	opts.Metadata = []*meta.Block{st(), st()}
	if _, err := New(io.Discard, opts); err == nil {
		t.Error("New accepted two SEEKTABLE blocks")
	}

	opts = base
	opts.Metadata = []*meta.Block{{Header: meta.BlockHeader{Type: meta.TypeStreamInfo}, Body: &meta.StreamInfo{}}}
	if _, err := New(io.Discard, opts); err == nil {
		t.Error("New accepted a caller-supplied STREAMINFO block")
	}
}
