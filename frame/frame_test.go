package frame

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/mewkiz/flac/internal/bitio"
	"github.com/mewkiz/flac/internal/fixed"
	"github.com/mewkiz/flac/internal/rice"
)

// encodeFrame encodes f and returns the raw frame bytes.
func encodeFrame(t *testing.T, f Frame) []byte {
	t.Helper()
	w := bitio.NewWriter()
	if err := Encode(w, f); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	buf, _ := w.Buffer()
	return buf
}

// decodeFrame decodes one frame from buf.
func decodeFrame(t *testing.T, buf []byte, bps uint8, rate uint32) Frame {
	t.Helper()
	r := bitio.NewReader(bytes.NewReader(buf))
	f, err := Decode(r, bps, rate)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return f
}

// verbatimSubframe wraps samples in a VERBATIM subframe, the simplest
// encodable representation of arbitrary data.
func verbatimSubframe(samples []int32) Subframe {
	return Subframe{Pred: Verbatim, Samples: samples}
}

// fixedSubframe builds a FIXED subframe of the given order with a searched Rice
// plan, the way the encoder does.
func fixedSubframe(samples []int32, order int) Subframe {
	residual := fixed.Residual(samples, order, nil)
	plan := rice.FindBestPartitionOrder(residual, order, len(samples), 0, 4, false, 31)
	return Subframe{
		Pred: Fixed, Order: order, Samples: samples,
		RiceMethod: plan.Method, RiceOrder: plan.Order, RicePartitions: plan.Partitions,
	}
}

func TestChannelAssignmentRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n = 64
	left := make([]int32, n)
	right := make([]int32, n)
	for i := range left {
		left[i] = int32(rng.Intn(2001) - 1000)
		right[i] = int32(rng.Intn(2001) - 1000)
	}
	// Odd L+R sums exercise the mid/side LSB carry.
	left[3], right[3] = 7, 4

	for _, ca := range []ChannelAssignment{ChannelAssignment(1), LeftSide, RightSide, MidSide} {
		ch0, ch1 := Correlate(ca, left, right)
		f := Frame{
			Header: Header{
				BlockSize:         n,
				SampleRate:        44100,
				ChannelAssignment: ca,
				BitsPerSample:     16,
				NumberType:        FrameNumberType,
				Number:            0,
			},
			Subframes: []Subframe{verbatimSubframe(ch0), verbatimSubframe(ch1)},
		}
		got := decodeFrame(t, encodeFrame(t, f), 16, 44100)
		for i := 0; i < n; i++ {
			if got.Subframes[0].Samples[i] != left[i] || got.Subframes[1].Samples[i] != right[i] {
				t.Fatalf("assignment %d: sample %d = (%d, %d), want (%d, %d)",
					ca, i, got.Subframes[0].Samples[i], got.Subframes[1].Samples[i], left[i], right[i])
			}
		}
	}
}

func TestConstantSubframeRoundTrip(t *testing.T) {
	const n = 128
	samples := make([]int32, n)
	for i := range samples {
		samples[i] = 1234
	}
	f := Frame{
		Header: Header{
			BlockSize:         n,
			SampleRate:        44100,
			ChannelAssignment: 0,
			BitsPerSample:     16,
		},
		Subframes: []Subframe{{Pred: Constant, Samples: samples}},
	}
	got := decodeFrame(t, encodeFrame(t, f), 16, 44100)
	if got.Subframes[0].Pred != Constant {
		t.Fatalf("prediction = %d, want Constant", got.Subframes[0].Pred)
	}
	for i, s := range got.Subframes[0].Samples {
		if s != 1234 {
			t.Fatalf("sample %d = %d, want 1234", i, s)
		}
	}
}

func TestWastedBitsRoundTrip(t *testing.T) {
	const n = 64
	samples := make([]int32, n)
	for i := range samples {
		samples[i] = int32(i-32) << 3 // three shared trailing zero bits.
	}
	f := Frame{
		Header: Header{
			BlockSize:         n,
			SampleRate:        44100,
			ChannelAssignment: 0,
			BitsPerSample:     16,
		},
		Subframes: []Subframe{{Pred: Verbatim, WastedBits: 3, Samples: samples}},
	}
	got := decodeFrame(t, encodeFrame(t, f), 16, 44100)
	if got.Subframes[0].WastedBits != 3 {
		t.Fatalf("wasted bits = %d, want 3", got.Subframes[0].WastedBits)
	}
	for i, s := range got.Subframes[0].Samples {
		if s != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, s, samples[i])
		}
	}
}

func TestFixedSubframeRoundTrip(t *testing.T) {
	const n = 256
	samples := make([]int32, n)
	for i := range samples {
		// Order-2 polynomial: the order-3 predictor's residual is zero, so
		// any fixed order reconstructs exactly.
		samples[i] = int32(3*i*i - 5*i + 7)
	}
	f := Frame{
		Header: Header{
			BlockSize:         n,
			SampleRate:        48000,
			ChannelAssignment: 0,
			BitsPerSample:     24,
		},
		Subframes: []Subframe{fixedSubframe(samples, 3)},
	}
	got := decodeFrame(t, encodeFrame(t, f), 24, 48000)
	if got.Subframes[0].Pred != Fixed || got.Subframes[0].Order != 3 {
		t.Fatalf("prediction = %d order %d, want Fixed order 3", got.Subframes[0].Pred, got.Subframes[0].Order)
	}
	for i, s := range got.Subframes[0].Samples {
		if s != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, s, samples[i])
		}
	}
}

func TestFrameCRC16MatchesPayload(t *testing.T) {
	samples := make([]int32, 32)
	for i := range samples {
		samples[i] = int32(i * 11)
	}
	f := Frame{
		Header: Header{
			BlockSize:         32,
			SampleRate:        44100,
			ChannelAssignment: 0,
			BitsPerSample:     16,
		},
		Subframes: []Subframe{verbatimSubframe(samples)},
	}
	buf := encodeFrame(t, f)

	// The footer is the CRC-16 of every preceding frame byte.
	w := bitio.NewWriter()
	if err := w.WriteByteBlock(buf[:len(buf)-2]); err != nil {
		t.Fatal(err)
	}
	crc, err := w.CRC16()
	if err != nil {
		t.Fatal(err)
	}
	footer := uint16(buf[len(buf)-2])<<8 | uint16(buf[len(buf)-1])
	if crc != footer {
		t.Errorf("frame CRC-16 footer = %#04x, payload CRC = %#04x", footer, crc)
	}
}

func TestReservedBitRejected(t *testing.T) {
	samples := make([]int32, 16)
	f := Frame{
		Header: Header{
			BlockSize:         16,
			SampleRate:        44100,
			ChannelAssignment: 0,
			BitsPerSample:     16,
		},
		Subframes: []Subframe{verbatimSubframe(samples)},
	}
	buf := encodeFrame(t, f)
	buf[1] |= 0x02 // reserved bit after the 14-bit sync code.

	r := bitio.NewReader(bytes.NewReader(buf))
	if _, err := Decode(r, 16, 44100); err == nil {
		t.Fatal("Decode accepted a frame header with a reserved bit set")
	}
}

func TestHeaderCRC8Detection(t *testing.T) {
	samples := make([]int32, 16)
	f := Frame{
		Header: Header{
			BlockSize:         16,
			SampleRate:        44100,
			ChannelAssignment: 0,
			BitsPerSample:     16,
		},
		Subframes: []Subframe{verbatimSubframe(samples)},
	}
	buf := encodeFrame(t, f)
	buf[2] ^= 0x10 // corrupt a header byte; the CRC-8 must catch it.

	r := bitio.NewReader(bytes.NewReader(buf))
	if _, err := Decode(r, 16, 44100); err == nil {
		t.Fatal("Decode accepted a frame header with a corrupted byte")
	}
}
