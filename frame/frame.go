package frame

import (
	"fmt"

	"github.com/mewkiz/flac/internal/bitio"
)

// Frame is a decoded (or about-to-be-encoded) audio frame: a header plus
// one subframe per output channel, already inverse-channel-assigned back
// to independent left/right/... samples.
type Frame struct {
	Header    Header
	Subframes []Subframe
}

// Encode writes frame to w as a complete, byte-aligned, CRC-16-terminated
// frame. frame.Subframes must already be arranged in the coded (not
// output) channel order implied by frame.Header.ChannelAssignment: for
// LeftSide that's {left, side}; for RightSide {side, right}; for MidSide
// {mid, side}.
func Encode(w *bitio.Writer, frame Frame) error {
	w.ResetCRC16()
	if err := EncodeHeader(w, frame.Header); err != nil {
		return err
	}
	ca := frame.Header.ChannelAssignment
	bps := frame.Header.BitsPerSample
	for i, sf := range frame.Subframes {
		if err := EncodeSubframe(w, sf, bps, isSideChannelIndex(ca, i)); err != nil {
			return err
		}
	}
	if err := w.ZeroPadToByteBoundary(); err != nil {
		return err
	}
	crc16, err := w.CRC16()
	if err != nil {
		return err
	}
	return w.WriteRawUint(uint64(crc16), 16)
}

// ErrFrameCRCMismatch is returned by Decode when the frame footer's CRC-16
// does not match the frame's actual contents.
var ErrFrameCRCMismatch = fmt.Errorf("frame: CRC-16 mismatch")

// Decode reads one complete frame from r, which must be positioned at the
// frame's first (sync) byte with its CRC-16 accumulator freshly reset, so
// that the accumulator window covers exactly the frame's bytes. streamBPS
// and streamSampleRate supply the stream-level STREAMINFO values used when
// the frame header's own fields are 0 ("get from STREAMINFO").
func Decode(r *bitio.Reader, streamBPS uint8, streamSampleRate uint32) (Frame, error) {
	var frame Frame

	r.ResetReadCRC8(0)
	hdr, err := DecodeHeader(r)
	if err != nil {
		return frame, err
	}
	if hdr.BitsPerSample == 0 {
		hdr.BitsPerSample = streamBPS
	}
	if hdr.SampleRate == 0 {
		hdr.SampleRate = streamSampleRate
	}
	frame.Header = hdr

	n := hdr.ChannelAssignment.ChannelCount()
	frame.Subframes = make([]Subframe, n)
	for i := range frame.Subframes {
		sf, err := DecodeSubframe(r, int(hdr.BlockSize), hdr.BitsPerSample, isSideChannelIndex(hdr.ChannelAssignment, i))
		if err != nil {
			return frame, err
		}
		frame.Subframes[i] = sf
	}

	if left := r.BitsLeftForByteAlignment(); left > 0 {
		pad, err := r.ReadRawUint(left)
		if err != nil {
			return frame, err
		}
		if pad != 0 {
			return frame, fmt.Errorf("%w: non-zero frame padding bits", ErrBadHeader)
		}
	}

	got := r.GetReadCRC16()
	want, err := r.ReadRawUint(16)
	if err != nil {
		return frame, err
	}
	if uint16(want) != got {
		return frame, ErrFrameCRCMismatch
	}

	decorrelate(&frame)
	return frame, nil
}

// isSideChannelIndex reports whether subframe index i carries the "side"
// (difference) channel under channel assignment ca, which needs one extra
// bit of effective bit depth.
func isSideChannelIndex(ca ChannelAssignment, i int) bool {
	switch ca {
	case LeftSide, MidSide:
		return i == 1
	case RightSide:
		return i == 0
	default:
		return false
	}
}

// decorrelate inverts the frame's stereo decorrelation in place, turning
// {left,side}/{side,right}/{mid,side} subframe pairs back into independent
// left/right channels. Independently coded frames are left untouched.
func decorrelate(frame *Frame) {
	switch frame.Header.ChannelAssignment {
	case LeftSide:
		left, side := frame.Subframes[0].Samples, frame.Subframes[1].Samples
		right := make([]int32, len(left))
		for i := range right {
			right[i] = left[i] - side[i]
		}
		frame.Subframes[1].Samples = right
	case RightSide:
		side, right := frame.Subframes[0].Samples, frame.Subframes[1].Samples
		left := make([]int32, len(right))
		for i := range left {
			left[i] = right[i] + side[i]
		}
		frame.Subframes[0].Samples = left
	case MidSide:
		mid, side := frame.Subframes[0].Samples, frame.Subframes[1].Samples
		left := make([]int32, len(mid))
		right := make([]int32, len(mid))
		for i := range mid {
			mid2 := (mid[i] << 1) | (side[i] & 1)
			left[i] = (mid2 + side[i]) >> 1
			right[i] = (mid2 - side[i]) >> 1
		}
		frame.Subframes[0].Samples = left
		frame.Subframes[1].Samples = right
	}
}

// Correlate computes the coded-channel representation (in place of
// independent left/right) that frame.Header.ChannelAssignment calls for,
// given independent left/right sample slices. It's the encoder-side
// inverse of decorrelate, exposed so the encoder package can build the
// Subframes slice before calling Encode.
func Correlate(ca ChannelAssignment, left, right []int32) (ch0, ch1 []int32) {
	switch ca {
	case LeftSide:
		side := make([]int32, len(left))
		for i := range side {
			side[i] = left[i] - right[i]
		}
		return left, side
	case RightSide:
		side := make([]int32, len(left))
		for i := range side {
			side[i] = left[i] - right[i]
		}
		return side, right
	case MidSide:
		mid := make([]int32, len(left))
		side := make([]int32, len(left))
		for i := range mid {
			mid[i] = (left[i] + right[i]) >> 1
			side[i] = left[i] - right[i]
		}
		return mid, side
	default:
		return left, right
	}
}
