// Package frame implements FLAC frame headers and subframes: the
// per-block wire format shared by both the encoder and the decoder.
//
package frame

import (
	"fmt"

	"github.com/mewkiz/flac/internal/bitio"
)

// SyncCode is the 14-bit pattern that opens every frame header.
const SyncCode = 0x3FFE

// ChannelAssignment identifies how a frame's subframes map to output
// channels: either independently-coded channels, or one of the three
// 2-channel decorrelation modes.
type ChannelAssignment uint8

// Channel assignment wire codes, carried in the frame header's 4-bit
// channel-assignment field. Values 0..7 mean "n+1 independent channels";
// the named constants below are the three stereo-decorrelation codes.
const (
	LeftSide  ChannelAssignment = 8
	RightSide ChannelAssignment = 9
	MidSide   ChannelAssignment = 10
)

// IsIndependent reports whether ca names independently coded channels
// (wire codes 0 through 7) rather than one of the stereo-decorrelation
// modes.
func (ca ChannelAssignment) IsIndependent() bool {
	return ca <= 7
}

// ChannelCount returns the number of output channels implied by ca.
func (ca ChannelAssignment) ChannelCount() int {
	if ca.IsIndependent() {
		return int(ca) + 1
	}
	return 2
}

// NumberType distinguishes the two ways a frame identifies its position in
// the stream.
type NumberType uint8

const (
	// FrameNumberType numbers frames sequentially; used by fixed-blocksize
	// streams.
	FrameNumberType NumberType = iota
	// SampleNumberType stamps the absolute sample number of the frame's
	// first sample; used by variable-blocksize streams.
	SampleNumberType
)

// Header is a parsed (or about-to-be-written) frame header.
type Header struct {
	// Variable reports whether the stream uses variable blocksize framing
	// (blocking strategy bit set).
	Variable bool
	// BlockSize is the number of inter-channel samples in this frame.
	BlockSize uint16
	// SampleRate in Hz, or 0 if it must be taken from STREAMINFO.
	SampleRate uint32
	// ChannelAssignment names the channel decorrelation mode of this
	// frame.
	ChannelAssignment ChannelAssignment
	// BitsPerSample, or 0 if it must be taken from STREAMINFO.
	BitsPerSample uint8
	// NumberType says whether Number is a frame number or a sample
	// number.
	NumberType NumberType
	// Number is the frame number (NumberType == FrameNumberType) or the
	// starting sample number (NumberType == SampleNumberType) of this
	// frame.
	Number uint64
}

// blockSizeTable maps a wire blocksize-spec nibble to a fixed blocksize;
// codes 6 and 7 have no entry, since they carry an explicit 8- or 16-bit
// blocksize-minus-one trailer instead.
var blockSizeTable = map[uint8]uint16{
	1: 192,
	2: 576, 3: 1152, 4: 2304, 5: 4608,
	8: 256, 9: 512, 10: 1024, 11: 2048, 12: 4096, 13: 8192, 14: 16384, 15: 32768,
}

// sampleRateTable maps a wire sample-rate-spec nibble to a fixed rate in
// Hz; codes 12-14 instead carry an explicit trailer and code 15 is
// reserved.
var sampleRateTable = map[uint8]uint32{
	1: 88200, 2: 176400, 3: 192000,
	4: 8000, 5: 16000, 6: 22050, 7: 24000,
	8: 32000, 9: 44100, 10: 48000, 11: 96000,
}

// bitsPerSampleTable maps a wire sample-size nibble to a fixed bit depth;
// code 0 means "take it from STREAMINFO".
var bitsPerSampleTable = map[uint8]uint8{
	1: 8, 2: 12, 4: 16, 5: 20, 6: 24,
}

// blockSizeCode returns the wire nibble for blockSize, and whether an
// explicit 8- or 16-bit trailer is required (and its width).
func blockSizeCode(blockSize uint16) (code uint8, trailerBits uint) {
	for c, v := range blockSizeTable {
		if v == blockSize {
			return c, 0
		}
	}
	if blockSize-1 <= 0xFF {
		return 6, 8
	}
	return 7, 16
}

func sampleRateCode(rate uint32) (code uint8, trailerBits uint, trailerValue uint32) {
	if rate == 0 {
		// Sentinel meaning "get from STREAMINFO"; never a real rate.
		return 0, 0, 0
	}
	for c, v := range sampleRateTable {
		if v == rate {
			return c, 0, 0
		}
	}
	switch {
	case rate%1000 == 0 && rate/1000 <= 0xFF:
		return 12, 8, rate / 1000
	case rate <= 0xFFFF:
		return 13, 16, rate
	case rate%10 == 0 && rate/10 <= 0xFFFF:
		return 14, 16, rate / 10
	default:
		return 0, 0, 0 // caller must have STREAMINFO's rate available to the decoder instead.
	}
}

func bitsPerSampleCode(bps uint8) uint8 {
	for c, v := range bitsPerSampleTable {
		if v == bps {
			return c
		}
	}
	return 0
}

// EncodeHeader writes hdr to w, including its trailing CRC-8. w must be
// byte-aligned before this call and afterward.
func EncodeHeader(w *bitio.Writer, hdr Header) error {
	w.ResetCRC8()

	if err := w.WriteRawUint(SyncCode, 14); err != nil {
		return err
	}
	if err := w.WriteRawUint(0, 1); err != nil { // reserved
		return err
	}
	variable := uint64(0)
	if hdr.Variable {
		variable = 1
	}
	if err := w.WriteRawUint(variable, 1); err != nil {
		return err
	}

	bsCode, bsTrailerBits := blockSizeCode(hdr.BlockSize)
	if err := w.WriteRawUint(uint64(bsCode), 4); err != nil {
		return err
	}
	srCode, srTrailerBits, srTrailerValue := sampleRateCode(hdr.SampleRate)
	if hdr.SampleRate != 0 && srCode == 0 && srTrailerBits == 0 {
		return fmt.Errorf("frame.EncodeHeader: sample rate %d cannot be represented in a frame header; store it in STREAMINFO instead", hdr.SampleRate)
	}
	if err := w.WriteRawUint(uint64(srCode), 4); err != nil {
		return err
	}
	if err := w.WriteRawUint(uint64(hdr.ChannelAssignment), 4); err != nil {
		return err
	}
	if err := w.WriteRawUint(uint64(bitsPerSampleCode(hdr.BitsPerSample)), 3); err != nil {
		return err
	}
	if err := w.WriteRawUint(0, 1); err != nil { // reserved
		return err
	}

	if hdr.NumberType == SampleNumberType {
		if err := w.WriteUTF8Uint64(hdr.Number); err != nil {
			return err
		}
	} else {
		if err := w.WriteUTF8Uint32(uint32(hdr.Number)); err != nil {
			return err
		}
	}

	if bsTrailerBits == 8 {
		if err := w.WriteRawUint(uint64(hdr.BlockSize-1), 8); err != nil {
			return err
		}
	} else if bsTrailerBits == 16 {
		if err := w.WriteRawUint(uint64(hdr.BlockSize-1), 16); err != nil {
			return err
		}
	}
	if srTrailerBits != 0 {
		if err := w.WriteRawUint(uint64(srTrailerValue), srTrailerBits); err != nil {
			return err
		}
	}

	crc8, err := w.CRC8()
	if err != nil {
		return err
	}
	return w.WriteRawUint(uint64(crc8), 8)
}

// ErrBadHeader is returned by DecodeHeader when a reserved bit is set or
// the trailing CRC-8 doesn't match.
var ErrBadHeader = fmt.Errorf("frame: bad header")

// DecodeHeader reads and validates a frame header from r, including its
// CRC-8. The caller must have already reset r's CRC-8 accumulator
// (r.ResetReadCRC8) so that it covers exactly the header bytes, including
// the two sync bytes if those were consumed before this call.
func DecodeHeader(r *bitio.Reader) (Header, error) {
	var hdr Header

	sync, err := r.ReadRawUint(14)
	if err != nil {
		return hdr, err
	}
	if sync != SyncCode {
		return hdr, fmt.Errorf("%w: invalid sync code %014b", ErrBadHeader, sync)
	}
	reserved, err := r.ReadRawUint(1)
	if err != nil {
		return hdr, err
	}
	if reserved != 0 {
		return hdr, fmt.Errorf("%w: reserved bit set", ErrBadHeader)
	}
	variable, err := r.ReadRawUint(1)
	if err != nil {
		return hdr, err
	}
	hdr.Variable = variable != 0

	bsCode, err := r.ReadRawUint(4)
	if err != nil {
		return hdr, err
	}
	srCode, err := r.ReadRawUint(4)
	if err != nil {
		return hdr, err
	}
	caCode, err := r.ReadRawUint(4)
	if err != nil {
		return hdr, err
	}
	if caCode > 10 {
		return hdr, fmt.Errorf("%w: reserved channel assignment %04b", ErrBadHeader, caCode)
	}
	hdr.ChannelAssignment = ChannelAssignment(caCode)

	bpsCode, err := r.ReadRawUint(3)
	if err != nil {
		return hdr, err
	}
	if bpsCode == 3 || bpsCode == 7 {
		return hdr, fmt.Errorf("%w: reserved sample size %03b", ErrBadHeader, bpsCode)
	}
	hdr.BitsPerSample = bitsPerSampleTable[uint8(bpsCode)]

	reserved2, err := r.ReadRawUint(1)
	if err != nil {
		return hdr, err
	}
	if reserved2 != 0 {
		return hdr, fmt.Errorf("%w: reserved bit set", ErrBadHeader)
	}

	if hdr.Variable {
		hdr.NumberType = SampleNumberType
		hdr.Number, err = r.ReadUTF8Uint64(nil)
	} else {
		hdr.NumberType = FrameNumberType
		var n uint32
		n, err = r.ReadUTF8Uint32(nil)
		hdr.Number = uint64(n)
	}
	if err != nil {
		return hdr, fmt.Errorf("%w: malformed UTF-8 frame/sample number: %v", ErrBadHeader, err)
	}

	switch bsCode {
	case 0:
		return hdr, fmt.Errorf("%w: reserved blocksize code", ErrBadHeader)
	case 6:
		v, err := r.ReadRawUint(8)
		if err != nil {
			return hdr, err
		}
		hdr.BlockSize = uint16(v) + 1
	case 7:
		v, err := r.ReadRawUint(16)
		if err != nil {
			return hdr, err
		}
		hdr.BlockSize = uint16(v) + 1
	default:
		hdr.BlockSize = blockSizeTable[uint8(bsCode)]
	}

	switch srCode {
	case 12:
		v, err := r.ReadRawUint(8)
		if err != nil {
			return hdr, err
		}
		hdr.SampleRate = uint32(v) * 1000
	case 13:
		v, err := r.ReadRawUint(16)
		if err != nil {
			return hdr, err
		}
		hdr.SampleRate = uint32(v)
	case 14:
		v, err := r.ReadRawUint(16)
		if err != nil {
			return hdr, err
		}
		hdr.SampleRate = uint32(v) * 10
	case 15:
		return hdr, fmt.Errorf("%w: invalid sample rate code 1111", ErrBadHeader)
	default:
		hdr.SampleRate = sampleRateTable[uint8(srCode)]
	}

	gotCRC8 := r.GetReadCRC8()
	want, err := r.ReadRawUint(8)
	if err != nil {
		return hdr, err
	}
	if uint8(want) != gotCRC8 {
		return hdr, fmt.Errorf("%w: CRC-8 mismatch: stored 0x%02X, computed 0x%02X", ErrBadHeader, want, gotCRC8)
	}
	return hdr, nil
}
