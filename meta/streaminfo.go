package meta

import (
	"fmt"

	"github.com/mewkiz/flac/internal/bitio"
)

// streamInfoLength is the fixed encoded byte length of a StreamInfo body.
const streamInfoLength = 34

// StreamInfo carries the whole-stream parameters every FLAC file must
// declare: it is always the first metadata block.
type StreamInfo struct {
	MinBlockSize  uint16
	MaxBlockSize  uint16
	MinFrameSize  uint32
	MaxFrameSize  uint32
	SampleRate    uint32
	ChannelCount  uint8
	BitsPerSample uint8
	// SampleCount is the total number of inter-channel samples in the
	// stream, or 0 if unknown.
	SampleCount uint64
	// MD5sum is the digest of the unencoded audio data, or all-zero if it
	// was not computed.
	MD5sum [16]byte
}

func decodeStreamInfo(r *bitio.Reader) (*StreamInfo, error) {
	si := new(StreamInfo)
	v, err := r.ReadRawUint(16)
	if err != nil {
		return nil, err
	}
	si.MinBlockSize = uint16(v)

	v, err = r.ReadRawUint(16)
	if err != nil {
		return nil, err
	}
	si.MaxBlockSize = uint16(v)

	v, err = r.ReadRawUint(24)
	if err != nil {
		return nil, err
	}
	si.MinFrameSize = uint32(v)

	v, err = r.ReadRawUint(24)
	if err != nil {
		return nil, err
	}
	si.MaxFrameSize = uint32(v)

	v, err = r.ReadRawUint(20)
	if err != nil {
		return nil, err
	}
	si.SampleRate = uint32(v)

	v, err = r.ReadRawUint(3)
	if err != nil {
		return nil, err
	}
	si.ChannelCount = uint8(v) + 1

	v, err = r.ReadRawUint(5)
	if err != nil {
		return nil, err
	}
	si.BitsPerSample = uint8(v) + 1

	v, err = r.ReadRawUint(36)
	if err != nil {
		return nil, err
	}
	si.SampleCount = v

	for i := range si.MD5sum {
		b, err := r.ReadRawUint(8)
		if err != nil {
			return nil, err
		}
		si.MD5sum[i] = byte(b)
	}
	return si, nil
}

func encodeStreamInfo(w *bitio.Writer, si *StreamInfo) error {
	if si.ChannelCount < 1 || si.ChannelCount > 8 {
		return fmt.Errorf("meta.encodeStreamInfo: invalid channel count %d", si.ChannelCount)
	}
	if si.BitsPerSample < 4 || si.BitsPerSample > 32 {
		return fmt.Errorf("meta.encodeStreamInfo: invalid bits per sample %d", si.BitsPerSample)
	}
	fields := []struct {
		v uint64
		n uint
	}{
		{uint64(si.MinBlockSize), 16},
		{uint64(si.MaxBlockSize), 16},
		{uint64(si.MinFrameSize), 24},
		{uint64(si.MaxFrameSize), 24},
		{uint64(si.SampleRate), 20},
		{uint64(si.ChannelCount - 1), 3},
		{uint64(si.BitsPerSample - 1), 5},
		{si.SampleCount, 36},
	}
	for _, f := range fields {
		if err := w.WriteRawUint(f.v, f.n); err != nil {
			return err
		}
	}
	return w.WriteByteBlock(si.MD5sum[:])
}
