package encoder

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/internal/bitio"
)

// ErrVerifyMismatch is returned when verify-while-encoding is enabled and a
// decoded frame's samples don't match the input that produced it. It
// carries enough detail to locate the mismatch: the
// absolute sample, frame number, channel and the two values that
// disagreed.
type ErrVerifyMismatch struct {
	AbsoluteSample uint64
	FrameNumber    uint64
	Channel        int
	SampleInBlock  int
	Expected       int32
	Got            int32
}

func (e *ErrVerifyMismatch) Error() string {
	return errors.Errorf("encoder: verify mismatch at frame %d, channel %d, sample %d (absolute %d): expected %d, got %d",
		e.FrameNumber, e.Channel, e.SampleInBlock, e.AbsoluteSample, e.Expected, e.Got).Error()
}

// verifier round-trips every frame the encoder writes through frame.Decode
// and compares the result against the original input. It needs no
// fully-owned decoder.Decoder, since a single already-framed buffer is all
// there is to check: a fresh bitio.Reader over those bytes starts both CRC
// accumulators at 0, which is already the correct state for decoding a
// frame from its very first (sync) bit.
type verifier struct {
	bitsPerSample uint8
	sampleRate    uint32
	samplesSeen   uint64
}

func newVerifier(bitsPerSample uint8, sampleRate uint32) *verifier {
	return &verifier{bitsPerSample: bitsPerSample, sampleRate: sampleRate}
}

// check decodes buf (the exact bytes just written for one frame) and
// compares every channel's samples against block, the original,
// pre-decorrelation input for that frame.
func (v *verifier) check(buf []byte, block [][]int32, frameNumber uint64) error {
	r := bitio.NewReader(bytes.NewReader(buf))
	decoded, err := frame.Decode(r, v.bitsPerSample, v.sampleRate)
	if err != nil {
		return errors.Wrap(err, "encoder: verify: decoding just-written frame")
	}

	for ch, want := range block {
		got := decoded.Subframes[ch].Samples
		for i, w := range want {
			if got[i] != w {
				return &ErrVerifyMismatch{
					AbsoluteSample: v.samplesSeen + uint64(i),
					FrameNumber:    frameNumber,
					Channel:        ch,
					SampleInBlock:  i,
					Expected:       w,
					Got:            got[i],
				}
			}
		}
	}
	v.samplesSeen += uint64(len(block[0]))
	return nil
}
