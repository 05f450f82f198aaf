package decoder

import (
	"io"

	"github.com/pkg/errors"

	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// ErrSeek is returned when SeekAbsolute cannot converge on the target
// sample, or when the underlying source refuses to seek.
var ErrSeek = errors.New("decoder: seek failed")

// maxSeekIterations bounds the proportional search; with halving bounds it
// is never approached on a well-formed stream.
const maxSeekIterations = 64

// SeekAbsolute positions the decoder so that the next call to Next returns
// a frame whose first sample is exactly target: the frame containing
// target is decoded and its leading samples are clipped. The source must
// support seeking and stream metadata must already be parsed (SeekAbsolute
// parses it on demand). Whole-stream MD5 verification is disabled by a
// successful seek, since frames are no longer decoded contiguously.
//
// The search is proportional bisection: seek
// table points tighten the initial bounds, then each decoded frame's
// sample range replaces one bound until the target frame is hit.
func (d *Decoder) SeekAbsolute(target uint64) error {
	if d.rs == nil {
		return errors.Wrap(ErrSeek, "source does not support seeking")
	}
	if err := d.ProcessUntilEndOfMetadata(); err != nil {
		return err
	}
	if d.info == nil {
		return errors.Wrap(ErrSeek, "no STREAMINFO to seek with")
	}
	if d.info.SampleCount > 0 && target >= d.info.SampleCount {
		return errors.Wrapf(ErrSeek, "target sample %d beyond stream end %d", target, d.info.SampleCount)
	}
	if err := d.measureStream(); err != nil {
		return err
	}

	loPos, hiPos := d.firstFrameOffset, d.streamLen
	var loSample uint64
	hiSample := d.info.SampleCount
	if hiSample == 0 {
		hiSample = target + 1
	}
	if lo, hi, ok := d.seekTableBounds(target); ok {
		if lo.Offset > 0 || lo.SampleNum > 0 {
			loPos = d.firstFrameOffset + int64(lo.Offset)
			loSample = lo.SampleNum
		}
		if hi.SampleNum != meta.PlaceholderPoint {
			hiPos = d.firstFrameOffset + int64(hi.Offset)
			hiSample = hi.SampleNum
		}
	}

	approxFrameLen := d.approxFrameLength()
	d.md5Valid = false
	d.pending = nil

	prevPos := int64(-1)
	for iter := 0; iter < maxSeekIterations; iter++ {
		if hiSample <= loSample || hiPos <= loPos {
			break
		}
		pos := loPos + int64(float64(target-loSample)/float64(hiSample-loSample)*float64(hiPos-loPos)) - approxFrameLen
		if pos < loPos {
			pos = loPos
		}
		if pos >= hiPos {
			pos = hiPos - 1
		}
		if pos == prevPos {
			// No forward progress; nudge the estimate back toward the lower
			// bound before giving up.
			pos = loPos
			if pos == prevPos {
				break
			}
		}
		prevPos = pos

		f, frameStart, err := d.decodeFrameAt(pos)
		if err == io.EOF {
			// Overshot into the trailing bytes; everything from pos on is
			// past the last frame.
			hiPos = pos
			continue
		}
		if err != nil {
			d.state = StateSeekError
			return d.fatal(errors.Wrap(ErrSeek, err.Error()))
		}

		start := d.frameStartSample(f.Header)
		n := uint64(f.Header.BlockSize)
		switch {
		case target < start:
			hiPos, hiSample = frameStart, start
		case target >= start+n:
			loPos, loSample = d.pos(), start+n
		default:
			clipFrame(f, int(target-start))
			d.pending = f
			d.samplePos = target + n - (target - start)
			d.state = StateSearchForFrameSync
			return nil
		}
	}
	d.state = StateSeekError
	return d.fatal(errors.Wrapf(ErrSeek, "no frame containing sample %d found", target))
}

// measureStream determines the stream's byte length once, via the seek
// callback.
func (d *Decoder) measureStream() error {
	if d.streamLen > 0 {
		return nil
	}
	end, err := d.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return errors.Wrap(ErrSeek, err.Error())
	}
	d.streamLen = end
	return nil
}

// seekTableBounds returns the closest seek points at or below and strictly
// above target, ignoring placeholders. ok is false when the stream has no
// usable seek table.
func (d *Decoder) seekTableBounds(target uint64) (lo, hi meta.SeekPoint, ok bool) {
	if d.seekTable == nil {
		return lo, hi, false
	}
	hi.SampleNum = meta.PlaceholderPoint
	found := false
	for _, p := range d.seekTable.Points {
		if p.SampleNum == meta.PlaceholderPoint {
			continue
		}
		if d.info.SampleCount > 0 && p.SampleNum >= d.info.SampleCount {
			continue // impossible entry.
		}
		if p.SampleNum <= target {
			if !found || p.SampleNum >= lo.SampleNum {
				lo = p
				found = true
			}
		} else if hi.SampleNum == meta.PlaceholderPoint || p.SampleNum < hi.SampleNum {
			hi = p
		}
	}
	return lo, hi, found || hi.SampleNum != meta.PlaceholderPoint
}

// approxFrameLength estimates one frame's byte length, used to bias the
// proportional estimate so the frame containing the target starts at or
// after the landing position.
func (d *Decoder) approxFrameLength() int64 {
	if d.info.MaxFrameSize > 0 {
		return int64(d.info.MaxFrameSize)
	}
	// Half the uncompressed block size is a serviceable guess.
	bytesPerSample := int64(d.info.BitsPerSample+7) / 8
	return int64(d.info.MaxBlockSize)*int64(d.info.ChannelCount)*bytesPerSample/2 + 64
}

// decodeFrameAt seeks the source to pos, resynchronizes, and decodes one
// frame, returning it along with the absolute offset its sync byte was
// found at.
func (d *Decoder) decodeFrameAt(pos int64) (*frame.Frame, int64, error) {
	if _, err := d.rs.Seek(pos, io.SeekStart); err != nil {
		return nil, 0, err
	}
	d.src = d.rs
	d.rebuild(pos, nil)
	d.state = StateSearchForFrameSync

	// A landing position inside a frame body can masquerade as sync
	// bytes; tolerate a few false positives before treating the region as
	// unparseable.
	for tries := 0; tries < maxBadFrames; tries++ {
		if err := d.searchFrameSync(); err != nil {
			return nil, 0, err
		}
		frameStart := d.pos()
		d.br.ResetReadCRC16(0)
		f, err := frame.Decode(d.br, d.info.BitsPerSample, d.info.SampleRate)
		if err == nil {
			d.state = StateSearchForFrameSync
			return &f, frameStart, nil
		}
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, io.EOF
		}
		if errors.Is(err, frame.ErrBadHeader) || errors.Is(err, frame.ErrFrameCRCMismatch) {
			continue
		}
		return nil, 0, err
	}
	return nil, 0, ErrAborted
}

// frameStartSample converts a frame header's number field to the absolute
// sample number of the frame's first sample.
func (d *Decoder) frameStartSample(hdr frame.Header) uint64 {
	if hdr.NumberType == frame.SampleNumberType {
		return hdr.Number
	}
	// Fixed-blocksize stream: every non-terminal frame has the nominal
	// blocksize, so frame number * nominal blocksize is exact.
	return hdr.Number * uint64(d.info.MaxBlockSize)
}

// clipFrame drops the first n samples of every subframe, so the frame's
// first delivered sample is the seek target.
func clipFrame(f *frame.Frame, n int) {
	for i := range f.Subframes {
		f.Subframes[i].Samples = f.Subframes[i].Samples[n:]
	}
}
