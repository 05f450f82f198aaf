// Package encoder implements the FLAC stream encoder: compression-level
// presets, per-block subframe selection (fixed and LPC prediction,
// partitioned-Rice entropy coding, mid/side decorrelation), frame framing,
// and optional verify-while-encoding.
package encoder

import (
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/internal/bitio"
	"github.com/mewkiz/flac/internal/md5sum"
	"github.com/mewkiz/flac/meta"
)

// Encoder writes a FLAC stream to an io.Writer: metadata blocks followed
// by audio frames. An Encoder is not safe for concurrent use.
type Encoder struct {
	w    io.Writer
	seek io.WriteSeeker // non-nil when w also supports Seek, for STREAMINFO patch-back.
	opts resolved

	buf [][]int32 // one slice per input channel, length 0..blockSize+1 samples buffered so far.

	frameNumber  uint64
	totalSamples uint64
	minFrameSize uint32
	maxFrameSize uint32

	bytesWritten     int64
	firstFrameOffset int64

	// Seek-table template support: when the caller supplies a SEEKTABLE
	// block, its requested sample numbers are snapped to real frame
	// boundaries and patched back at Close (seekable output only).
	seekTemplate    *meta.SeekTable
	seekTableOffset int64
	seekTableIsLast bool
	frameIndex      []frameRecord

	md5 *md5sum.Hasher

	looseFrameCount    int
	looseFramesElapsed int
	lastAssignment     frame.ChannelAssignment
	haveLastAssignment bool

	streamInfo       *meta.StreamInfo
	streamInfoIsLast bool

	verifier *verifier

	closed bool
}

// New returns an Encoder that writes a FLAC stream to w, validating opts
// and writing "fLaC" plus every metadata block (STREAMINFO first) before
// returning. There is no separate Uninitialized->Ok transition: a failed
// validation simply returns an error instead of a usable Encoder.
func New(w io.Writer, opts Options) (*Encoder, error) {
	r, err := opts.resolve()
	if err != nil {
		return nil, err
	}

	e := &Encoder{
		w:    w,
		opts: r,
		buf:  make([][]int32, r.channels),
		md5:  md5sum.New(),
	}
	for i := range e.buf {
		e.buf[i] = make([]int32, 0, r.blockSize+1)
	}
	e.looseFrameCount = looseMidSideFrameCount(r.sampleRate, r.blockSize)
	if sw, ok := w.(io.WriteSeeker); ok {
		e.seek = sw
	}

	e.streamInfo = &meta.StreamInfo{
		MinBlockSize:  uint16(r.blockSize),
		MaxBlockSize:  uint16(r.blockSize),
		SampleRate:    uint32(r.sampleRate),
		ChannelCount:  uint8(r.channels),
		BitsPerSample: uint8(r.bitsPerSample),
		SampleCount:   opts.TotalSamplesEstimate,
	}

	if err := e.writeHeader(opts.Metadata); err != nil {
		return nil, errors.Wrap(err, "encoder: writing metadata")
	}

	if r.verify {
		e.verifier = newVerifier(uint8(r.bitsPerSample), uint32(r.sampleRate))
	}
	return e, nil
}

// looseMidSideFrameCount is the number of consecutive frames that reuse a
// loose mid/side decision before it's recomputed:
// round(sample_rate * 0.4 / blocksize), at least 1, roughly 0.4 seconds of
// audio.
func looseMidSideFrameCount(sampleRate, blockSize int) int {
	n := int(math.Round(float64(sampleRate) * 0.4 / float64(blockSize)))
	if n < 1 {
		n = 1
	}
	return n
}

// frameRecord remembers where one emitted frame landed, for resolving a
// caller-supplied seek-table template at Close.
type frameRecord struct {
	sample    uint64
	offset    int64 // absolute byte offset of the frame's sync byte.
	blockSize uint16
}

func (e *Encoder) writeHeader(extra []*meta.Block) error {
	if _, err := e.w.Write([]byte("fLaC")); err != nil {
		return err
	}
	e.bytesWritten = 4
	e.streamInfoIsLast = len(extra) == 0
	siBlock := &meta.Block{
		Header: meta.BlockHeader{IsLast: e.streamInfoIsLast, Type: meta.TypeStreamInfo},
		Body:   e.streamInfo,
	}
	if err := e.writeMetaBlock(siBlock); err != nil {
		return err
	}
	for i, b := range extra {
		b.Header.IsLast = i == len(extra)-1
		if st, ok := b.Body.(*meta.SeekTable); ok {
			e.seekTemplate = st
			e.seekTableOffset = e.bytesWritten
			e.seekTableIsLast = b.Header.IsLast
		}
		if err := e.writeMetaBlock(b); err != nil {
			return err
		}
	}
	e.firstFrameOffset = e.bytesWritten
	return nil
}

func (e *Encoder) writeMetaBlock(b *meta.Block) error {
	w := bitio.NewWriter()
	if err := meta.Encode(w, b); err != nil {
		return err
	}
	buf, _ := w.Buffer()
	n, err := e.w.Write(buf)
	e.bytesWritten += int64(n)
	return err
}

// WriteSamples appends one block of planar, full-precision PCM samples —
// one slice per channel, all the same length — to the encoder's input
// buffer, emitting complete frames as they fill. The encoder always holds
// back exactly one sample past the configured
// blocksize so a later, shorter final call can still be told apart from
// "more data is coming".
func (e *Encoder) WriteSamples(channels [][]int32) error {
	if e.closed {
		return errors.New("encoder: WriteSamples called after Close")
	}
	if len(channels) != len(e.buf) {
		return errors.Errorf("encoder: expected %d channels, got %d", len(e.buf), len(channels))
	}
	n := len(channels[0])
	for _, ch := range channels {
		if len(ch) != n {
			return errors.New("encoder: channel slices must all have the same length")
		}
	}

	for i := 0; i < n; i++ {
		for ch := range e.buf {
			e.buf[ch] = append(e.buf[ch], channels[ch][i])
		}
		if len(e.buf[0]) == e.opts.blockSize+1 {
			overflow := make([]int32, len(e.buf))
			for ch := range e.buf {
				overflow[ch] = e.buf[ch][e.opts.blockSize]
			}
			if err := e.processFrame(e.sliceBlock(e.opts.blockSize)); err != nil {
				return err
			}
			for ch := range e.buf {
				e.buf[ch] = append(e.buf[ch][:0], overflow[ch])
			}
		}
	}
	return nil
}

// WriteSamplesInterleaved is the channel-interleaved counterpart of
// WriteSamples: samples holds sample 0 of every channel, then sample 1 of
// every channel, and so on, and must contain a whole number of
// inter-channel samples.
func (e *Encoder) WriteSamplesInterleaved(samples []int32) error {
	nch := len(e.buf)
	if len(samples)%nch != 0 {
		return errors.Errorf("encoder: interleaved sample count %d is not a multiple of %d channels", len(samples), nch)
	}
	n := len(samples) / nch
	channels := make([][]int32, nch)
	for ch := range channels {
		channels[ch] = make([]int32, n)
		for i := 0; i < n; i++ {
			channels[ch][i] = samples[i*nch+ch]
		}
	}
	return e.WriteSamples(channels)
}

// sliceBlock returns the first n buffered samples of every channel as
// independent slices, safe to retain across the following reset of e.buf.
func (e *Encoder) sliceBlock(n int) [][]int32 {
	block := make([][]int32, len(e.buf))
	for ch := range e.buf {
		block[ch] = append([]int32(nil), e.buf[ch][:n]...)
	}
	return block
}

// processFrame chooses a channel assignment and subframe encoding for one
// block and writes the resulting frame.
func (e *Encoder) processFrame(block [][]int32) error {
	blockSize := len(block[0])
	if !e.opts.disableMD5 {
		e.md5.WriteSamples(interleave(block), e.opts.bitsPerSample)
	}

	var hdr frame.Header
	hdr.BlockSize = uint16(blockSize)
	hdr.SampleRate = uint32(e.opts.sampleRate)
	hdr.BitsPerSample = uint8(e.opts.bitsPerSample)
	hdr.NumberType = frame.FrameNumberType
	hdr.Number = e.frameNumber

	var subframes []frame.Subframe
	if e.channels() == 2 && e.opts.doMidSide {
		ca, sfs := e.chooseStereo(block[0], block[1])
		hdr.ChannelAssignment = ca
		subframes = sfs
	} else {
		hdr.ChannelAssignment = frame.ChannelAssignment(e.channels() - 1)
		subframes = make([]frame.Subframe, e.channels())
		for ch := 0; ch < e.channels(); ch++ {
			sf, _ := e.chooseSubframe(block[ch], uint8(e.opts.bitsPerSample), false)
			subframes[ch] = sf
		}
	}

	w := bitio.NewWriter()
	if err := frame.Encode(w, frame.Frame{Header: hdr, Subframes: subframes}); err != nil {
		return errors.Wrap(err, "encoder: encoding frame")
	}
	buf, n := w.Buffer()

	if e.verifier != nil {
		if err := e.verifier.check(buf, block, e.frameNumber); err != nil {
			return err
		}
	}

	if e.seekTemplate != nil {
		e.frameIndex = append(e.frameIndex, frameRecord{
			sample:    e.totalSamples,
			offset:    e.bytesWritten,
			blockSize: uint16(blockSize),
		})
	}
	if _, err := e.w.Write(buf); err != nil {
		return errors.Wrap(err, "encoder: writing frame")
	}
	e.bytesWritten += int64(n)

	if e.minFrameSize == 0 || uint32(n) < e.minFrameSize {
		e.minFrameSize = uint32(n)
	}
	if uint32(n) > e.maxFrameSize {
		e.maxFrameSize = uint32(n)
	}
	e.totalSamples += uint64(blockSize)
	e.frameNumber++
	return nil
}

func (e *Encoder) channels() int { return e.opts.channels }

// chooseStereo decides between Independent, LeftSide, RightSide and
// MidSide for a 2-channel block, honoring the loose-mid-side reuse
// counter, and returns the winning assignment's channel-ordered
// subframes.
func (e *Encoder) chooseStereo(left, right []int32) (frame.ChannelAssignment, []frame.Subframe) {
	side := make([]int32, len(left))
	mid := make([]int32, len(left))
	for i := range left {
		side[i] = left[i] - right[i]
		mid[i] = (left[i] + right[i]) >> 1
	}

	leftSF, leftBits := e.chooseSubframe(left, uint8(e.opts.bitsPerSample), false)
	rightSF, rightBits := e.chooseSubframe(right, uint8(e.opts.bitsPerSample), false)
	sideSF, sideBits := e.chooseSubframe(side, uint8(e.opts.bitsPerSample), true)
	midSF, midBits := e.chooseSubframe(mid, uint8(e.opts.bitsPerSample), false)

	if e.opts.looseMidSide && e.haveLastAssignment && e.looseFramesElapsed < e.looseFrameCount {
		e.looseFramesElapsed++
		return e.lastAssignment, e.subframesFor(e.lastAssignment, leftSF, rightSF, midSF, sideSF)
	}

	costs := map[frame.ChannelAssignment]int{
		frame.ChannelAssignment(1): leftBits + rightBits, // Independent (2 channels -> wire code 1)
		frame.LeftSide:             leftBits + sideBits,
		frame.RightSide:            sideBits + rightBits,
		frame.MidSide:              midBits + sideBits,
	}
	best := frame.ChannelAssignment(1)
	bestBits := costs[best]
	for _, ca := range []frame.ChannelAssignment{frame.LeftSide, frame.RightSide, frame.MidSide} {
		if costs[ca] < bestBits {
			best, bestBits = ca, costs[ca]
		}
	}

	e.lastAssignment = best
	e.haveLastAssignment = true
	e.looseFramesElapsed = 1
	return best, e.subframesFor(best, leftSF, rightSF, midSF, sideSF)
}

func (e *Encoder) subframesFor(ca frame.ChannelAssignment, left, right, mid, side frame.Subframe) []frame.Subframe {
	switch ca {
	case frame.LeftSide:
		return []frame.Subframe{left, side}
	case frame.RightSide:
		return []frame.Subframe{side, right}
	case frame.MidSide:
		return []frame.Subframe{mid, side}
	default:
		return []frame.Subframe{left, right}
	}
}

// interleave folds planar per-channel samples into channel-interleaved
// order (sample 0 of channel 0, sample 0 of channel 1, ..., sample 1 of
// channel 0, ...) for MD5 accumulation.
func interleave(block [][]int32) []int32 {
	if len(block) == 0 {
		return nil
	}
	n := len(block[0])
	out := make([]int32, 0, n*len(block))
	for i := 0; i < n; i++ {
		for ch := range block {
			out = append(out, block[ch][i])
		}
	}
	return out
}

// Close flushes any partially buffered block as the stream's final
// (possibly shorter) frame, finalizes the MD5 digest, and — if the
// underlying writer also supports Seek — rewrites STREAMINFO with the
// real sample count, frame size bounds and digest.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	if n := len(e.buf[0]); n > 0 {
		if err := e.processFrame(e.sliceBlock(n)); err != nil {
			return err
		}
	}

	e.streamInfo.SampleCount = e.totalSamples
	e.streamInfo.MinFrameSize = e.minFrameSize
	e.streamInfo.MaxFrameSize = e.maxFrameSize
	if !e.opts.disableMD5 {
		e.streamInfo.MD5sum = e.md5.Sum()
	}

	if e.seek == nil {
		return nil
	}
	if _, err := e.seek.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "encoder: seeking to rewrite STREAMINFO")
	}
	w := bitio.NewWriter()
	if err := meta.Encode(w, &meta.Block{
		Header: meta.BlockHeader{IsLast: e.streamInfoIsLast, Type: meta.TypeStreamInfo},
		Body:   e.streamInfo,
	}); err != nil {
		return err
	}
	buf, _ := w.Buffer()
	if _, err := e.seek.Write(append([]byte("fLaC"), buf...)); err != nil {
		return errors.Wrap(err, "encoder: rewriting STREAMINFO")
	}
	return e.resolveSeekTable()
}

// resolveSeekTable snaps every requested point of a caller-supplied
// SEEKTABLE template to the frame boundary at or before its sample number
// and patches the block in place. Placeholder points stay placeholders.
func (e *Encoder) resolveSeekTable() error {
	if e.seekTemplate == nil || len(e.frameIndex) == 0 {
		return nil
	}
	for i, p := range e.seekTemplate.Points {
		if p.SampleNum == meta.PlaceholderPoint {
			continue
		}
		rec := e.frameIndex[0]
		for _, r := range e.frameIndex {
			if r.sample > p.SampleNum {
				break
			}
			rec = r
		}
		e.seekTemplate.Points[i] = meta.SeekPoint{
			SampleNum:   rec.sample,
			Offset:      uint64(rec.offset - e.firstFrameOffset),
			SampleCount: rec.blockSize,
		}
	}
	e.seekTemplate.Sort()

	if _, err := e.seek.Seek(e.seekTableOffset, io.SeekStart); err != nil {
		return errors.Wrap(err, "encoder: seeking to rewrite seek table")
	}
	w := bitio.NewWriter()
	if err := meta.Encode(w, &meta.Block{
		Header: meta.BlockHeader{IsLast: e.seekTableIsLast, Type: meta.TypeSeekTable},
		Body:   e.seekTemplate,
	}); err != nil {
		return err
	}
	buf, _ := w.Buffer()
	if _, err := e.seek.Write(buf); err != nil {
		return errors.Wrap(err, "encoder: rewriting seek table")
	}
	return nil
}
