// Package decoder implements the FLAC stream decoder: marker and metadata
// parsing, frame-sync search with lost-sync recovery, per-frame decoding,
// seek-table-assisted random access, and end-to-end MD5 verification of
// the decoded audio.
//
// The state machine mirrors libFLAC's decoder states, expressed over an
// io.Reader instead of a read callback. The frame and metadata wire
// formats live in the frame and meta packages; this package owns only
// stream-level concerns.
package decoder

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/internal/bitio"
	"github.com/mewkiz/flac/internal/md5sum"
	"github.com/mewkiz/flac/meta"
)

// State is the decoder's observable position in its lifecycle.
type State int

// Decoder states. A Decoder moves SearchForMetadata -> ReadMetadata ->
// SearchForFrameSync <-> ReadFrame until EndOfStream; Aborted and
// SeekError are terminal failure states.
const (
	StateSearchForMetadata State = iota
	StateReadMetadata
	StateSearchForFrameSync
	StateReadFrame
	StateEndOfStream
	StateSeekError
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateSearchForMetadata:
		return "search for metadata"
	case StateReadMetadata:
		return "read metadata"
	case StateSearchForFrameSync:
		return "search for frame sync"
	case StateReadFrame:
		return "read frame"
	case StateEndOfStream:
		return "end of stream"
	case StateSeekError:
		return "seek error"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// ErrorKind classifies the recoverable stream errors reported through
// Options.OnError. None of them stop the decoder; it resynchronizes and
// keeps scanning.
type ErrorKind int

const (
	// LostSync means garbage bytes were skipped before the next frame sync
	// was found.
	LostSync ErrorKind = iota
	// BadHeader means a frame header failed validation (reserved bit set,
	// CRC-8 mismatch, malformed coded number, reserved subframe type).
	BadHeader
	// FrameCRCMismatch means a frame parsed but its footer CRC-16 did not
	// match; the frame's samples are delivered zeroed.
	FrameCRCMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case LostSync:
		return "lost sync"
	case BadHeader:
		return "bad header"
	case FrameCRCMismatch:
		return "frame CRC mismatch"
	}
	return "unknown"
}

// Options configures a Decoder. The zero value is ready to use.
type Options struct {
	// DisableMD5 skips accumulation and final verification of the decoded
	// audio's MD5 digest.
	DisableMD5 bool
	// OnError, if non-nil, is invoked for every recoverable stream error
	// (lost sync, bad header, frame CRC mismatch) before the decoder
	// resynchronizes.
	OnError func(kind ErrorKind, err error)
	// OnMetadata, if non-nil, is invoked once per parsed metadata block, in
	// stream order.
	OnMetadata func(block *meta.Block)
}

// ErrMD5Mismatch is returned at end of stream when the MD5 digest of the
// decoded samples does not match the digest stored in STREAMINFO.
var ErrMD5Mismatch = errors.New("decoder: MD5 checksum mismatch between decoded audio and STREAMINFO")

// ErrAborted is returned after too many consecutive unparseable frames;
// the stream is presumed not to be FLAC from the current position on.
var ErrAborted = errors.New("decoder: too many consecutive unparseable frames")

// maxBadFrames is the number of consecutive frame parse failures tolerated
// before the decoder gives up with ErrAborted.
const maxBadFrames = 20

// Decoder reads a FLAC stream from an io.Reader, delivering one decoded
// frame per call to Next. A Decoder is not safe for concurrent use.
type Decoder struct {
	src  io.Reader     // current byte source, including any pushed-back sync bytes.
	rs   io.ReadSeeker // non-nil when the source supports seeking.
	br   *bitio.Reader
	base int64 // absolute stream offset of br's first byte.

	state State
	opts  Options

	info      *meta.StreamInfo
	blocks    []*meta.Block
	seekTable *meta.SeekTable

	firstFrameOffset int64
	streamLen        int64 // total stream length in bytes, or 0 if unknown.

	md5       *md5sum.Hasher
	md5Valid  bool // false once seeking or errors make the whole-stream digest meaningless.
	samplePos uint64

	pending   *frame.Frame // set by SeekAbsolute: the target frame, leading samples clipped.
	badFrames int
	err       error // sticky fatal error.
}

// New returns a Decoder reading a FLAC stream from r. No bytes are
// consumed until the first call to Next, ProcessSingle or
// ProcessUntilEndOfMetadata. If r also implements io.ReadSeeker, the
// decoder supports SeekAbsolute and Reset.
func New(r io.Reader, opts Options) *Decoder {
	d := &Decoder{
		src:      r,
		state:    StateSearchForMetadata,
		opts:     opts,
		md5:      md5sum.New(),
		md5Valid: !opts.DisableMD5,
	}
	if rs, ok := r.(io.ReadSeeker); ok {
		d.rs = rs
	}
	d.br = bitio.NewReader(d.src)
	return d
}

// State returns the decoder's current lifecycle state.
func (d *Decoder) State() State { return d.state }

// StreamInfo returns the stream's STREAMINFO block, or nil if metadata has
// not been parsed yet (or the stream is a raw frame stream whose first
// frame has not been seen).
func (d *Decoder) StreamInfo() *meta.StreamInfo { return d.info }

// Blocks returns every metadata block parsed so far, in stream order.
func (d *Decoder) Blocks() []*meta.Block { return d.blocks }

// pos returns the absolute stream offset of the next unread byte. Only
// meaningful when the bit reader is byte aligned.
func (d *Decoder) pos() int64 {
	return d.base + d.br.BytesRead()
}

// rebuild discards the current bit reader and starts a fresh one at
// absolute offset base, optionally prepending pushback bytes that were
// already consumed from the source (the two sync bytes found by the
// scanner). The fresh reader's CRC accumulators start at zero, which is
// exactly the state frame.Decode expects at a frame's first byte.
func (d *Decoder) rebuild(base int64, pushback []byte) {
	if len(pushback) > 0 {
		d.src = io.MultiReader(bytes.NewReader(pushback), d.src)
	}
	d.br = bitio.NewReader(d.src)
	d.base = base
}

// Next returns the next decoded audio frame, parsing any metadata still
// ahead of the first frame. At end of stream it returns io.EOF — or
// ErrMD5Mismatch if MD5 verification was active and failed.
func (d *Decoder) Next() (*frame.Frame, error) {
	for {
		f, err := d.ProcessSingle()
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
	}
}

// ProcessSingle advances the decoder by exactly one state-machine step:
// one marker read, one metadata block, one resynchronization, or one audio
// frame. It returns a non-nil frame only for a frame step.
func (d *Decoder) ProcessSingle() (*frame.Frame, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.pending != nil {
		f := d.pending
		d.pending = nil
		d.state = StateSearchForFrameSync
		return f, nil
	}

	switch d.state {
	case StateSearchForMetadata:
		return nil, d.readStreamMarker()
	case StateReadMetadata:
		return nil, d.readMetadataBlock()
	case StateSearchForFrameSync:
		err := d.searchFrameSync()
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			d.state = StateEndOfStream
			return nil, nil
		}
		return nil, err
	case StateReadFrame:
		return d.readFrame()
	case StateEndOfStream:
		return nil, d.endOfStream()
	case StateSeekError:
		return nil, d.fatal(errors.New("decoder: in seek error state"))
	case StateAborted:
		return nil, d.fatal(ErrAborted)
	}
	return nil, errors.Errorf("decoder: invalid state %d", d.state)
}

// ProcessUntilEndOfMetadata parses the stream marker and every metadata
// block, stopping just before the first audio frame.
func (d *Decoder) ProcessUntilEndOfMetadata() error {
	for d.state == StateSearchForMetadata || d.state == StateReadMetadata {
		if _, err := d.ProcessSingle(); err != nil {
			return err
		}
	}
	return nil
}

// ProcessUntilEndOfStream decodes every remaining frame, discarding the
// samples, and returns nil on a clean end of stream (or ErrMD5Mismatch if
// verification failed).
func (d *Decoder) ProcessUntilEndOfStream() error {
	for {
		_, err := d.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// SkipSingleFrame decodes the next frame's structure and returns only its
// header; the samples are discarded without being folded into the MD5
// accumulator, so a partially skipped stream no longer verifies.
func (d *Decoder) SkipSingleFrame() (frame.Header, error) {
	d.md5Valid = false
	f, err := d.Next()
	if err != nil {
		return frame.Header{}, err
	}
	return f.Header, nil
}

// fatal records err as the decoder's sticky failure and returns it.
func (d *Decoder) fatal(err error) error {
	if d.err == nil {
		d.err = err
	}
	return d.err
}

// endOfStream performs the end-of-stream MD5 comparison and returns io.EOF
// (or ErrMD5Mismatch). Safe to call repeatedly.
func (d *Decoder) endOfStream() error {
	if d.md5Valid && d.info != nil && d.info.MD5sum != [16]byte{} {
		if d.md5.Sum() != d.info.MD5sum {
			d.md5Valid = false // report the mismatch once.
			return ErrMD5Mismatch
		}
	}
	return io.EOF
}

// id3Marker is the magic opening an ID3v2 tag, which some tools prepend to
// FLAC files and the decoder must skip.
var id3Marker = []byte("ID3")

// readStreamMarker consumes the optional leading ID3v2 tag and then either
// the "fLaC" marker (native stream, metadata follows) or, failing that,
// pushes the peeked bytes back and drops into raw frame-sync search.
func (d *Decoder) readStreamMarker() error {
	var buf [4]byte
	start := d.pos()
	if err := d.br.ReadByteBlockAlignedNoCRC(buf[:]); err != nil {
		return d.fatal(err)
	}
	switch {
	case bytes.Equal(buf[:], []byte("fLaC")):
		d.state = StateReadMetadata
		return nil
	case bytes.Equal(buf[:3], id3Marker):
		// ID3v2 header: "ID3" ver(2) flags(1) size(4, sync-safe). One
		// version byte is already in buf[3].
		var rest [6]byte
		if err := d.br.ReadByteBlockAlignedNoCRC(rest[:]); err != nil {
			return d.fatal(err)
		}
		size := int(rest[2]&0x7F)<<21 | int(rest[3]&0x7F)<<14 | int(rest[4]&0x7F)<<7 | int(rest[5]&0x7F)
		if err := d.br.SkipByteBlockAlignedNoCRC(size); err != nil {
			return d.fatal(err)
		}
		return nil // still SearchForMetadata; re-read the marker.
	default:
		// Raw frame stream: no marker, no metadata. Push the peeked bytes
		// back and scan for a frame sync; STREAMINFO fields are inferred
		// from the first frame.
		d.rebuild(start, buf[:])
		d.firstFrameOffset = start
		d.state = StateSearchForFrameSync
		return nil
	}
}

// readMetadataBlock parses one metadata block, recording STREAMINFO and
// the seek table as they pass by.
func (d *Decoder) readMetadataBlock() error {
	block, err := meta.Decode(d.br)
	if err != nil {
		return d.fatal(errors.Wrap(err, "decoder: parsing metadata block"))
	}
	if len(d.blocks) == 0 {
		si, ok := block.Body.(*meta.StreamInfo)
		if !ok {
			return d.fatal(errors.New("decoder: first metadata block is not STREAMINFO"))
		}
		d.info = si
	}
	d.blocks = append(d.blocks, block)
	if st, ok := block.Body.(*meta.SeekTable); ok {
		d.seekTable = st
	}
	if d.opts.OnMetadata != nil {
		d.opts.OnMetadata(block)
	}
	if block.Header.IsLast {
		d.firstFrameOffset = d.pos()
		d.state = StateSearchForFrameSync
	}
	return nil
}

// searchFrameSync scans forward byte by byte for the 14-bit frame sync
// pattern (0xFFF8..0xFFFB as a byte pair), pushes the two sync bytes back
// and rebuilds the bit reader so the next frame decode starts with clean
// CRC accumulators at the sync byte. Skipped garbage is reported as
// LostSync.
func (d *Decoder) searchFrameSync() error {
	// Realign first: a failed mid-frame parse can leave the reader inside
	// a byte, and frames are always byte aligned.
	if n := d.br.BitsLeftForByteAlignment(); n > 0 {
		if err := d.br.SkipBits(n); err != nil {
			return err
		}
	}
	var prev byte
	havePrev := false
	skipped := -1
	for {
		v, err := d.br.ReadRawUint(8)
		if err != nil {
			return err
		}
		b := byte(v)
		skipped++
		if havePrev && prev == 0xFF && b&0xFC == 0xF8 {
			if skipped > 1 && d.opts.OnError != nil {
				d.opts.OnError(LostSync, errors.Errorf("decoder: skipped %d bytes before frame sync", skipped-1))
			}
			d.rebuild(d.pos()-2, []byte{prev, b})
			d.state = StateReadFrame
			return nil
		}
		prev, havePrev = b, true
	}
}

// readFrame decodes one audio frame at the current (sync) position,
// handling the three recoverable error classes: a
// bad header resynchronizes, a footer CRC mismatch delivers the frame with
// zeroed samples, and anything else is fatal.
func (d *Decoder) readFrame() (*frame.Frame, error) {
	var streamBPS uint8
	var streamRate uint32
	if d.info != nil {
		streamBPS = d.info.BitsPerSample
		streamRate = d.info.SampleRate
	}
	d.br.ResetReadCRC16(0)
	f, err := frame.Decode(d.br, streamBPS, streamRate)
	switch {
	case err == nil:
		d.badFrames = 0
		d.state = StateSearchForFrameSync
		d.noteFrame(&f)
		d.accumulateMD5(&f)
		d.samplePos += uint64(f.Header.BlockSize)
		return &f, nil

	case errors.Is(err, frame.ErrFrameCRCMismatch):
		if d.opts.OnError != nil {
			d.opts.OnError(FrameCRCMismatch, err)
		}
		for i := range f.Subframes {
			for j := range f.Subframes[i].Samples {
				f.Subframes[i].Samples[j] = 0
			}
		}
		d.md5Valid = false
		d.badFrames = 0
		d.state = StateSearchForFrameSync
		d.samplePos += uint64(f.Header.BlockSize)
		return &f, nil

	case err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF):
		d.state = StateEndOfStream
		return nil, nil

	case errors.Is(err, frame.ErrBadHeader), errors.Is(err, bitio.ErrInvalidUTF8):
		if d.opts.OnError != nil {
			d.opts.OnError(BadHeader, err)
		}
		d.badFrames++
		if d.badFrames >= maxBadFrames {
			d.state = StateAborted
			return nil, d.fatal(ErrAborted)
		}
		d.state = StateSearchForFrameSync
		return nil, nil

	default:
		return nil, d.fatal(errors.Wrap(err, "decoder: reading frame"))
	}
}

// noteFrame fills in stream-level parameters a raw frame stream never
// declared, using the first frame's header.
func (d *Decoder) noteFrame(f *frame.Frame) {
	if d.info != nil {
		return
	}
	d.info = &meta.StreamInfo{
		MinBlockSize:  f.Header.BlockSize,
		MaxBlockSize:  f.Header.BlockSize,
		SampleRate:    f.Header.SampleRate,
		ChannelCount:  uint8(len(f.Subframes)),
		BitsPerSample: f.Header.BitsPerSample,
	}
}

// accumulateMD5 folds a decoded frame's interleaved samples into the
// running digest.
func (d *Decoder) accumulateMD5(f *frame.Frame) {
	if !d.md5Valid || d.info == nil {
		return
	}
	n := int(f.Header.BlockSize)
	interleaved := make([]int32, 0, n*len(f.Subframes))
	for i := 0; i < n; i++ {
		for ch := range f.Subframes {
			interleaved = append(interleaved, f.Subframes[ch].Samples[i])
		}
	}
	d.md5.WriteSamples(interleaved, int(d.info.BitsPerSample))
}

// Flush discards any buffered bits, advancing to the next byte boundary
// (the source has already consumed that whole byte), and restarts
// bit-level reading there; the decoder re-enters frame-sync search.
func (d *Decoder) Flush() {
	if n := d.br.BitsLeftForByteAlignment(); n > 0 {
		_ = d.br.SkipBits(n)
	}
	d.rebuild(d.pos(), nil)
	if d.state == StateReadFrame {
		d.state = StateSearchForFrameSync
	}
}

// Reset rewinds the decoder to the start of the stream, keeping its
// options but discarding all parse state. It fails if the source does not
// support seeking.
func (d *Decoder) Reset() error {
	if d.rs == nil {
		return errors.New("decoder: cannot reset a non-seekable source")
	}
	if _, err := d.rs.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "decoder: rewinding source")
	}
	d.src = d.rs
	d.rebuild(0, nil)
	d.state = StateSearchForMetadata
	d.info = nil
	d.blocks = nil
	d.seekTable = nil
	d.firstFrameOffset = 0
	d.md5.Reset()
	d.md5Valid = !d.opts.DisableMD5
	d.samplePos = 0
	d.pending = nil
	d.badFrames = 0
	d.err = nil
	return nil
}
