// Package encoder implements the FLAC stream encoder: compression-level
// presets, per-block subframe selection (fixed and LPC prediction,
// partitioned-Rice entropy coding, mid/side decorrelation), frame framing,
// and optional verify-while-encoding.
package encoder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mewkiz/flac/internal/lpc"
	"github.com/mewkiz/flac/meta"
)

// Options configures an Encoder. It is validated once, by New; there is
// no separate "Uninitialized -> Ok" transition since a Go constructor can
// simply return an error.
type Options struct {
	Channels      int
	BitsPerSample int
	SampleRate    int

	// CompressionLevel selects a preset (see presets.go) in [0,8].
	// Explicit fields below, when non-zero, override the preset.
	CompressionLevel int

	// BlockSize is the number of inter-channel samples per frame; 0 means
	// "choose automatically" (4096, or 1152 if LPC ends up disabled).
	BlockSize int

	Verify           bool
	StreamableSubset bool

	// DisableMD5 skips computation of the running MD5 digest; STREAMINFO's
	// digest field is then left zero-filled ("not computed").
	DisableMD5 bool

	// The following all default to nil/zero/false ("use preset"); set
	// explicitly to override.
	DoMidSideStereo       *bool
	LooseMidSideStereo    *bool
	MaxLPCOrder           *int
	QLPCoeffPrecision     int // 0 = auto
	DoQLPCoeffPrecSearch  bool
	DoExhaustiveModelSearch bool
	DoEscapeCoding        bool
	MinResidualPartitionOrder int
	MaxResidualPartitionOrder *int

	// Apodization is a ';'-separated list of up to 32 window functions
	// tried per block for LPC analysis, e.g. "tukey(0.5);hann;gauss(0.2)".
	// Empty means the preset default, tukey(0.5). Parameters use C-locale
	// decimal syntax regardless of the process locale.
	Apodization string

	// TotalSamplesEstimate, if known, seeds the sample count of the
	// STREAMINFO block New writes, before the real count is known; the real
	// value is patched in at Close if the writer is seekable.
	TotalSamplesEstimate uint64

	// Metadata holds extra blocks (padding, seek table template, Vorbis
	// comments, pictures, ...) to emit between STREAMINFO and the audio
	// frames. The encoder appends its own STREAMINFO as block 0
	// automatically; callers must not include one.
	Metadata []*meta.Block
}

// resolved is the fully-defaulted, preset-applied configuration actually
// used by the pipeline.
type resolved struct {
	channels, bitsPerSample, sampleRate int
	blockSize                           int
	verify, disableMD5, streamableSubset bool
	doMidSide, looseMidSide             bool
	maxLPCOrder                         int
	qlpCoeffPrecision                   int
	doQLPCoeffPrecSearch                bool
	doExhaustiveModelSearch             bool
	doEscapeCoding                      bool
	minPartitionOrder, maxPartitionOrder int
	apodizations                        []lpc.WindowSpec
}

func (o Options) resolve() (resolved, error) {
	if o.Channels < 1 || o.Channels > 8 {
		return resolved{}, fmt.Errorf("encoder: channels must be in [1,8], got %d", o.Channels)
	}
	if o.BitsPerSample < 4 || o.BitsPerSample > 32 {
		return resolved{}, fmt.Errorf("encoder: bits per sample must be in [4,32], got %d", o.BitsPerSample)
	}
	if o.SampleRate < 1 || o.SampleRate > 655350 {
		return resolved{}, fmt.Errorf("encoder: sample rate must be in [1,655350], got %d", o.SampleRate)
	}
	level := o.CompressionLevel
	if level < 0 || level > 8 {
		return resolved{}, fmt.Errorf("encoder: compression level must be in [0,8], got %d", level)
	}
	preset := presets[level]

	r := resolved{
		channels: o.Channels, bitsPerSample: o.BitsPerSample, sampleRate: o.SampleRate,
		verify: o.Verify, disableMD5: o.DisableMD5, streamableSubset: o.StreamableSubset,
		doMidSide: preset.doMidSide, looseMidSide: preset.looseMidSide,
		maxLPCOrder:             preset.maxLPCOrder,
		doQLPCoeffPrecSearch:    preset.doQLPCoeffPrecSearch,
		doExhaustiveModelSearch: preset.doExhaustiveModelSearch,
		doEscapeCoding:          preset.doEscapeCoding,
		minPartitionOrder:       preset.minPartitionOrder,
		maxPartitionOrder:       preset.maxPartitionOrder,
		apodizations:            []lpc.WindowSpec{{Kind: lpc.Tukey, Param: 0.5}},
	}
	if o.Apodization != "" {
		windows, err := parseApodization(o.Apodization)
		if err != nil {
			return resolved{}, err
		}
		r.apodizations = windows
	}
	if o.DoMidSideStereo != nil {
		r.doMidSide = *o.DoMidSideStereo
	}
	if o.LooseMidSideStereo != nil {
		r.looseMidSide = *o.LooseMidSideStereo
	}
	if o.MaxLPCOrder != nil {
		r.maxLPCOrder = *o.MaxLPCOrder
	}
	if o.DoQLPCoeffPrecSearch {
		r.doQLPCoeffPrecSearch = true
	}
	if o.DoExhaustiveModelSearch {
		r.doExhaustiveModelSearch = true
	}
	if o.DoEscapeCoding {
		r.doEscapeCoding = true
	}
	if r.maxLPCOrder > lpc.MaxOrder {
		return resolved{}, fmt.Errorf("encoder: max LPC order must be <= %d, got %d", lpc.MaxOrder, r.maxLPCOrder)
	}
	if o.MaxResidualPartitionOrder != nil {
		r.maxPartitionOrder = *o.MaxResidualPartitionOrder
	}
	r.minPartitionOrder = o.MinResidualPartitionOrder
	if r.minPartitionOrder > r.maxPartitionOrder {
		return resolved{}, fmt.Errorf("encoder: min residual partition order (%d) exceeds max (%d)", r.minPartitionOrder, r.maxPartitionOrder)
	}
	if o.StreamableSubset && r.maxPartitionOrder > 8 {
		r.maxPartitionOrder = 8
	}

	r.blockSize = o.BlockSize
	if r.blockSize == 0 {
		if r.maxLPCOrder > 0 {
			r.blockSize = 4096
		} else {
			r.blockSize = 1152
		}
	}
	if r.blockSize < 16 || r.blockSize > 65535 {
		return resolved{}, fmt.Errorf("encoder: blocksize must be in [16,65535], got %d", r.blockSize)
	}
	if r.maxLPCOrder > 0 && r.blockSize <= r.maxLPCOrder {
		return resolved{}, fmt.Errorf("encoder: blocksize (%d) must exceed max LPC order (%d)", r.blockSize, r.maxLPCOrder)
	}
	if r.doMidSide && r.channels != 2 {
		r.doMidSide = false
	}
	if r.doMidSide && r.bitsPerSample >= 32 {
		return resolved{}, fmt.Errorf("encoder: mid/side stereo requires bits per sample < 32")
	}

	r.qlpCoeffPrecision = o.QLPCoeffPrecision
	if r.qlpCoeffPrecision != 0 && (r.qlpCoeffPrecision < 5 || r.qlpCoeffPrecision > 15) {
		return resolved{}, fmt.Errorf("encoder: qlp coefficient precision must be 0 (auto) or in [5,15], got %d", r.qlpCoeffPrecision)
	}
	if o.StreamableSubset {
		if err := checkSubset(r); err != nil {
			return resolved{}, err
		}
	}
	if err := checkMetadata(o.Metadata); err != nil {
		return resolved{}, err
	}
	return r, nil
}

// subsetBlockSizes enumerates the blocksizes a streamable-subset stream
// may use (the frame header's fixed blocksize codes).
var subsetBlockSizes = map[int]bool{
	192: true, 576: true, 1152: true, 2304: true, 4608: true,
	256: true, 512: true, 1024: true, 2048: true, 4096: true,
	8192: true, 16384: true,
}

// subsetSampleRates lists the rates with a dedicated frame-header code;
// other rates are still subset-legal if expressible as whole kHz, Hz up to
// 65535, or tens of Hz.
var subsetSampleRates = map[int]bool{
	88200: true, 176400: true, 192000: true,
	8000: true, 16000: true, 22050: true, 24000: true,
	32000: true, 44100: true, 48000: true, 96000: true,
}

var subsetBitDepths = map[int]bool{8: true, 12: true, 16: true, 20: true, 24: true}

// checkSubset enforces the streamable-subset profile: enumerated
// blocksizes and bit depths, header-expressible sample rates, and the
// partition-order cap already applied by the caller.
func checkSubset(r resolved) error {
	if !subsetBlockSizes[r.blockSize] {
		return fmt.Errorf("encoder: blocksize %d not allowed in the streamable subset", r.blockSize)
	}
	if r.sampleRate <= 48000 && r.blockSize > 4608 {
		return fmt.Errorf("encoder: blocksize %d exceeds 4608 at sample rate %d in the streamable subset", r.blockSize, r.sampleRate)
	}
	sr := r.sampleRate
	expressible := subsetSampleRates[sr] ||
		(sr%1000 == 0 && sr/1000 <= 0xFF) ||
		sr <= 0xFFFF ||
		(sr%10 == 0 && sr/10 <= 0xFFFF)
	if !expressible {
		return fmt.Errorf("encoder: sample rate %d not expressible in a subset frame header", sr)
	}
	if !subsetBitDepths[r.bitsPerSample] {
		return fmt.Errorf("encoder: bits per sample %d not allowed in the streamable subset", r.bitsPerSample)
	}
	return nil
}

// checkMetadata enforces the metadata-list legality rules: the encoder
// owns STREAMINFO, SEEKTABLE and VORBIS_COMMENT appear at most once, the
// 32x32-icon picture type must actually be a 32x32 PNG, and icon picture
// types may not repeat.
func checkMetadata(blocks []*meta.Block) error {
	var seekTables, vorbisComments, fileIcons, otherFileIcons int
	for _, b := range blocks {
		switch body := b.Body.(type) {
		case *meta.StreamInfo:
			return fmt.Errorf("encoder: metadata list must not contain STREAMINFO; the encoder writes its own")
		case *meta.SeekTable:
			seekTables++
			if err := body.Legal(); err != nil {
				return err
			}
		case *meta.VorbisComment:
			vorbisComments++
		case *meta.Picture:
			switch body.Type {
			case meta.PictureFileIcon:
				fileIcons++
				if !body.IsPNG32x32() {
					return fmt.Errorf("encoder: picture type %d must be a 32x32 PNG", body.Type)
				}
			case meta.PictureOtherFileIcon:
				otherFileIcons++
			}
		}
	}
	if seekTables > 1 {
		return fmt.Errorf("encoder: metadata list contains %d SEEKTABLE blocks; at most one allowed", seekTables)
	}
	if vorbisComments > 1 {
		return fmt.Errorf("encoder: metadata list contains %d VORBIS_COMMENT blocks; at most one allowed", vorbisComments)
	}
	if fileIcons > 1 || otherFileIcons > 1 {
		return fmt.Errorf("encoder: duplicate icon picture types in metadata list")
	}
	return nil
}

// apodizationNames maps the configuration-string spelling of each window
// to its kind.
var apodizationNames = map[string]lpc.Apodization{
	"bartlett":      lpc.Bartlett,
	"bartlett_hann": lpc.BartlettHann,
	"blackman":      lpc.Blackman,
	"blackman_harris_4term_92db_sidelobe": lpc.BlackmanHarris4Term92dB,
	"connes":        lpc.Connes,
	"flattop":       lpc.Flattop,
	"hamming":       lpc.Hamming,
	"hann":          lpc.Hann,
	"kaiser_bessel": lpc.KaiserBessel,
	"nuttall":       lpc.Nuttall,
	"rectangle":     lpc.Rectangle,
	"triangle":      lpc.Triangle,
	"welch":         lpc.Welch,
}

// parseApodization parses a ';'-separated apodization list such as
// "tukey(0.5);hann". Parameters are parsed with strconv (always C-locale
// decimal syntax). Unknown or malformed entries are an error rather than
// being skipped, so misconfiguration surfaces at init time.
func parseApodization(s string) ([]lpc.WindowSpec, error) {
	var specs []lpc.WindowSpec
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(strings.ToLower(entry))
		if entry == "" {
			continue
		}
		switch {
		case strings.HasPrefix(entry, "tukey(") && strings.HasSuffix(entry, ")"):
			p, err := strconv.ParseFloat(entry[len("tukey(") : len(entry)-1], 64)
			if err != nil || p < 0 || p > 1 {
				return nil, fmt.Errorf("encoder: invalid tukey taper in apodization entry %q", entry)
			}
			specs = append(specs, lpc.WindowSpec{Kind: lpc.Tukey, Param: p})
		case strings.HasPrefix(entry, "gauss(") && strings.HasSuffix(entry, ")"):
			stddev, err := strconv.ParseFloat(entry[len("gauss(") : len(entry)-1], 64)
			if err != nil || stddev <= 0 || stddev > 0.5 {
				return nil, fmt.Errorf("encoder: invalid gauss stddev in apodization entry %q", entry)
			}
			specs = append(specs, lpc.WindowSpec{Kind: lpc.Gauss, Param: stddev})
		default:
			kind, ok := apodizationNames[entry]
			if !ok {
				return nil, fmt.Errorf("encoder: unknown apodization window %q", entry)
			}
			specs = append(specs, lpc.WindowSpec{Kind: kind})
		}
		if len(specs) > 32 {
			return nil, fmt.Errorf("encoder: more than 32 apodization windows configured")
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("encoder: empty apodization list")
	}
	return specs, nil
}

// autoQLPPrecision picks the coefficient precision libFLAC's table uses
// when QLPCoeffPrecision is 0: lower precision for small blocks, higher
// for large ones, capped a bit below the bit depth so the coefficient
// multiply doesn't risk overflowing a 32-bit accumulator.
func autoQLPPrecision(bitsPerSample, blockSize int) int {
	precision := 14
	switch {
	case blockSize <= 192:
		precision = 7
	case blockSize <= 384:
		precision = 8
	case blockSize <= 576:
		precision = 9
	case blockSize <= 1152:
		precision = 10
	case blockSize <= 2304:
		precision = 11
	case blockSize <= 4608:
		precision = 12
	case blockSize <= 9216:
		precision = 13
	}
	if bitsPerSample+precision > 31 {
		precision = 31 - bitsPerSample
	}
	if precision < 5 {
		precision = 5
	}
	if precision > 15 {
		precision = 15
	}
	return precision
}
