package frame

import (
	"fmt"

	"github.com/mewkiz/flac/internal/bitio"
	"github.com/mewkiz/flac/internal/fixed"
	"github.com/mewkiz/flac/internal/lpc"
	"github.com/mewkiz/flac/internal/rice"
)

// Prediction identifies which of the four subframe coding methods a
// Subframe uses.
type Prediction uint8

// Subframe prediction methods.
const (
	Constant Prediction = iota
	Verbatim
	Fixed
	LPC
)

// Subframe holds the decoded (or about-to-be-encoded) samples of one
// channel of one frame, along with the prediction method and parameters
// used to code it.
type Subframe struct {
	Pred Prediction
	// WastedBits is the number of trailing zero bits shared by every
	// sample in the block, stripped before prediction and reapplied on
	// decode.
	WastedBits uint32
	// Order is the fixed predictor order (Pred == Fixed) or LPC order
	// (Pred == LPC).
	Order int
	// QLPCoeffs, QLPShift and QLPPrecision are populated when Pred ==
	// LPC.
	QLPCoeffs    []int32
	QLPShift     int
	QLPPrecision int
	// RiceMethod/RiceOrder/RicePartitions describe the entropy coding of
	// Residual, used by encoding when Pred is Fixed or LPC; decoding sets
	// only RiceMethod.
	RiceMethod     rice.Method
	RiceOrder      int
	RicePartitions []rice.Partition
	// Samples holds every decoded sample of the subframe (including the
	// Order leading warm-up samples for Fixed/LPC), length == blockSize.
	// Populated after decode, or supplied by the caller before encode.
	Samples []int32
}

// subframeBitsPerSample returns the effective bit depth a subframe's
// samples are coded at: the channel's nominal bit depth, plus one for the
// side channel of a stereo-decorrelation mode, minus any wasted bits.
func subframeBitsPerSample(bps uint8, isSideChannel bool, wastedBits uint32) int {
	b := int(bps)
	if isSideChannel {
		b++
	}
	return b - int(wastedBits)
}

// EncodeSubframe writes one subframe's header and body to w. samples holds
// the full, un-wasted-bits-stripped block for this channel; bps is the
// channel's nominal bit depth before any side-channel or wasted-bits
// adjustment.
func EncodeSubframe(w *bitio.Writer, sf Subframe, bps uint8, isSideChannel bool) error {
	if err := w.WriteRawUint(0, 1); err != nil { // zero-pad
		return err
	}

	var typeCode uint64
	switch sf.Pred {
	case Constant:
		typeCode = 0
	case Verbatim:
		typeCode = 1
	case Fixed:
		typeCode = uint64(0b001000 | sf.Order)
	case LPC:
		typeCode = uint64(0b100000 | (sf.Order - 1))
	default:
		return fmt.Errorf("frame.EncodeSubframe: unknown prediction method %d", sf.Pred)
	}
	if err := w.WriteRawUint(typeCode, 6); err != nil {
		return err
	}

	if sf.WastedBits == 0 {
		if err := w.WriteRawUint(0, 1); err != nil {
			return err
		}
	} else {
		if err := w.WriteRawUint(1, 1); err != nil {
			return err
		}
		if err := w.WriteUnary(sf.WastedBits - 1); err != nil {
			return err
		}
	}

	effectiveBPS := subframeBitsPerSample(bps, isSideChannel, sf.WastedBits)
	shifted := sf.Samples
	if sf.WastedBits > 0 {
		shifted = make([]int32, len(sf.Samples))
		for i, s := range sf.Samples {
			shifted[i] = s >> sf.WastedBits
		}
	}

	switch sf.Pred {
	case Constant:
		return w.WriteRawInt(int64(shifted[0]), uint(effectiveBPS))
	case Verbatim:
		for _, s := range shifted {
			if err := w.WriteRawInt(int64(s), uint(effectiveBPS)); err != nil {
				return err
			}
		}
		return nil
	case Fixed:
		return encodePredictedSubframe(w, shifted, sf, effectiveBPS)
	case LPC:
		return encodeLPCSubframe(w, shifted, sf, effectiveBPS)
	}
	return nil
}

func encodePredictedSubframe(w *bitio.Writer, samples []int32, sf Subframe, effectiveBPS int) error {
	for _, s := range samples[:sf.Order] {
		if err := w.WriteRawInt(int64(s), uint(effectiveBPS)); err != nil {
			return err
		}
	}
	residual := fixed.Residual(samples, sf.Order, nil)
	plan := rice.Plan{Method: sf.RiceMethod, Order: sf.RiceOrder, Partitions: sf.RicePartitions}
	return rice.Encode(w, plan, residual, sf.Order, len(samples))
}

func encodeLPCSubframe(w *bitio.Writer, samples []int32, sf Subframe, effectiveBPS int) error {
	for _, s := range samples[:sf.Order] {
		if err := w.WriteRawInt(int64(s), uint(effectiveBPS)); err != nil {
			return err
		}
	}
	if err := w.WriteRawUint(uint64(sf.QLPPrecision-1), 4); err != nil {
		return err
	}
	if err := w.WriteRawInt(int64(sf.QLPShift), 5); err != nil {
		return err
	}
	for _, c := range sf.QLPCoeffs {
		if err := w.WriteRawInt(int64(c), uint(sf.QLPPrecision)); err != nil {
			return err
		}
	}
	qc := lpc.QuantizedCoeffs{Coeffs: sf.QLPCoeffs, Shift: sf.QLPShift, Precision: sf.QLPPrecision}
	residual := lpc.Residual(samples, qc, nil)
	plan := rice.Plan{Method: sf.RiceMethod, Order: sf.RiceOrder, Partitions: sf.RicePartitions}
	return rice.Encode(w, plan, residual, sf.Order, len(samples))
}

// DecodeSubframe reads one subframe of blockSize samples at nominal bit
// depth bps (adjusted for stereo decorrelation and wasted bits internally).
func DecodeSubframe(r *bitio.Reader, blockSize int, bps uint8, isSideChannel bool) (Subframe, error) {
	var sf Subframe

	zero, err := r.ReadRawUint(1)
	if err != nil {
		return sf, err
	}
	if zero != 0 {
		return sf, fmt.Errorf("%w: subframe zero-pad bit set", ErrBadHeader)
	}
	typeCode, err := r.ReadRawUint(6)
	if err != nil {
		return sf, err
	}

	wastedFlag, err := r.ReadRawUint(1)
	if err != nil {
		return sf, err
	}
	if wastedFlag != 0 {
		n, err := r.ReadUnary()
		if err != nil {
			return sf, err
		}
		sf.WastedBits = n + 1
	}

	switch {
	case typeCode == 0:
		sf.Pred = Constant
	case typeCode == 1:
		sf.Pred = Verbatim
	case typeCode&0b111000 == 0b001000 && typeCode&0b000111 <= 4:
		sf.Pred = Fixed
		sf.Order = int(typeCode & 0b000111)
	case typeCode&0b100000 == 0b100000:
		sf.Pred = LPC
		sf.Order = int(typeCode&0b011111) + 1
	default:
		return sf, fmt.Errorf("%w: reserved subframe type code %06b", ErrBadHeader, typeCode)
	}

	effectiveBPS := subframeBitsPerSample(bps, isSideChannel, sf.WastedBits)

	switch sf.Pred {
	case Constant:
		v, err := r.ReadRawInt(uint(effectiveBPS))
		if err != nil {
			return sf, err
		}
		sf.Samples = make([]int32, blockSize)
		for i := range sf.Samples {
			sf.Samples[i] = int32(v)
		}
	case Verbatim:
		sf.Samples = make([]int32, blockSize)
		for i := range sf.Samples {
			v, err := r.ReadRawInt(uint(effectiveBPS))
			if err != nil {
				return sf, err
			}
			sf.Samples[i] = int32(v)
		}
	case Fixed:
		if err := decodeFixedBody(r, &sf, blockSize, effectiveBPS); err != nil {
			return sf, err
		}
	case LPC:
		if err := decodeLPCBody(r, &sf, blockSize, effectiveBPS); err != nil {
			return sf, err
		}
	}

	if sf.WastedBits > 0 {
		for i, s := range sf.Samples {
			sf.Samples[i] = s << sf.WastedBits
		}
	}
	return sf, nil
}

func decodeFixedBody(r *bitio.Reader, sf *Subframe, blockSize, effectiveBPS int) error {
	warmup := make([]int32, sf.Order)
	for i := range warmup {
		v, err := r.ReadRawInt(uint(effectiveBPS))
		if err != nil {
			return err
		}
		warmup[i] = int32(v)
	}
	residual, method, err := decodeResidualHeader(r, sf.Order, blockSize)
	if err != nil {
		return err
	}
	sf.RiceMethod = method
	sf.Samples = make([]int32, blockSize)
	copy(sf.Samples, warmup)
	fixed.Restore(residual, sf.Order, sf.Samples)
	return nil
}

func decodeLPCBody(r *bitio.Reader, sf *Subframe, blockSize, effectiveBPS int) error {
	warmup := make([]int32, sf.Order)
	for i := range warmup {
		v, err := r.ReadRawInt(uint(effectiveBPS))
		if err != nil {
			return err
		}
		warmup[i] = int32(v)
	}
	precisionField, err := r.ReadRawUint(4)
	if err != nil {
		return err
	}
	sf.QLPPrecision = int(precisionField) + 1
	shift, err := r.ReadRawInt(5)
	if err != nil {
		return err
	}
	sf.QLPShift = int(shift)
	if sf.QLPShift < 0 {
		// Format quirk: a negative shift read from the bitstream acts as a
		// no-op during restoration.
		sf.QLPShift = 0
	}
	sf.QLPCoeffs = make([]int32, sf.Order)
	for i := range sf.QLPCoeffs {
		v, err := r.ReadRawInt(uint(sf.QLPPrecision))
		if err != nil {
			return err
		}
		sf.QLPCoeffs[i] = int32(v)
	}

	residual, method, err := decodeResidualHeader(r, sf.Order, blockSize)
	if err != nil {
		return err
	}
	sf.RiceMethod = method
	sf.Samples = make([]int32, blockSize)
	copy(sf.Samples, warmup)
	qc := lpc.QuantizedCoeffs{Coeffs: sf.QLPCoeffs, Shift: sf.QLPShift, Precision: sf.QLPPrecision}
	lpc.Restore(residual, qc, sf.Samples)
	return nil
}

func decodeResidualHeader(r *bitio.Reader, order, blockSize int) ([]int32, rice.Method, error) {
	methodBit, err := r.ReadRawUint(2)
	if err != nil {
		return nil, 0, err
	}
	if methodBit > 1 {
		return nil, 0, fmt.Errorf("%w: reserved entropy coding method %02b", ErrBadHeader, methodBit)
	}
	residual, err := rice.Decode(r, methodBit, order, blockSize)
	if err != nil {
		return nil, 0, err
	}
	method := rice.PartitionedRice
	if methodBit == 1 {
		method = rice.PartitionedRice2
	}
	return residual, method, nil
}
