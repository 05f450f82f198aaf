package encoder

import (
	"math"
	"math/bits"

	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/internal/fixed"
	"github.com/mewkiz/flac/internal/lpc"
	"github.com/mewkiz/flac/internal/rice"
)

// riceParamLimit is the stream's Rice escape value: 15 for bit depths up
// to 16, 31 above, per the residual-coding method rules.
func (e *Encoder) riceParamLimit() uint32 {
	if e.opts.bitsPerSample <= 16 {
		return 15
	}
	return 31
}

// subframeHeaderBits is the bit cost of a subframe's fixed header (zero-pad
// + type + wasted-bits flag) plus its unary-coded wasted-bits count, if
// any.
func subframeHeaderBits(wastedBits uint32) int {
	n := 8
	if wastedBits > 0 {
		n += int(wastedBits)
	}
	return n
}

// wastedBitCount returns the number of trailing zero bits shared by every
// sample in the block, or 0 if the block is all-zero (handled instead by
// the CONSTANT path) or has no common trailing zeroes.
func wastedBitCount(samples []int32) int {
	var all uint32
	for _, s := range samples {
		all |= uint32(s)
	}
	if all == 0 {
		return 0
	}
	return bits.TrailingZeros32(all)
}

func planBits(plan rice.Plan) int {
	total := 2.0 + 4.0 // entropy method (2 bits) + partition order (4 bits)
	for _, p := range plan.Partitions {
		total += p.Bits
	}
	return int(math.Ceil(total))
}

// chooseSubframe evaluates CONSTANT, FIXED, LPC and VERBATIM encodings of
// one channel's block and returns the cheapest, along with its exact bit
// cost. samples holds the channel's full-precision block; bps is the
// channel's nominal (pre-wasted-bits, pre-side-adjustment) bit depth.
func (e *Encoder) chooseSubframe(samples []int32, bps uint8, isSide bool) (frame.Subframe, int) {
	wasted := wastedBitCount(samples)
	effBPS := int(bps)
	if isSide {
		effBPS++
	}
	effBPS -= wasted

	shifted := samples
	if wasted > 0 {
		shifted = make([]int32, len(samples))
		for i, s := range samples {
			shifted[i] = s >> uint(wasted)
		}
	}

	best := frame.Subframe{Pred: frame.Verbatim, WastedBits: uint32(wasted), Samples: samples}
	bestBits := subframeHeaderBits(uint32(wasted)) + effBPS*len(samples)

	if len(samples) >= 5 {
		allSame := true
		for _, s := range shifted {
			if s != shifted[0] {
				allSame = false
				break
			}
		}
		if allSame {
			return frame.Subframe{Pred: frame.Constant, WastedBits: uint32(wasted), Samples: samples},
				subframeHeaderBits(uint32(wasted)) + effBPS
		}
	}

	if sf, bitCount, ok := e.bestFixed(samples, shifted, effBPS, wasted); ok && bitCount < bestBits {
		best, bestBits = sf, bitCount
	}
	if e.opts.maxLPCOrder > 0 && len(shifted) > e.opts.maxLPCOrder {
		if sf, bitCount, ok := e.bestLPC(samples, shifted, effBPS, wasted); ok && bitCount < bestBits {
			best, bestBits = sf, bitCount
		}
	}
	return best, bestBits
}

// bestFixed evaluates fixed predictor orders: just the estimator's pick, or
// all five orders in exhaustive mode.
func (e *Encoder) bestFixed(samples, shifted []int32, effBPS, wasted int) (frame.Subframe, int, bool) {
	guess, _ := fixed.BestOrder(shifted)

	orders := []int{guess}
	if e.opts.doExhaustiveModelSearch {
		orders = []int{0, 1, 2, 3, 4}
	}

	found := false
	var best frame.Subframe
	bestBits := math.MaxInt
	for _, o := range orders {
		if o > fixed.MaxOrder || o >= len(shifted) {
			continue
		}
		residual := fixed.Residual(shifted, o, nil)
		plan := rice.FindBestPartitionOrder(residual, o, len(shifted), e.opts.minPartitionOrder, e.opts.maxPartitionOrder, e.opts.doEscapeCoding, e.riceParamLimit())
		bitCount := subframeHeaderBits(uint32(wasted)) + o*effBPS + planBits(plan)
		if bitCount < bestBits {
			bestBits = bitCount
			found = true
			best = frame.Subframe{
				Pred: frame.Fixed, Order: o, WastedBits: uint32(wasted), Samples: samples,
				RiceMethod: plan.Method, RiceOrder: plan.Order, RicePartitions: plan.Partitions,
			}
		}
	}
	return best, bestBits, found
}

// bestLPC windows the block, computes its autocorrelation and
// Levinson-Durbin coefficients, then evaluates either the estimator's
// single best order or every order up to maxLPCOrder in exhaustive mode,
// at the configured (or automatic) coefficient precision.
func (e *Encoder) bestLPC(samples, shifted []int32, effBPS, wasted int) (frame.Subframe, int, bool) {
	maxOrder := e.opts.maxLPCOrder
	if maxOrder > len(shifted)-1 {
		maxOrder = len(shifted) - 1
	}
	if maxOrder < 1 {
		return frame.Subframe{}, 0, false
	}

	precision := e.opts.qlpCoeffPrecision
	if precision == 0 {
		precision = autoQLPPrecision(effBPS, len(shifted))
	}

	found := false
	var best frame.Subframe
	bestBits := math.MaxInt
	windowed := make([]float64, len(shifted))
	for _, spec := range e.opts.apodizations {
		window := lpc.Coefficients(spec, len(shifted))
		lpc.ApplyWindow(shifted, window, windowed)
		autoc := lpc.Autocorrelate(windowed, maxOrder, nil)
		lpcs, errs, ok := lpc.ComputeLPCCoefficients(autoc, maxOrder)
		if !ok {
			continue
		}

		rbps := make([]float64, maxOrder)
		for i, perr := range errs {
			rbps[i] = lpc.ExpectedBitsPerResidualSample(perr, len(shifted))
		}

		var orders []int
		if e.opts.doExhaustiveModelSearch {
			orders = make([]int, maxOrder)
			for i := range orders {
				orders[i] = i + 1
			}
		} else {
			orders = []int{lpc.BestOrder(len(shifted), rbps, precision, maxOrder)}
		}

		precisions := []int{precision}
		if e.opts.doQLPCoeffPrecSearch {
			precisions = precisions[:0]
			for p := 5; p <= 15; p++ {
				precisions = append(precisions, p)
			}
		}

		for _, o := range orders {
			if o < 1 || o > len(lpcs) || lpcs[o-1] == nil {
				continue
			}
			for _, prec := range precisions {
				qc, ok := lpc.QuantizeCoefficients(lpcs[o-1], prec)
				if !ok {
					continue
				}
				residual := lpc.Residual(shifted, qc, nil)
				plan := rice.FindBestPartitionOrder(residual, o, len(shifted), e.opts.minPartitionOrder, e.opts.maxPartitionOrder, e.opts.doEscapeCoding, e.riceParamLimit())
				bitCount := subframeHeaderBits(uint32(wasted)) + o*effBPS + 4 + 5 + o*qc.Precision + planBits(plan)
				if bitCount < bestBits {
					bestBits = bitCount
					found = true
					best = frame.Subframe{
						Pred: frame.LPC, Order: o, WastedBits: uint32(wasted), Samples: samples,
						QLPCoeffs: qc.Coeffs, QLPShift: qc.Shift, QLPPrecision: qc.Precision,
						RiceMethod: plan.Method, RiceOrder: plan.Order, RicePartitions: plan.Partitions,
					}
				}
			}
		}
	}
	return best, bestBits, found
}
