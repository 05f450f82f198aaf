// Package fixed implements the FLAC fixed predictors: five hard-coded
// polynomial predictors of order 0 through 4, used when the block is too
// short or too cheap to analyze for LPC is not worthwhile.
//
// ref: http://flac.sourceforge.net/format.html#subframe_fixed
package fixed

import "math"

// MaxOrder is the highest fixed predictor order defined by the format.
const MaxOrder = 4

// Coeffs holds the FIR coefficients of the fixed predictor of a given
// order, in the same negated-for-restore convention used by lpc.Restore:
// Coeffs[order] lists the coefficients applied to s[i-1], s[i-2], ...
//
//	order 0: e[i] = s[i]
//	order 1: e[i] = s[i] - s[i-1]
//	order 2: e[i] = s[i] - 2s[i-1] + s[i-2]
//	order 3: e[i] = s[i] - 3s[i-1] + 3s[i-2] - s[i-3]
//	order 4: e[i] = s[i] - 4s[i-1] + 6s[i-2] - 4s[i-3] + s[i-4]
var Coeffs = [MaxOrder + 1][]int32{
	0: {},
	1: {1},
	2: {2, -1},
	3: {3, -3, 1},
	4: {4, -6, 4, -1},
}

// Residual computes the order-th fixed predictor's residual of signal,
// writing len(signal)-order values to out (which must be at least that
// long) and returning the slice written.
//
// signal must include order samples of history before index 0 when order
// is being evaluated purely for cost estimation on non-initial blocks; for
// whole-block encoding the caller instead passes order as the number of
// leading warm-up samples stored verbatim, and residual computation begins
// at index order.
func Residual(signal []int32, order int, out []int32) []int32 {
	n := len(signal)
	out = out[:0]
	switch order {
	case 0:
		out = append(out, signal...)
	case 1:
		for i := 1; i < n; i++ {
			out = append(out, signal[i]-signal[i-1])
		}
	case 2:
		for i := 2; i < n; i++ {
			out = append(out, signal[i]-2*signal[i-1]+signal[i-2])
		}
	case 3:
		for i := 3; i < n; i++ {
			out = append(out, signal[i]-3*signal[i-1]+3*signal[i-2]-signal[i-3])
		}
	case 4:
		for i := 4; i < n; i++ {
			out = append(out, signal[i]-4*signal[i-1]+6*signal[i-2]-4*signal[i-3]+signal[i-4])
		}
	}
	return out
}

// Restore reconstructs the signal of the given fixed predictor order from
// its residual and the order leading warm-up samples already present at the
// start of out. out must have length order+len(residual).
func Restore(residual []int32, order int, out []int32) {
	switch order {
	case 0:
		copy(out, residual)
	case 1:
		for i, r := range residual {
			j := i + 1
			out[j] = r + out[j-1]
		}
	case 2:
		for i, r := range residual {
			j := i + 2
			out[j] = r + 2*out[j-1] - out[j-2]
		}
	case 3:
		for i, r := range residual {
			j := i + 3
			out[j] = r + 3*out[j-1] - 3*out[j-2] + out[j-3]
		}
	case 4:
		for i, r := range residual {
			j := i + 4
			out[j] = r + 4*out[j-1] - 6*out[j-2] + 4*out[j-3] - out[j-4]
		}
	}
}

// BestOrder evaluates fixed predictor orders 0 through min(MaxOrder,
// len(signal)-1) over signal (which must include, at negative indices
// relative to the block, no extra history — predictors simply shrink their
// residual length as order grows) and returns the order whose residual has
// the smallest sum of absolute values, along with an estimated bits-per-
// residual-sample for every order tried (orders beyond the returned count
// are left zero). The estimate follows libFLAC's
// rbps = log2(ln(2) * mean(|residual|)), floored at 0, and is later used to
// seed the Rice parameter guess without a full search.
func BestOrder(signal []int32) (order int, rbps [MaxOrder + 1]float64) {
	maxOrder := MaxOrder
	if len(signal)-1 < maxOrder {
		maxOrder = len(signal) - 1
	}
	if maxOrder < 0 {
		maxOrder = 0
	}

	best := -1
	var bestSum float64
	var scratch [MaxOrder + 1][]int32
	for o := 0; o <= maxOrder; o++ {
		scratch[o] = make([]int32, 0, len(signal))
		res := Residual(signal, o, scratch[o])
		sum := sumAbs(res)
		n := len(res)
		if n > 0 {
			mean := sum / float64(n)
			if mean > 0 {
				rbps[o] = math.Max(0, math.Log2(math.Ln2*mean))
			}
		}
		if best == -1 || sum < bestSum {
			best = o
			bestSum = sum
		}
	}
	return best, rbps
}

func sumAbs(residual []int32) float64 {
	var sum float64
	for _, r := range residual {
		if r < 0 {
			sum += float64(-int64(r))
		} else {
			sum += float64(r)
		}
	}
	return sum
}
