package lpc

import "math"

// MaxOrder is the highest LPC predictor order the encoder will consider,
// equal to the format's own limit of 32.
const MaxOrder = 32

// Autocorrelate computes lags 0..maxLag of the autocorrelation of windowed
// (already apodized) samples, writing maxLag+1 values to autoc.
func Autocorrelate(windowed []float64, maxLag int, autoc []float64) []float64 {
	autoc = autoc[:0]
	n := len(windowed)
	for lag := 0; lag <= maxLag; lag++ {
		var sum float64
		for i := lag; i < n; i++ {
			sum += windowed[i] * windowed[i-lag]
		}
		autoc = append(autoc, sum)
	}
	return autoc
}

// ComputeLPCCoefficients runs the Levinson-Durbin recursion on autoc
// (lags 0..maxOrder) and returns, for every order 1..maxOrder, the real-
// valued LPC coefficients of that order (lpcs[order-1] has length order)
// along with the prediction error (residual energy) after each order,
// err[order-1]. If autoc[0] is zero (silent block) no stable recursion is
// possible and ok is false. If the prediction error reaches zero after
// order i, the recursion stops there and only orders 1..i are returned.
//
// The returned coefficients follow the FIR-predictor sign convention the
// rest of the pipeline assumes (pred = Σ c[j]·x[n-1-j]): they are negated
// relative to the recursion's natural a[j] output, whose model is
// x[n] = -Σ a[j]·x[n-j] + e[n].
func ComputeLPCCoefficients(autoc []float64, maxOrder int) (lpcs [][]float64, errs []float64, ok bool) {
	if autoc[0] == 0 {
		return nil, nil, false
	}
	lpcs = make([][]float64, maxOrder)
	errs = make([]float64, maxOrder)

	err := autoc[0]
	lpc := make([]float64, maxOrder)
	for i := 0; i < maxOrder; i++ {
		// Compute reflection coefficient k from the current predictor.
		r := -autoc[i+1]
		for j := 0; j < i; j++ {
			r -= lpc[j] * autoc[i-j]
		}
		if err == 0 {
			// Degenerate block (perfectly predictable by what we have so
			// far); stop extending the recursion but still report the
			// orders already computed.
			return lpcs[:i], errs[:i], true
		}
		k := r / err

		lpc[i] = k
		for j := 0; j < i/2; j++ {
			t := lpc[j]
			lpc[j] += k * lpc[i-1-j]
			lpc[i-1-j] += k * t
		}
		if i&1 != 0 {
			lpc[i/2] += lpc[i/2] * k
		}

		err *= 1 - k*k

		lpcs[i] = negated(lpc[:i+1])
		errs[i] = err
	}
	return lpcs, errs, true
}

// negated returns an independent copy of coeffs with every sign flipped,
// converting the recursion's autoregressive a[j] form into the FIR
// predictor coefficients Residual and Restore apply.
func negated(coeffs []float64) []float64 {
	out := make([]float64, len(coeffs))
	for i, c := range coeffs {
		out[i] = -c
	}
	return out
}

// ExpectedBitsPerResidualSample estimates the number of bits each residual
// sample will cost, given the prediction error (residual energy) of the
// chosen order over n samples. This mirrors libFLAC's
// lpc_compute_expected_bits_per_residual_sample: half the log2 of the mean
// squared error, which approximates the entropy of a Laplacian residual.
func ExpectedBitsPerResidualSample(predictionError float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	if predictionError <= 0 {
		return 0
	}
	bps := 0.5 * math.Log2(predictionError/float64(n))
	if bps < 0 {
		bps = 0
	}
	return bps
}

// HeaderEstimateBitsPerOrder is the fixed per-order overhead (one warm-up
// sample for fixed predictors does not apply here; this is the LPC
// subframe's coefficient-order-dependent cost) added by BestOrder: the
// header bits for a subframe of this order, not counting warm-up samples
// or residual.
func HeaderEstimateBitsPerOrder(order, precision int) float64 {
	// qlp_coeff_precision (4) + quantization shift (5) + order * precision
	// bits for the quantized coefficients.
	return float64(4+5) + float64(order*precision)
}

// BestOrder picks the LPC order minimizing estimated total bits for a block
// of n samples (n samples total, order of which are stored verbatim as
// warm-up and excluded from residual bit estimate), given per-order
// expected-bits-per-residual-sample rbps (the errors returned by
// ComputeLPCCoefficients, converted via ExpectedBitsPerResidualSample) and
// the coefficient precision that will be used.
func BestOrder(n int, rbps []float64, precision int, maxOrder int) int {
	best := 1
	var bestBits float64 = math.MaxFloat64
	for order := 1; order <= maxOrder && order <= len(rbps); order++ {
		residualSamples := n - order
		if residualSamples < 0 {
			residualSamples = 0
		}
		bits := HeaderEstimateBitsPerOrder(order, precision) +
			float64(order)*float64(bitsPerSample32) + // warm-up samples, fixed estimate
			rbps[order-1]*float64(residualSamples)
		if bits < bestBits {
			bestBits = bits
			best = order
		}
	}
	return best
}

// bitsPerSample32 is the fixed per-warm-up-sample cost (17 bits) used in
// BestOrder's estimate, whatever the stream's real bit depth; callers that
// need an exact total use the true bit depth, this is merely for order
// selection.
const bitsPerSample32 = 17

// QuantizedCoeffs holds a quantized LPC predictor: integer coefficients,
// the right-shift applied to a prediction sum to recover a sample-scaled
// value, and the precision (bit width, including sign) used to store each
// coefficient.
type QuantizedCoeffs struct {
	Coeffs    []int32
	Shift     int
	Precision int
}

// QuantizeCoefficients converts floating point LPC coefficients lpc into
// fixed-point coefficients with the given precision (total bits including
// sign), using error-feedback quantization so that rounding error in one
// coefficient is compensated in the next. precision must be at least 2.
// ok is false only when all coefficients are zero (cmax == 0), which means
// the caller should have used a CONSTANT or FIXED subframe instead.
//
// The ideal shift implied by the coefficients' dynamic range can come out
// negative when the coefficients are large relative to precision. The
// 5-bit shift field is signed, but decoders apply a negative shift as no
// shift at all, so a negative shift is instead folded into the quantization
// itself: coefficients are divided down by 2^-shift as they're quantized,
// and the stored shift is reported as 0. This loses precision in exactly
// the cases libFLAC's own encoder does, and decoders that special-case a
// negative shift as a no-op continue to agree with this encoding, so the
// quirk is preserved rather than "fixed".
func QuantizeCoefficients(lpcCoeffs []float64, precision int) (qc QuantizedCoeffs, ok bool) {
	cmax := 0.0
	for _, c := range lpcCoeffs {
		if a := math.Abs(c); a > cmax {
			cmax = a
		}
	}
	if cmax == 0 {
		return QuantizedCoeffs{}, false
	}

	// One bit of the precision is the sign; the shift is chosen so cmax
	// lands just under the magnitude range of the remaining bits.
	magBits := precision - 1
	log2cmax := int(math.Floor(math.Log2(cmax)))
	shift := magBits - log2cmax - 1
	if shift > 15 {
		shift = 15
	}
	if shift < -16 {
		shift = -16
	}

	qmax := int32(1)<<uint(magBits) - 1
	qmin := -(qmax + 1)

	// error-diffusion quantization; when shift is negative, scale by
	// 2^shift (i.e. divide) instead of multiplying, and report shift 0.
	scale := math.Ldexp(1, shift)
	out := make([]int32, len(lpcCoeffs))
	var errFeed float64
	for i, c := range lpcCoeffs {
		ideal := c*scale + errFeed
		q := int32(math.Round(ideal))
		if q > qmax {
			q = qmax
		}
		if q < qmin {
			q = qmin
		}
		errFeed = ideal - float64(q)
		out[i] = q
	}

	reportedShift := shift
	if reportedShift < 0 {
		reportedShift = 0
	}
	return QuantizedCoeffs{Coeffs: out, Shift: reportedShift, Precision: precision}, true
}

// Residual computes the prediction residual of signal (which must include
// len(qc.Coeffs) leading warm-up samples) under the quantized LPC
// predictor qc, appending len(signal)-order values to out.
func Residual(signal []int32, qc QuantizedCoeffs, out []int32) []int32 {
	order := len(qc.Coeffs)
	out = out[:0]
	for i := order; i < len(signal); i++ {
		var sum int64
		for j, c := range qc.Coeffs {
			sum += int64(c) * int64(signal[i-1-j])
		}
		pred := sum >> uint(qc.Shift)
		out = append(out, signal[i]-int32(pred))
	}
	return out
}

// Restore reconstructs signal (out) from residual and the order leading
// warm-up samples already present in out, under the quantized predictor
// qc. out must have length len(qc.Coeffs)+len(residual).
func Restore(residual []int32, qc QuantizedCoeffs, out []int32) {
	order := len(qc.Coeffs)
	for i, r := range residual {
		j := i + order
		var sum int64
		for k, c := range qc.Coeffs {
			sum += int64(c) * int64(out[j-1-k])
		}
		pred := sum >> uint(qc.Shift)
		out[j] = r + int32(pred)
	}
}
