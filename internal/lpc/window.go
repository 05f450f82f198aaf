// Package lpc implements the FLAC encoder's linear-predictive-coding
// analysis path: windowing, autocorrelation, Levinson-Durbin recursion,
// coefficient quantization, and the quantized-coefficient residual filter
// and its inverse.
//
// The reference algorithm is libFLAC's lpc.c/stream_encoder.c, which this
// package follows formula-for-formula.
package lpc

import "math"

// Apodization identifies one of the windowing functions the encoder may
// apply before autocorrelation. Multiple windows may be tried per block at
// higher compression levels, each producing an independent set of LPC
// candidates.
type Apodization int

// Supported apodization windows.
const (
	Rectangle Apodization = iota
	Bartlett
	BartlettHann
	Blackman
	BlackmanHarris4Term92dB
	Connes
	Flattop
	Gauss
	Hamming
	Hann
	KaiserBessel
	Nuttall
	Triangle
	Tukey
	Welch
)

// WindowSpec names an apodization and its parameter, where applicable
// (Gauss takes a standard deviation in (0, 0.5], Tukey a taper fraction in
// [0, 1]). It is the parsed form of one ';'-separated entry in the
// encoder's apodization configuration string.
type WindowSpec struct {
	Kind  Apodization
	Param float64
}

// Coefficients returns the n-sample window function described by spec,
// normalized the way libFLAC does (peak amplitude 1.0, except where the
// function is defined otherwise).
func Coefficients(spec WindowSpec, n int) []float64 {
	w := make([]float64, n)
	if n == 0 {
		return w
	}
	if n == 1 {
		w[0] = 1
		return w
	}
	nm1 := float64(n - 1)
	switch spec.Kind {
	case Rectangle:
		for i := range w {
			w[i] = 1
		}
	case Bartlett:
		for i := range w {
			w[i] = 1 - math.Abs((float64(i)-nm1/2)/(nm1/2))
		}
	case Triangle:
		for i := range w {
			w[i] = 1 - math.Abs((2*float64(i)-nm1)/float64(n))
		}
	case Hann:
		for i := range w {
			w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/nm1)
		}
	case Hamming:
		for i := range w {
			w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/nm1)
		}
	case BartlettHann:
		for i := range w {
			x := float64(i)/nm1 - 0.5
			w[i] = 0.62 - 0.48*math.Abs(x) - 0.38*math.Cos(2*math.Pi*float64(i)/nm1)
		}
	case Blackman:
		for i := range w {
			x := 2 * math.Pi * float64(i) / nm1
			w[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
		}
	case BlackmanHarris4Term92dB:
		const a0, a1, a2, a3 = 0.35875, 0.48829, 0.14128, 0.01168
		for i := range w {
			x := 2 * math.Pi * float64(i) / nm1
			w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x) - a3*math.Cos(3*x)
		}
	case Nuttall:
		const a0, a1, a2, a3 = 0.355768, 0.487396, 0.144232, 0.012604
		for i := range w {
			x := 2 * math.Pi * float64(i) / nm1
			w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x) - a3*math.Cos(3*x)
		}
	case Connes:
		for i := range w {
			x := (float64(i) - nm1/2) / (nm1 / 2)
			v := 1 - x*x
			w[i] = v * v
		}
	case Welch:
		for i := range w {
			x := (float64(i) - nm1/2) / (nm1 / 2)
			w[i] = 1 - x*x
		}
	case Flattop:
		const a0, a1, a2, a3, a4 = 1.0, 1.93, 1.29, 0.388, 0.028
		for i := range w {
			x := 2 * math.Pi * float64(i) / nm1
			w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x) - a3*math.Cos(3*x) + a4*math.Cos(4*x)
		}
	case KaiserBessel:
		const a0, a1, a2 = 0.402, 0.498, 0.098
		for i := range w {
			x := 2 * math.Pi * float64(i) / nm1
			w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
		}
	case Gauss:
		stddev := spec.Param
		if stddev <= 0 || stddev > 0.5 {
			stddev = 0.25
		}
		for i := range w {
			x := (float64(i) - nm1/2) / (stddev * nm1 / 2)
			w[i] = math.Exp(-0.5 * x * x)
		}
	case Tukey:
		p := spec.Param
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		taper := p * nm1 / 2
		for i := range w {
			switch x := float64(i); {
			case x < taper:
				w[i] = 0.5 * (1 + math.Cos(math.Pi*(x/taper-1)))
			case x > nm1-taper:
				w[i] = 0.5 * (1 + math.Cos(math.Pi*((x-nm1)/taper+1)))
			default:
				w[i] = 1
			}
		}
		if taper == 0 {
			for i := range w {
				w[i] = 1
			}
		}
	default:
		for i := range w {
			w[i] = 1
		}
	}
	return w
}

// ApplyWindow multiplies in element-wise by window, writing to out (which
// must have the same length as in).
func ApplyWindow(in []int32, window []float64, out []float64) {
	for i, s := range in {
		out[i] = float64(s) * window[i]
	}
}
