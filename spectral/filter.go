package spectral

import "math"

// highPassTaps designs a linear-phase FIR high-pass filter by spectral
// inversion of a Hamming-windowed sinc low-pass. cutoffHz is the corner
// frequency, dtSec the sampling interval. numtaps is forced odd so the
// filter has an exact centre tap.
func highPassTaps(cutoffHz, dtSec float64, numtaps int) []float64 {
	if numtaps%2 == 0 {
		numtaps++
	}
	m := numtaps / 2
	fc := cutoffHz * dtSec // normalized cutoff, cycles per sample

	lp := make([]float64, numtaps)
	sum := 0.0
	for i := range lp {
		k := float64(i - m)
		var v float64
		if k == 0 {
			v = 2 * fc
		} else {
			v = math.Sin(2*math.Pi*fc*k) / (math.Pi * k)
		}
		// Hamming window.
		v *= 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(numtaps-1))
		lp[i] = v
		sum += v
	}
	for i := range lp {
		lp[i] /= sum // unity DC gain before inversion
	}

	hp := make([]float64, numtaps)
	for i := range hp {
		hp[i] = -lp[i]
	}
	hp[m] += 1
	return hp
}

// applyFIR convolves a series with the given taps, using symmetric edge
// padding so the output keeps the input length and the time axis stays
// aligned with the grid.
func applyFIR(x, taps []float64) []float64 {
	n := len(x)
	m := len(taps) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		acc := 0.0
		for j, h := range taps {
			idx := i + j - m
			// reflect at the edges
			if idx < 0 {
				idx = -idx
			}
			if idx >= n {
				idx = 2*(n-1) - idx
			}
			if idx < 0 {
				idx = 0
			}
			acc += h * x[idx]
		}
		out[i] = acc
	}
	return out
}
