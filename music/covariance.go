package music

import (
	"math/cmplx"

	"mstid-music/models"
)

// Channel is one spatial measurement point: a valid beam-gate cell with a
// known planar footprint offset and taper weight.
type Channel struct {
	Beam, Gate int
	XKm, YKm   float64
	Weight     float64
}

// channels collects every usable spatial channel of a grid: footprint
// resolved, fully interpolated, and (when tapering is on) weight > 0.
func channels(grid *models.Grid) []Channel {
	var out []Channel
	for b := 0; b < grid.NumBeams(); b++ {
		for gt := 0; gt < grid.NumGates(); gt++ {
			if !grid.CellValid(b, gt) {
				continue
			}
			w := grid.TaperAt(b, gt)
			if w <= 0 {
				continue
			}
			out = append(out, Channel{
				Beam: grid.Beams[b], Gate: gt,
				XKm: grid.XKm[b][gt], YKm: grid.YKm[b][gt],
				Weight: w,
			})
		}
	}
	return out
}

// covariance estimates the spatial cross-covariance matrix across channels
// from tapered complex spectral values, averaged over a small window of
// frequency bins centred on bin to improve the estimate.
func covariance(grid *models.Grid, sp *models.Spectrum, chans []Channel, bin, halfWidth int) [][]complex128 {
	lo, hi := bin-halfWidth, bin+halfWidth
	if lo < 0 {
		lo = 0
	}
	if hi > len(sp.Freqs)-1 {
		hi = len(sp.Freqs) - 1
	}

	n := len(chans)
	snap := make([]complex128, n)
	r := make([][]complex128, n)
	for i := range r {
		r[i] = make([]complex128, n)
	}

	bIndex := make(map[int]int, len(grid.Beams))
	for i, b := range grid.Beams {
		bIndex[b] = i
	}

	nBins := 0
	for f := lo; f <= hi; f++ {
		for i, ch := range chans {
			snap[i] = complex(ch.Weight, 0) * sp.Cells[bIndex[ch.Beam]][ch.Gate][f]
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				r[i][j] += snap[i] * cmplx.Conj(snap[j])
			}
		}
		nBins++
	}
	if nBins > 1 {
		s := complex(1/float64(nBins), 0)
		for i := range r {
			for j := range r[i] {
				r[i][j] *= s
			}
		}
	}
	return r
}
