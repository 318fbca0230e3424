package spectral

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"

	"mstid-music/models"
	"mstid-music/utils"
)

// Transform computes the temporal discrete Fourier transform of every
// valid grid cell and integrates squared-magnitude spectral density over
// the configured analysis band. Masked cells are excluded from every
// aggregate, never zero-filled into the transform. The result is fully
// determined by the grid: the frequency axis follows from the time-axis
// length and sampling interval alone.
func Transform(grid *models.Grid, cfg utils.SpectralConfig) (*models.Spectrum, error) {
	nb, ng, nt := grid.NumBeams(), grid.NumGates(), grid.NumTimes()
	if nt < 2 {
		return nil, fmt.Errorf("%w: time axis too short for a transform", models.ErrInsufficientData)
	}

	var taps []float64
	if cfg.FilterCutoffHz > 0 {
		n := cfg.FilterNumtaps
		if n >= nt {
			n = nt - 1 // never let the filter outgrow the series
		}
		taps = highPassTaps(cfg.FilterCutoffHz, grid.StepSec, n)
	}

	fft := fourier.NewFFT(nt)
	nf := nt/2 + 1

	sp := &models.Spectrum{
		Cells:     make([][][]complex128, nb),
		Valid:     make([][]bool, nb),
		BandPower: make([][]float64, nb),
		Freqs:     make([]float64, nf),
	}
	for i := range sp.Freqs {
		sp.Freqs[i] = float64(i) / (float64(nt) * grid.StepSec)
	}

	series := make([]float64, nt)
	for b := 0; b < nb; b++ {
		sp.Cells[b] = make([][]complex128, ng)
		sp.Valid[b] = make([]bool, ng)
		sp.BandPower[b] = make([]float64, ng)
		for gt := 0; gt < ng; gt++ {
			if !grid.CellValid(b, gt) {
				continue
			}

			copy(series, grid.Series(b, gt))
			demean(series)
			if taps != nil {
				series = applyFIR(series, taps)
			}

			coeff := fft.Coefficients(nil, series)

			sp.Cells[b][gt] = coeff
			sp.Valid[b][gt] = true

			p := 0.0
			for i, f := range sp.Freqs {
				if f >= cfg.BandLoHz && f <= cfg.BandHiHz {
					re, im := real(coeff[i]), imag(coeff[i])
					p += re*re + im*im
				}
			}
			sp.BandPower[b][gt] = p

			sp.Sum += p
			if p > sp.Max {
				sp.Max = p
			}
			sp.NumValid++
		}
	}

	if sp.NumValid > 0 {
		sp.Mean = sp.Sum / float64(sp.NumValid)
	}

	utils.L().Debug("spectral: %d valid cells, band [%.2e, %.2e] Hz, sum=%.3e",
		sp.NumValid, cfg.BandLoHz, cfg.BandHiHz, sp.Sum)
	return sp, nil
}

func demean(x []float64) {
	m := 0.0
	for _, v := range x {
		m += v
	}
	m /= float64(len(x))
	for i := range x {
		x[i] -= m
	}
}

// TopBins returns up to n frequency bins inside [loHz, hiHz] ordered by
// descending power summed across valid cells. Equal-power bins keep their
// axis order so the result stays deterministic.
func TopBins(sp *models.Spectrum, loHz, hiHz float64, n int) []int {
	type binPower struct {
		bin   int
		power float64
	}
	var bins []binPower
	for i, f := range sp.Freqs {
		if f < loHz || f > hiHz {
			continue
		}
		p := 0.0
		for b := range sp.Cells {
			for gt := range sp.Cells[b] {
				if !sp.Valid[b][gt] {
					continue
				}
				c := sp.Cells[b][gt][i]
				p += real(c)*real(c) + imag(c)*imag(c)
			}
		}
		bins = append(bins, binPower{bin: i, power: p})
	}
	if len(bins) == 0 {
		// Band misses the axis entirely; fall back to the nearest bin.
		return []int{sp.BinFor((loHz + hiHz) / 2)}
	}

	sort.SliceStable(bins, func(a, b int) bool { return bins[a].power > bins[b].power })
	if n < 1 {
		n = 1
	}
	if len(bins) > n {
		bins = bins[:n]
	}
	out := make([]int, len(bins))
	for i, bp := range bins {
		out[i] = bp.bin
	}
	return out
}

// DominantBin picks the single frequency bin inside [loHz, hiHz] carrying
// the most power summed across valid cells.
func DominantBin(sp *models.Spectrum, loHz, hiHz float64) int {
	return TopBins(sp, loHz, hiHz, 1)[0]
}
