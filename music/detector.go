// Package music implements the array-signal-processing engine: it forms a
// spatial covariance structure from a grid's per-cell spectra, separates
// signal and noise subspaces by eigendecomposition, searches the 2-D
// wavenumber plane for coherent-energy peaks, and converts the peaks to
// physical wave parameters.
package music

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"mstid-music/models"
	"mstid-music/utils"
)

const eps = 1e-12

// Detector runs MUSIC detection with a fixed configuration. Detect is
// deterministic: the same grid and spectrum always yield the same ranked
// signal list.
type Detector struct {
	cfg utils.MusicConfig
}

func NewDetector(cfg utils.MusicConfig) *Detector { return &Detector{cfg: cfg} }

// Detect extracts plane-wave signals at the given frequency bin. An empty
// result is a valid outcome (no coherent wave above threshold), not an
// error; errors are reserved for too few channels and numerical failure.
func (d *Detector) Detect(grid *models.Grid, sp *models.Spectrum, bin int) ([]models.Signal, error) {
	chans := channels(grid)
	if len(chans) < d.cfg.MinChannels {
		return nil, fmt.Errorf("%w: %d valid cells, need %d",
			models.ErrInsufficientChannels, len(chans), d.cfg.MinChannels)
	}
	if bin < 0 || bin >= len(sp.Freqs) {
		return nil, fmt.Errorf("%w: frequency bin %d outside axis", models.ErrDetectionFailed, bin)
	}

	r := covariance(grid, sp, chans, bin, d.cfg.FreqAvgBins)

	trace := 0.0
	for i := range r {
		trace += real(r[i][i])
	}
	if trace <= eps {
		// No spectral energy at this bin anywhere in the grid.
		return nil, nil
	}

	sub, err := decompose(r)
	if err != nil {
		return nil, err
	}
	dim := sub.SignalDim(d.cfg.NumSignals)

	ps := d.pseudospectrum(chans, sub, dim)
	peaks := localMaxima(ps, d.cfg.PeakFraction)

	freq := sp.Freqs[bin]
	signals := d.toSignals(peaks, ps, freq)

	utils.L().Debug("music: %d channels, signal dim %d, %d peak(s), %d signal(s) at %.3e Hz",
		len(chans), dim, len(peaks), len(signals), freq)
	return signals, nil
}

// DetectBins runs detection at each of the given frequency bins and merges
// the per-bin lists into one ranking by relative power. A bin that fails
// numerically is skipped as long as another bin succeeds; too few channels
// fails outright since every bin shares the channel set.
func (d *Detector) DetectBins(grid *models.Grid, sp *models.Spectrum, bins []int) ([]models.Signal, error) {
	if len(bins) == 0 {
		return nil, fmt.Errorf("%w: no frequency bins to scan", models.ErrDetectionFailed)
	}

	var (
		merged   []models.Signal
		firstErr error
		any      bool
	)
	for _, bin := range bins {
		signals, err := d.Detect(grid, sp, bin)
		if err != nil {
			if errors.Is(err, models.ErrInsufficientChannels) {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		any = true
		merged = append(merged, signals...)
	}
	if !any {
		return nil, firstErr
	}

	// Stable by relative power: equal-power leaders keep the dominance
	// order of the bins they came from.
	sort.SliceStable(merged, func(a, b int) bool { return merged[a].Power > merged[b].Power })
	for i := range merged {
		merged[i].Order = i + 1
	}
	return merged, nil
}

// pseudospectrum evaluates the MUSIC score over the (kx, ky) search grid:
// the inverse of the steering vector's projection onto the noise subspace,
// computed as ||a||^2 minus the signal-subspace projection.
func (d *Detector) pseudospectrum(chans []Channel, sub *Subspace, dim int) *kGrid {
	nk := d.cfg.NK
	ps := newKGrid(nk, d.cfg.KxMaxRadKm, d.cfg.KyMaxRadKm)

	a := make([]complex128, len(chans))
	for iy := 0; iy < nk; iy++ {
		ky := ps.ky(iy)
		for ix := 0; ix < nk; ix++ {
			kx := ps.kx(ix)

			norm := 0.0
			for m, ch := range chans {
				phase := -(kx*ch.XKm + ky*ch.YKm)
				a[m] = complex(ch.Weight*math.Cos(phase), ch.Weight*math.Sin(phase))
				norm += ch.Weight * ch.Weight
			}

			denom := norm
			for s := 0; s < dim; s++ {
				denom -= project(sub.Vectors[s], a)
			}
			if denom < eps {
				denom = eps
			}
			ps.v[iy*nk+ix] = 1 / denom
		}
	}
	return ps
}

// kGrid is the wavenumber search grid and its pseudospectrum values. The
// kx and ky bounds are independent so an asymmetric search window works.
type kGrid struct {
	nk    int
	kxmax float64
	kymax float64
	v     []float64
}

func newKGrid(nk int, kxmax, kymax float64) *kGrid {
	return &kGrid{nk: nk, kxmax: kxmax, kymax: kymax, v: make([]float64, nk*nk)}
}

// kx maps a grid index to its coordinate in [-kxmax, kxmax]; ky likewise.
func (g *kGrid) kx(i int) float64 {
	return -g.kxmax + 2*g.kxmax*float64(i)/float64(g.nk-1)
}

func (g *kGrid) ky(i int) float64 {
	return -g.kymax + 2*g.kymax*float64(i)/float64(g.nk-1)
}

func (g *kGrid) at(ix, iy int) float64 { return g.v[iy*g.nk+ix] }

type peak struct {
	ix, iy int
	val    float64
	kmag   float64
}

// localMaxima finds interior grid points strictly greater than their four
// neighbours and above fraction*max. Ranking is by descending value with
// ties broken toward the smaller wavenumber magnitude: the physically
// larger wave is the more credible detection.
func localMaxima(g *kGrid, fraction float64) []peak {
	maxVal := 0.0
	for _, v := range g.v {
		if v > maxVal {
			maxVal = v
		}
	}
	floor := fraction * maxVal

	var peaks []peak
	for iy := 1; iy < g.nk-1; iy++ {
		for ix := 1; ix < g.nk-1; ix++ {
			v := g.at(ix, iy)
			if v < floor {
				continue
			}
			if v > g.at(ix-1, iy) && v > g.at(ix+1, iy) &&
				v > g.at(ix, iy-1) && v > g.at(ix, iy+1) {
				kx, ky := g.kx(ix), g.ky(iy)
				peaks = append(peaks, peak{ix: ix, iy: iy, val: v, kmag: math.Hypot(kx, ky)})
			}
		}
	}

	sort.Slice(peaks, func(a, b int) bool {
		if peaks[a].val != peaks[b].val {
			return peaks[a].val > peaks[b].val
		}
		return peaks[a].kmag < peaks[b].kmag
	})
	return peaks
}

// toSignals converts retained peaks to physical parameters, discarding
// non-physical results (k = 0, wavelength outside the plausibility band)
// instead of reporting zeros or infinities.
func (d *Detector) toSignals(peaks []peak, g *kGrid, freqHz float64) []models.Signal {
	var out []models.Signal
	var pmax float64
	if len(peaks) > 0 {
		pmax = peaks[0].val
	}

	for _, p := range peaks {
		kx, ky := g.kx(p.ix), g.ky(p.iy)
		k := math.Hypot(kx, ky)
		if k <= eps {
			continue
		}
		lambda := 2 * math.Pi / k
		if lambda < d.cfg.LambdaMinKm || lambda > d.cfg.LambdaMaxKm {
			continue
		}

		az := math.Atan2(kx, ky) * 180 / math.Pi
		if az < 0 {
			az += 360
		}

		if freqHz <= 0 {
			continue // DC bin cannot yield a finite period
		}

		out = append(out, models.Signal{
			Order:      len(out) + 1,
			KxRadKm:    kx,
			KyRadKm:    ky,
			LambdaKm:   lambda,
			AzimuthDeg: az,
			FreqHz:     freqHz,
			PeriodMin:  1 / freqHz / 60,
			// v = omega / k; rad/s over rad/km gives km/s.
			VelocityMS: 2 * math.Pi * freqHz / k * 1000,
			Power:      p.val / pmax,
		})
	}
	return out
}

// WavelengthToK converts a wavelength in km to wavenumber magnitude in
// rad/km; KToWavelength is its inverse. Both reject non-positive input.
func WavelengthToK(lambdaKm float64) float64 {
	if lambdaKm <= 0 {
		return 0
	}
	return 2 * math.Pi / lambdaKm
}

func KToWavelength(kRadKm float64) float64 {
	if kRadKm <= 0 {
		return 0
	}
	return 2 * math.Pi / kRadKm
}
