package gridder

import (
	"fmt"
	"math"
	"time"

	"mstid-music/models"
	"mstid-music/utils"
)

// Build turns an irregular set of beam/gate/time samples into a uniform
// Grid for one event window: scatter filtering, field-of-view footprints,
// a regular time axis at the radar's native integration period, and
// controlled gap interpolation. Partial coverage is never an error here;
// that judgement belongs to the quality gate.
func Build(samples []models.Sample, site *utils.RadarSite, start, end time.Time, cfg utils.GridConfig) (*models.Grid, error) {
	fov, err := NewFOV(cfg)
	if err != nil {
		return nil, err
	}

	b0, b1 := clampRange(cfg.BeamLimits, site.NBeams)
	g0, g1 := clampRange(cfg.GateLimits, site.NGates)
	nb := b1 - b0 + 1
	ng := g1 - g0 + 1

	step := site.StepSec
	nt := int(end.Sub(start).Seconds()/step + 0.5)
	if nt < 2 {
		return nil, fmt.Errorf("%w: window %s..%s shorter than two integration periods",
			models.ErrConfig, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	g := &models.Grid{
		Power:   make([][][]float64, nb),
		Valid:   make([][][]bool, nb),
		Beams:   make([]int, nb),
		SlantKm: make([]float64, ng),
		Times:   make([]time.Time, nt),
		StepSec: step,
		LatDeg:  make([][]float64, nb),
		LonDeg:  make([][]float64, nb),
		FootOK:  make([][]bool, nb),
		XKm:     make([][]float64, nb),
		YKm:     make([][]float64, nb),
	}
	for i := range g.Beams {
		g.Beams[i] = b0 + i
	}
	for i := range g.SlantKm {
		g.SlantKm[i] = slantKm(site, g0+i)
	}
	for i := range g.Times {
		g.Times[i] = start.Add(time.Duration(float64(i) * step * float64(time.Second)))
	}
	for b := 0; b < nb; b++ {
		g.Power[b] = make([][]float64, ng)
		g.Valid[b] = make([][]bool, ng)
		g.LatDeg[b] = make([]float64, ng)
		g.LonDeg[b] = make([]float64, ng)
		g.FootOK[b] = make([]bool, ng)
		g.XKm[b] = make([]float64, ng)
		g.YKm[b] = make([]float64, ng)
		for gt := 0; gt < ng; gt++ {
			g.Power[b][gt] = make([]float64, nt)
			g.Valid[b][gt] = make([]bool, nt)
		}
	}

	// Bin samples onto the regular axes.
	used := 0
	for _, s := range samples {
		if !keepScatter(s.Scatter, cfg.GScat) {
			continue
		}
		if s.Beam < b0 || s.Beam > b1 || s.Gate < g0 || s.Gate > g1 {
			continue
		}
		dt := s.Time.Sub(start).Seconds()
		ti := int(dt/step + 0.5)
		if ti < 0 || ti >= nt || math.Abs(dt-float64(ti)*step) > step/2 {
			continue
		}
		g.Power[s.Beam-b0][s.Gate-g0][ti] = s.PowerDB
		g.Valid[s.Beam-b0][s.Gate-g0][ti] = true
		used++
	}
	if used == 0 {
		return nil, fmt.Errorf("%w: no usable samples in %s..%s",
			models.ErrInsufficientData, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	// Footprints. Cells the field-of-view model rejects are dropped whole.
	for b := 0; b < nb; b++ {
		for gt := 0; gt < ng; gt++ {
			lat, lon, ok := fov.Footprint(site, b0+b, g0+gt)
			g.FootOK[b][gt] = ok
			if !ok {
				for t := 0; t < nt; t++ {
					g.Valid[b][gt][t] = false
				}
				continue
			}
			g.LatDeg[b][gt] = lat
			g.LonDeg[b][gt] = lon
		}
	}

	// Fill time-axis gaps up to the configured maximum; longer gaps stay
	// masked invalid rather than being bridged.
	maxGapSteps := int(cfg.MaxGapSec / step)
	for b := 0; b < nb; b++ {
		for gt := 0; gt < ng; gt++ {
			if g.FootOK[b][gt] {
				interpSeries(g.Power[b][gt], g.Valid[b][gt], maxGapSteps, cfg.Interp == "linear")
			}
		}
	}

	planarOffsets(g)

	if cfg.Taper {
		g.Taper = hanning2D(nb, ng)
	}

	valid, total := 0, nb*ng*nt
	for b := 0; b < nb; b++ {
		for gt := 0; gt < ng; gt++ {
			for t := 0; t < nt; t++ {
				if g.Valid[b][gt][t] {
					valid++
				}
			}
		}
	}
	g.Coverage = float64(valid) / float64(total)

	utils.L().Debug("grid: %s %dx%dx%d coverage=%.3f (samples used=%d)",
		site.Code, nb, ng, nt, g.Coverage, used)
	return g, nil
}

func keepScatter(s models.ScatterType, gscat int) bool {
	switch gscat {
	case 0:
		return s == models.ScatterIono
	case 1:
		return s == models.ScatterGround
	default:
		return true
	}
}

func clampRange(lim [2]int, n int) (int, int) {
	lo, hi := lim[0], lim[1]
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi
}

// interpSeries fills invalid runs between (or adjacent to) valid samples
// when the run is short enough. Interior gaps use linear or nearest
// interpolation; leading/trailing gaps use nearest fill only.
func interpSeries(p []float64, ok []bool, maxGapSteps int, linear bool) {
	n := len(p)
	first, last := -1, -1
	for i := 0; i < n; i++ {
		if ok[i] {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return
	}

	// Leading and trailing edges.
	if first > 0 && first <= maxGapSteps {
		for i := 0; i < first; i++ {
			p[i] = p[first]
			ok[i] = true
		}
	}
	if gap := n - 1 - last; gap > 0 && gap <= maxGapSteps {
		for i := last + 1; i < n; i++ {
			p[i] = p[last]
			ok[i] = true
		}
	}

	// Interior gaps.
	prev := -1
	for i := 0; i < n; i++ {
		if !ok[i] {
			continue
		}
		if prev >= 0 && i-prev > 1 && i-prev-1 <= maxGapSteps {
			for j := prev + 1; j < i; j++ {
				if linear {
					f := float64(j-prev) / float64(i-prev)
					p[j] = p[prev]*(1-f) + p[i]*f
				} else if j-prev <= i-j {
					p[j] = p[prev]
				} else {
					p[j] = p[i]
				}
				ok[j] = true
			}
		}
		prev = i
	}
}

// planarOffsets projects footprints onto a local tangent plane centred on
// the footprint centroid: x east, y north, in km.
func planarOffsets(g *models.Grid) {
	var lat0, lon0 float64
	n := 0
	for b := range g.FootOK {
		for gt := range g.FootOK[b] {
			if g.FootOK[b][gt] {
				lat0 += g.LatDeg[b][gt]
				lon0 += g.LonDeg[b][gt]
				n++
			}
		}
	}
	if n == 0 {
		return
	}
	lat0 /= float64(n)
	lon0 /= float64(n)

	rad := math.Pi / 180
	cosLat := math.Cos(lat0 * rad)
	for b := range g.FootOK {
		for gt := range g.FootOK[b] {
			if !g.FootOK[b][gt] {
				continue
			}
			g.XKm[b][gt] = earthRadiusKm * cosLat * (g.LonDeg[b][gt] - lon0) * rad
			g.YKm[b][gt] = earthRadiusKm * (g.LatDeg[b][gt] - lat0) * rad
		}
	}
}

// hanning2D builds a separable Hanning window over the beam and gate axes
// to reduce spatial edge artifacts in the wavenumber search.
func hanning2D(nb, ng int) [][]float64 {
	wb := hanning(nb)
	wg := hanning(ng)
	w := make([][]float64, nb)
	for b := range w {
		w[b] = make([]float64, ng)
		for gt := range w[b] {
			w[b][gt] = wb[b] * wg[gt]
		}
	}
	return w
}

func hanning(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}
