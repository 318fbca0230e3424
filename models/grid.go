package models

import "time"

// Grid is a uniformly sampled beam × gate × time array of backscatter power
// built from one event window. All three axes are monotonic and regularly
// spaced after interpolation; missing cells stay masked in Valid, they are
// never silently zero-filled.
type Grid struct {
	// Power[b][g][t] in dB, meaningful only where Valid[b][g][t].
	Power [][][]float64
	Valid [][][]bool

	Beams   []int       // physical beam numbers, ascending
	SlantKm []float64   // slant range per gate, ascending, uniform
	Times   []time.Time // uniform at StepSec
	StepSec float64

	// Footprint mapping, one geographic point per beam-gate cell produced
	// by the field-of-view model. FootOK is false where the model rejected
	// the cell (e.g. inside the ground-scatter bad range).
	LatDeg [][]float64
	LonDeg [][]float64
	FootOK [][]bool

	// Planar offsets of each footprint relative to the footprint centroid,
	// used as spatial channel positions by the detector.
	XKm [][]float64
	YKm [][]float64

	// Optional spatial taper weight per cell (nil when tapering is off).
	Taper [][]float64

	// Coverage = valid (beam,gate,time) cells / total cells, in [0,1].
	Coverage float64
}

// NumBeams, NumGates and NumTimes describe the axis lengths.
func (g *Grid) NumBeams() int { return len(g.Beams) }
func (g *Grid) NumGates() int { return len(g.SlantKm) }
func (g *Grid) NumTimes() int { return len(g.Times) }

// CellValid reports whether a beam-gate cell is usable as a spatial channel:
// its footprint resolved and every time sample survived interpolation.
func (g *Grid) CellValid(b, gate int) bool {
	if !g.FootOK[b][gate] {
		return false
	}
	for _, ok := range g.Valid[b][gate] {
		if !ok {
			return false
		}
	}
	return true
}

// Series returns the power time series of one cell.
func (g *Grid) Series(b, gate int) []float64 { return g.Power[b][gate] }

// TaperAt returns the spatial taper weight for a cell (1 when tapering off).
func (g *Grid) TaperAt(b, gate int) float64 {
	if g.Taper == nil {
		return 1
	}
	return g.Taper[b][gate]
}
