package ingest

import (
	"context"
	"math"
	"math/rand"
	"time"

	"mstid-music/models"
	"mstid-music/utils"
)

// WaveSpec injects a single plane wave into simulated backscatter:
// power(x, y, t) = amp * cos(kx*x + ky*y - 2*pi*f*t).
type WaveSpec struct {
	KxRadKm float64
	KyRadKm float64
	FreqHz  float64
	AmpDB   float64
}

// SimSource produces deterministic synthetic scans for one radar. Cell
// positions use a flat planar approximation of the field of view (gates
// along the boresight, beams across it), which is plenty for exercising
// the pipeline end to end without recorded data.
type SimSource struct {
	Site     utils.RadarSite
	BaseDB   float64
	NoiseDB  float64 // uniform +-NoiseDB/2, seeded per window for repeatability
	Wave     *WaveSpec
	Dropout  float64 // fraction of scans skipped entirely, [0, 1)
	MaxBeam  int
	MaxGate  int
}

func NewSimSource(site utils.RadarSite) *SimSource {
	return &SimSource{
		Site:    site,
		BaseDB:  30,
		NoiseDB: 0.5,
		MaxBeam: site.NBeams - 1,
		MaxGate: site.NGates - 1,
	}
}

func (ss *SimSource) Read(ctx context.Context, radar string, start, end time.Time) ([]models.Sample, error) {
	step := time.Duration(ss.Site.StepSec * float64(time.Second))
	rng := rand.New(rand.NewSource(start.Unix())) // same window, same data

	var out []models.Sample
	for t := start; t.Before(end); t = t.Add(step) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ss.Dropout > 0 && rng.Float64() < ss.Dropout {
			continue
		}
		elapsed := t.Sub(start).Seconds()
		for b := 0; b <= ss.MaxBeam; b++ {
			for g := 0; g <= ss.MaxGate; g++ {
				p := ss.BaseDB
				if ss.NoiseDB > 0 {
					p += (rng.Float64() - 0.5) * ss.NoiseDB
				}
				if w := ss.Wave; w != nil {
					x, y := ss.cellXY(b, g)
					p += w.AmpDB * math.Cos(w.KxRadKm*x+w.KyRadKm*y-2*math.Pi*w.FreqHz*elapsed)
				}
				out = append(out, models.Sample{
					Time:    t,
					Beam:    b,
					Gate:    g,
					PowerDB: p,
					Scatter: models.ScatterGround,
				})
			}
		}
	}
	return out, nil
}

// cellXY places a cell on a flat plane: gates advance along the boresight,
// beams fan across it at the cell's slant range.
func (ss *SimSource) cellXY(beam, gate int) (x, y float64) {
	r := ss.Site.FirstRangeKm + float64(gate)*ss.Site.GateLenKm
	off := (float64(beam) - float64(ss.Site.NBeams-1)/2) * ss.Site.BeamSepDeg * math.Pi / 180
	return r * math.Sin(off), r * math.Cos(off)
}
