package gridder

import (
	"fmt"
	"math"

	"mstid-music/models"
	"mstid-music/utils"
)

const earthRadiusKm = 6371.0

// FOV maps a beam-gate cell to a geographic footprint. The two variants
// differ only in how slant range becomes ground distance, so they sit
// behind one small strategy interface instead of branching through the
// grid builder.
type FOV interface {
	// Footprint returns the cell location; ok=false discards the cell.
	Footprint(site *utils.RadarSite, beam, gate int) (latDeg, lonDeg float64, ok bool)
}

// NewFOV selects the field-of-view model by name ("GS" or "IS").
func NewFOV(cfg utils.GridConfig) (FOV, error) {
	switch cfg.FOVModel {
	case "GS":
		return &GroundScatterFOV{BadRangeKm: cfg.BadRangeKm}, nil
	case "IS":
		h := cfg.VirtualHeightKm
		if h <= 0 {
			h = 300
		}
		return &IonosphericFOV{VirtualHeightKm: h}, nil
	default:
		return nil, fmt.Errorf("%w: unknown fov model %q", models.ErrConfig, cfg.FOVModel)
	}
}

// GroundScatterFOV maps one-hop ground scatter to its ionospheric
// reflection point at half the slant range. Reflection-point geometry is
// unreliable near the radar, so cells inside BadRangeKm are discarded.
type GroundScatterFOV struct {
	BadRangeKm float64
}

func (f *GroundScatterFOV) Footprint(site *utils.RadarSite, beam, gate int) (float64, float64, bool) {
	r := slantKm(site, gate)
	if r < f.BadRangeKm {
		return 0, 0, false
	}
	lat, lon := destination(site.LatDeg, site.LonDeg, beamAzimuthDeg(site, beam), r/2)
	return lat, lon, true
}

// IonosphericFOV maps direct ionospheric scatter to the ground projection
// of the scattering volume at a fixed virtual height.
type IonosphericFOV struct {
	VirtualHeightKm float64
}

func (f *IonosphericFOV) Footprint(site *utils.RadarSite, beam, gate int) (float64, float64, bool) {
	r := slantKm(site, gate)
	ground := r
	if r > f.VirtualHeightKm {
		ground = math.Sqrt(r*r - f.VirtualHeightKm*f.VirtualHeightKm)
	}
	lat, lon := destination(site.LatDeg, site.LonDeg, beamAzimuthDeg(site, beam), ground)
	return lat, lon, true
}

func slantKm(site *utils.RadarSite, gate int) float64 {
	return site.FirstRangeKm + float64(gate)*site.GateLenKm
}

func beamAzimuthDeg(site *utils.RadarSite, beam int) float64 {
	return site.BoresightDeg + (float64(beam)-float64(site.NBeams-1)/2)*site.BeamSepDeg
}

// destination solves the direct geodetic problem on a sphere: the point
// distKm along the great circle leaving (lat, lon) at the given azimuth.
func destination(latDeg, lonDeg, azDeg, distKm float64) (float64, float64) {
	lat1 := latDeg * math.Pi / 180
	lon1 := lonDeg * math.Pi / 180
	az := azDeg * math.Pi / 180
	d := distKm / earthRadiusKm

	sinLat2 := math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(az)
	lat2 := math.Asin(sinLat2)
	lon2 := lon1 + math.Atan2(
		math.Sin(az)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*sinLat2,
	)

	return lat2 * 180 / math.Pi, lon2 * 180 / math.Pi
}
