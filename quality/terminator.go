package quality

import (
	"math"
	"time"
)

// SolarZenithDeg approximates the solar zenith angle at a site and time,
// using the standard low-precision declination and hour-angle formulas.
// Accuracy is a fraction of a degree, far below the day/night granularity
// the terminator check needs.
func SolarZenithDeg(t time.Time, latDeg, lonDeg float64) float64 {
	u := t.UTC()
	doy := float64(u.YearDay())
	rad := math.Pi / 180

	// Solar declination.
	decl := -23.44 * rad * math.Cos(2*math.Pi*(doy+10)/365.25)

	// Hour angle from apparent local solar time.
	hours := float64(u.Hour()) + float64(u.Minute())/60 + float64(u.Second())/3600
	localSolar := hours + lonDeg/15
	hourAngle := (localSolar - 12) * 15 * rad

	lat := latDeg * rad
	cosZ := math.Sin(lat)*math.Sin(decl) + math.Cos(lat)*math.Cos(decl)*math.Cos(hourAngle)
	if cosZ > 1 {
		cosZ = 1
	} else if cosZ < -1 {
		cosZ = -1
	}
	return math.Acos(cosZ) / rad
}

// DaylightFraction is the fraction of the given instants at which the site
// is sunlit (zenith angle below 90 degrees).
func DaylightFraction(times []time.Time, latDeg, lonDeg float64) float64 {
	if len(times) == 0 {
		return 0
	}
	lit := 0
	for _, t := range times {
		if SolarZenithDeg(t, latDeg, lonDeg) < 90 {
			lit++
		}
	}
	return float64(lit) / float64(len(times))
}
