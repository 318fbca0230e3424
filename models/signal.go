package models

// Signal is one detected propagating wave, extracted from a MUSIC
// pseudospectrum peak and converted to physical units. Lists of signals are
// ordered by descending detection strength.
type Signal struct {
	Order      int     `json:"order"` // 1-based rank within the event
	KxRadKm    float64 `json:"kx_rad_km"`
	KyRadKm    float64 `json:"ky_rad_km"`
	LambdaKm   float64 `json:"lambda_km"`   // always > 0
	AzimuthDeg float64 `json:"azimuth_deg"` // [0, 360)
	FreqHz     float64 `json:"freq_hz"`
	PeriodMin  float64 `json:"period_min"` // always > 0
	VelocityMS float64 `json:"velocity_ms"`
	Power      float64 `json:"power"` // pseudospectrum value relative to the strongest peak
}

// ─── CSV projection (signals.csv) ───────────────────────────────────────

func (Signal) CSVHeader() []string {
	return []string{
		"order", "kx_rad_km", "ky_rad_km", "lambda_km",
		"azimuth_deg", "freq_hz", "period_min", "velocity_ms", "power",
	}
}

func (s *Signal) CSVRow() []string {
	return []string{
		itoa(s.Order),
		ftoa(s.KxRadKm, 6), ftoa(s.KyRadKm, 6), ftoa(s.LambdaKm, 1),
		ftoa(s.AzimuthDeg, 2), ftoa(s.FreqHz, 8), ftoa(s.PeriodMin, 2),
		ftoa(s.VelocityMS, 1), ftoa(s.Power, 4),
	}
}
