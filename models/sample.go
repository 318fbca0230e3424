package models

import "time"

// ScatterType flags the origin of a backscatter echo.
type ScatterType int8

const (
	ScatterUnknown ScatterType = -1
	ScatterIono    ScatterType = 0
	ScatterGround  ScatterType = 1
)

// Sample is one calibrated backscatter measurement delivered by the raw
// reader: a single (beam, gate, time) cell of one radar scan.
type Sample struct {
	Time     time.Time   `json:"time"`
	Beam     int         `json:"beam"`
	Gate     int         `json:"gate"`
	PowerDB  float64     `json:"power_db"`
	Velocity float64     `json:"velocity"` // m/s, line-of-sight; optional (0 when absent)
	Scatter  ScatterType `json:"scatter"`
}

func (s ScatterType) String() string {
	switch s {
	case ScatterIono:
		return "iono"
	case ScatterGround:
		return "ground"
	default:
		return "unknown"
	}
}
