package models

import (
	"fmt"
	"time"
)

// ProcessLevel is the furthest pipeline stage an event has successfully
// completed. Levels are strictly ordered; the catalog copy is authoritative.
type ProcessLevel int

const (
	LevelNone ProcessLevel = iota
	LevelGrid              // rti_interp: gridded + interpolated + quality gated
	LevelFFT               // fft: temporal spectra + integrated PSD
	LevelMUSIC             // music: subspace detection ran
)

var levelNames = [...]string{"none", "rti_interp", "fft", "music"}

func (l ProcessLevel) String() string {
	if l >= LevelNone && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "invalid"
}

// ParseLevel maps a stored level name back to its ProcessLevel.
func ParseLevel(s string) (ProcessLevel, error) {
	for i, n := range levelNames {
		if n == s {
			return ProcessLevel(i), nil
		}
	}
	return LevelNone, fmt.Errorf("%w: unknown process level %q", ErrConfig, s)
}

func (l ProcessLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

func (l *ProcessLevel) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Category is the quiet/disturbed classification of an event window.
type Category string

const (
	CategoryNone      Category = ""
	CategoryQuiet     Category = "quiet"
	CategoryDisturbed Category = "disturbed"
)

// QualityReport holds the quality-gate metrics and verdict. Rejected events
// keep all metrics for audit; they are never dropped from the catalog.
type QualityReport struct {
	NoData       bool     `json:"no_data"`
	Good         bool     `json:"good_period"`
	Coverage     float64  `json:"coverage"`
	UptimeMin    float64  `json:"uptime_min"`
	DaylightFrac float64  `json:"daylight_frac"`
	FailedChecks []string `json:"failed_checks,omitempty"`
}

// Classification records the label together with the batch context that
// produced it, since the threshold is population-relative and relabeling
// under a different batch composition is expected.
type Classification struct {
	Category  Category `json:"category"`
	Threshold float64  `json:"threshold"`
	BatchSize int      `json:"batch_size"`
}

// Event is one fixed-duration radar observation window, the unit of work
// for the whole pipeline. Identity is (radar, start, end).
type Event struct {
	Radar string    `json:"radar"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
	MLTHr  float64 `json:"mlt_hr"` // magnetic local time at window centre

	Level   ProcessLevel   `json:"process_level"`
	Quality QualityReport  `json:"quality"`
	Class   Classification `json:"classification"`

	SpectralSum  float64 `json:"spectral_sum"`
	SpectralMean float64 `json:"spectral_mean"`
	SpectralMax  float64 `json:"spectral_max"`

	Signals   []Signal `json:"signals,omitempty"`
	LastError string   `json:"last_error,omitempty"`
}

// EventID builds the canonical catalog key for an event window.
func EventID(radar string, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s", radar,
		start.UTC().Format("20060102.1504"), end.UTC().Format("20060102.1504"))
}

func (e *Event) ID() string { return EventID(e.Radar, e.Start, e.End) }

// CanRun reports whether the event is allowed to execute the given stage:
// every prior stage must already be complete (this run or a persisted one).
func (e *Event) CanRun(stage ProcessLevel) bool {
	return stage > LevelNone && e.Level >= stage-1
}

// AdvanceTo moves the event to the next level. Skipping a level, regressing,
// or advancing from an incomplete predecessor is rejected, which keeps
// illegal transitions unrepresentable in the catalog.
func (e *Event) AdvanceTo(l ProcessLevel) error {
	if l != e.Level+1 || l > LevelMUSIC {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, e.Level, l)
	}
	e.Level = l
	return nil
}

// ─── CSV projection (events.csv) ────────────────────────────────────────

func (Event) CSVHeader() []string {
	return []string{
		"event_id", "radar", "start", "end", "level", "good",
		"coverage", "uptime_min", "daylight_frac", "category",
		"threshold", "spectral_sum", "num_signals", "last_error",
	}
}

func (e *Event) CSVRow() []string {
	return []string{
		e.ID(), e.Radar,
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339),
		e.Level.String(), fmt.Sprintf("%t", e.Quality.Good),
		ftoa(e.Quality.Coverage, 4), ftoa(e.Quality.UptimeMin, 1),
		ftoa(e.Quality.DaylightFrac, 3), string(e.Class.Category),
		ftoa(e.Class.Threshold, 4), ftoa(e.SpectralSum, 4),
		itoa(len(e.Signals)), e.LastError,
	}
}
