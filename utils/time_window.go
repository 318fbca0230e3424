package utils

import (
	"fmt"
	"time"

	"mstid-music/models"
)

// Window is one half-open observation interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Windows cuts [start, end) into consecutive fixed-duration observation
// windows. An inverted range is a caller mistake, not a data condition.
func Windows(start, end time.Time, d time.Duration) ([]Window, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: inverted date range %s .. %s",
			models.ErrConfig, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if d <= 0 {
		return nil, fmt.Errorf("%w: non-positive window duration %s", models.ErrConfig, d)
	}
	var out []Window
	for t := start; t.Before(end); t = t.Add(d) {
		out = append(out, Window{Start: t, End: t.Add(d)})
	}
	return out, nil
}

// MLTHour approximates the magnetic local time at the window centre from
// the site longitude offset. Good enough for catalog bookkeeping; the
// science never branches on it.
func MLTHour(centre time.Time, mltOffsetHr float64) float64 {
	h := float64(centre.UTC().Hour()) + float64(centre.UTC().Minute())/60 + mltOffsetHr
	for h < 0 {
		h += 24
	}
	for h >= 24 {
		h -= 24
	}
	return h
}

// SessionName returns a unique export directory name:
//
//	<prefix>_YYYYMMDD_HHMMSS
func SessionName(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, time.Now().Format("20060102_150405"))
}
