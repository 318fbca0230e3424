package views

import (
	"os"
	"path/filepath"
	"strconv"

	"mstid-music/models"
	"mstid-music/utils"
)

// ExportResults writes the processed catalog slice to an export session
// directory: events.csv (one row per event) and signals.csv (one row per
// detected signal, prefixed with the event identity). Returns the session
// directory path.
func ExportResults(baseDir string, events []*models.Event) (string, error) {
	dir := filepath.Join(baseDir, utils.SessionName("mstid"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	evw, err := NewCSVWriter(filepath.Join(dir, "events.csv"), models.Event{}.CSVHeader())
	if err != nil {
		return "", err
	}
	sigHeader := append([]string{"event_id", "freq_bin_hz"}, models.Signal{}.CSVHeader()...)
	sgw, err := NewCSVWriter(filepath.Join(dir, "signals.csv"), sigHeader)
	if err != nil {
		_ = evw.Close()
		return "", err
	}

	for _, ev := range events {
		evw.WriteRow(ev.CSVRow())
		for i := range ev.Signals {
			s := &ev.Signals[i]
			row := append([]string{ev.ID(), strconv.FormatFloat(s.FreqHz, 'g', -1, 64)}, s.CSVRow()...)
			sgw.WriteRow(row)
		}
	}

	if err := evw.Close(); err != nil {
		_ = sgw.Close()
		return "", err
	}
	if err := sgw.Close(); err != nil {
		return "", err
	}

	utils.L().Info("exported %d event(s) to %s", len(events), dir)
	return dir, nil
}
