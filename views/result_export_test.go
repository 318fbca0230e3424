package views

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mstid-music/models"
)

func TestExportResults(t *testing.T) {
	start := time.Date(2016, 1, 15, 14, 0, 0, 0, time.UTC)
	ev := &models.Event{
		Radar: "bks", Start: start, End: start.Add(2 * time.Hour),
		Level:       models.LevelMUSIC,
		Quality:     models.QualityReport{Good: true, Coverage: 0.9},
		SpectralSum: 123.4,
		Signals: []models.Signal{
			{Order: 1, KxRadKm: 0.003, KyRadKm: 0.004, LambdaKm: 1256.6,
				AzimuthDeg: 36.87, FreqHz: 5e-4, PeriodMin: 33.33,
				VelocityMS: 628.3, Power: 1},
			{Order: 2, KxRadKm: -0.01, KyRadKm: 0.002, LambdaKm: 616.2,
				AzimuthDeg: 281.31, FreqHz: 5e-4, PeriodMin: 33.33,
				VelocityMS: 308.1, Power: 0.4},
		},
	}
	quiet := &models.Event{Radar: "bks", Start: start.Add(2 * time.Hour), End: start.Add(4 * time.Hour)}

	dir, err := ExportResults(t.TempDir(), []*models.Event{ev, quiet})
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}

	readAll := func(name string) [][]string {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer f.Close()
		rows, err := csv.NewReader(f).ReadAll()
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return rows
	}

	events := readAll("events.csv")
	if len(events) != 3 { // header + 2 events
		t.Fatalf("events.csv has %d rows, want 3", len(events))
	}
	if events[0][0] != "event_id" || events[1][1] != "bks" {
		t.Fatalf("unexpected events.csv layout: %v", events[0])
	}

	signals := readAll("signals.csv")
	if len(signals) != 3 { // header + 2 signals, quiet event contributes none
		t.Fatalf("signals.csv has %d rows, want 3", len(signals))
	}
	if signals[1][0] != ev.ID() {
		t.Fatalf("signal row not keyed by event: %v", signals[1])
	}
}

func TestCSVWriterRowCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewCSVWriter(path, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	w.WriteRow([]string{"1", "2"})
	w.WriteRow([]string{"3", "4"})
	if w.Rows() != 2 {
		t.Fatalf("Rows = %d, want 2", w.Rows())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
