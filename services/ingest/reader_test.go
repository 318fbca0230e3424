package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mstid-music/models"
)

func TestFileSourceReadsWindow(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2016, 1, 15, 14, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	rows := "unix_sec,beam,gate,power_db,velocity,gscat\n"
	// One sample before the window, two inside, one after.
	for i, off := range []time.Duration{-time.Minute, 0, time.Hour, 2 * time.Hour} {
		rows += fmt.Sprintf("%d,%d,10,25.5,-30.0,1\n", start.Add(off).Unix(), i)
	}
	path := filepath.Join(dir, "bks_20160115.csv")
	if err := os.WriteFile(path, []byte(rows), 0644); err != nil {
		t.Fatal(err)
	}

	samples, err := NewFileSource(dir).Read(context.Background(), "bks", start, end)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2 inside the window", len(samples))
	}
	s := samples[0]
	if s.Beam != 1 || s.Gate != 10 || s.PowerDB != 25.5 || s.Scatter != models.ScatterGround {
		t.Fatalf("unexpected first sample: %+v", s)
	}
}

func TestFileSourceMissingDayIsNoData(t *testing.T) {
	start := time.Date(2016, 1, 15, 14, 0, 0, 0, time.UTC)
	samples, err := NewFileSource(t.TempDir()).Read(context.Background(), "bks", start, start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("missing day file should not be an error: %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("got %d samples from an empty directory", len(samples))
	}
}

func TestUptimeMinutesCreditsScanSpan(t *testing.T) {
	start := time.Date(2016, 1, 15, 14, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	// A healthy radar scanning every 80 s: the timestamps alone land in
	// only 90 of the 120 minute buckets, but the scans span the window.
	var samples []models.Sample
	for off := time.Duration(0); off < 2*time.Hour; off += 80 * time.Second {
		samples = append(samples, models.Sample{Time: start.Add(off)})
	}
	if got := UptimeMinutes(samples, start, end, 80); got != 120 {
		t.Fatalf("UptimeMinutes = %f, want 120 for a gap-free window", got)
	}
}

func TestUptimeMinutesGapsAndClipping(t *testing.T) {
	start := time.Date(2016, 1, 15, 14, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	// Scans only in the first hour, plus one outside the window.
	var samples []models.Sample
	for off := time.Duration(0); off < time.Hour; off += 80 * time.Second {
		samples = append(samples, models.Sample{Time: start.Add(off)})
	}
	samples = append(samples, models.Sample{Time: start.Add(3 * time.Hour)})
	if got := UptimeMinutes(samples, start, end, 80); got != 60 {
		t.Fatalf("UptimeMinutes = %f, want 60 for a half-covered window", got)
	}

	// A scan near the end is credited only up to the window boundary.
	tail := []models.Sample{{Time: end.Add(-10 * time.Second)}}
	if got := UptimeMinutes(tail, start, end, 80); got != 1 {
		t.Fatalf("UptimeMinutes = %f, want 1 for a clipped final scan", got)
	}
}

func TestSimSourceDeterministic(t *testing.T) {
	site := testSite()
	ss := NewSimSource(site)
	ss.Wave = &WaveSpec{KxRadKm: 0.003, KyRadKm: 0.004, FreqHz: 5e-4, AmpDB: 3}

	start := time.Date(2016, 1, 15, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	a, err := ss.Read(context.Background(), site.Code, start, end)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	b, err := ss.Read(context.Background(), site.Code, start, end)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("sample counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs between identical reads", i)
		}
	}

	scans := int(end.Sub(start).Seconds() / site.StepSec)
	want := scans * site.NBeams * site.NGates
	if len(a) != want {
		t.Fatalf("got %d samples, want %d", len(a), want)
	}
}
