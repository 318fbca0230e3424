package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"mstid-music/models"
	"mstid-music/services/ingest"
	"mstid-music/store"
	"mstid-music/utils"
)

func testPipelineConfig() *utils.PipelineConfig {
	return &utils.PipelineConfig{
		Radars: map[string]*utils.RadarSite{
			"tst": {
				Code: "tst", LatDeg: 37.1, LonDeg: -77.95,
				BoresightDeg: -40, BeamSepDeg: 3.24,
				NBeams: 8, NGates: 8,
				FirstRangeKm: 400, GateLenKm: 45, StepSec: 80,
			},
		},
		Grid: utils.GridConfig{
			FOVModel: "GS", GScat: 1,
			BeamLimits: [2]int{0, 7}, GateLimits: [2]int{0, 7},
			Interp: "linear", MaxGapSec: 600,
		},
		// Thresholds at zero keep the gate open for synthetic data.
		Quality:  utils.QualityConfig{},
		Spectral: utils.SpectralConfig{BandLoHz: 4e-4, BandHiHz: 6e-4},
		Classify: utils.ClassifyConfig{Method: "percentile", Percentile: 0.9},
		Music: utils.MusicConfig{
			MinChannels: 8, NumSignals: 1,
			KxMaxRadKm: 0.05, KyMaxRadKm: 0.05, NK: 51, PeakFraction: 0.3,
			LambdaMinKm: 100, LambdaMaxKm: 3000,
		},
		Batch: utils.BatchConfig{NProcs: 2, WindowHours: 2},
	}
}

func newTestRig(t *testing.T, cfg *utils.PipelineConfig, src ingest.SampleSource) (*PipelineController, store.Catalog, store.ArrayStore) {
	t.Helper()
	cat, err := store.NewFileCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	arrays, err := store.NewFileArrays(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if src == nil {
		ss := ingest.NewSimSource(*cfg.Radars["tst"])
		ss.Wave = &ingest.WaveSpec{KxRadKm: 0.003, KyRadKm: 0.004, FreqHz: 5e-4, AmpDB: 3}
		src = ss
	}
	return NewPipelineController(src, cat, arrays, cfg), cat, arrays
}

func seedEvent(t *testing.T, cat store.Catalog, hour int) string {
	t.Helper()
	start := time.Date(2016, 1, 15, hour, 0, 0, 0, time.UTC)
	ev := &models.Event{Radar: "tst", Start: start, End: start.Add(8000 * time.Second)}
	if _, err := cat.BulkInsert([]*models.Event{ev}); err != nil {
		t.Fatal(err)
	}
	return ev.ID()
}

func TestRunEventToMusic(t *testing.T) {
	pc, cat, arrays := newTestRig(t, testPipelineConfig(), nil)
	id := seedEvent(t, cat, 14)

	ev, err := pc.RunEvent(context.Background(), id, models.LevelMUSIC, false, models.CategoryNone)
	if err != nil {
		t.Fatalf("RunEvent: %v", err)
	}
	if ev.Level != models.LevelMUSIC {
		t.Fatalf("level = %s, want music", ev.Level)
	}
	if !ev.Quality.Good {
		t.Fatalf("synthetic window rejected: %v", ev.Quality.FailedChecks)
	}
	if ev.SpectralSum <= 0 {
		t.Fatal("fft stage did not record spectral summaries")
	}
	if !arrays.Exists(id, store.StageGrid) || !arrays.Exists(id, store.StageSpectrum) {
		t.Fatal("stage arrays were not persisted")
	}
	if pc.GridRuns() != 1 || pc.FFTRuns() != 1 || pc.MusicRuns() != 1 {
		t.Fatalf("stage invocations = %d/%d/%d, want 1/1/1",
			pc.GridRuns(), pc.FFTRuns(), pc.MusicRuns())
	}
}

func TestCompletedStagesAreNotRecomputed(t *testing.T) {
	pc, cat, _ := newTestRig(t, testPipelineConfig(), nil)
	id := seedEvent(t, cat, 14)
	ctx := context.Background()

	if _, err := pc.RunEvent(ctx, id, models.LevelMUSIC, false, models.CategoryNone); err != nil {
		t.Fatal(err)
	}
	if _, err := pc.RunEvent(ctx, id, models.LevelMUSIC, false, models.CategoryNone); err != nil {
		t.Fatal(err)
	}
	if pc.GridRuns() != 1 || pc.FFTRuns() != 1 || pc.MusicRuns() != 1 {
		t.Fatalf("second run recomputed stages: %d/%d/%d",
			pc.GridRuns(), pc.FFTRuns(), pc.MusicRuns())
	}

	if _, err := pc.RunEvent(ctx, id, models.LevelMUSIC, true, models.CategoryNone); err != nil {
		t.Fatal(err)
	}
	if pc.GridRuns() != 2 || pc.FFTRuns() != 2 || pc.MusicRuns() != 2 {
		t.Fatalf("recompute did not re-run stages: %d/%d/%d",
			pc.GridRuns(), pc.FFTRuns(), pc.MusicRuns())
	}
}

func TestMusicScansConfiguredBinCount(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Music.NumFreqs = 3
	pc, cat, _ := newTestRig(t, cfg, nil)
	id := seedEvent(t, cat, 14)

	ev, err := pc.RunEvent(context.Background(), id, models.LevelMUSIC, false, models.CategoryNone)
	if err != nil {
		t.Fatalf("RunEvent: %v", err)
	}
	if ev.Level != models.LevelMUSIC {
		t.Fatalf("level = %s, want music", ev.Level)
	}
	if len(ev.Signals) == 0 {
		t.Fatal("multi-bin scan found no signals for an injected wave")
	}
	for i, s := range ev.Signals {
		if s.Order != i+1 {
			t.Fatalf("signal %d has order %d", i, s.Order)
		}
	}
}

func TestQualityRejectionStopsAtGrid(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Quality.MinUptimeMin = 1e9 // nothing can pass
	pc, cat, _ := newTestRig(t, cfg, nil)
	id := seedEvent(t, cat, 14)

	ev, err := pc.RunEvent(context.Background(), id, models.LevelMUSIC, false, models.CategoryNone)
	if err != nil {
		t.Fatalf("a rejected window is a verdict, not an error: %v", err)
	}
	if ev.Level != models.LevelGrid {
		t.Fatalf("level = %s, want rti_interp (grid ran, nothing further)", ev.Level)
	}
	if ev.Quality.Good {
		t.Fatal("expected a rejected quality report")
	}
	if pc.FFTRuns() != 0 || pc.MusicRuns() != 0 {
		t.Fatal("rejected event still reached later stages")
	}
	// Metrics survive rejection for audit.
	if ev.Quality.UptimeMin <= 0 || ev.Quality.Coverage <= 0 {
		t.Fatalf("rejected report lost its metrics: %+v", ev.Quality)
	}
}

func TestMusicRequiresPriorStages(t *testing.T) {
	pc, cat, _ := newTestRig(t, testPipelineConfig(), nil)
	id := seedEvent(t, cat, 14)

	err := pc.RunStage(context.Background(), id, models.LevelMUSIC, false, models.CategoryNone)
	if !errors.Is(err, models.ErrBadTransition) {
		t.Fatalf("err = %v, want ErrBadTransition", err)
	}
	ev, _ := cat.Get(id)
	if ev.Level != models.LevelNone {
		t.Fatalf("failed precondition changed state to %s", ev.Level)
	}
	if pc.MusicRuns() != 0 {
		t.Fatal("music ran despite the failed precondition")
	}
}

func TestNoDataRecordedWithoutAdvance(t *testing.T) {
	pc, cat, _ := newTestRig(t, testPipelineConfig(), ingest.NewFileSource(t.TempDir()))
	id := seedEvent(t, cat, 14)

	_, err := pc.RunEvent(context.Background(), id, models.LevelGrid, false, models.CategoryNone)
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
	ev, _ := cat.Get(id)
	if ev.Level != models.LevelNone {
		t.Fatalf("no-data window advanced to %s", ev.Level)
	}
	if !ev.Quality.NoData || ev.LastError == "" {
		t.Fatalf("no-data condition not recorded: %+v", ev)
	}
}

func TestCategoryFilterSkipsMusic(t *testing.T) {
	pc, cat, _ := newTestRig(t, testPipelineConfig(), nil)
	id := seedEvent(t, cat, 14)
	ctx := context.Background()

	if _, err := pc.RunEvent(ctx, id, models.LevelFFT, false, models.CategoryNone); err != nil {
		t.Fatal(err)
	}
	if err := cat.Update(id, func(e *models.Event) error {
		e.Class.Category = models.CategoryQuiet
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	ev, err := pc.RunEvent(ctx, id, models.LevelMUSIC, false, models.CategoryDisturbed)
	if err != nil {
		t.Fatalf("filter skip must not be an error: %v", err)
	}
	if ev.Level != models.LevelFFT {
		t.Fatalf("quiet event reached %s under a disturbed-only filter", ev.Level)
	}
	if pc.MusicRuns() != 0 {
		t.Fatal("music ran on a filtered-out event")
	}
}
