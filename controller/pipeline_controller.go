package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"mstid-music/gridder"
	"mstid-music/models"
	"mstid-music/music"
	"mstid-music/quality"
	"mstid-music/services/ingest"
	"mstid-music/spectral"
	"mstid-music/store"
	"mstid-music/utils"
)

// PipelineController drives one event through the ordered stage sequence
// none -> rti_interp -> fft -> music. The catalog copy of the event is the
// authoritative state: a stage's output is fully persisted to the array
// store before the level advances, so an interrupted run simply leaves
// events at a lower level for the next run to resume from.
type PipelineController struct {
	source  ingest.SampleSource
	catalog store.Catalog
	arrays  store.ArrayStore
	cfg     *utils.PipelineConfig

	detector *music.Detector

	// Invocation counters, for stats and for verifying that completed
	// stages are not re-run without recompute.
	gridRuns  uint64
	fftRuns   uint64
	musicRuns uint64
}

func NewPipelineController(src ingest.SampleSource, cat store.Catalog, arr store.ArrayStore, cfg *utils.PipelineConfig) *PipelineController {
	return &PipelineController{
		source:   src,
		catalog:  cat,
		arrays:   arr,
		cfg:      cfg,
		detector: music.NewDetector(cfg.Music),
	}
}

func (pc *PipelineController) GridRuns() uint64  { return atomic.LoadUint64(&pc.gridRuns) }
func (pc *PipelineController) FFTRuns() uint64   { return atomic.LoadUint64(&pc.fftRuns) }
func (pc *PipelineController) MusicRuns() uint64 { return atomic.LoadUint64(&pc.musicRuns) }

func (pc *PipelineController) site(radar string) (*utils.RadarSite, error) {
	s, ok := pc.cfg.Radars[radar]
	if !ok {
		return nil, fmt.Errorf("%w: unknown radar %q", models.ErrConfig, radar)
	}
	return s, nil
}

// RunEvent advances one event from its persisted level toward target,
// stopping early when the event becomes ineligible (quality rejection or
// a category filter). Completed stages are idempotent no-ops unless
// recompute forces re-execution. The returned event reflects the catalog
// state after the run.
func (pc *PipelineController) RunEvent(ctx context.Context, id string, target models.ProcessLevel, recompute bool, filter models.Category) (*models.Event, error) {
	if target < models.LevelGrid || target > models.LevelMUSIC {
		return nil, fmt.Errorf("%w: invalid target stage %s", models.ErrConfig, target)
	}

	// In-memory carryover between consecutive stages of the same run, so
	// a fresh event is not read back from the array store it was just
	// written to.
	var (
		grid *models.Grid
		sp   *models.Spectrum
	)

	for stage := models.LevelGrid; stage <= target; stage++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := pc.catalog.Get(id)
		if err != nil {
			return nil, err
		}

		if ev.Level >= stage && !recompute {
			continue // already complete in this run or a prior one
		}
		if !ev.CanRun(stage) {
			return ev, fmt.Errorf("%w: event %s at %s cannot run %s",
				models.ErrBadTransition, id, ev.Level, stage)
		}
		if !pc.eligible(ev, stage, filter) {
			return ev, nil
		}

		switch stage {
		case models.LevelGrid:
			grid, err = pc.stageGrid(ctx, ev)
		case models.LevelFFT:
			sp, err = pc.stageFFT(ev, grid)
		case models.LevelMUSIC:
			err = pc.stageMusic(ev, grid, sp)
		}
		if err != nil {
			return ev, err
		}
	}
	return pc.catalog.Get(id)
}

// RunStage executes exactly one stage. Used by single-event entry points
// and tests; unlike RunEvent it never walks prior stages, so running music
// on an event at none is a precondition error with no state change.
func (pc *PipelineController) RunStage(ctx context.Context, id string, stage models.ProcessLevel, recompute bool, filter models.Category) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev, err := pc.catalog.Get(id)
	if err != nil {
		return err
	}
	if ev.Level >= stage && !recompute {
		return nil
	}
	if !ev.CanRun(stage) {
		return fmt.Errorf("%w: event %s at %s cannot run %s",
			models.ErrBadTransition, id, ev.Level, stage)
	}
	if !pc.eligible(ev, stage, filter) {
		return nil
	}

	switch stage {
	case models.LevelGrid:
		_, err = pc.stageGrid(ctx, ev)
	case models.LevelFFT:
		_, err = pc.stageFFT(ev, nil)
	case models.LevelMUSIC:
		err = pc.stageMusic(ev, nil, nil)
	default:
		err = fmt.Errorf("%w: invalid stage %s", models.ErrConfig, stage)
	}
	return err
}

// eligible applies the gates that are verdicts rather than errors: quality
// rejection stops everything past the grid stage, and the category filter
// keeps quiet events out of the music stage.
func (pc *PipelineController) eligible(ev *models.Event, stage models.ProcessLevel, filter models.Category) bool {
	if stage > models.LevelGrid && ev.Level >= models.LevelGrid && !ev.Quality.Good {
		return false
	}
	if stage == models.LevelMUSIC && filter != models.CategoryNone && ev.Class.Category != filter {
		return false
	}
	return true
}

// ─── Stage implementations ──────────────────────────────────────────────

// stageGrid: raw samples -> grid builder -> quality gate. The grid is
// persisted before the catalog level advances.
func (pc *PipelineController) stageGrid(ctx context.Context, ev *models.Event) (*models.Grid, error) {
	site, err := pc.site(ev.Radar)
	if err != nil {
		return nil, err
	}

	samples, err := pc.source.Read(ctx, ev.Radar, ev.Start, ev.End)
	if err != nil {
		return nil, err
	}

	atomic.AddUint64(&pc.gridRuns, 1)

	grid, err := gridder.Build(samples, site, ev.Start, ev.End, pc.cfg.Grid)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientData) {
			// Recorded on the event; level stays where it was.
			_ = pc.catalog.Update(ev.ID(), func(e *models.Event) error {
				e.Quality.NoData = true
				e.LastError = err.Error()
				return nil
			})
		}
		return nil, err
	}

	uptime := ingest.UptimeMinutes(samples, ev.Start, ev.End, site.StepSec)
	rep := quality.Gate(grid, uptime, site, pc.cfg.Quality)

	if err := pc.arrays.WriteGrid(ev.ID(), grid); err != nil {
		return nil, err
	}
	err = pc.catalog.Update(ev.ID(), func(e *models.Event) error {
		e.Quality = rep
		e.LastError = ""
		if e.Level == models.LevelNone {
			return e.AdvanceTo(models.LevelGrid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.L().Info("event %s: grid built (coverage=%.3f good=%t)", ev.ID(), rep.Coverage, rep.Good)
	return grid, nil
}

// stageFFT: grid -> spectra + integrated PSD summaries.
func (pc *PipelineController) stageFFT(ev *models.Event, grid *models.Grid) (*models.Spectrum, error) {
	var err error
	if grid == nil {
		grid, err = pc.arrays.ReadGrid(ev.ID())
		if err != nil {
			return nil, err
		}
	}

	atomic.AddUint64(&pc.fftRuns, 1)

	sp, err := spectral.Transform(grid, pc.cfg.Spectral)
	if err != nil {
		return nil, err
	}
	if err := pc.arrays.WriteSpectrum(ev.ID(), sp); err != nil {
		return nil, err
	}
	err = pc.catalog.Update(ev.ID(), func(e *models.Event) error {
		e.SpectralSum = sp.Sum
		e.SpectralMean = sp.Mean
		e.SpectralMax = sp.Max
		e.LastError = ""
		if e.Level == models.LevelGrid {
			return e.AdvanceTo(models.LevelFFT)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.L().Info("event %s: spectra computed (sum=%.3e)", ev.ID(), sp.Sum)
	return sp, nil
}

// stageMusic: subspace detection over the strongest in-band frequency
// bins (NumFreqs of them, dominant only by default). Detection failures
// are event-local: recorded, level unchanged.
func (pc *PipelineController) stageMusic(ev *models.Event, grid *models.Grid, sp *models.Spectrum) error {
	var err error
	if grid == nil {
		grid, err = pc.arrays.ReadGrid(ev.ID())
		if err != nil {
			return err
		}
	}
	if sp == nil {
		sp, err = pc.arrays.ReadSpectrum(ev.ID())
		if err != nil {
			return err
		}
	}

	atomic.AddUint64(&pc.musicRuns, 1)

	nf := pc.cfg.Music.NumFreqs
	if nf < 1 {
		nf = 1
	}
	bins := spectral.TopBins(sp, pc.cfg.Spectral.BandLoHz, pc.cfg.Spectral.BandHiHz, nf)
	signals, err := pc.detector.DetectBins(grid, sp, bins)
	if err != nil {
		_ = pc.catalog.Update(ev.ID(), func(e *models.Event) error {
			e.LastError = err.Error()
			return nil
		})
		return err
	}

	err = pc.catalog.Update(ev.ID(), func(e *models.Event) error {
		e.Signals = signals
		e.LastError = ""
		if e.Level == models.LevelFFT {
			return e.AdvanceTo(models.LevelMUSIC)
		}
		return nil
	})
	if err != nil {
		return err
	}
	utils.L().Info("event %s: music found %d signal(s) over %d frequency bin(s)", ev.ID(), len(signals), len(bins))
	return nil
}
