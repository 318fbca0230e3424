package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"mstid-music/api"
	"mstid-music/bus"
	"mstid-music/classify"
	"mstid-music/models"
	"mstid-music/store"
	"mstid-music/utils"
)

const (
	StatusSucceeded = "succeeded"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

// BatchResult is the per-event outcome of one batch run.
type BatchResult struct {
	EventID string
	Status  string
	Err     error
}

// BatchController fans a set of event windows out over a bounded worker
// pool and drives each through the pipeline. Classification is population
// relative, so a run targeting music executes in three phases:
//
//	1. all events to fft (parallel)
//	2. threshold + labels over the batch's good events (serial)
//	3. filtered events through music (parallel)
//
// The controller also implements api.StatusSource for the status server.
type BatchController struct {
	pipeline *PipelineController
	catalog  store.Catalog
	pub      *bus.Publisher
	cfg      utils.BatchConfig
	classCfg utils.ClassifyConfig

	mu       sync.Mutex
	runID    string
	target   models.ProcessLevel
	total    int
	statuses map[string]string // event id -> latest status
	inFlight map[string]struct{}
}

func NewBatchController(pc *PipelineController, cat store.Catalog, pub *bus.Publisher, cfg *utils.PipelineConfig) *BatchController {
	return &BatchController{
		pipeline: pc,
		catalog:  cat,
		pub:      pub,
		cfg:      cfg.Batch,
		classCfg: cfg.Classify,
		statuses: map[string]string{},
		inFlight: map[string]struct{}{},
	}
}

// Run processes ids toward target and returns one result per event, in
// input order. A failed event never aborts the batch.
func (bc *BatchController) Run(ctx context.Context, ids []string, target models.ProcessLevel, recompute bool) ([]BatchResult, error) {
	bc.begin(ids, target)

	filter := models.CategoryNone
	results := make(map[string]BatchResult, len(ids))

	if target >= models.LevelFFT {
		// Phase 1: everything to fft.
		for id, r := range bc.parallel(ctx, ids, minLevel(target, models.LevelFFT), recompute, false, filter) {
			results[id] = r
		}
		if target >= models.LevelMUSIC {
			// Phase 2: batch-relative labels.
			if err := bc.Classify(remaining(ids, results)); err != nil {
				return nil, err
			}
			// Phase 3: labeled survivors through the music stage alone.
			// Phase 1 already honored recompute for the earlier stages,
			// so this phase must not run them a second time.
			filter = models.Category(bc.cfg.CategoryFilter)
			for id, r := range bc.parallel(ctx, remaining(ids, results), target, recompute, true, filter) {
				results[id] = r
			}
		}
	} else {
		for id, r := range bc.parallel(ctx, ids, target, recompute, false, filter) {
			results[id] = r
		}
	}

	out := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		r, ok := results[id]
		if !ok {
			// Run was cancelled before this event was picked up.
			r = BatchResult{EventID: id, Status: StatusFailed, Err: ctx.Err()}
		}
		out = append(out, r)
	}
	bc.publish(ctx, out)
	return out, ctx.Err()
}

// Classify derives the batch threshold from the good fft-complete events
// and labels every one of them. Events that never reached fft keep their
// previous label.
func (bc *BatchController) Classify(ids []string) error {
	var (
		evs  []*models.Event
		sums []float64
	)
	for _, id := range ids {
		ev, err := bc.catalog.Get(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		if ev.Level < models.LevelFFT || !ev.Quality.Good {
			continue
		}
		evs = append(evs, ev)
		sums = append(sums, ev.SpectralSum)
	}
	if len(evs) == 0 {
		utils.L().Warn("classify: no good fft-level events in batch, skipping")
		return nil
	}

	thr, err := classify.Threshold(sums, bc.classCfg)
	if err != nil {
		return err
	}
	for _, ev := range evs {
		cat := classify.Label(ev.SpectralSum, thr)
		err := bc.catalog.Update(ev.ID(), func(e *models.Event) error {
			e.Class = models.Classification{
				Category:  cat,
				Threshold: thr,
				BatchSize: len(evs),
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	utils.L().Info("classify: threshold=%.4f over %d events", thr, len(evs))
	return nil
}

// ─── Worker pool ────────────────────────────────────────────────────────

// parallel runs one pipeline phase over ids with at most cfg.NProcs
// workers. A panicking task is contained to its event and reported as a
// failure rather than taking down the run. With stageOnly the workers run
// just the target stage instead of walking up from the event's level.
func (bc *BatchController) parallel(ctx context.Context, ids []string, target models.ProcessLevel, recompute, stageOnly bool, filter models.Category) map[string]BatchResult {
	nprocs := bc.cfg.NProcs
	if nprocs < 1 {
		nprocs = 1
	}

	jobs := make(chan string)
	var (
		mu      sync.Mutex
		results = make(map[string]BatchResult, len(ids))
		wg      sync.WaitGroup
	)

	for w := 0; w < nprocs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				// The in-flight mark is owned by the worker so it can
				// never outlive the task that set it.
				bc.start(id)
				r := bc.runOne(ctx, id, target, recompute, stageOnly, filter)
				mu.Lock()
				results[id] = r
				mu.Unlock()
				bc.finish(id, r.Status)
			}
		}()
	}

	for _, id := range ids {
		select {
		case jobs <- id:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return results
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

func (bc *BatchController) runOne(ctx context.Context, id string, target models.ProcessLevel, recompute, stageOnly bool, filter models.Category) (res BatchResult) {
	res = BatchResult{EventID: id}
	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("panic processing %s: %v", id, r)
			utils.L().Error("worker: %v", res.Err)
		}
	}()

	var (
		ev  *models.Event
		err error
	)
	if stageOnly {
		if err = bc.pipeline.RunStage(ctx, id, target, recompute, filter); err == nil {
			ev, err = bc.catalog.Get(id)
		}
	} else {
		ev, err = bc.pipeline.RunEvent(ctx, id, target, recompute, filter)
	}
	if err != nil {
		if errors.Is(err, models.ErrInsufficientData) {
			res.Status = StatusRejected
			return res
		}
		res.Status = StatusFailed
		res.Err = err
		return res
	}
	if !ev.Quality.Good {
		res.Status = StatusRejected
		return res
	}
	res.Status = StatusSucceeded
	return res
}

// ─── Progress tracking (api.StatusSource) ───────────────────────────────

func (bc *BatchController) begin(ids []string, target models.ProcessLevel) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.runID = uuid.NewString()
	bc.target = target
	bc.total = len(ids)
	bc.statuses = map[string]string{}
	bc.inFlight = map[string]struct{}{}
}

func (bc *BatchController) start(id string) {
	bc.mu.Lock()
	bc.inFlight[id] = struct{}{}
	bc.mu.Unlock()
}

// finish records the event's status. A later phase overwrites the earlier
// one, so counts stay per-event rather than per-phase.
func (bc *BatchController) finish(id, status string) {
	bc.mu.Lock()
	delete(bc.inFlight, id)
	bc.statuses[id] = status
	bc.mu.Unlock()
}

func (bc *BatchController) RunID() string {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.runID
}

func (bc *BatchController) Snapshot() api.Snapshot {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	snap := api.Snapshot{
		RunID:  bc.runID,
		Target: bc.target.String(),
		Total:  bc.total,
		Done:   len(bc.statuses),
	}
	for _, st := range bc.statuses {
		switch st {
		case StatusSucceeded:
			snap.Succeeded++
		case StatusRejected:
			snap.Rejected++
		case StatusFailed:
			snap.Failed++
		}
	}
	for id := range bc.inFlight {
		snap.InFlight = append(snap.InFlight, id)
	}
	return snap
}

func (bc *BatchController) Event(id string) (*models.Event, error) {
	return bc.catalog.Get(id)
}

// ─── Result publishing ──────────────────────────────────────────────────

func (bc *BatchController) publish(ctx context.Context, results []BatchResult) {
	if bc.pub == nil {
		return
	}
	for _, r := range results {
		msg := bus.Result{
			RunID:   bc.RunID(),
			EventID: r.EventID,
			Status:  r.Status,
		}
		if r.Err != nil {
			msg.Reason = r.Err.Error()
		}
		if ev, err := bc.catalog.Get(r.EventID); err == nil {
			msg.Radar = ev.Radar
			msg.Level = ev.Level.String()
			msg.Category = string(ev.Class.Category)
			msg.Signals = len(ev.Signals)
		}
		if err := bc.pub.Publish(ctx, msg); err != nil {
			utils.L().Warn("bus: %v", err)
		}
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────

func minLevel(a, b models.ProcessLevel) models.ProcessLevel {
	if a < b {
		return a
	}
	return b
}

// remaining filters ids down to those whose phase-1 result did not fail,
// preserving input order.
func remaining(ids []string, results map[string]BatchResult) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if r, ok := results[id]; ok && r.Status == StatusFailed {
			continue
		}
		out = append(out, id)
	}
	return out
}
