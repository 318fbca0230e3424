package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"mstid-music/api"
	"mstid-music/bus"
	"mstid-music/controller"
	"mstid-music/models"
	"mstid-music/services/ingest"
	"mstid-music/store"
	"mstid-music/utils"
	"mstid-music/views"
)

func main() {
	// ── CLI flags ────────────────────────────────────────────────────
	pipelinePath := flag.String("pipeline", "config/pipeline.yaml", "path to pipeline.yaml")
	storagePath := flag.String("storage", "config/storage.yaml", "path to storage.yaml")
	logFile := flag.String("log", "", "optional log file path (stdout is always included)")
	logLevel := flag.String("log-level", "info", "minimum log level (debug|info|warn|error)")
	radar := flag.String("radar", "", "radar code to process (required)")
	startStr := flag.String("start", "", "first window start, RFC3339 or 2006-01-02")
	endStr := flag.String("end", "", "last window end, RFC3339 or 2006-01-02")
	target := flag.String("target", "music", "target stage: rti_interp, fft or music")
	recompute := flag.Bool("recompute", false, "re-run stages whose outputs already exist")
	nprocs := flag.Int("nprocs", 0, "worker count override (0 = from config)")
	sim := flag.Bool("sim", false, "use the synthetic scan source instead of recorded CSVs")
	export := flag.Bool("export", true, "write events.csv and signals.csv when done")
	flag.Parse()

	// ── Logger ───────────────────────────────────────────────────────
	logger := utils.InitLogger(utils.ParseLogLevel(*logLevel), *logFile)
	defer logger.Close()

	utils.L().Info("═══════════════════════════════════════════════════")
	utils.L().Info("  mstid-music  ·  Ionospheric Disturbance Detector")
	utils.L().Info("  GOMAXPROCS=%d  ·  PID=%d", runtime.GOMAXPROCS(0), os.Getpid())
	utils.L().Info("═══════════════════════════════════════════════════")

	// ── Load configs ─────────────────────────────────────────────────
	pipelineCfg, err := utils.LoadPipelineConfig(*pipelinePath)
	if err != nil {
		utils.L().Fatal("load pipeline config: %v", err)
	}
	storageCfg, err := utils.LoadStorageConfig(*storagePath)
	if err != nil {
		utils.L().Fatal("load storage config: %v", err)
	}
	if *nprocs > 0 {
		pipelineCfg.Batch.NProcs = *nprocs
	}

	site, ok := pipelineCfg.Radars[*radar]
	if !ok {
		utils.L().Fatal("unknown or missing -radar %q (configured: %v)", *radar, radarCodes(pipelineCfg))
	}
	targetLevel, err := models.ParseLevel(*target)
	if err != nil || targetLevel == models.LevelNone {
		utils.L().Fatal("invalid -target %q (want rti_interp, fft or music)", *target)
	}
	start, end, err := parseRange(*startStr, *endStr)
	if err != nil {
		utils.L().Fatal("%v", err)
	}

	// ── Context with OS signal cancellation ──────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		utils.L().Info("received signal: %v — shutting down…", sig)
		cancel()
	}()

	// ── Storage + adapters ───────────────────────────────────────────
	catalog, err := store.NewFileCatalog(storageCfg.CatalogDir)
	if err != nil {
		utils.L().Fatal("init catalog: %v", err)
	}
	arrays, err := store.NewFileArrays(storageCfg.ArrayDir)
	if err != nil {
		utils.L().Fatal("init array store: %v", err)
	}

	var source ingest.SampleSource
	if *sim {
		ss := ingest.NewSimSource(*site)
		ss.Wave = &ingest.WaveSpec{KxRadKm: 0.003, KyRadKm: 0.004, FreqHz: 5e-4, AmpDB: 3}
		source = ss
		utils.L().Info("using synthetic scan source")
	} else {
		source = ingest.NewFileSource(storageCfg.SampleDir)
	}

	publisher := bus.New(storageCfg.Bus)
	defer publisher.Close()

	// ── Pipeline assembly ────────────────────────────────────────────
	//
	//  windows ──► catalog ──► batch workers ──► rti_interp ──► fft
	//                                                            │
	//                                            batch classifier┘
	//                                                     │
	//                                             music (disturbed only)

	pipeCtrl := controller.NewPipelineController(source, catalog, arrays, pipelineCfg)
	batchCtrl := controller.NewBatchController(pipeCtrl, catalog, publisher, pipelineCfg)

	if srv := api.Start(storageCfg.API.Addr, batchCtrl); srv != nil {
		defer srv.Close()
	}

	// ── Seed event windows ───────────────────────────────────────────
	windowDur := time.Duration(pipelineCfg.Batch.WindowHours * float64(time.Hour))
	windows, err := utils.Windows(start, end, windowDur)
	if err != nil {
		utils.L().Fatal("%v", err)
	}
	events := make([]*models.Event, 0, len(windows))
	ids := make([]string, 0, len(windows))
	for _, w := range windows {
		centre := w.Start.Add(w.End.Sub(w.Start) / 2)
		ev := &models.Event{
			Radar:  site.Code,
			Start:  w.Start,
			End:    w.End,
			LatDeg: site.LatDeg,
			LonDeg: site.LonDeg,
			MLTHr:  utils.MLTHour(centre, site.MLTOffsetHr),
		}
		events = append(events, ev)
		ids = append(ids, ev.ID())
	}
	inserted, err := catalog.BulkInsert(events)
	if err != nil {
		utils.L().Fatal("seed catalog: %v", err)
	}
	utils.L().Info("%d window(s) in batch, %d newly inserted", len(ids), inserted)

	// ── Run ──────────────────────────────────────────────────────────
	started := time.Now()
	results, err := batchCtrl.Run(ctx, ids, targetLevel, *recompute)
	if err != nil && !errors.Is(err, context.Canceled) {
		utils.L().Fatal("batch run: %v", err)
	}

	var succeeded, rejected, failed int
	for _, r := range results {
		switch r.Status {
		case controller.StatusSucceeded:
			succeeded++
		case controller.StatusRejected:
			rejected++
		case controller.StatusFailed:
			failed++
			utils.L().Warn("event %s failed: %v", r.EventID, r.Err)
		}
	}
	utils.L().Info("── run summary ───────────────────")
	utils.L().Info("  target:    %s", targetLevel)
	utils.L().Info("  elapsed:   %s", time.Since(started).Round(time.Millisecond))
	utils.L().Info("  succeeded: %d   rejected: %d   failed: %d", succeeded, rejected, failed)
	utils.L().Info("──────────────────────────────────")

	// ── Export ───────────────────────────────────────────────────────
	if *export && storageCfg.ExportDir != "" {
		final := make([]*models.Event, 0, len(ids))
		for _, id := range ids {
			if ev, err := catalog.Get(id); err == nil {
				final = append(final, ev)
			}
		}
		dir, err := views.ExportResults(storageCfg.ExportDir, final)
		if err != nil {
			utils.L().Fatal("export results: %v", err)
		}
		fmt.Println("\n✓ mstid-music finished. Results at:", dir)
	}
}

// parseRange accepts RFC3339 or bare dates, the latter meaning midnight UTC.
func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	parse := func(s string) (time.Time, error) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), nil
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: bad time %q (want RFC3339 or 2006-01-02)", models.ErrConfig, s)
		}
		return t.UTC(), nil
	}
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: -start and -end are required", models.ErrConfig)
	}
	start, err := parse(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parse(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func radarCodes(cfg *utils.PipelineConfig) []string {
	codes := make([]string, 0, len(cfg.Radars))
	for c := range cfg.Radars {
		codes = append(codes, c)
	}
	return codes
}
