package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/biopipe/internal/area"
	"github.com/JonMunkholm/biopipe/internal/config"
	"github.com/JonMunkholm/biopipe/internal/dwca"
	"github.com/JonMunkholm/biopipe/internal/logging"
	"github.com/JonMunkholm/biopipe/internal/metrics"
	"github.com/JonMunkholm/biopipe/internal/pipeline"
	"github.com/JonMunkholm/biopipe/internal/processing"
	"github.com/JonMunkholm/biopipe/internal/report"
	"github.com/JonMunkholm/biopipe/internal/scheduler"
	"github.com/JonMunkholm/biopipe/internal/store"
	"github.com/JonMunkholm/biopipe/internal/validation"
	"github.com/JonMunkholm/biopipe/internal/verbatim"
	"github.com/JonMunkholm/biopipe/internal/web"
)

func main() {
	var (
		once    = flag.Bool("once", false, "run a single cycle and exit")
		migrate = flag.Bool("migrate", false, "create the database schema before starting")
		mode    = flag.String("mode", "", "run mode override: incremental or full")
		imports importFlags
	)
	flag.Var(&imports, "import", "load a provider file before starting, as identifier=path (repeatable)")
	flag.Parse()

	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Process.RunMode = *mode
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"run_mode", cfg.Process.RunMode,
		"export_enabled", cfg.Export.Enabled,
		"schedule", cfg.Export.Schedule,
	)

	runMode, err := processing.ParseRunMode(cfg.Process.RunMode)
	if err != nil {
		slog.Error("invalid run mode", "error", err)
		os.Exit(1)
	}

	providers, err := config.LoadProviders(cfg.Providers.File)
	if err != nil {
		slog.Error("failed to load providers", "file", cfg.Providers.File, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *migrate {
		if err := store.Migrate(ctx, pool); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		slog.Info("database schema ready")
	}

	verbatimRepo := store.NewVerbatimRepository(pool)
	observationRepo := store.NewObservationRepository(pool)
	hashRepo := store.NewHashRepository(pool)

	for _, imp := range imports {
		if err := importProvider(ctx, verbatimRepo, providers, imp); err != nil {
			slog.Error("import failed", "provider", imp.identifier, "path", imp.path, "error", err)
			os.Exit(1)
		}
	}

	hashes, err := hashRepo.LoadHashes(ctx)
	if err != nil {
		slog.Error("failed to load archive hashes", "error", err)
		os.Exit(1)
	}
	store.ApplyHashes(providers, hashes)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg, "biopipe")

	lookups := processing.NewLookups(store.NewTaxonRepository(pool), store.NewVocabularyRepository(pool))
	mappers := processing.DefaultMappers()
	validator := validation.NewDefault(validation.Options{
		MaxCoordinateUncertainty: cfg.Process.MaxCoordinateUncertainty,
	})

	// Loads the lookup tables shared with the processor.
	engine, err := report.NewEngine(ctx, lookups, mappers, validator, report.WithMetrics(collector))
	if err != nil {
		slog.Error("failed to load lookups", "error", err)
		os.Exit(1)
	}
	slog.Info("lookups loaded", "taxa", lookups.TaxonCount())

	procOpts := []processing.Option{
		processing.WithEmbargo(processing.CurrentMonthEmbargo{Enabled: cfg.Process.EmbargoCurrentMonth}),
		processing.WithMetrics(collector),
	}
	if cfg.Areas.File != "" {
		catalog, err := area.LoadCatalog(cfg.Areas.File)
		if err != nil {
			slog.Error("failed to load areas", "file", cfg.Areas.File, "error", err)
			os.Exit(1)
		}
		slog.Info("areas loaded",
			"counties", catalog.Len(area.County),
			"municipalities", catalog.Len(area.Municipality),
		)
		procOpts = append(procOpts, processing.WithAreas(area.NewEnricher(catalog)))
	}

	cycleOpts := []pipeline.Option{pipeline.WithMetrics(collector)}
	if cfg.Export.Enabled {
		coordinator := dwca.NewCoordinator(dwca.Config{
			ExportFolder:       cfg.Export.Folder,
			PublishFolder:      cfg.Export.PublishFolder,
			NoOfThreads:        cfg.Export.NoOfThreads,
			IncludeProcessInfo: cfg.Export.IncludeProcessInfo,
		},
			dwca.WithHashStore(hashRepo),
			dwca.WithMetrics(collector),
		)
		procOpts = append(procOpts, processing.WithFragments(coordinator))
		cycleOpts = append(cycleOpts, pipeline.WithExporter(coordinator))
	}

	processor := processing.NewProcessor(verbatimRepo, observationRepo, lookups, mappers, validator,
		processing.Options{
			NoOfThreads:  cfg.Process.NoOfThreads,
			BatchSize:    cfg.Process.BatchSize,
			BatchMaxWait: cfg.Process.BatchMaxWait,
		},
		procOpts...,
	)
	cycle := pipeline.NewCycle(processor, providers, runMode, cycleOpts...)
	slog.Info("providers loaded", "total", len(providers), "enabled", len(cycle.Providers()))

	if *once {
		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		sum, err := cycle.Run(runCtx)
		stop()
		if err != nil {
			slog.Error("cycle failed", "error", err)
			os.Exit(1)
		}
		slog.Info("cycle complete", "status", sum.Status, "published", len(sum.Published))
		if sum.Status != pipeline.StatusSuccess {
			os.Exit(1)
		}
		return
	}

	reporter := pipeline.NewReporter(engine,
		func(providerID, batchSize int) verbatim.Cursor { return verbatimRepo.Cursor(providerID, batchSize) },
		providers,
		report.Options{
			MaxNrObservationsToRead:       cfg.Report.MaxNrObservationsToRead,
			NrValidObservationsInReport:   cfg.Report.NrValidObservations,
			NrInvalidObservationsInReport: cfg.Report.NrInvalidObservations,
			MaxVerbatimValuesPerBucket:    cfg.Report.MaxVerbatimValues,
		},
		cfg.Report.Timeout,
	)

	sched, err := scheduler.New(cfg.Export.Schedule, func(ctx context.Context) error {
		_, err := cycle.Run(ctx)
		return err
	})
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	sched.Start(jobCtx)

	server := web.NewServer(jobCtx, cfg.Server, web.Deps{
		DB:       poolPinger{pool},
		Cycles:   cycle,
		Limiters: processor,
		Reports:  reporter,
		Trigger:  sched,
		Gatherer: reg,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop ticking and cancel a running cycle; its batches stop at the next
		// check and the cycle discards its fragments.
		cancelJobs()
		if err := sched.Stop(shutdownCtx); err != nil {
			slog.Warn("cycle did not stop in time", "error", err)
		}

		if status := processor.Status(); len(status) > 0 {
			slog.Info("waiting for batches to drain", "providers", len(status))
			if err := processor.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("batches did not drain in time", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// poolPinger adapts the pool to the health check.
type poolPinger struct{ pool *pgxpool.Pool }

func (p poolPinger) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }
