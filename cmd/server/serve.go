package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/liftaudit/internal"
	"github.com/DukeRupert/liftaudit/internal/ai"
	"github.com/DukeRupert/liftaudit/internal/ai/anthropic"
	"github.com/DukeRupert/liftaudit/internal/ai/mock"
	"github.com/DukeRupert/liftaudit/internal/ai/openai"
	"github.com/DukeRupert/liftaudit/internal/handler"
	"github.com/DukeRupert/liftaudit/internal/jobs"
	"github.com/DukeRupert/liftaudit/internal/metrics"
	"github.com/DukeRupert/liftaudit/internal/middleware"
	"github.com/DukeRupert/liftaudit/internal/narrative"
	"github.com/DukeRupert/liftaudit/internal/report"
	"github.com/DukeRupert/liftaudit/internal/repository"
	"github.com/DukeRupert/liftaudit/internal/storage"
	"github.com/DukeRupert/liftaudit/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the report API and worker",
	Long: `Start the HTTP API and, unless WORKER_ENABLED=false, the report worker.

Pending migrations are applied before the server starts.

Routes:
  POST {API_PREFIX}/reports                 queue a report job
  GET  {API_PREFIX}/reports/{id}            job status
  GET  {API_PREFIX}/reports/{id}/download   download the finished report
  GET  /health                              liveness, pings the database
  GET  /metrics                             Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := internal.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	photos, err := storage.New(storageConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	generator, err := newNarrativeGenerator(cfg, logger)
	if err != nil {
		return fmt.Errorf("narrative provider initialization failed: %w", err)
	}
	logger.Info("Narrative provider ready", "provider", cfg.AIProvider)

	// ==========================================================================
	// Report pipeline
	// ==========================================================================

	runner := report.ExecSubprocess{}
	compiler := report.NewCompiler(cfg.LatexCommand, runner, logger)

	renderer := report.NewRenderer(compiler, cfg.ReportAssetsDir, logger)
	renderer.TempParent = cfg.ReportTempDir

	exporter := report.NewPhotoExporter(photos, cfg.PhotoMaxDimension, logger)
	packager := report.NewPackager(cfg.ZipCommand, runner, exporter, logger)

	loader := repository.NewReportLoader(db)
	assembler := jobs.NewAssembler(loader, loader, logger)
	coordinator := narrative.NewCoordinator(generator, cfg.NarrativeMaxConcurrency, logger)

	pipeline := jobs.NewGenerateReport(assembler, coordinator, renderer, packager, logger)
	pipeline.TempParent = cfg.ReportTempDir

	preparer := report.NewDownloadPreparer(loader, packager, logger)
	preparer.TempParent = cfg.ReportTempDir

	// The controller outlives the signal context so the worker is only
	// stopped after the HTTP server has drained.
	ctrl := worker.NewController(context.WithoutCancel(ctx))
	jobStore := repository.NewJobStore(db)
	submitter := worker.NewSubmitter(jobStore, ctrl, logger)

	var w *worker.Worker
	if cfg.WorkerEnabled {
		w, err = worker.New(newConnector(db), pipeline, workerConfig(cfg), logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		w.Start(ctrl)
	} else {
		logger.Warn("Worker disabled, queued jobs will not be processed")
	}

	// ==========================================================================
	// HTTP
	// ==========================================================================

	reports, err := handler.NewReportHandler(jobStore, submitter, preparer, cfg.APIPrefix, logger)
	if err != nil {
		return fmt.Errorf("handler initialization failed: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", handler.Health(db, logger))
	mux.Handle("GET /metrics", middleware.NewBasicAuth("metrics", cfg.MetricsUsername, cfg.MetricsPassword).Handler(promhttp.Handler()))
	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		logger.Warn("Metrics endpoint is unprotected")
	}

	api := http.NewServeMux()
	reports.RegisterRoutes(api)

	var apiHandler http.Handler = api
	if cfg.SubmitRateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.SubmitRateLimit, time.Hour)
		go limiter.Run(ctx)
		apiHandler = limitSubmissions(api, limiter.Limit(logger, api))
	}
	mux.Handle("/", apiHandler)

	var root http.Handler = mux
	root = metrics.Middleware(root)
	root = middleware.NewAPIHeaders(!cfg.IsDevelopment()).Handler(root)
	root = middleware.NewRequestLogger(logger).Handler(root)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "base_url", cfg.BaseURL, "env", cfg.Env, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	if w != nil {
		w.Stop(ctrl)
	} else {
		ctrl.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// limitSubmissions sends POST requests through limited and everything else
// through next.
func limitSubmissions(next, limited http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newConnector adapts the repository connector to the worker.
func newConnector(db *sql.DB) worker.Connector {
	conn := repository.NewConnector(db)
	return worker.ConnectFunc(func(ctx context.Context) (worker.Session, error) {
		sess, err := conn.Connect(ctx)
		if err != nil {
			return nil, err
		}
		return sess, nil
	})
}

func workerConfig(cfg *internal.Config) worker.Config {
	wc := worker.DefaultConfig()
	wc.PollInterval = cfg.WorkerPollInterval
	wc.ReconnectDelay = cfg.WorkerReconnectDelay
	if wc.MaxReconnectDelay < wc.ReconnectDelay {
		wc.MaxReconnectDelay = wc.ReconnectDelay
	}
	wc.ReconnectAttempts = cfg.WorkerReconnectAttempts
	wc.StaleJobThreshold = cfg.WorkerStaleJobThreshold
	wc.ShutdownTimeout = cfg.WorkerShutdownTimeout
	return wc
}

func storageConfig(cfg *internal.Config) storage.Config {
	return storage.Config{
		Provider: cfg.StorageProvider,
		Local: storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
		},
		R2: storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		},
	}
}

func newNarrativeGenerator(cfg *internal.Config, logger *slog.Logger) (ai.NarrativeGenerator, error) {
	common := ai.ProviderConfig{
		MaxRetries:     cfg.AIMaxRetries,
		RequestTimeout: cfg.AIRequestTimeout,
	}

	switch cfg.AIProvider {
	case internal.AIProviderXAI:
		return openai.New(openai.Config{
			APIKey:         cfg.XAIAPIKey,
			BaseURL:        cfg.XAIBaseURL,
			Model:          cfg.XAIModel,
			ProviderConfig: common,
		}, logger)
	case internal.AIProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        "https://api.openai.com/v1",
			Model:          cfg.OpenAIModel,
			ProviderConfig: common,
		}, logger)
	case internal.AIProviderAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:         cfg.AnthropicAPIKey,
			Model:          cfg.AnthropicModel,
			ProviderConfig: common,
		}, logger)
	default:
		logger.Warn("Using mock narrative provider")
		return mock.New(logger), nil
	}
}
