package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-ingest/internal/database"
	"media-ingest/internal/enrich"
	"media-ingest/internal/handlers"
	"media-ingest/internal/logging"
	"media-ingest/internal/matting"
	"media-ingest/internal/memory"
	"media-ingest/internal/metrics"
	"media-ingest/internal/middleware"
	"media-ingest/internal/pipeline"
	"media-ingest/internal/quota"
	"media-ingest/internal/startup"
	"media-ingest/internal/storage"
	"media-ingest/internal/thumbs"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()
	ctx := context.Background()

	// Derive GOMEMLIMIT from the container limit before allocating
	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	if config.MetricsEnabled {
		metrics.InitializeMetrics()
	}

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn("Failed to close database: %v", err)
		}
	}()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Refresh database gauges periodically
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		for range ticker.C {
			db.UpdateDBMetrics()
		}
	}()

	// Initialize storage backend
	var store storage.Store
	switch config.StorageBackend {
	case "s3":
		store, err = storage.NewS3Store(ctx, storage.S3Config{
			Bucket:        config.S3Bucket,
			Region:        config.S3Region,
			Endpoint:      config.S3Endpoint,
			PublicBaseURL: config.PublicBaseURL,
		})
	default:
		store, err = storage.NewDiskStore(config.StorageDir, config.PublicBaseURL)
	}
	if err != nil {
		startup.LogFatal("Failed to initialize %s storage: %v", config.StorageBackend, err)
	}
	startup.LogStorageInit(config.StorageBackend)

	// Initialize thumbnail pipeline
	if config.VipsEnabled {
		if err := thumbs.InitVips(); err != nil {
			logging.Warn("libvips initialization failed: %v", err)
		}
		defer thumbs.ShutdownVips()
	}
	deriver := thumbs.NewDeriver(config.VipsEnabled)
	startup.LogThumbnailInit(config.VipsEnabled && thumbs.IsVipsAvailable())

	// Optional external services
	var analyzer enrich.Analyzer
	if config.AIEndpoint != "" {
		analyzer = enrich.NewClient(config.AIEndpoint, config.AIAPIKey, 0)
	}
	var remover matting.Remover
	if config.MattingEndpoint != "" {
		remover = matting.NewClient(config.MattingEndpoint, config.MattingAPIKey, 0)
	}

	// Memory backpressure for batch workers
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()

	// Wire the pipeline
	gate := quota.NewDBGate(db, config.QuotaDefaultLimit)
	orchestrator := pipeline.NewOrchestrator(store, deriver, analyzer, remover, db, gate)
	registry := pipeline.NewRegistry()
	scheduler := pipeline.NewScheduler(orchestrator, registry, db, gate, monitor)

	// Initialize handlers
	h := handlers.New(scheduler, db, gate, config)

	// Setup router
	router := setupRouter(h)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)
	if config.MetricsEnabled {
		handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	}

	// Create server. WriteTimeout stays generous because batch submission is
	// synchronous and bounded by the pipeline, not the transport.
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Separate metrics listener
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:         ":" + config.MetricsPort,
			Handler:      metricsMux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.Livez).Methods("GET")
	r.HandleFunc("/readyz", h.Readyz).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/batches", h.SubmitBatch).Methods("POST")
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/quota", h.GetQuota).Methods("GET")

	return r
}

func handleShutdown(srv *http.Server, metricsSrv *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownComplete()
}
