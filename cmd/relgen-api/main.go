package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mmrzaf/relgen"
	"github.com/mmrzaf/relgen/internal/api"
	"github.com/mmrzaf/relgen/internal/app"
	"github.com/mmrzaf/relgen/internal/config"
	"github.com/mmrzaf/relgen/internal/infra/repos/runs"
	"github.com/mmrzaf/relgen/internal/infra/repos/workloads"
	"github.com/mmrzaf/relgen/internal/logging"
	"github.com/mmrzaf/relgen/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("info").Fatal("config: %v", err)
	}

	workloadsDir := flag.String("workloads-dir", cfg.WorkloadsDir, "Workloads directory")
	relgenDB := flag.String("db", cfg.RelgenDBDSN, "relgen metadata database DSN (PostgreSQL); empty uses --runs-db")
	runsDB := flag.String("runs-db", cfg.RunsDBPath, "SQLite runs database path")
	bindAddr := flag.String("bind", cfg.BindAddr, "Bind address")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level")
	memLimit := flag.String("memory-limit", "", "Relation memory budget, e.g. 512MiB (default RELGEN_MEMORY_LIMIT, 0 = unlimited)")
	workers := flag.Int("workers", cfg.DefaultWorkers, "Default worker count for parallel relations (0 = sequential)")
	flag.Parse()

	logger := logging.NewLogger(*logLevel).WithComponent("api_main")

	limit := cfg.MemoryLimitBytes
	if *memLimit != "" {
		if limit, err = config.ParseMemoryLimit(*memLimit); err != nil {
			logger.Errorw("startup.failed", map[string]any{"error": err, "stage": "parse_memory_limit"})
			os.Exit(1)
		}
	}

	var runRepo runs.Repository
	if *relgenDB != "" {
		runRepo = runs.NewPostgresRepository(*relgenDB)
	} else {
		runRepo = runs.NewSQLiteRepository(*runsDB)
	}
	if err := runRepo.Init(); err != nil {
		logger.Errorw("startup.failed", map[string]any{"error": err, "stage": "init_run_repo"})
		os.Exit(1)
	}
	defer runRepo.Close()

	distRegistry := registry.DefaultDistributionRegistry()
	runService := app.NewRunService(
		workloads.NewFileRepository(*workloadsDir),
		runRepo,
		distRegistry,
		relgen.NewAllocator(limit),
		logger,
		*workers,
	)

	mux := http.NewServeMux()
	api.NewHandler(runService, distRegistry).Routes(mux)

	srv := &http.Server{
		Addr:              *bindAddr,
		Handler:           loggingMiddleware(logger.WithComponent("http"), mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Infow("shutdown.started", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infow("startup.listening", map[string]any{
		"bind":         *bindAddr,
		"memory_limit": humanize.IBytes(uint64(limit)),
		"workers":      *workers,
	})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorw("startup.failed", map[string]any{"error": err, "stage": "listen"})
		os.Exit(1)
	}
	runService.Shutdown()
	logger.Infow("shutdown.completed", nil)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		fields := map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.status,
			"duration_ms": time.Since(started).Milliseconds(),
			"remote":      r.RemoteAddr,
		}
		if sw.status >= 500 {
			logger.Errorw("request.completed", fields)
			return
		}
		if sw.status >= 400 {
			logger.Warnw("request.completed", fields)
			return
		}
		logger.Infow("request.completed", fields)
	})
}
