package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/NelyubinaIV/Ogegotovo/internal/catalog"
	"github.com/NelyubinaIV/Ogegotovo/internal/ingest"
	"github.com/NelyubinaIV/Ogegotovo/internal/platform/cache"
	"github.com/NelyubinaIV/Ogegotovo/internal/platform/config"
	"github.com/NelyubinaIV/Ogegotovo/internal/platform/database"
	"github.com/NelyubinaIV/Ogegotovo/internal/progress"
	"github.com/NelyubinaIV/Ogegotovo/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		slog.Error("failed to load catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}

	store, events, ready, cleanup, err := newStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	tracker := progress.NewTracker(progress.TrackerConfig{
		Catalog: cat,
		Store:   store,
		Events:  events,
	})

	ws := ingest.NewWebSocketSource()
	gateway := ingest.NewGateway()
	gateway.Register("websocket", ws)
	if err := gateway.StartAll(ctx, resultHandler(tracker)); err != nil {
		slog.Error("failed to start ingestion sources", "error", err)
		os.Exit(1)
	}
	defer gateway.StopAll()

	srv := web.NewServer(web.ServerConfig{
		Tracker:        tracker,
		Results:        ws,
		TeacherKey:     cfg.Teacher.Key,
		TeacherKeyHash: cfg.Teacher.KeyHash,
		Ready:          ready,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr, "store", cfg.Store.Backend)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newStore builds the configured store backend plus its event logger,
// readiness check and cleanup.
func newStore(ctx context.Context, cfg *config.Config) (
	progress.Store, progress.EventLogger, func(context.Context) error, func(), error) {

	switch cfg.Store.Backend {
	case config.StoreRedis:
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		cleanup := func() {
			if err := c.Close(); err != nil {
				slog.Warn("failed to close cache", "error", err)
			}
		}
		return progress.NewRedisStore(c.Client), progress.NopEventLogger{}, c.HealthCheck, cleanup, nil

	case config.StorePostgres:
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		store, err := progress.NewPostgresStore(ctx, db.Pool)
		if err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		return store, progress.NewPostgresEventLogger(db.Pool), db.HealthCheck, db.Close, nil

	default:
		return progress.NewMemoryStore(), progress.NopEventLogger{}, nil, func() {}, nil
	}
}

// resultHandler applies ingested reports to the student they name.
func resultHandler(tracker *progress.Tracker) ingest.Handler {
	return func(ctx context.Context, report ingest.Report) error {
		if !progress.ValidToken(report.Token) {
			return fmt.Errorf("invalid token %q", report.Token)
		}
		_, err := tracker.SubmitResult(ctx, report.Token, progress.Submission{
			LessonID: report.LessonID,
			TaskID:   report.TaskID,
			Score:    report.Score,
			MaxScore: report.Max,
			Passed:   report.Passed,
			Source:   report.Source,
			Mistakes: report.Mistakes,
			Notes:    report.Notes,
		})
		return err
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
