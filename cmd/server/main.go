package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/p-n-ai/pai-progress/internal/access"
	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/httpapi"
	"github.com/p-n-ai/pai-progress/internal/platform/cache"
	"github.com/p-n-ai/pai-progress/internal/platform/config"
	"github.com/p-n-ai/pai-progress/internal/platform/database"
	"github.com/p-n-ai/pai-progress/internal/progress"
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
	gin.SetMode(gin.ReleaseMode)

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: websocket feed connections are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// app is the wired service.
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp loads the curriculum, opens the configured store and builds the router.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	graph, err := curriculum.Load(cfg.CurriculumPath)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	feed := progress.NewBroadcaster(cfg.Progress.EventBuffer)
	events := progress.MultiEventLogger{feed}
	checks := map[string]httpapi.HealthChecker{}

	var store progress.Store
	switch {
	case cfg.UsesDatabase():
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if cfg.Database.Migrate {
			if err := database.Migrate(ctx, db.Pool); err != nil {
				a.close()
				return nil, err
			}
		}
		pg, err := progress.NewPostgresStore(db.Pool, graph)
		if err != nil {
			a.close()
			return nil, err
		}
		store = pg
		events = append(events, progress.NewPostgresEventLogger(db.Pool))
		checks["database"] = db

	case cfg.UsesCache():
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, err
		}
		c.Namespace = cfg.Cache.Namespace
		a.closers = append(a.closers, func() { _ = c.Close() })
		rs, err := progress.NewRedisStore(c.Client, graph, c.Key("progress"))
		if err != nil {
			a.close()
			return nil, err
		}
		store = rs
		checks["cache"] = c

	default:
		store = progress.NewMemoryStore(graph)
	}

	auth, err := access.NewAuthenticator(cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.AccessTokenTTL)*time.Minute, cfg.Auth.APIKeys)
	if err != nil {
		a.close()
		return nil, err
	}

	machine := progress.NewMachine(progress.MachineConfig{
		Catalog:          graph,
		Store:            store,
		Events:           events,
		Metrics:          progress.NewMetrics(reg),
		AutoCascade:      cfg.Progress.AutoCascade,
		ManualExamUnlock: cfg.Progress.ManualExamUnlock,
		MaxExamAttempts:  cfg.Progress.MaxExamAttempts,
	})

	a.handler = httpapi.NewRouter(httpapi.Config{
		Catalog:  graph,
		Machine:  machine,
		Query:    progress.NewQueryService(graph, store),
		Auth:     auth,
		Feed:     feed,
		Registry: reg,
		Checks:   checks,
	})
	return a, nil
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
