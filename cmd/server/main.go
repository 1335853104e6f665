package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/brsrform/internal/api"
	"github.com/dgallion1/brsrform/internal/config"
	"github.com/dgallion1/brsrform/internal/persistence"
	"github.com/dgallion1/brsrform/internal/registry"
	"github.com/dgallion1/brsrform/internal/session"
	"github.com/dgallion1/brsrform/internal/stats"
	"github.com/dgallion1/brsrform/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	reg, err := loadRegistry(cfg.SectionsFile)
	if err != nil {
		log.Error("load section registry", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sessions persist straight to the store; load/save latency is tracked.
	latency := stats.NewLatency(cfg.StatsWindow)
	backend := persistence.NewTimed(store.NewBackend(st), latency)
	sessions := session.NewManager(reg, backend, session.Config{
		TTL:             cfg.SessionTTL,
		CleanupInterval: cfg.SessionCleanupInterval,
	}, log)
	sessions.Start(ctx)

	srv := api.NewServer(st, sessions, latency, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		sessions.Stop()
		st.Close()
	}()

	log.Info("starting brsrform", "port", cfg.Port, "sections", len(reg.All()), "db", cfg.DBPath)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default()
	}
	return registry.LoadFile(path)
}
