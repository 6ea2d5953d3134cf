package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"paysync/api/internal/app"
	"paysync/api/internal/config"
	"paysync/api/internal/ledger"
	"paysync/api/internal/payroll"
	"paysync/api/internal/runlock"
	"paysync/api/internal/schedule"
	"paysync/api/internal/source"
	"paysync/api/internal/store"
	syncsvc "paysync/api/internal/sync"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	adapters := source.NewRegistry(cfg.SourceTimeout)

	// The run guard decides what happens when a sync tick fires while the
	// previous run is still going: the later tick is skipped. With Redis
	// configured the guard spans every process on the same instance.
	var guard runlock.Guard
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for the sync run lock")
		redisGuard, err := runlock.NewRedisGuard(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisGuard.Close()
		guard = redisGuard
	} else {
		log.Printf("Using in-process sync run lock")
		guard = runlock.NewLocalGuard()
	}

	reconciler := ledger.NewReconciler(dataStore)
	syncService := syncsvc.New(dataStore, adapters, reconciler, guard)
	payrollService := payroll.New(dataStore)

	scheduler, err := schedule.New(cfg.SyncIntervalMinutes, cfg.SettlementDayOfMonth, syncService, payrollService)
	if err != nil {
		log.Fatalf("scheduler setup failed: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	service := app.New(cfg, dataStore, syncService, payrollService, adapters)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Paysync API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
