package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"seller-data-scheduler/internal/app"
	"seller-data-scheduler/internal/config"
	"seller-data-scheduler/internal/store"
	"seller-data-scheduler/internal/telemetry"
	workerproc "seller-data-scheduler/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	logger, err := app.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	orch, err := app.BuildOrchestrator(ctx, cfg, st, logger)
	if err != nil {
		log.Fatalf("wire orchestrator: %v", err)
	}

	runner := workerproc.NewRunner(cfg, st, orch, logger)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started run_hour_utc=%d poll_every=%s", cfg.RunHourUTC, cfg.WorkerPollEvery)
	if err := runner.Run(ctx); err != nil {
		log.Printf("worker stopped: %v", err)
	}
}
