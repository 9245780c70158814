package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/careclinic/scheduler-api/internal/config"
	"github.com/careclinic/scheduler-api/internal/email"
	"github.com/careclinic/scheduler-api/internal/repository/postgres"
	"github.com/careclinic/scheduler-api/internal/service/lifecycle"
	"github.com/careclinic/scheduler-api/internal/service/notification"
	schedulingService "github.com/careclinic/scheduler-api/internal/service/scheduling"
	"github.com/careclinic/scheduler-api/pkg/logger"
	"github.com/careclinic/scheduler-api/pkg/messaging/redis"
	"github.com/careclinic/scheduler-api/pkg/metrics"
	"github.com/careclinic/scheduler-api/pkg/worker"
)

func setupHealthCheck(env *config.WorkerEnv, l *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if env.MetricsToken != "" && r.Header.Get("Authorization") != "Bearer "+env.MetricsToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		promhttp.Handler().ServeHTTP(w, r)
	})

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", env.HealthPort), mux); err != nil {
			l.ZL.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	env, err := config.LoadWorkerEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load worker environment")
	}

	l := logger.NewLogger(nil)
	m := metrics.NewMetrics("scheduler", "worker")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		l.ZL.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &l.ZL)
	if err != nil {
		l.ZL.Fatal().Err(err).Msg("Failed to create Redis broker")
	}
	defer broker.Close()

	slotRepo := postgres.NewSlotRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	outboxRepo := postgres.NewOutboxRepository(postgres.NewBaseRepository(db))

	emailSvc := email.NewSMTPService(cfg.SMTP)

	schedulingSvc := schedulingService.NewService(slotRepo, doctorRepo, patientRepo, cfg.Scheduler, m, l)
	dispatcher := notification.NewDispatcher(outboxRepo, slotRepo, doctorRepo, patientRepo, emailSvc, broker, l)

	sweeper := lifecycle.NewSweeper(slotRepo, doctorRepo, patientRepo, schedulingSvc, dispatcher, cfg.Scheduler, m, l)

	processor := worker.NewOutboxProcessor(
		outboxRepo,
		dispatcher,
		worker.OutboxProcessorConfig{
			BatchSize:       cfg.Outbox.BatchSize,
			PollInterval:    cfg.Outbox.PollInterval,
			RetryAttempts:   cfg.Outbox.RetryAttempts,
			RetryDelay:      cfg.Outbox.RetryDelay,
			Retention:       cfg.Outbox.Retention,
			CleanupInterval: cfg.Outbox.CleanupInterval,
		},
		l,
		m,
	)

	setupHealthCheck(env, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Shutting down worker")
		cancel()
	}()

	go sweeper.Start(ctx)
	processor.Start(ctx)
}
