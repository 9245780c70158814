package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/careclinic/scheduler-api/internal/config"
	"github.com/careclinic/scheduler-api/internal/email"
	"github.com/careclinic/scheduler-api/internal/handler"
	authHandler "github.com/careclinic/scheduler-api/internal/handler/auth"
	schedulingHandler "github.com/careclinic/scheduler-api/internal/handler/scheduling"
	"github.com/careclinic/scheduler-api/internal/middleware"
	"github.com/careclinic/scheduler-api/internal/repository/postgres"
	"github.com/careclinic/scheduler-api/internal/router"
	authService "github.com/careclinic/scheduler-api/internal/service/auth"
	"github.com/careclinic/scheduler-api/internal/service/notification"
	schedulingService "github.com/careclinic/scheduler-api/internal/service/scheduling"
	"github.com/careclinic/scheduler-api/pkg/auth"
	"github.com/careclinic/scheduler-api/pkg/logger"
	"github.com/careclinic/scheduler-api/pkg/messaging/redis"
	"github.com/careclinic/scheduler-api/pkg/metrics"
	"github.com/careclinic/scheduler-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.NewLogger(nil)
	m := metrics.NewMetrics("scheduler", "api")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	slotRepo := postgres.NewSlotRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	userRepo := postgres.NewUserRepository(db)
	outboxRepo := postgres.NewOutboxRepository(postgres.NewBaseRepository(db))

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &l.ZL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	emailSvc := email.NewSMTPService(cfg.SMTP)
	tokens := auth.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	schedulingSvc := schedulingService.NewService(slotRepo, doctorRepo, patientRepo, cfg.Scheduler, m, l)
	authSvc := authService.NewService(userRepo, security.NewBcryptVerifier(), tokens)
	dispatcher := notification.NewDispatcher(outboxRepo, slotRepo, doctorRepo, patientRepo, emailSvc, broker, l)

	authMiddleware := middleware.NewAuthMiddleware(authSvc)

	h := handler.NewHandler()
	authH := authHandler.NewHandler(authSvc)
	schedulingH := schedulingHandler.NewHandler(schedulingSvc, dispatcher)

	r := router.NewRouter(authMiddleware, authH, schedulingH, h, router.RouterConfig{
		RateLimitRPS:   100,
		RateLimitBurst: 200,
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		l.Info("starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.Error(err, "forced shutdown")
	}
}
