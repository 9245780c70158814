package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/careclinic/scheduler-api/internal/model"
	"github.com/careclinic/scheduler-api/internal/repository"
	"github.com/careclinic/scheduler-api/pkg/logger"
	"github.com/careclinic/scheduler-api/pkg/metrics"
)

// Handler delivers one outbox event. An error triggers a retry; after the
// configured attempts the event moves to the dead-letter table.
type Handler interface {
	Handle(ctx context.Context, event *model.OutboxEvent) error
}

type OutboxProcessorConfig struct {
	BatchSize       int
	PollInterval    time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
}

// OutboxProcessor drains due outbox events, including scheduled reminder
// jobs whose run_at has passed, and hands them to the Handler.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	handler Handler
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	handler Handler,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.Retention <= 0 {
		config.Retention = 24 * time.Hour
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}

	return &OutboxProcessor{
		repo:    repo,
		handler: handler,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	cleanup := time.NewTicker(p.config.CleanupInterval)
	defer cleanup.Stop()

	p.logger.Info("starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down outbox processor")
			return
		case <-ticker.C:
			if err := p.processEvents(ctx); err != nil {
				p.logger.Error(err, "failed to process events")
			}
		case <-cleanup.C:
			if err := p.cleanupProcessed(ctx); err != nil {
				p.logger.Error(err, "failed to clean up processed events")
			}
		}
	}
}

// cleanupProcessed prunes delivered events older than the retention window.
// Dead-lettered events are kept; only status processed is eligible.
func (p *OutboxProcessor) cleanupProcessed(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-p.config.Retention)
	count, err := p.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete processed events: %w", err)
	}
	if count > 0 {
		p.logger.Info("pruned processed outbox events", "deleted", count)
	}
	return nil
}

func (p *OutboxProcessor) processEvents(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetDueEventsWithLock(ctx, time.Now().UTC(), p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("get_due_events", "error").Inc()
		return fmt.Errorf("failed to get due events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("get_due_events", "success").Inc()

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
		}
	}

	return nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	err := p.handler.Handle(ctx, event)
	if err == nil {
		p.metrics.OutboxEventsProcessed.Inc()
		return p.repo.UpdateStatusTx(ctx, nil, event.ID, model.OutboxStatusProcessed, nil, nil)
	}

	errStr := err.Error()
	if event.RetryCount+1 >= p.config.RetryAttempts {
		p.metrics.OutboxEventsFailed.Inc()
		if dlErr := p.repo.MoveToDeadLetter(ctx, nil, event); dlErr != nil {
			p.logger.Error(dlErr, "failed to move event to dead letter", "event_id", event.ID.String())
		}
		if updateErr := p.repo.UpdateStatusTx(ctx, nil, event.ID, model.OutboxStatusFailed, &errStr, nil); updateErr != nil {
			p.logger.Error(updateErr, "failed to update event status")
		}
		return err
	}

	p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	retryAt := time.Now().Add(p.config.RetryDelay * time.Duration(event.RetryCount+1))
	if updateErr := p.repo.UpdateStatusTx(ctx, nil, event.ID, model.OutboxStatusRetry, &errStr, &retryAt); updateErr != nil {
		p.logger.Error(updateErr, "failed to update event status")
	}
	return err
}
