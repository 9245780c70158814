package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careclinic/scheduler-api/internal/config"
	"github.com/careclinic/scheduler-api/internal/model"
	"github.com/careclinic/scheduler-api/internal/repository"
	apperrors "github.com/careclinic/scheduler-api/pkg/errors"
	"github.com/careclinic/scheduler-api/pkg/logger"
	"github.com/careclinic/scheduler-api/pkg/metrics"
)

// Enqueuer persists domain events for asynchronous delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, events []model.Event) error
}

// QueueRecalculator recompacts a doctor's queue for a day.
type QueueRecalculator interface {
	RecalculateQueue(ctx context.Context, doctorID uuid.UUID, day time.Time) error
}

// Sweeper advances slot state purely from wall-clock comparisons. Both
// sweeps are idempotent: the conditional status updates make a re-run on
// already-transitioned slots a no-op.
type Sweeper struct {
	slots      repository.SlotRepository
	doctors    repository.DoctorRepository
	patients   repository.PatientRepository
	queue      QueueRecalculator
	dispatcher Enqueuer
	cfg        config.SchedulerConfig
	metrics    *metrics.Metrics
	logger     *logger.Logger
	now        func() time.Time
}

func NewSweeper(
	slots repository.SlotRepository,
	doctors repository.DoctorRepository,
	patients repository.PatientRepository,
	queue QueueRecalculator,
	dispatcher Enqueuer,
	cfg config.SchedulerConfig,
	m *metrics.Metrics,
	l *logger.Logger,
) *Sweeper {
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = time.Minute
	}
	if cfg.ExpireInterval <= 0 {
		cfg.ExpireInterval = time.Minute
	}
	return &Sweeper{
		slots:      slots,
		doctors:    doctors,
		patients:   patients,
		queue:      queue,
		dispatcher: dispatcher,
		cfg:        cfg,
		metrics:    m,
		logger:     l,
		now:        time.Now,
	}
}

// Start runs both sweeps on their configured intervals until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	promote := time.NewTicker(s.cfg.PromoteInterval)
	expire := time.NewTicker(s.cfg.ExpireInterval)
	defer promote.Stop()
	defer expire.Stop()

	if s.logger != nil {
		s.logger.Info("starting lifecycle sweeper",
			"promote_interval", s.cfg.PromoteInterval.String(),
			"expire_interval", s.cfg.ExpireInterval.String())
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.Info("shutting down lifecycle sweeper")
			}
			return
		case <-promote.C:
			if err := s.Promote(ctx); err != nil && s.logger != nil {
				s.logger.Error(err, "promote sweep failed")
			}
		case <-expire.C:
			if err := s.Expire(ctx); err != nil && s.logger != nil {
				s.logger.Error(err, "expire sweep failed")
			}
		}
	}
}

// Promote moves booked slots whose service window has opened to
// in_progress.
func (s *Sweeper) Promote(ctx context.Context) error {
	defer s.observeSweep("promote", s.now())

	slots, err := s.slots.ListPromotable(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to list promotable slots: %w", err)
	}

	for _, slot := range slots {
		ok, err := s.slots.MarkInProgress(ctx, slot.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.Error(err, "failed to promote slot", "slot_id", slot.ID.String())
			}
			continue
		}
		if ok {
			s.countTransition("booked_to_in_progress")
		}
	}
	return nil
}

// Expire completes slots whose service window has closed, recompacts the
// doctor's queue and tells the next booked patient they are up.
func (s *Sweeper) Expire(ctx context.Context) error {
	defer s.observeSweep("expire", s.now())

	slots, err := s.slots.ListExpirable(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to list expirable slots: %w", err)
	}

	for _, slot := range slots {
		ok, err := s.slots.MarkCompleted(ctx, slot.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.Error(err, "failed to complete slot", "slot_id", slot.ID.String())
			}
			continue
		}
		if !ok {
			continue
		}
		s.countTransition("to_completed")

		if err := s.queue.RecalculateQueue(ctx, slot.DoctorID, slot.StartTime); err != nil {
			if s.logger != nil {
				s.logger.Error(err, "failed to recalculate queue", "doctor_id", slot.DoctorID.String())
			}
		}

		events := []model.Event{{
			Type:    model.EventQueueUpdated,
			Payload: model.QueueUpdatedPayload{DoctorID: slot.DoctorID},
		}}
		if next := s.nextPatientEvent(ctx, slot); next != nil {
			events = append(events, *next)
		}
		if err := s.dispatcher.Enqueue(ctx, events); err != nil {
			if s.logger != nil {
				s.logger.Error(err, "failed to enqueue sweep events", "slot_id", slot.ID.String())
			}
		}
	}
	return nil
}

// nextPatientEvent builds the "you're next" notice for the doctor's next
// booked slot of the same day, if any.
func (s *Sweeper) nextPatientEvent(ctx context.Context, completed *model.Slot) *model.Event {
	next, err := s.slots.NextBookedAfter(ctx, completed.DoctorID, completed.StartTime, completed.StartTime)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Error(err, "failed to find next booked slot", "doctor_id", completed.DoctorID.String())
		}
		return nil
	}
	if next.PatientID == nil {
		return nil
	}

	patient, err := s.patients.Get(ctx, *next.PatientID)
	if err != nil {
		if s.logger != nil {
			s.logger.Error(err, "failed to load next patient", "patient_id", next.PatientID.String())
		}
		return nil
	}
	doctor, err := s.doctors.Get(ctx, next.DoctorID)
	if err != nil {
		if s.logger != nil {
			s.logger.Error(err, "failed to load doctor", "doctor_id", next.DoctorID.String())
		}
		return nil
	}

	return &model.Event{
		Type: model.EventPatientNext,
		Payload: model.PatientNextPayload{
			SlotID:     next.ID,
			Patient:    model.Party{ID: patient.ID, Name: patient.Name, Email: patient.Email, Phone: patient.Phone},
			DoctorName: doctor.Name,
			StartTime:  next.StartTime,
		},
	}
}

func (s *Sweeper) countTransition(transition string) {
	if s.metrics != nil {
		s.metrics.SweepTransitions.WithLabelValues(transition).Inc()
	}
}

func (s *Sweeper) observeSweep(name string, started time.Time) {
	if s.metrics != nil {
		s.metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	}
}
