package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/careclinic/scheduler-api/internal/config"
	"github.com/careclinic/scheduler-api/internal/model"
	"github.com/careclinic/scheduler-api/internal/repository"
	apperrors "github.com/careclinic/scheduler-api/pkg/errors"
	"github.com/careclinic/scheduler-api/pkg/logger"
	"github.com/careclinic/scheduler-api/pkg/metrics"
)

// Business rules of the booking engine.
const (
	DefaultBookingHorizonDays = 15
	DefaultActiveWindowDays   = 15
	DefaultReminderLead       = 5 * time.Minute

	// EmergencyKeyword in the booking reason bypasses the active-appointment
	// gate and jumps the queue to position 1. Matched case-insensitively.
	EmergencyKeyword = "emergency"
)

type Service struct {
	slots    repository.SlotRepository
	doctors  repository.DoctorRepository
	patients repository.PatientRepository
	cfg      config.SchedulerConfig
	metrics  *metrics.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(
	slots repository.SlotRepository,
	doctors repository.DoctorRepository,
	patients repository.PatientRepository,
	cfg config.SchedulerConfig,
	m *metrics.Metrics,
	l *logger.Logger,
) *Service {
	if cfg.BookingHorizonDays <= 0 {
		cfg.BookingHorizonDays = DefaultBookingHorizonDays
	}
	if cfg.ActiveWindowDays <= 0 {
		cfg.ActiveWindowDays = DefaultActiveWindowDays
	}
	if cfg.ReminderLead <= 0 {
		cfg.ReminderLead = DefaultReminderLead
	}
	return &Service{
		slots:    slots,
		doctors:  doctors,
		patients: patients,
		cfg:      cfg,
		metrics:  m,
		logger:   l,
		now:      time.Now,
	}
}

// IsEmergency reports whether a booking reason triggers the emergency
// override.
func IsEmergency(reason string) bool {
	return strings.Contains(strings.ToLower(reason), EmergencyKeyword)
}

// Book claims a slot for the calling patient. On success it returns the
// booking result plus the domain events to dispatch; the state mutation
// itself performs no notification I/O.
func (s *Service) Book(ctx context.Context, patientID uuid.UUID, req *model.BookSlotRequest) (*model.BookingResult, []model.Event, error) {
	now := s.now()

	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	if !patient.ProfileComplete() {
		s.countBooking("validation_error")
		return nil, nil, apperrors.NewValidation("patient profile is incomplete: name, email and phone are required")
	}

	doctor, err := s.doctors.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.validateBookingTime(now, req.StartTime); err != nil {
		s.countBooking("validation_error")
		return nil, nil, err
	}

	emergency := IsEmergency(req.Reason)
	if !emergency {
		if err := s.checkActiveAppointment(ctx, now, patientID); err != nil {
			s.countBooking("conflict")
			return nil, nil, err
		}
	}

	slot, err := s.claimableSlot(ctx, now, req.DoctorID, req.StartTime)
	if err != nil {
		return nil, nil, err
	}

	fee := slot.Fee
	if fee == 0 {
		fee = doctor.DefaultFee
	}
	if req.Fee != nil {
		fee = *req.Fee
	}

	position := 1
	if !emergency {
		count, err := s.slots.CountBookedForDay(ctx, req.DoctorID, req.StartTime)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to count booked slots: %w", err)
		}
		position = count + 1
	}

	claimed, err := s.slots.Claim(ctx, slot.ID, patientID, position, fee, req.Reason)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to claim slot: %w", err)
	}
	if !claimed {
		// Lost the race: another booker took the slot between our read and
		// the conditional update.
		s.countBooking("conflict")
		return nil, nil, s.conflictWithAlternatives(ctx, now, req.DoctorID, req.StartTime)
	}

	if emergency {
		if err := s.slots.ShiftQueuePositions(ctx, req.DoctorID, req.StartTime, slot.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to shift queue positions: %w", err)
		}
	}

	s.countBooking("success")
	if s.logger != nil {
		s.logger.Info("slot booked",
			"slot_id", slot.ID.String(),
			"doctor_id", req.DoctorID.String(),
			"patient_id", patientID.String(),
			"position", position,
			"emergency", emergency)
	}

	reminderAt := req.StartTime.Add(-s.cfg.ReminderLead)
	events := []model.Event{
		{
			Type: model.EventAppointmentBooked,
			Payload: model.AppointmentBookedPayload{
				SlotID:    slot.ID,
				Doctor:    doctorParty(doctor),
				Patient:   patientParty(patient),
				StartTime: req.StartTime,
				Duration:  slot.DurationMins,
				Fee:       fee,
				Position:  position,
				Emergency: emergency,
				Reason:    req.Reason,
			},
		},
		{
			Type:    model.EventAppointmentReminder,
			Payload: model.AppointmentReminderPayload{SlotID: slot.ID},
			RunAt:   &reminderAt,
		},
		{
			Type:    model.EventQueueUpdated,
			Payload: model.QueueUpdatedPayload{DoctorID: req.DoctorID},
		},
	}

	return &model.BookingResult{
		SlotID:          slot.ID,
		Fee:             fee,
		PaymentRequired: fee > 0,
		QueuePosition:   position,
	}, events, nil
}

// validateBookingTime enforces the strictly-future rule and the booking
// horizon. The horizon compares date components: a request on the 15th day
// ahead is accepted regardless of its time of day.
func (s *Service) validateBookingTime(now, requested time.Time) error {
	if !requested.After(now) {
		return apperrors.NewValidation("appointment time must be in the future")
	}
	horizon := startOfDay(now).AddDate(0, 0, s.cfg.BookingHorizonDays)
	if startOfDay(requested).After(horizon) {
		return apperrors.NewValidation(fmt.Sprintf(
			"appointments can be booked at most %d days in advance", s.cfg.BookingHorizonDays))
	}
	return nil
}

// checkActiveAppointment rejects the booking when the patient already holds
// a non-cancelled appointment within the active window around now.
func (s *Service) checkActiveAppointment(ctx context.Context, now time.Time, patientID uuid.UUID) error {
	from := now.AddDate(0, 0, -s.cfg.ActiveWindowDays)
	to := now.AddDate(0, 0, s.cfg.ActiveWindowDays)

	blocking, err := s.slots.FindActiveForPatient(ctx, patientID, from, to)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check active appointments: %w", err)
	}

	validUntil := blocking.StartTime.AddDate(0, 0, s.cfg.ActiveWindowDays)
	return apperrors.NewConflict(
		fmt.Sprintf("you already have an appointment on %s; a new one can be booked after %s unless it is an emergency",
			blocking.StartTime.Format("Mon, 02 Jan 2006 15:04"),
			validUntil.Format("02 Jan 2006")),
		model.ConflictDetail{
			BlockingSlotID:    &blocking.ID,
			BlockingStartTime: &blocking.StartTime,
			ValidUntil:        &validUntil,
		},
	)
}

// claimableSlot fetches the slot at (doctor, time), reviving a cancelled
// future slot for reuse, and verifies it is still bookable.
func (s *Service) claimableSlot(ctx context.Context, now time.Time, doctorID uuid.UUID, at time.Time) (*model.Slot, error) {
	slot, err := s.slots.GetByDoctorAndTime(ctx, doctorID, at)
	if err != nil {
		return nil, err
	}

	if slot.Status == model.SlotStatusCancelled && slot.StartTime.After(now) {
		if _, err := s.slots.ReopenCancelled(ctx, slot.ID, now); err != nil {
			return nil, fmt.Errorf("failed to reopen cancelled slot: %w", err)
		}
		slot, err = s.slots.GetByDoctorAndTime(ctx, doctorID, at)
		if err != nil {
			return nil, err
		}
	}

	if !slot.IsClaimable() {
		s.countBooking("conflict")
		return nil, s.conflictWithAlternatives(ctx, now, doctorID, at)
	}
	return slot, nil
}

// conflictWithAlternatives builds the conflict error carrying the doctor's
// other unclaimed future slots for the same day.
func (s *Service) conflictWithAlternatives(ctx context.Context, now time.Time, doctorID uuid.UUID, at time.Time) error {
	alternatives, err := s.slots.ListUnclaimedForDayAfter(ctx, doctorID, at, now)
	if err != nil {
		if s.logger != nil {
			s.logger.Error(err, "failed to compute alternative slots", "doctor_id", doctorID.String())
		}
		alternatives = nil
	}

	times := make([]time.Time, 0, len(alternatives))
	for _, alt := range alternatives {
		if alt.StartTime.Equal(at) {
			continue
		}
		times = append(times, alt.StartTime)
	}

	return apperrors.NewConflict(
		fmt.Sprintf("slot is no longer available; %d alternative slots remain for the day", len(times)),
		model.ConflictDetail{AlternativeTimes: times},
	)
}

func (s *Service) countBooking(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.BookingsTotal.WithLabelValues(outcome).Inc()
	if outcome == "conflict" {
		s.metrics.BookingConflicts.Inc()
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func doctorParty(d *model.Doctor) model.Party {
	return model.Party{ID: d.ID, Name: d.Name, Email: d.Email, Phone: d.Phone}
}

func patientParty(p *model.Patient) model.Party {
	return model.Party{ID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone}
}
