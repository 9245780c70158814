package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careclinic/scheduler-api/internal/model"
	apperrors "github.com/careclinic/scheduler-api/pkg/errors"
)

// Reschedule moves a booking to another of the same doctor's slots. The
// vacated slot reopens with reschedule provenance. The new queue position
// counts booked slots at the exact target timestamp, not the whole day;
// this tie-break intentionally differs from Book.
func (s *Service) Reschedule(ctx context.Context, caller *model.TokenClaims, slotID uuid.UUID, newStart time.Time) (*model.Slot, []model.Event, error) {
	now := s.now()

	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return nil, nil, err
	}

	if caller == nil || caller.PatientID == nil || slot.PatientID == nil || *caller.PatientID != *slot.PatientID {
		return nil, nil, apperrors.NewAuthorization("only the booking patient can reschedule this appointment")
	}
	if err := rejectImmutable(slot, now); err != nil {
		return nil, nil, err
	}

	target, err := s.slots.GetByDoctorAndTime(ctx, slot.DoctorID, newStart)
	if err != nil {
		return nil, nil, err
	}
	if !target.IsClaimable() {
		return nil, nil, apperrors.NewConflict("the requested slot is already taken", model.ConflictDetail{
			BlockingSlotID:    &target.ID,
			BlockingStartTime: &target.StartTime,
		})
	}

	sameBlock, err := s.slots.CountBookedAt(ctx, slot.DoctorID, newStart)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count booked slots at target time: %w", err)
	}
	position := sameBlock + 1

	claimed, err := s.slots.Claim(ctx, target.ID, *slot.PatientID, position, slot.Fee, slot.Reason)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to claim target slot: %w", err)
	}
	if !claimed {
		return nil, nil, apperrors.NewConflict("the requested slot was just taken", model.ConflictDetail{
			BlockingStartTime: &target.StartTime,
		})
	}

	released, err := s.slots.Release(ctx, slot.ID, model.ReopenedFromReschedule)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to release old slot: %w", err)
	}
	if !released {
		return nil, nil, apperrors.NewConflict("the appointment changed while rescheduling; please retry", nil)
	}

	doctor, err := s.doctors.Get(ctx, slot.DoctorID)
	if err != nil {
		return nil, nil, err
	}
	patient, err := s.patients.Get(ctx, *slot.PatientID)
	if err != nil {
		return nil, nil, err
	}

	if s.logger != nil {
		s.logger.Info("appointment rescheduled",
			"old_slot_id", slot.ID.String(),
			"new_slot_id", target.ID.String(),
			"doctor_id", slot.DoctorID.String())
	}

	events := []model.Event{
		{
			Type: model.EventAppointmentRescheduled,
			Payload: model.AppointmentRescheduledPayload{
				OldSlotID:    slot.ID,
				NewSlotID:    target.ID,
				Doctor:       doctorParty(doctor),
				Patient:      patientParty(patient),
				OldStartTime: slot.StartTime,
				NewStartTime: newStart,
			},
		},
		{
			Type:    model.EventQueueUpdated,
			Payload: model.QueueUpdatedPayload{DoctorID: slot.DoctorID},
		},
	}

	updated, err := s.slots.Get(ctx, target.ID)
	if err != nil {
		return nil, nil, err
	}
	return updated, events, nil
}

// Cancel releases a booking, reopening the slot with cancellation
// provenance. Queue positions of the doctor's other booked slots for the
// day are left untouched; the next expiry sweep recompacts them.
func (s *Service) Cancel(ctx context.Context, caller *model.TokenClaims, slotID uuid.UUID) ([]model.Event, error) {
	now := s.now()

	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if !mayCancel(caller, slot) {
		return nil, apperrors.NewAuthorization("only the booking patient or the assigned doctor can cancel this appointment")
	}
	if err := rejectImmutable(slot, now); err != nil {
		return nil, err
	}

	patientID := *slot.PatientID

	released, err := s.slots.Release(ctx, slot.ID, model.ReopenedFromCancellation)
	if err != nil {
		return nil, fmt.Errorf("failed to release slot: %w", err)
	}
	if !released {
		return nil, apperrors.NewConflict("the appointment changed while cancelling; please retry", nil)
	}

	doctor, err := s.doctors.Get(ctx, slot.DoctorID)
	if err != nil {
		return nil, err
	}
	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("appointment cancelled",
			"slot_id", slot.ID.String(),
			"doctor_id", slot.DoctorID.String(),
			"cancelled_by", string(caller.Role))
	}

	events := []model.Event{
		{
			Type: model.EventAppointmentCancelled,
			Payload: model.AppointmentCancelledPayload{
				SlotID:      slot.ID,
				Doctor:      doctorParty(doctor),
				Patient:     patientParty(patient),
				StartTime:   slot.StartTime,
				CancelledBy: caller.Role,
			},
		},
		{
			Type:    model.EventQueueUpdated,
			Payload: model.QueueUpdatedPayload{DoctorID: slot.DoctorID},
		},
	}
	return events, nil
}

// rejectImmutable blocks changes to appointments that already started or
// reached a terminal state.
func rejectImmutable(slot *model.Slot, now time.Time) error {
	if slot.Status == model.SlotStatusCompleted || slot.Status == model.SlotStatusCancelled {
		return apperrors.NewConflict(fmt.Sprintf("a %s appointment cannot be changed", slot.Status), nil)
	}
	if !slot.StartTime.After(now) {
		return apperrors.NewConflict("the appointment time has already passed", nil)
	}
	if slot.Status != model.SlotStatusBooked {
		return apperrors.NewConflict("the slot is not booked", nil)
	}
	return nil
}

func mayCancel(caller *model.TokenClaims, slot *model.Slot) bool {
	if caller == nil || slot.PatientID == nil {
		return false
	}
	if caller.PatientID != nil && *caller.PatientID == *slot.PatientID {
		return true
	}
	if caller.DoctorID != nil && *caller.DoctorID == slot.DoctorID {
		return true
	}
	return false
}
