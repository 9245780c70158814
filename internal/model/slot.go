package model

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotStatusAvailable  SlotStatus = "available"
	SlotStatusBooked     SlotStatus = "booked"
	SlotStatusInProgress SlotStatus = "in_progress"
	SlotStatusCompleted  SlotStatus = "completed"
	SlotStatusCancelled  SlotStatus = "cancelled"
	SlotStatusNoShow     SlotStatus = "no_show"
)

// ReopenProvenance records how an available slot was freed. It only affects
// API payloads and notification wording, never the state machine itself.
type ReopenProvenance string

const (
	ReopenedNone             ReopenProvenance = ""
	ReopenedFromCancellation ReopenProvenance = "cancellation"
	ReopenedFromReschedule   ReopenProvenance = "reschedule"
)

// Slot is a bookable (doctor, start_time) capacity unit. Slots are never
// deleted; status transitions form the audit trail. DoctorID, StartTime,
// DurationMins and the creation fee are immutable after generation.
type Slot struct {
	Base
	DoctorID      uuid.UUID        `db:"doctor_id" json:"doctor_id"`
	PatientID     *uuid.UUID       `db:"patient_id" json:"patient_id,omitempty"`
	StartTime     time.Time        `db:"start_time" json:"start_time"`
	DurationMins  int              `db:"duration_mins" json:"duration_mins"`
	QueuePosition *int             `db:"queue_position" json:"queue_position,omitempty"`
	Status        SlotStatus       `db:"status" json:"status"`
	ReopenedFrom  ReopenProvenance `db:"reopened_from" json:"reopened_from,omitempty"`
	Reason        string           `db:"reason" json:"reason,omitempty"`
	Fee           int64            `db:"fee" json:"fee"`
}

// EndTime is the instant the service window closes.
func (s *Slot) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMins) * time.Minute)
}

// IsClaimable reports whether a patient may book this slot.
func (s *Slot) IsClaimable() bool {
	return s.Status == SlotStatusAvailable && s.PatientID == nil
}

// PublicStatus exposes reopened provenance as a distinct status string for
// API payloads, matching the wording patients and doctors see.
func (s *Slot) PublicStatus() string {
	if s.Status == SlotStatusAvailable {
		switch s.ReopenedFrom {
		case ReopenedFromCancellation:
			return "reopened_from_cancellation"
		case ReopenedFromReschedule:
			return "reopened_from_reschedule"
		}
	}
	return string(s.Status)
}

type CreateSlotsRequest struct {
	DoctorID     uuid.UUID `json:"doctor_id" binding:"required"`
	Date         string    `json:"date" binding:"required"`
	StartTime    string    `json:"start_time" binding:"required"`
	EndTime      string    `json:"end_time" binding:"required"`
	IntervalMins int       `json:"interval_mins" binding:"required,min=5,max=240"`
	Fee          int64     `json:"fee" binding:"min=0"`
}

type BookSlotRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id" binding:"required"`
	StartTime time.Time `json:"start_time" binding:"required"`
	Reason    string    `json:"reason" binding:"max=500"`
	Fee       *int64    `json:"fee" binding:"omitempty,min=0"`
}

type RescheduleRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
}

// BookingResult is the success payload of a booking.
type BookingResult struct {
	SlotID          uuid.UUID `json:"slot_id"`
	Fee             int64     `json:"fee"`
	PaymentRequired bool      `json:"payment_required"`
	QueuePosition   int       `json:"queue_position"`
}

// GenerateResult reports the outcome of a slot generation batch. Zero
// created slots is informational, not an error: regenerating an already
// populated window is a safe no-op.
type GenerateResult struct {
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Message string `json:"message,omitempty"`
}

// ConflictDetail carries actionable context on booking conflicts.
type ConflictDetail struct {
	BlockingSlotID    *uuid.UUID  `json:"blocking_slot_id,omitempty"`
	BlockingStartTime *time.Time  `json:"blocking_start_time,omitempty"`
	ValidUntil        *time.Time  `json:"valid_until,omitempty"`
	AlternativeTimes  []time.Time `json:"alternative_times,omitempty"`
}
