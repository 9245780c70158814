package model

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the scheduling core. Mutating operations return
// events instead of performing notification I/O; the dispatcher persists
// them to the outbox and a worker delivers them.
const (
	EventAppointmentBooked      = "appointment.booked"
	EventAppointmentCancelled   = "appointment.cancelled"
	EventAppointmentRescheduled = "appointment.rescheduled"
	EventAppointmentReminder    = "appointment.reminder"
	EventPatientNext            = "queue.patient_next"
	EventQueueUpdated           = "queue.updated"
)

// Event is a domain event produced by a scheduling mutation. RunAt delays
// delivery; nil means deliver on the next outbox poll.
type Event struct {
	Type    string
	Payload interface{}
	RunAt   *time.Time
}

// Party identifies one notification recipient.
type Party struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone"`
}

type AppointmentBookedPayload struct {
	SlotID    uuid.UUID `json:"slot_id"`
	Doctor    Party     `json:"doctor"`
	Patient   Party     `json:"patient"`
	StartTime time.Time `json:"start_time"`
	Duration  int       `json:"duration_mins"`
	Fee       int64     `json:"fee"`
	Position  int       `json:"queue_position"`
	Emergency bool      `json:"emergency"`
	Reason    string    `json:"reason,omitempty"`
}

type AppointmentCancelledPayload struct {
	SlotID      uuid.UUID `json:"slot_id"`
	Doctor      Party     `json:"doctor"`
	Patient     Party     `json:"patient"`
	StartTime   time.Time `json:"start_time"`
	CancelledBy Role      `json:"cancelled_by"`
}

type AppointmentRescheduledPayload struct {
	OldSlotID    uuid.UUID `json:"old_slot_id"`
	NewSlotID    uuid.UUID `json:"new_slot_id"`
	Doctor       Party     `json:"doctor"`
	Patient      Party     `json:"patient"`
	OldStartTime time.Time `json:"old_start_time"`
	NewStartTime time.Time `json:"new_start_time"`
}

// AppointmentReminderPayload is intentionally thin: the handler re-reads
// the slot at fire time and drops the reminder if the booking is gone.
type AppointmentReminderPayload struct {
	SlotID uuid.UUID `json:"slot_id"`
}

type PatientNextPayload struct {
	SlotID     uuid.UUID `json:"slot_id"`
	Patient    Party     `json:"patient"`
	DoctorName string    `json:"doctor_name"`
	StartTime  time.Time `json:"start_time"`
}

type QueueUpdatedPayload struct {
	DoctorID uuid.UUID `json:"doctor_id"`
}
