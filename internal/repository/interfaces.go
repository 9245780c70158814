package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/careclinic/scheduler-api/internal/model"
)

// SlotRepository is the persistence gateway for the slot collection, the
// single mutable resource of the scheduling core. Only the scheduling and
// lifecycle services write patient/status/queue-position fields; doctor,
// start time, duration and the creation fee are immutable after insert.
type SlotRepository interface {
	CreateBatch(ctx context.Context, slots []*model.Slot) error
	Get(ctx context.Context, id uuid.UUID) (*model.Slot, error)
	GetByDoctorAndTime(ctx context.Context, doctorID uuid.UUID, at time.Time) (*model.Slot, error)
	// ExistingTimes returns the start times of all slots ever created for the
	// doctor inside [from, to), regardless of status.
	ExistingTimes(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)

	// Claim books a slot for a patient as a single conditional update: it
	// succeeds only if the slot still has no patient and is available. A
	// false return means the slot was taken concurrently.
	Claim(ctx context.Context, slotID, patientID uuid.UUID, position int, fee int64, reason string) (bool, error)
	// ReopenCancelled resets a cancelled, still-future slot to available so
	// it can be claimed again.
	ReopenCancelled(ctx context.Context, slotID uuid.UUID, now time.Time) (bool, error)
	// Release clears patient, queue position and reason, returning the slot
	// to available with the given provenance tag. Only booked slots release.
	Release(ctx context.Context, slotID uuid.UUID, provenance model.ReopenProvenance) (bool, error)

	ListBookedForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*model.Slot, error)
	ListUnclaimedForDayAfter(ctx context.Context, doctorID uuid.UUID, day time.Time, after time.Time) ([]*model.Slot, error)
	CountBookedForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) (int, error)
	CountBookedAt(ctx context.Context, doctorID uuid.UUID, at time.Time) (int, error)
	// ShiftQueuePositions increments the queue position of every booked slot
	// for the doctor/day except the excluded one (the emergency jump).
	ShiftQueuePositions(ctx context.Context, doctorID uuid.UUID, day time.Time, exclude uuid.UUID) error
	UpdateQueuePosition(ctx context.Context, slotID uuid.UUID, position int) error

	// FindActiveForPatient returns the patient's earliest non-cancelled
	// appointment whose start time falls inside [from, to), or a not-found
	// error when the patient holds none.
	FindActiveForPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time) (*model.Slot, error)

	ListPromotable(ctx context.Context, now time.Time) ([]*model.Slot, error)
	ListExpirable(ctx context.Context, now time.Time) ([]*model.Slot, error)
	MarkInProgress(ctx context.Context, slotID uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, slotID uuid.UUID) (bool, error)
	NextBookedAfter(ctx context.Context, doctorID uuid.UUID, day time.Time, after time.Time) (*model.Slot, error)
}

type DoctorRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
}

type PatientRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
}

type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// OutboxRepository is the durable background job mechanism. Due events are
// those with run_at in the past; the reminder job is simply an event whose
// run_at is five minutes before the appointment.
type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	GetDueEventsWithLock(ctx context.Context, now time.Time, limit int) ([]*model.OutboxEvent, error)
	BeginTx(ctx context.Context) (*sql.Tx, error)
	UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
	MoveToDeadLetter(ctx context.Context, tx *sql.Tx, event *model.OutboxEvent) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
