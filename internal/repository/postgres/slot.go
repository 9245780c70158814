package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careclinic/scheduler-api/internal/model"
	apperrors "github.com/careclinic/scheduler-api/pkg/errors"
)

const slotColumns = `
	id, doctor_id, patient_id, start_time, duration_mins,
	queue_position, status, reopened_from, reason, fee,
	created_at, updated_at
`

func (r *slotRepository) CreateBatch(ctx context.Context, slots []*model.Slot) error {
	if len(slots) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO slots (
			id, doctor_id, start_time, duration_mins,
			status, reopened_from, reason, fee, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now().UTC()
	for _, slot := range slots {
		slot.ID = uuid.New()
		slot.CreatedAt = now
		slot.UpdatedAt = now

		if _, err := tx.ExecContext(ctx, query,
			slot.ID,
			slot.DoctorID,
			slot.StartTime,
			slot.DurationMins,
			slot.Status,
			slot.ReopenedFrom,
			slot.Reason,
			slot.Fee,
			slot.CreatedAt,
			slot.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert slot at %s: %w", slot.StartTime, err)
		}
	}

	return tx.Commit()
}

func (r *slotRepository) Get(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1`

	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("slot", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) GetByDoctorAndTime(ctx context.Context, doctorID uuid.UUID, at time.Time) (*model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE doctor_id = $1 AND start_time = $2`

	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, query, doctorID, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("slot", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot by doctor and time: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) ExistingTimes(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	query := `
		SELECT start_time FROM slots
		WHERE doctor_id = $1 AND start_time >= $2 AND start_time < $3
	`
	var times []time.Time
	err := r.db.SelectContext(ctx, &times, query, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing slot times: %w", err)
	}
	return times, nil
}

// Claim performs the booking as a single conditional update so that two
// concurrent claims of the same slot yield exactly one winner. Zero rows
// affected means the slot was taken or is no longer claimable.
func (r *slotRepository) Claim(ctx context.Context, slotID, patientID uuid.UUID, position int, fee int64, reason string) (bool, error) {
	query := `
		UPDATE slots
		SET patient_id = $2, status = $3, queue_position = $4,
			fee = $5, reason = $6, reopened_from = '', updated_at = NOW()
		WHERE id = $1 AND patient_id IS NULL AND status = $7
	`
	result, err := r.db.ExecContext(ctx, query,
		slotID, patientID, model.SlotStatusBooked, position, fee, reason, model.SlotStatusAvailable,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim slot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *slotRepository) ReopenCancelled(ctx context.Context, slotID uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE slots
		SET status = $2, reopened_from = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND start_time > $5
	`
	result, err := r.db.ExecContext(ctx, query,
		slotID, model.SlotStatusAvailable, model.ReopenedFromCancellation, model.SlotStatusCancelled, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reopen cancelled slot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *slotRepository) Release(ctx context.Context, slotID uuid.UUID, provenance model.ReopenProvenance) (bool, error) {
	query := `
		UPDATE slots
		SET patient_id = NULL, queue_position = NULL, reason = '',
			status = $2, reopened_from = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		slotID, model.SlotStatusAvailable, provenance, model.SlotStatusBooked,
	)
	if err != nil {
		return false, fmt.Errorf("failed to release slot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *slotRepository) ListBookedForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*model.Slot, error) {
	from, to := dayBounds(day)
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE doctor_id = $1 AND status = $2
		AND start_time >= $3 AND start_time < $4
		ORDER BY start_time ASC
	`
	var slots []*model.Slot
	err := r.db.SelectContext(ctx, &slots, query, doctorID, model.SlotStatusBooked, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list booked slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) ListUnclaimedForDayAfter(ctx context.Context, doctorID uuid.UUID, day time.Time, after time.Time) ([]*model.Slot, error) {
	from, to := dayBounds(day)
	if after.After(from) {
		from = after
	}
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE doctor_id = $1 AND status = $2 AND patient_id IS NULL
		AND start_time > $3 AND start_time < $4
		ORDER BY start_time ASC
	`
	var slots []*model.Slot
	err := r.db.SelectContext(ctx, &slots, query, doctorID, model.SlotStatusAvailable, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list unclaimed slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) CountBookedForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) (int, error) {
	from, to := dayBounds(day)
	query := `
		SELECT COUNT(*) FROM slots
		WHERE doctor_id = $1 AND status = $2
		AND start_time >= $3 AND start_time < $4
	`
	var count int
	err := r.db.GetContext(ctx, &count, query, doctorID, model.SlotStatusBooked, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to count booked slots: %w", err)
	}
	return count, nil
}

func (r *slotRepository) CountBookedAt(ctx context.Context, doctorID uuid.UUID, at time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM slots
		WHERE doctor_id = $1 AND status = $2 AND start_time = $3
	`
	var count int
	err := r.db.GetContext(ctx, &count, query, doctorID, model.SlotStatusBooked, at)
	if err != nil {
		return 0, fmt.Errorf("failed to count booked slots at time: %w", err)
	}
	return count, nil
}

func (r *slotRepository) ShiftQueuePositions(ctx context.Context, doctorID uuid.UUID, day time.Time, exclude uuid.UUID) error {
	from, to := dayBounds(day)
	query := `
		UPDATE slots
		SET queue_position = queue_position + 1, updated_at = NOW()
		WHERE doctor_id = $1 AND status = $2 AND id != $3
		AND start_time >= $4 AND start_time < $5
	`
	_, err := r.db.ExecContext(ctx, query, doctorID, model.SlotStatusBooked, exclude, from, to)
	if err != nil {
		return fmt.Errorf("failed to shift queue positions: %w", err)
	}
	return nil
}

func (r *slotRepository) UpdateQueuePosition(ctx context.Context, slotID uuid.UUID, position int) error {
	query := `
		UPDATE slots
		SET queue_position = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, slotID, position, model.SlotStatusBooked)
	if err != nil {
		return fmt.Errorf("failed to update queue position: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("booked slot", nil)
	}
	return nil
}

func (r *slotRepository) FindActiveForPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time) (*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE patient_id = $1 AND status != $2
		AND start_time >= $3 AND start_time < $4
		ORDER BY start_time ASC
		LIMIT 1
	`
	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, query, patientID, model.SlotStatusCancelled, from, to)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("active appointment", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active appointment: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) ListPromotable(ctx context.Context, now time.Time) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE status = $1
		AND start_time <= $2
		AND start_time + make_interval(mins => duration_mins) > $2
		ORDER BY start_time ASC
	`
	var slots []*model.Slot
	err := r.db.SelectContext(ctx, &slots, query, model.SlotStatusBooked, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list promotable slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) ListExpirable(ctx context.Context, now time.Time) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE status IN ($1, $2)
		AND start_time + make_interval(mins => duration_mins) <= $3
		ORDER BY start_time ASC
	`
	var slots []*model.Slot
	err := r.db.SelectContext(ctx, &slots, query, model.SlotStatusBooked, model.SlotStatusInProgress, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expirable slots: %w", err)
	}
	return slots, nil
}

// MarkInProgress clears the queue position; positions exist only while a
// slot is booked.
func (r *slotRepository) MarkInProgress(ctx context.Context, slotID uuid.UUID) (bool, error) {
	query := `
		UPDATE slots
		SET status = $2, queue_position = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, slotID, model.SlotStatusInProgress, model.SlotStatusBooked)
	if err != nil {
		return false, fmt.Errorf("failed to mark slot in progress: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *slotRepository) MarkCompleted(ctx context.Context, slotID uuid.UUID) (bool, error) {
	query := `
		UPDATE slots
		SET status = $2, queue_position = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`
	result, err := r.db.ExecContext(ctx, query,
		slotID, model.SlotStatusCompleted, model.SlotStatusBooked, model.SlotStatusInProgress,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark slot completed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *slotRepository) NextBookedAfter(ctx context.Context, doctorID uuid.UUID, day time.Time, after time.Time) (*model.Slot, error) {
	_, to := dayBounds(day)
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE doctor_id = $1 AND status = $2
		AND start_time > $3 AND start_time < $4
		ORDER BY start_time ASC
		LIMIT 1
	`
	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, query, doctorID, model.SlotStatusBooked, after, to)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("next booked slot", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next booked slot: %w", err)
	}
	return &slot, nil
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return from, from.AddDate(0, 0, 1)
}
