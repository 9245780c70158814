package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecalculateQueue reassigns contiguous positions 1..N to the doctor's
// booked slots for the day, ordered by start time ascending. Only changed
// rows are written. Invoked by the lifecycle sweeps after every completion;
// a plain cancellation deliberately leaves positions untouched until the
// next sweep.
func (s *Service) RecalculateQueue(ctx context.Context, doctorID uuid.UUID, day time.Time) error {
	booked, err := s.slots.ListBookedForDay(ctx, doctorID, day)
	if err != nil {
		return fmt.Errorf("failed to load booked slots: %w", err)
	}

	for i, slot := range booked {
		want := i + 1
		if slot.QueuePosition != nil && *slot.QueuePosition == want {
			continue
		}
		if err := s.slots.UpdateQueuePosition(ctx, slot.ID, want); err != nil {
			return fmt.Errorf("failed to update position of slot %s: %w", slot.ID, err)
		}
	}
	return nil
}
