package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careclinic/scheduler-api/internal/model"
	apperrors "github.com/careclinic/scheduler-api/pkg/errors"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// CreateSlots generates a batch of available slots for a doctor at a fixed
// interval inside the given window. Timestamps already taken by an existing
// slot, or not strictly in the future, are skipped; re-invoking over an
// already populated window is a safe no-op.
func (s *Service) CreateSlots(ctx context.Context, req *model.CreateSlotsRequest) (*model.GenerateResult, error) {
	doctor, err := s.doctors.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}

	windowStart, windowEnd, err := parseWindow(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if !windowStart.Before(windowEnd) {
		return nil, apperrors.NewValidation("start time must be before end time")
	}

	now := s.now()
	if !windowEnd.After(now) {
		return nil, apperrors.NewValidation("the requested window is entirely in the past")
	}

	existing, err := s.slots.ExistingTimes(ctx, req.DoctorID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing slot times: %w", err)
	}
	taken := make(map[int64]struct{}, len(existing))
	for _, t := range existing {
		taken[t.Unix()] = struct{}{}
	}

	fee := req.Fee
	if fee == 0 {
		fee = doctor.DefaultFee
	}

	interval := time.Duration(req.IntervalMins) * time.Minute
	var batch []*model.Slot
	skipped := 0
	for t := windowStart; t.Before(windowEnd); t = t.Add(interval) {
		if !t.After(now) {
			skipped++
			continue
		}
		if _, ok := taken[t.Unix()]; ok {
			skipped++
			continue
		}
		batch = append(batch, &model.Slot{
			DoctorID:     req.DoctorID,
			StartTime:    t,
			DurationMins: req.IntervalMins,
			Status:       model.SlotStatusAvailable,
			Fee:          fee,
		})
	}

	if len(batch) == 0 {
		return &model.GenerateResult{
			Created: 0,
			Skipped: skipped,
			Message: "no bookable slots remain in the requested window",
		}, nil
	}

	if err := s.slots.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to persist slot batch: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SlotsGenerated.Add(float64(len(batch)))
	}
	if s.logger != nil {
		s.logger.Info("slots generated",
			"doctor_id", req.DoctorID.String(),
			"created", len(batch),
			"skipped", skipped)
	}

	return &model.GenerateResult{Created: len(batch), Skipped: skipped}, nil
}

// GetAvailability lists the doctor's future unclaimed slots for a day.
func (s *Service) GetAvailability(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*model.Slot, error) {
	if _, err := s.doctors.Get(ctx, doctorID); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListUnclaimedForDayAfter(ctx, doctorID, day, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}
	return slots, nil
}

// GetQueue returns the doctor's booked slots for a day in consultation
// order.
func (s *Service) GetQueue(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*model.Slot, error) {
	if _, err := s.doctors.Get(ctx, doctorID); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListBookedForDay(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	return slots, nil
}

func parseWindow(date, start, end string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.NewValidation("invalid date, expected YYYY-MM-DD")
	}
	from, err := time.Parse(timeLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.NewValidation("invalid start time, expected HH:MM")
	}
	to, err := time.Parse(timeLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.NewValidation("invalid end time, expected HH:MM")
	}

	windowStart := time.Date(day.Year(), day.Month(), day.Day(), from.Hour(), from.Minute(), 0, 0, time.UTC)
	windowEnd := time.Date(day.Year(), day.Month(), day.Day(), to.Hour(), to.Minute(), 0, 0, time.UTC)
	return windowStart, windowEnd, nil
}
