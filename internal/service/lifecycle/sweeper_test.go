package lifecycle

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careclinic/scheduler-api/internal/config"
	"github.com/careclinic/scheduler-api/internal/model"
	"github.com/careclinic/scheduler-api/internal/repository"
	apperrors "github.com/careclinic/scheduler-api/pkg/errors"
)

// fakeSlots implements only the methods the sweeps touch; the embedded
// interface panics on anything else.
type fakeSlots struct {
	repository.SlotRepository
	slots map[uuid.UUID]*model.Slot
}

func newFakeSlots() *fakeSlots {
	return &fakeSlots{slots: make(map[uuid.UUID]*model.Slot)}
}

func (f *fakeSlots) add(slot *model.Slot) *model.Slot {
	slot.ID = uuid.New()
	f.slots[slot.ID] = slot
	return slot
}

func (f *fakeSlots) matching(match func(*model.Slot) bool) []*model.Slot {
	var out []*model.Slot
	for _, s := range f.slots {
		if match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (f *fakeSlots) ListPromotable(_ context.Context, now time.Time) ([]*model.Slot, error) {
	return f.matching(func(s *model.Slot) bool {
		return s.Status == model.SlotStatusBooked && !s.StartTime.After(now) && s.EndTime().After(now)
	}), nil
}

func (f *fakeSlots) ListExpirable(_ context.Context, now time.Time) ([]*model.Slot, error) {
	return f.matching(func(s *model.Slot) bool {
		return (s.Status == model.SlotStatusBooked || s.Status == model.SlotStatusInProgress) &&
			!s.EndTime().After(now)
	}), nil
}

func (f *fakeSlots) MarkInProgress(_ context.Context, slotID uuid.UUID) (bool, error) {
	s, ok := f.slots[slotID]
	if !ok || s.Status != model.SlotStatusBooked {
		return false, nil
	}
	s.Status = model.SlotStatusInProgress
	s.QueuePosition = nil
	return true, nil
}

func (f *fakeSlots) MarkCompleted(_ context.Context, slotID uuid.UUID) (bool, error) {
	s, ok := f.slots[slotID]
	if !ok || (s.Status != model.SlotStatusBooked && s.Status != model.SlotStatusInProgress) {
		return false, nil
	}
	s.Status = model.SlotStatusCompleted
	s.QueuePosition = nil
	return true, nil
}

func (f *fakeSlots) NextBookedAfter(_ context.Context, doctorID uuid.UUID, day time.Time, after time.Time) (*model.Slot, error) {
	dayEnd := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).AddDate(0, 0, 1)
	matches := f.matching(func(s *model.Slot) bool {
		return s.DoctorID == doctorID && s.Status == model.SlotStatusBooked &&
			s.StartTime.After(after) && s.StartTime.Before(dayEnd)
	})
	if len(matches) == 0 {
		return nil, apperrors.NewNotFound("next booked slot", nil)
	}
	return matches[0], nil
}

type fakeDoctors struct {
	doctor *model.Doctor
}

func (f *fakeDoctors) Get(_ context.Context, id uuid.UUID) (*model.Doctor, error) {
	if f.doctor != nil && f.doctor.ID == id {
		return f.doctor, nil
	}
	return nil, apperrors.NewNotFound("doctor", nil)
}

type fakePatients struct {
	patients map[uuid.UUID]*model.Patient
}

func (f *fakePatients) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	if p, ok := f.patients[id]; ok {
		return p, nil
	}
	return nil, apperrors.NewNotFound("patient", nil)
}

type recordedRecalc struct {
	doctorID uuid.UUID
	day      time.Time
}

type fakeQueue struct {
	calls []recordedRecalc
}

func (f *fakeQueue) RecalculateQueue(_ context.Context, doctorID uuid.UUID, day time.Time) error {
	f.calls = append(f.calls, recordedRecalc{doctorID: doctorID, day: day})
	return nil
}

type fakeEnqueuer struct {
	events []model.Event
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, events []model.Event) error {
	f.events = append(f.events, events...)
	return nil
}

type sweepEnv struct {
	sweeper  *Sweeper
	slots    *fakeSlots
	queue    *fakeQueue
	enqueuer *fakeEnqueuer
	doctor   *model.Doctor
	patients *fakePatients
	now      time.Time
}

func newSweepEnv() *sweepEnv {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	doctor := &model.Doctor{
		Base:  model.Base{ID: uuid.New()},
		Name:  "Dr. Asha Rao",
		Email: "asha.rao@clinic.test",
	}

	slots := newFakeSlots()
	queue := &fakeQueue{}
	enqueuer := &fakeEnqueuer{}
	patients := &fakePatients{patients: make(map[uuid.UUID]*model.Patient)}

	sweeper := NewSweeper(slots, &fakeDoctors{doctor: doctor}, patients, queue, enqueuer,
		config.SchedulerConfig{}, nil, nil)
	sweeper.now = func() time.Time { return now }

	return &sweepEnv{
		sweeper:  sweeper,
		slots:    slots,
		queue:    queue,
		enqueuer: enqueuer,
		doctor:   doctor,
		patients: patients,
		now:      now,
	}
}

func (e *sweepEnv) addPatient(name string) *model.Patient {
	p := &model.Patient{
		Base:  model.Base{ID: uuid.New()},
		Name:  name,
		Email: name + "@patient.test",
		Phone: "+15550100",
	}
	e.patients.patients[p.ID] = p
	return p
}

func (e *sweepEnv) slot(start time.Time, status model.SlotStatus, patientID *uuid.UUID) *model.Slot {
	return e.slots.add(&model.Slot{
		DoctorID:     e.doctor.ID,
		PatientID:    patientID,
		StartTime:    start,
		DurationMins: 30,
		Status:       status,
	})
}

func TestPromoteMovesOpenWindowsToInProgress(t *testing.T) {
	env := newSweepEnv()
	p := env.addPatient("ramesh")

	inWindow := env.slot(env.now.Add(-10*time.Minute), model.SlotStatusBooked, &p.ID)
	future := env.slot(env.now.Add(time.Hour), model.SlotStatusBooked, &p.ID)
	available := env.slot(env.now.Add(-10*time.Minute), model.SlotStatusAvailable, nil)

	require.NoError(t, env.sweeper.Promote(context.Background()))

	assert.Equal(t, model.SlotStatusInProgress, env.slots.slots[inWindow.ID].Status)
	assert.Equal(t, model.SlotStatusBooked, env.slots.slots[future.ID].Status)
	assert.Equal(t, model.SlotStatusAvailable, env.slots.slots[available.ID].Status)
}

func TestPromoteClearsQueuePosition(t *testing.T) {
	env := newSweepEnv()
	p := env.addPatient("ramesh")

	slot := env.slot(env.now.Add(-10*time.Minute), model.SlotStatusBooked, &p.ID)
	pos := 1
	slot.QueuePosition = &pos

	require.NoError(t, env.sweeper.Promote(context.Background()))

	promoted := env.slots.slots[slot.ID]
	assert.Equal(t, model.SlotStatusInProgress, promoted.Status)
	assert.Nil(t, promoted.QueuePosition)
}

func TestPromoteIsIdempotent(t *testing.T) {
	env := newSweepEnv()
	p := env.addPatient("ramesh")
	slot := env.slot(env.now.Add(-10*time.Minute), model.SlotStatusBooked, &p.ID)

	require.NoError(t, env.sweeper.Promote(context.Background()))
	require.NoError(t, env.sweeper.Promote(context.Background()))

	assert.Equal(t, model.SlotStatusInProgress, env.slots.slots[slot.ID].Status)
}

func TestExpireCompletesAndRecalculates(t *testing.T) {
	env := newSweepEnv()
	p := env.addPatient("ramesh")

	done := env.slot(env.now.Add(-time.Hour), model.SlotStatusInProgress, &p.ID)
	// A booked slot whose window passed without promotion expires too.
	missed := env.slot(env.now.Add(-2*time.Hour), model.SlotStatusBooked, &p.ID)

	require.NoError(t, env.sweeper.Expire(context.Background()))

	assert.Equal(t, model.SlotStatusCompleted, env.slots.slots[done.ID].Status)
	assert.Equal(t, model.SlotStatusCompleted, env.slots.slots[missed.ID].Status)
	assert.Nil(t, env.slots.slots[done.ID].QueuePosition)

	require.Len(t, env.queue.calls, 2)
	assert.Equal(t, env.doctor.ID, env.queue.calls[0].doctorID)
}

func TestExpireNotifiesNextPatient(t *testing.T) {
	env := newSweepEnv()
	done := env.addPatient("done")
	next := env.addPatient("next")

	env.slot(env.now.Add(-time.Hour), model.SlotStatusInProgress, &done.ID)
	upcoming := env.slot(env.now.Add(time.Hour), model.SlotStatusBooked, &next.ID)

	require.NoError(t, env.sweeper.Expire(context.Background()))

	var patientNext *model.PatientNextPayload
	queueUpdates := 0
	for _, evt := range env.enqueuer.events {
		switch evt.Type {
		case model.EventPatientNext:
			payload := evt.Payload.(model.PatientNextPayload)
			patientNext = &payload
		case model.EventQueueUpdated:
			queueUpdates++
		}
	}

	require.NotNil(t, patientNext)
	assert.Equal(t, upcoming.ID, patientNext.SlotID)
	assert.Equal(t, next.ID, patientNext.Patient.ID)
	assert.Equal(t, env.doctor.Name, patientNext.DoctorName)
	assert.Equal(t, 1, queueUpdates)
}

func TestExpireWithoutNextPatient(t *testing.T) {
	env := newSweepEnv()
	p := env.addPatient("ramesh")
	env.slot(env.now.Add(-time.Hour), model.SlotStatusInProgress, &p.ID)

	require.NoError(t, env.sweeper.Expire(context.Background()))

	for _, evt := range env.enqueuer.events {
		assert.NotEqual(t, model.EventPatientNext, evt.Type)
	}
}

func TestExpireNothingDue(t *testing.T) {
	env := newSweepEnv()
	p := env.addPatient("ramesh")
	env.slot(env.now.Add(time.Hour), model.SlotStatusBooked, &p.ID)

	require.NoError(t, env.sweeper.Expire(context.Background()))

	assert.Empty(t, env.enqueuer.events)
	assert.Empty(t, env.queue.calls)
}
