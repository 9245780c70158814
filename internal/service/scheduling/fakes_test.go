package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careclinic/scheduler-api/internal/config"
	"github.com/careclinic/scheduler-api/internal/model"
	apperrors "github.com/careclinic/scheduler-api/pkg/errors"
)

// fakeSlotRepo mirrors the conditional-update semantics of the postgres
// implementation in memory, including single-winner claims.
type fakeSlotRepo struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*model.Slot
}

func newFakeSlotRepo() *fakeSlotRepo {
	return &fakeSlotRepo{slots: make(map[uuid.UUID]*model.Slot)}
}

func (r *fakeSlotRepo) add(slot *model.Slot) *model.Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	cp := *slot
	r.slots[cp.ID] = &cp
	return &cp
}

func (r *fakeSlotRepo) get(id uuid.UUID) *model.Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[id]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (r *fakeSlotRepo) CreateBatch(_ context.Context, slots []*model.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, slot := range slots {
		slot.ID = uuid.New()
		cp := *slot
		r.slots[cp.ID] = &cp
	}
	return nil
}

func (r *fakeSlotRepo) Get(_ context.Context, id uuid.UUID) (*model.Slot, error) {
	if s := r.get(id); s != nil {
		return s, nil
	}
	return nil, apperrors.NewNotFound("slot", nil)
}

func (r *fakeSlotRepo) GetByDoctorAndTime(_ context.Context, doctorID uuid.UUID, at time.Time) (*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.DoctorID == doctorID && s.StartTime.Equal(at) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("slot", nil)
}

func (r *fakeSlotRepo) ExistingTimes(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var times []time.Time
	for _, s := range r.slots {
		if s.DoctorID == doctorID && !s.StartTime.Before(from) && s.StartTime.Before(to) {
			times = append(times, s.StartTime)
		}
	}
	return times, nil
}

func (r *fakeSlotRepo) Claim(_ context.Context, slotID, patientID uuid.UUID, position int, fee int64, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok || s.PatientID != nil || s.Status != model.SlotStatusAvailable {
		return false, nil
	}
	pid := patientID
	pos := position
	s.PatientID = &pid
	s.Status = model.SlotStatusBooked
	s.QueuePosition = &pos
	s.Fee = fee
	s.Reason = reason
	s.ReopenedFrom = model.ReopenedNone
	return true, nil
}

func (r *fakeSlotRepo) ReopenCancelled(_ context.Context, slotID uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok || s.Status != model.SlotStatusCancelled || !s.StartTime.After(now) {
		return false, nil
	}
	s.Status = model.SlotStatusAvailable
	s.ReopenedFrom = model.ReopenedFromCancellation
	return true, nil
}

func (r *fakeSlotRepo) Release(_ context.Context, slotID uuid.UUID, provenance model.ReopenProvenance) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok || s.Status != model.SlotStatusBooked {
		return false, nil
	}
	s.PatientID = nil
	s.QueuePosition = nil
	s.Reason = ""
	s.Status = model.SlotStatusAvailable
	s.ReopenedFrom = provenance
	return true, nil
}

func (r *fakeSlotRepo) ListBookedForDay(_ context.Context, doctorID uuid.UUID, day time.Time) ([]*model.Slot, error) {
	from := startOfDay(day)
	to := from.AddDate(0, 0, 1)
	return r.list(func(s *model.Slot) bool {
		return s.DoctorID == doctorID && s.Status == model.SlotStatusBooked &&
			!s.StartTime.Before(from) && s.StartTime.Before(to)
	}), nil
}

func (r *fakeSlotRepo) ListUnclaimedForDayAfter(_ context.Context, doctorID uuid.UUID, day time.Time, after time.Time) ([]*model.Slot, error) {
	from := startOfDay(day)
	to := from.AddDate(0, 0, 1)
	if after.After(from) {
		from = after
	}
	return r.list(func(s *model.Slot) bool {
		return s.DoctorID == doctorID && s.Status == model.SlotStatusAvailable && s.PatientID == nil &&
			s.StartTime.After(from) && s.StartTime.Before(to)
	}), nil
}

func (r *fakeSlotRepo) CountBookedForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) (int, error) {
	booked, _ := r.ListBookedForDay(ctx, doctorID, day)
	return len(booked), nil
}

func (r *fakeSlotRepo) CountBookedAt(_ context.Context, doctorID uuid.UUID, at time.Time) (int, error) {
	return len(r.list(func(s *model.Slot) bool {
		return s.DoctorID == doctorID && s.Status == model.SlotStatusBooked && s.StartTime.Equal(at)
	})), nil
}

func (r *fakeSlotRepo) ShiftQueuePositions(_ context.Context, doctorID uuid.UUID, day time.Time, exclude uuid.UUID) error {
	from := startOfDay(day)
	to := from.AddDate(0, 0, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.DoctorID == doctorID && s.Status == model.SlotStatusBooked && s.ID != exclude &&
			!s.StartTime.Before(from) && s.StartTime.Before(to) && s.QueuePosition != nil {
			next := *s.QueuePosition + 1
			s.QueuePosition = &next
		}
	}
	return nil
}

func (r *fakeSlotRepo) UpdateQueuePosition(_ context.Context, slotID uuid.UUID, position int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok || s.Status != model.SlotStatusBooked {
		return apperrors.NewNotFound("booked slot", nil)
	}
	pos := position
	s.QueuePosition = &pos
	return nil
}

func (r *fakeSlotRepo) FindActiveForPatient(_ context.Context, patientID uuid.UUID, from, to time.Time) (*model.Slot, error) {
	matches := r.list(func(s *model.Slot) bool {
		return s.PatientID != nil && *s.PatientID == patientID && s.Status != model.SlotStatusCancelled &&
			!s.StartTime.Before(from) && s.StartTime.Before(to)
	})
	if len(matches) == 0 {
		return nil, apperrors.NewNotFound("active appointment", nil)
	}
	return matches[0], nil
}

func (r *fakeSlotRepo) ListPromotable(_ context.Context, now time.Time) ([]*model.Slot, error) {
	return r.list(func(s *model.Slot) bool {
		return s.Status == model.SlotStatusBooked && !s.StartTime.After(now) && s.EndTime().After(now)
	}), nil
}

func (r *fakeSlotRepo) ListExpirable(_ context.Context, now time.Time) ([]*model.Slot, error) {
	return r.list(func(s *model.Slot) bool {
		return (s.Status == model.SlotStatusBooked || s.Status == model.SlotStatusInProgress) &&
			!s.EndTime().After(now)
	}), nil
}

func (r *fakeSlotRepo) MarkInProgress(_ context.Context, slotID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok || s.Status != model.SlotStatusBooked {
		return false, nil
	}
	s.Status = model.SlotStatusInProgress
	s.QueuePosition = nil
	return true, nil
}

func (r *fakeSlotRepo) MarkCompleted(_ context.Context, slotID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok || (s.Status != model.SlotStatusBooked && s.Status != model.SlotStatusInProgress) {
		return false, nil
	}
	s.Status = model.SlotStatusCompleted
	s.QueuePosition = nil
	return true, nil
}

func (r *fakeSlotRepo) NextBookedAfter(_ context.Context, doctorID uuid.UUID, day time.Time, after time.Time) (*model.Slot, error) {
	to := startOfDay(day).AddDate(0, 0, 1)
	matches := r.list(func(s *model.Slot) bool {
		return s.DoctorID == doctorID && s.Status == model.SlotStatusBooked &&
			s.StartTime.After(after) && s.StartTime.Before(to)
	})
	if len(matches) == 0 {
		return nil, apperrors.NewNotFound("next booked slot", nil)
	}
	return matches[0], nil
}

func (r *fakeSlotRepo) list(match func(*model.Slot) bool) []*model.Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Slot
	for _, s := range r.slots {
		if match(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

type fakeDoctorRepo struct {
	doctors map[uuid.UUID]*model.Doctor
}

func (r *fakeDoctorRepo) Get(_ context.Context, id uuid.UUID) (*model.Doctor, error) {
	if d, ok := r.doctors[id]; ok {
		return d, nil
	}
	return nil, apperrors.NewNotFound("doctor", nil)
}

type fakePatientRepo struct {
	patients map[uuid.UUID]*model.Patient
}

func (r *fakePatientRepo) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	if p, ok := r.patients[id]; ok {
		return p, nil
	}
	return nil, apperrors.NewNotFound("patient", nil)
}

// testEnv wires a service against in-memory fakes with a frozen clock.
type testEnv struct {
	svc      *Service
	slots    *fakeSlotRepo
	doctor   *model.Doctor
	patient  *model.Patient
	patients *fakePatientRepo
	now      time.Time
}

func newTestEnv() *testEnv {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	doctor := &model.Doctor{
		Base:       model.Base{ID: uuid.New()},
		Name:       "Dr. Asha Rao",
		Email:      "asha.rao@clinic.test",
		Phone:      "+15550100",
		DefaultFee: 500,
	}
	patient := &model.Patient{
		Base:  model.Base{ID: uuid.New()},
		Name:  "Ramesh Iyer",
		Email: "ramesh@patient.test",
		Phone: "+15550200",
	}

	slots := newFakeSlotRepo()
	doctors := &fakeDoctorRepo{doctors: map[uuid.UUID]*model.Doctor{doctor.ID: doctor}}
	patients := &fakePatientRepo{patients: map[uuid.UUID]*model.Patient{patient.ID: patient}}

	svc := NewService(slots, doctors, patients, config.SchedulerConfig{}, nil, nil)
	svc.now = func() time.Time { return now }

	return &testEnv{
		svc:      svc,
		slots:    slots,
		doctor:   doctor,
		patient:  patient,
		patients: patients,
		now:      now,
	}
}

func (e *testEnv) addPatient(name, email, phone string) *model.Patient {
	p := &model.Patient{
		Base:  model.Base{ID: uuid.New()},
		Name:  name,
		Email: email,
		Phone: phone,
	}
	e.patients.patients[p.ID] = p
	return p
}

func (e *testEnv) availableSlot(start time.Time) *model.Slot {
	return e.slots.add(&model.Slot{
		DoctorID:     e.doctor.ID,
		StartTime:    start,
		DurationMins: 30,
		Status:       model.SlotStatusAvailable,
		Fee:          e.doctor.DefaultFee,
	})
}

func (e *testEnv) bookedSlot(start time.Time, patientID uuid.UUID, position int) *model.Slot {
	pid := patientID
	pos := position
	return e.slots.add(&model.Slot{
		DoctorID:      e.doctor.ID,
		PatientID:     &pid,
		StartTime:     start,
		DurationMins:  30,
		QueuePosition: &pos,
		Status:        model.SlotStatusBooked,
		Fee:           e.doctor.DefaultFee,
	})
}
