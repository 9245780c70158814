package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careclinic/scheduler-api/internal/config"
	"github.com/careclinic/scheduler-api/internal/model"
	"github.com/careclinic/scheduler-api/internal/repository"
	scheduling "github.com/careclinic/scheduler-api/internal/service/scheduling"
	apperrors "github.com/careclinic/scheduler-api/pkg/errors"
)

// fakeSlotRepo implements only the methods the reschedule path touches;
// the embedded interface panics on anything else.
type fakeSlotRepo struct {
	repository.SlotRepository
	slots map[uuid.UUID]*model.Slot
}

func (f *fakeSlotRepo) Get(_ context.Context, id uuid.UUID) (*model.Slot, error) {
	if s, ok := f.slots[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, apperrors.NewNotFound("slot", nil)
}

func (f *fakeSlotRepo) GetByDoctorAndTime(_ context.Context, doctorID uuid.UUID, at time.Time) (*model.Slot, error) {
	for _, s := range f.slots {
		if s.DoctorID == doctorID && s.StartTime.Equal(at) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("slot", nil)
}

func (f *fakeSlotRepo) CountBookedAt(_ context.Context, _ uuid.UUID, _ time.Time) (int, error) {
	return 0, nil
}

func (f *fakeSlotRepo) Claim(_ context.Context, slotID, patientID uuid.UUID, position int, fee int64, _ string) (bool, error) {
	s, ok := f.slots[slotID]
	if !ok || !s.IsClaimable() {
		return false, nil
	}
	s.PatientID = &patientID
	s.Status = model.SlotStatusBooked
	pos := position
	s.QueuePosition = &pos
	s.Fee = fee
	return true, nil
}

func (f *fakeSlotRepo) Release(_ context.Context, slotID uuid.UUID, provenance model.ReopenProvenance) (bool, error) {
	s, ok := f.slots[slotID]
	if !ok || s.Status != model.SlotStatusBooked {
		return false, nil
	}
	s.Status = model.SlotStatusAvailable
	s.PatientID = nil
	s.QueuePosition = nil
	s.ReopenedFrom = provenance
	return true, nil
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
	patient *model.Patient
}

func (f *fakePatients) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	if f.patient != nil && f.patient.ID == id {
		return f.patient, nil
	}
	return nil, apperrors.NewNotFound("patient", nil)
}

type fakeSink struct {
	events []model.Event
}

func (f *fakeSink) Enqueue(_ context.Context, events []model.Event) error {
	f.events = append(f.events, events...)
	return nil
}

func TestRescheduleInvalidatesBothDays(t *testing.T) {
	gin.SetMode(gin.TestMode)

	doctor := &model.Doctor{
		Base:  model.Base{ID: uuid.New()},
		Name:  "Dr. Asha Rao",
		Email: "asha.rao@clinic.test",
	}
	patient := &model.Patient{
		Base:  model.Base{ID: uuid.New()},
		Name:  "Ramesh Iyer",
		Email: "ramesh@patient.test",
		Phone: "+15550100",
	}

	oldStart := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	newStart := oldStart.Add(24 * time.Hour)

	pos := 1
	booked := &model.Slot{
		Base:          model.Base{ID: uuid.New()},
		DoctorID:      doctor.ID,
		PatientID:     &patient.ID,
		StartTime:     oldStart,
		DurationMins:  30,
		QueuePosition: &pos,
		Status:        model.SlotStatusBooked,
		Fee:           500,
	}
	target := &model.Slot{
		Base:         model.Base{ID: uuid.New()},
		DoctorID:     doctor.ID,
		StartTime:    newStart,
		DurationMins: 30,
		Status:       model.SlotStatusAvailable,
		Fee:          500,
	}

	repo := &fakeSlotRepo{slots: map[uuid.UUID]*model.Slot{booked.ID: booked, target.ID: target}}
	svc := scheduling.NewService(repo, &fakeDoctors{doctor: doctor}, &fakePatients{patient: patient},
		config.SchedulerConfig{}, nil, nil)
	h := NewHandler(svc, &fakeSink{})

	oldKey := availabilityKey(doctor.ID, oldStart.Format(dateLayout))
	newKey := availabilityKey(doctor.ID, newStart.Format(dateLayout))
	h.cache.Set(oldKey, []gin.H{}, cache.DefaultExpiration)
	h.cache.Set(newKey, []gin.H{}, cache.DefaultExpiration)

	body, err := json.Marshal(model.RescheduleRequest{StartTime: newStart})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPut,
		"/appointments/"+booked.ID.String()+"/reschedule", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: booked.ID.String()}}
	c.Set("claims", &model.TokenClaims{Role: model.RolePatient, PatientID: &patient.ID})

	h.Reschedule(c)
	require.Equal(t, http.StatusOK, w.Code)

	// Both the vacated day and the target day must drop their cached
	// availability.
	_, oldCached := h.cache.Get(oldKey)
	_, newCached := h.cache.Get(newKey)
	assert.False(t, oldCached)
	assert.False(t, newCached)
}
