package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careclinic/scheduler-api/internal/model"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	patientID := uuid.New()
	user := &model.User{
		Base:      model.Base{ID: uuid.New()},
		Email:     "ramesh@patient.test",
		Role:      model.RolePatient,
		PatientID: &patientID,
	}

	token, err := m.Generate(user)
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, model.RolePatient, claims.Role)
	require.NotNil(t, claims.PatientID)
	assert.Equal(t, patientID, *claims.PatientID)
	assert.Nil(t, claims.DoctorID)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issued := NewTokenManager("secret-a", time.Hour)
	validator := NewTokenManager("secret-b", time.Hour)

	token, err := issued.Generate(&model.User{
		Base:  model.Base{ID: uuid.New()},
		Email: "x@test",
		Role:  model.RoleAdmin,
	})
	require.NoError(t, err)

	_, err = validator.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m := NewTokenManager("test-secret", -time.Minute)

	token, err := m.Generate(&model.User{
		Base:  model.Base{ID: uuid.New()},
		Email: "x@test",
		Role:  model.RoleAdmin,
	})
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	_, err := m.Validate("not-a-token")
	assert.Error(t, err)
}
