package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfWrappedError(t *testing.T) {
	err := fmt.Errorf("booking failed: %w", NewConflict("slot taken", nil))
	assert.Equal(t, ErrConflict, CodeOf(err))
	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrTransient, CodeOf(errors.New("boom")))
}

func TestNotFoundMessageAndUnwrap(t *testing.T) {
	cause := errors.New("sql: no rows in result set")
	err := NewNotFound("slot", cause)
	assert.Equal(t, "slot not found: sql: no rows in result set", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestConflictCarriesDetails(t *testing.T) {
	details := map[string]string{"blocking": "abc"}
	err := NewConflict("already booked", details)
	assert.Equal(t, details, err.Details)
	assert.Equal(t, "already booked", err.Error())
}
