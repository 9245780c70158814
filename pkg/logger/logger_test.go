package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Info takes alternating key/value arguments; a field passed that way must
// reach the output.
func TestInfoEmitsPairFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: InfoLevel, Output: &buf})

	l.Info("starting API server", "port", 8080)

	out := buf.String()
	assert.Contains(t, out, "starting API server")
	assert.Contains(t, out, "port")
	assert.Contains(t, out, "8080")
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: InfoLevel, Output: &buf})

	l.Debug("noisy detail")

	assert.Empty(t, buf.String())
}
