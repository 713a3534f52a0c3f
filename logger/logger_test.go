package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	t.Setenv("LOG_LEVEL", "debug")
	InitWithWriter(&buf)

	ForIngest().Info().Str("run_id", "abc").Msg("iteration complete")

	out := buf.String()
	assert.Contains(t, out, `"component":"ingest"`)
	assert.Contains(t, out, `"run_id":"abc"`)
	assert.Contains(t, out, "iteration complete")
}

func TestLogErrorIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	t.Setenv("LOG_LEVEL", "info")
	InitWithWriter(&buf)

	LogError("store", errors.New("commit failed"), "iteration %d", 3)

	out := buf.String()
	assert.Contains(t, out, `"component":"store"`)
	assert.Contains(t, out, "commit failed")
	assert.Contains(t, out, "iteration 3")
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	t.Setenv("LOG_LEVEL", "chatty")
	assert.Equal(t, "info", getLogLevel().String())
}
