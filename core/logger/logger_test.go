package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/certward/core/logger"
)

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(
		logger.WithJSONFormatter(),
		logger.WithOutput(&buf),
		logger.WithAttr(slog.String("app", "certward")),
	)

	log.Info("certificate issued", logger.Domain("example.com"), logger.Component("acme"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "certificate issued", record["msg"])
	assert.Equal(t, "certward", record["app"])
	assert.Equal(t, "example.com", record["domain"])
	assert.Equal(t, "acme", record["component"])
}

func TestNewLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.WithLevel(slog.LevelWarn), logger.WithOutput(&buf))

	log.Info("dropped")
	assert.Empty(t, buf.String())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestErrorAttrNilSafety(t *testing.T) {
	assert.Equal(t, slog.Attr{}, logger.Error(nil))

	attr := logger.Error(errors.New("boom"))
	assert.Equal(t, "error", attr.Key)
}

func TestElapsed(t *testing.T) {
	attr := logger.Elapsed(time.Now().Add(-time.Second))
	assert.Equal(t, "elapsed", attr.Key)
	assert.GreaterOrEqual(t, attr.Value.Duration(), time.Second)
}
