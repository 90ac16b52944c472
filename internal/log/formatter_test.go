package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormatterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(NewFormatter(true))

	logger.WithField("component", "queue").Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "queue", entry["component"])
	assert.Contains(t, entry, "ts")
}

func TestNewFormatterText(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(NewFormatter(false))

	logger.WithField("component", "sync").Warn("drain skipped")

	out := buf.String()
	assert.Contains(t, out, "drain skipped")
	assert.Contains(t, out, "component=sync")
	assert.Contains(t, out, "level=warning")
}

func TestWithComponent(t *testing.T) {
	entry := WithComponent("connectivity")
	assert.Equal(t, "connectivity", entry.Data["component"])
}
