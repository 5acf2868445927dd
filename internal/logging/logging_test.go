package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	log "github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
)

// These tests mutate the global logrus logger and must not run in parallel.

func TestSetupJSON(t *testing.T) {
	defer log.SetOutput(log.StandardLogger().Out)
	var buf bytes.Buffer
	assert.NilError(t, Setup("debug", "json", &buf))

	log.WithField("component", "test").Debug("hello")

	var entry map[string]interface{}
	assert.NilError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, entry["msg"], "hello")
	assert.Equal(t, entry["component"], "test")
	assert.Equal(t, entry["level"], "debug")
}

func TestSetupLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	assert.NilError(t, Setup("warn", "text", &buf))
	log.Info("dropped")
	assert.Equal(t, buf.Len(), 0)
	log.Warn("kept")
	assert.Assert(t, bytes.Contains(buf.Bytes(), []byte("kept")))
}

func TestSetupRejectsBadInput(t *testing.T) {
	assert.ErrorContains(t, Setup("loud", "text", nil), "invalid log level")
	assert.ErrorContains(t, Setup("info", "xml", nil), "invalid log format")
}
