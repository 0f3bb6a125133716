package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T, level string, redact bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	Configure(level, redact)
	t.Cleanup(func() {
		SetOutput(prev)
		Configure("info", true)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestLogEntryFields(t *testing.T) {
	buf := captureLogs(t, "debug", true)

	Info("fetched change events", "channel", "Budget", "count", 3)

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "fetched change events", entry["msg"])
	assert.Equal(t, "Budget", entry["channel"])
	assert.Equal(t, "3", entry["count"])
}

func TestLevelFiltering(t *testing.T) {
	buf := captureLogs(t, "warn", true)

	Info("dropped")
	Debug("dropped too")
	Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "kept")
}

func TestSecretRedaction(t *testing.T) {
	buf := captureLogs(t, "info", true)
	Info("token refreshed", "access_token", "ya29.a0AfH6SMB", "customer_id", "1234567890")
	assert.Contains(t, buf.String(), `"access_token":"ya29***"`)
	assert.Contains(t, buf.String(), `"customer_id":"1234567890"`)

	buf.Reset()
	Configure("info", false)
	Info("token refreshed", "access_token", "ya29.a0AfH6SMB")
	assert.Contains(t, buf.String(), "ya29.a0AfH6SMB")
}

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "***", RedactSecret("abc"))
	assert.Equal(t, "1//0***", RedactSecret("1//0gRefreshToken"))
}
