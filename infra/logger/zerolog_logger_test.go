package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLevel(t *testing.T) {
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		mu.Lock()
		format = FormatJSON
		mu.Unlock()
	})
}

func TestZerologLoggerJSON(t *testing.T) {
	resetLevel(t)
	var buf bytes.Buffer
	l := NewWithWriter("allocation", &buf)
	l.Debugw("allocated", map[string]any{"consumer_id": "car1", "current": 7.2})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "allocation", entry["component"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "car1", entry["consumer_id"])
	assert.Equal(t, 7.2, entry["current"])
	assert.Equal(t, "allocated", entry["message"])
}

func TestConfigureLevelFiltersDebug(t *testing.T) {
	resetLevel(t)
	require.NoError(t, Configure("warn", ""))
	var buf bytes.Buffer
	l := NewWithWriter("control", &buf)
	l.Debugf("tick %d", 1)
	l.Infof("tick done")
	assert.Zero(t, buf.Len())
	l.Warnf("stale input for %s", "car1")
	assert.Contains(t, buf.String(), "stale input for car1")
}

func TestConfigureRejectsUnknown(t *testing.T) {
	resetLevel(t)
	assert.Error(t, Configure("verbose", ""))
	assert.Error(t, Configure("info", "xml"))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)
	lvl, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)
}

func TestConsoleFormat(t *testing.T) {
	resetLevel(t)
	require.NoError(t, Configure("info", FormatConsole))
	var buf bytes.Buffer
	NewWithWriter("mqtt", consoleWriter(&buf)).log.Info().Msg("connected")
	out := buf.String()
	assert.True(t, strings.Contains(out, "connected"), out)
	assert.False(t, strings.HasPrefix(out, "{"), out)
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Debugf("x")
	l.Debugw("x", nil)
	l.Infof("x")
	l.Warnf("x")
	l.Errorf("x")
}
