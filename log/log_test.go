package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})
	t.Cleanup(func() { Logger = zerolog.Nop() })

	l := WithComponent("scheduler")
	l.Info().Msg("dropped")
	l.Warn().Str("slot", "abc-0").Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "abc-0", entry["slot"])
	assert.Equal(t, "kept", entry["message"])
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	t.Cleanup(func() { Logger = zerolog.Nop() })

	c := CronLogger{Logger: WithComponent("cron")}
	c.Info("schedule", "entry", 1)
	c.Error(errors.New("boom"), "job failed", "entry", 2)

	out := buf.String()
	assert.Contains(t, out, `"entry":1`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, "job failed")
}
