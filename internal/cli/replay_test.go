package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grindolympiads/internal/timing"
)

const sampleLog = `[
  {"type": "openProblem", "problemLabel": "1", "timestamp": "2024-03-01T09:00:00Z"},
  {"type": "openProblem", "problemLabel": "2", "timestamp": "2024-03-01T09:00:40Z"},
  {"type": "submitAnswer", "problemLabel": "1", "timestamp": "2024-03-01T09:00:30Z"},
  {"type": "navigateAway", "problemLabel": "1", "timestamp": "2024-03-01T09:00:31Z"}
]`

func writeLog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actions.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReplayCommandJSON(t *testing.T) {
	var out bytes.Buffer
	cmd := NewReplayCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--file", writeLog(t, sampleLog),
		"--started-at", "2024-03-01T09:00:00Z",
		"--now", "2024-03-01T09:00:50Z",
		"--labels", "1,2",
		"--json",
	})
	require.NoError(t, cmd.Execute())

	var result timing.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 30*time.Second, result.Timers["1"].FirstTimer)
	assert.Equal(t, time.Second, result.Timers["1"].SecondTimer)
	assert.True(t, result.Timers["1"].FirstTimerLocked)
	assert.Equal(t, 10*time.Second, result.Timers["2"].FirstTimer)
	assert.Equal(t, 9*time.Second, result.TotalPaused)
}

func TestReplayCommandTableDefaults(t *testing.T) {
	var out bytes.Buffer
	cmd := NewReplayCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", writeLog(t, `{"actions": `+sampleLog+`}`)})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "PROBLEM")
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[1], "1 "))
	assert.Contains(t, lines[1], "30s")
	assert.Contains(t, lines[3], "9s")
}

func TestReplayCommandRejectsBadTime(t *testing.T) {
	cmd := NewReplayCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--file", writeLog(t, sampleLog), "--now", "yesterday"})
	assert.Error(t, cmd.Execute())
}

func TestLabelsFromActions(t *testing.T) {
	actions, err := readActions(writeLog(t, sampleLog))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, labelsFromActions(actions))
}
