package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grindolympiads/internal/app"
)

func TestAdminActionsCommandKeepsStdoutParseable(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("STATE_STORE", "memory")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("LOG_FORMAT", "console")

	configPath := filepath.Join(t.TempDir(), "missing.yaml")
	var out, errOut bytes.Buffer
	cmd := NewAdminActionsCmd(&configPath)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--admin", "demo-admin", "--date", "2024-01-01"})
	require.NoError(t, cmd.Execute())

	var result app.AdminActionsResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result), "stdout: %s", out.String())
	assert.Empty(t, result.Actions)
	assert.Empty(t, result.ChallengeRuns)

	assert.Contains(t, errOut.String(), "postgres not configured")
	assert.Contains(t, errOut.String(), "admin actions fetched")
}

func TestAdminActionsCommandRejectsNonAdmin(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("STATE_STORE", "memory")

	configPath := filepath.Join(t.TempDir(), "missing.yaml")
	var out, errOut bytes.Buffer
	cmd := NewAdminActionsCmd(&configPath)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--admin", "demo-student", "--date", "2024-01-01"})
	cmd.SilenceUsage = true

	require.Error(t, cmd.Execute())
	assert.Empty(t, out.String())
}
