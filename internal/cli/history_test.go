package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// renderToDB renders groupScript into a fresh database and returns the
// database path and session ID.
func renderToDB(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "composer.db")
	script := writeFile(t, dir, "ops.yaml", groupScript)

	out, _, err := execute(t, "--format", "json", "render", censusModel(t), "--script", script, "--db", db)
	require.NoError(t, err)
	var resp struct {
		Data RenderResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data.Session)
	return db, resp.Data.Session
}

func TestHistory_Text(t *testing.T) {
	db, id := renderToDB(t)

	out, _, err := execute(t, "history", db, id)
	require.NoError(t, err)
	assert.Contains(t, out, "Session "+id+" (source names")
	assert.Contains(t, out, "add_field")
	assert.Contains(t, out, "add_order_by")
	assert.NotContains(t, out, `"pipeline"`)

	out, _, err = execute(t, "history", db, id, "--query")
	require.NoError(t, err)
	assert.Contains(t, out, `"pipeline"`)
}

func TestHistory_JSON(t *testing.T) {
	db, id := renderToDB(t)

	out, _, err := execute(t, "--format", "json", "history", db, id)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   HistoryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, id, resp.Data.Session.ID)
	require.Len(t, resp.Data.Snapshots, 3)

	labels := make([]string, len(resp.Data.Snapshots))
	for i, s := range resp.Data.Snapshots {
		labels[i] = s.Label
		if i > 0 {
			assert.Greater(t, s.Seq, resp.Data.Snapshots[i-1].Seq)
		}
	}
	assert.Equal(t, []string{"add_field", "add_field", "add_order_by"}, labels)
	assert.Greater(t, resp.Data.Snapshots[0].Seq, resp.Data.Session.CreatedSeq)
}

func TestHistory_Errors(t *testing.T) {
	db, _ := renderToDB(t)

	_, _, err := execute(t, "history", db, "nobody")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown session")

	_, _, err = execute(t, "history", filepath.Join(t.TempDir(), "missing.db"), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database not found")

	out, _, err := execute(t, "--format", "json", "history", db, "nobody")
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}
