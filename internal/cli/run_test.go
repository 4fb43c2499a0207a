package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSubmitFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execRun(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestRunMemoryEndToEnd(t *testing.T) {
	submit := writeSubmitFile(t, `{
		"type": "Create",
		"actor": "alice",
		"object": {"type": "Note", "content": "shipping #go today"}
	}`)

	buf, err := execRun(t, "text",
		"--memory",
		"--namespace", "https://ex.com",
		"--rules", filepath.Join("testdata", "rules"),
		"--submit", submit,
	)
	require.NoError(t, err)

	// The Create matches both rules; the HashtagResult and Log entries
	// they produce are resubmitted and drained as activities of their
	// own, matching nothing further.
	assert.Contains(t, buf.String(), "submitted 1, processed 3 (3 finalized, 0 tombstoned)")
}

func TestRunJSONSummary(t *testing.T) {
	submit := writeSubmitFile(t, `[
		{"type": "Create", "actor": "alice", "object": {"type": "Note", "content": "plain"}},
		{"type": "Listen", "actor": "bob"}
	]`)

	buf, err := execRun(t, "json",
		"--memory",
		"--namespace", "https://ex.com",
		"--rules", filepath.Join("testdata", "rules"),
		"--submit", submit,
	)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), data["submitted"])
	assert.Equal(t, float64(0), data["tombstoned"])
}

func TestRunSQLite(t *testing.T) {
	submit := writeSubmitFile(t, `{"type": "Listen", "actor": "carol"}`)
	dbPath := filepath.Join(t.TempDir(), "bus.db")

	buf, err := execRun(t, "text",
		"--db", dbPath,
		"--namespace", "https://ex.com",
		"--submit", submit,
	)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "submitted 1, processed 1 (1 finalized, 0 tombstoned)")
	assert.FileExists(t, dbPath)
}

func TestRunRejectsInvalidSubmission(t *testing.T) {
	submit := writeSubmitFile(t, `{"type": "Create"}`) // no actor

	_, err := execRun(t, "text", "--memory", "--namespace", "https://ex.com", "--submit", submit)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "submission rejected")
}

func TestRunBadRulesPath(t *testing.T) {
	_, err := execRun(t, "text", "--memory", "--rules", "/nonexistent/rules")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunBadSubmitFile(t *testing.T) {
	submit := writeSubmitFile(t, `not json`)

	_, err := execRun(t, "text", "--memory", "--submit", submit)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunUnknownBundle(t *testing.T) {
	_, err := execRun(t, "text", "--memory", "--effects", "standard/ghost")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReadSubmissions(t *testing.T) {
	single := writeSubmitFile(t, `{"type": "Create", "actor": "a"}`)
	batch, err := readSubmissions(single)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "Create", batch[0].Type())

	array := writeSubmitFile(t, `[{"type": "A", "actor": "a"}, {"type": "B", "actor": "b"}]`)
	batch, err = readSubmissions(array)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	_, err = readSubmissions(writeSubmitFile(t, `"just a string"`))
	require.Error(t, err)

	_, err = readSubmissions(writeSubmitFile(t, `[42]`))
	require.Error(t, err)
}
