package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawcc/trumpsword/internal/domain"
	"github.com/shawcc/trumpsword/internal/source"
)

var configEnv = []string{
	"DATABASE_PATH", "PORT", "NATS_URL",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
	"MEEGLE_API_BASE", "MEEGLE_AUTH_URL", "MEEGLE_APP_ID", "MEEGLE_APP_SECRET",
	"MEEGLE_PROJECT_KEY", "MEEGLE_TYPE_MAP",
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "trumpsword", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{
		"serve", "collect", "historical", "retry", "reset",
		"events", "processes", "transition", "templates",
	} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"verbose", "format", "config", "db"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

// run executes the CLI against a fresh database with the given sources.
func run(t *testing.T, db string, sources []source.Adapter, args ...string) (int, string, string) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
	var out, errOut bytes.Buffer
	opts := &RootOptions{Sources: sources}
	code := execute(opts, append([]string{"--db", db}, args...), &out, &errOut)
	return code, out.String(), errOut.String()
}

func decode(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func whiteHouse() *source.Static {
	return &source.Static{Source: domain.SourceWhiteHouse, Items: []domain.RawItem{
		{
			Source: domain.SourceWhiteHouse,
			Key:    domain.Key{URL: "https://www.whitehouse.gov/presidential-actions/eo-1/"},
			Title:  "Executive Order on Tariffs",
			Date:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			Action: &domain.ActionPayload{Category: "executive-order"},
		},
		{Source: domain.SourceWhiteHouse, Title: "No link", Action: &domain.ActionPayload{}},
	}}
}

func TestCollect_JSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")

	code, out, _ := run(t, db, []source.Adapter{whiteHouse()}, "--format", "json", "collect")
	require.Equal(t, ExitSuccess, code, out)

	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["total_processed"])
	assert.Equal(t, float64(1), data["dropped"])

	code, out, _ = run(t, db, nil, "--format", "json", "events")
	require.Equal(t, ExitSuccess, code, out)
	data = decode(t, out).Data.(map[string]any)
	assert.Equal(t, float64(1), data["total"])
}

func TestCollect_TextReportsSourceErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")
	broken := &source.Static{Source: domain.SourceCongress, Err: assert.AnError}

	code, out, _ := run(t, db, []source.Adapter{broken, whiteHouse()}, "collect")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Processed 1 items (1 dropped, 1 errors)")
	assert.Contains(t, out, "congress")
}

func TestHistorical_RequiresValidSince(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")

	code, _, _ := run(t, db, nil, "historical")
	assert.Equal(t, ExitCommandError, code)

	code, out, _ := run(t, db, nil, "--format", "json", "historical", "--since", "yesterday")
	assert.Equal(t, ExitCommandError, code)
	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "COMMAND", resp.Error.Code)
}

func TestReset_RequiresConfirmation(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")
	code, _, _ := run(t, db, []source.Adapter{whiteHouse()}, "collect")
	require.Equal(t, ExitSuccess, code)

	code, _, errOut := run(t, db, nil, "reset")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut, "--yes")

	code, out, _ := run(t, db, nil, "reset", "--yes")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Deleted 1 events")
}

func TestTransition_Validation(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")

	tests := []struct {
		name string
		args []string
	}{
		{"neither flag", []string{"transition", "p1"}},
		{"both flags", []string{"transition", "p1", "--node", "Committee", "--status", "completed"}},
		{"bad data", []string{"transition", "p1", "--node", "Committee", "--data", "{"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := run(t, db, nil, tt.args...)
			assert.Equal(t, ExitCommandError, code)
		})
	}
}

func TestTransition_UnknownProcess(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")

	code, out, _ := run(t, db, nil, "--format", "json", "transition", "missing", "--status", "completed")
	assert.Equal(t, ExitCommandError, code)
	assert.Equal(t, "PROCESS_NOT_FOUND", decode(t, out).Error.Code)
}

func TestTemplates_Seeded(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")

	code, out, _ := run(t, db, nil, "--format", "json", "templates")
	require.Equal(t, ExitSuccess, code, out)
	templates := decode(t, out).Data.([]any)
	assert.NotEmpty(t, templates)
}

func TestUnknownFlag(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")

	code, _, _ := run(t, db, nil, "collect", "--bogus")
	assert.Equal(t, ExitCommandError, code)
}

func TestInvalidFormat(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")

	code, _, errOut := run(t, db, nil, "--format", "xml", "templates")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut, "invalid format")
}
