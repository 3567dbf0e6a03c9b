package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/rickmorty-sync/internal/testutil"
	"github.com/Sternrassler/rickmorty-sync/pkg/ledger"
	"github.com/Sternrassler/rickmorty-sync/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T) *testutil.MockAPI {
	t.Helper()
	api := testutil.NewMockAPI()
	t.Cleanup(api.Close)

	api.SetRecords("episode", 1,
		testutil.EpisodeJSON(1, "Pilot", "December 2, 2013"),
		testutil.EpisodeJSON(28, "The Ricklantis Mixup", "September 10, 2017"),
	)
	api.SetRecords("location", 20, testutil.LocationJSON(1, "Earth (C-137)"))
	api.SetRecords("character", 20,
		testutil.CharacterJSON(1, "Rick Sanchez", "https://rickandmortyapi.com/api/episode/1"),
		testutil.CharacterJSON(2, "Morty Smith", "https://rickandmortyapi.com/api/episode/2"),
	)
	return api
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersionCmd(t *testing.T) {
	originalVersion := version
	version = "test-version-1.0.0"
	defer func() { version = originalVersion }()

	code, stdout, _ := execute(t, "version")

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "rmsync version test-version-1.0.0")
}

func TestSyncCmd_WritesFiles(t *testing.T) {
	api := newAPI(t)
	out := t.TempDir()

	code, stdout, stderr := execute(t, "sync",
		"--base-url", api.BaseURL(),
		"--output", out,
		"--rate", "0",
		"--log-level", "error",
	)
	require.Equal(t, 0, code, stderr)

	env, err := storage.ReadEnvelope(filepath.Join(out, "character", "Rick Sanchez.json"))
	require.NoError(t, err)
	assert.Equal(t, "Rick Sanchez", env.Metadata)

	for _, path := range []string{"episode/Pilot.json", "episode/The Ricklantis Mixup.json", "location/Earth (C-137).json", "character/Morty Smith.json"} {
		_, err := os.Stat(filepath.Join(out, path))
		assert.NoError(t, err, path)
	}

	assert.Contains(t, stdout, "episode 28")
	assert.Contains(t, stdout, "The Ricklantis Mixup")
	assert.Contains(t, stdout, "character 1\tRick Sanchez")
	assert.NotContains(t, stdout, "Morty Smith")
	assert.Contains(t, stdout, "written=2")
}

func TestSyncCmd_KindsAndDryRun(t *testing.T) {
	api := newAPI(t)
	out := t.TempDir()

	code, stdout, stderr := execute(t, "sync",
		"--base-url", api.BaseURL(),
		"-o", out,
		"-k", "location",
		"--dry-run",
		"--report=false",
		"--rate", "0",
		"--log-level", "error",
	)
	require.Equal(t, 0, code, stderr)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Contains(t, stdout, "location")
	assert.NotContains(t, stdout, "episode")
	assert.Equal(t, 1, api.RequestCount())
}

func TestSyncCmd_FailureExitCode(t *testing.T) {
	api := newAPI(t)
	api.FailNext(404)

	code, _, stderr := execute(t, "sync",
		"--base-url", api.BaseURL(),
		"-o", t.TempDir(),
		"--rate", "0",
		"--log-level", "error",
	)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "rmsync: sync episode")
	assert.Contains(t, stderr, "/api/episode/?page=0")
	assert.Contains(t, stderr, "404")
}

func TestSyncCmd_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown kind", []string{"-k", "planet"}, "unknown record kind"},
		{"bad log level", []string{"--log-level", "loud"}, "unknown log level"},
		{"bad backoff", []string{"--initial-backoff", "0s"}, "initial_backoff"},
		{"missing config file", []string{"--config", "/nonexistent/rmsync.toml"}, "read config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := execute(t, append([]string{"sync"}, tt.args...)...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestSyncCmd_ConfigFileAndLedger(t *testing.T) {
	api := newAPI(t)
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.db")
	cfgPath := filepath.Join(dir, "rmsync.toml")

	cfgFile := "output = \"" + filepath.Join(dir, "out") + "\"\n" +
		"kinds = [\"episode\"]\n" +
		"base_url = \"" + api.BaseURL() + "\"\n" +
		"ledger = \"" + ledgerPath + "\"\n" +
		"report = false\n" +
		"[fetch]\nrate = 0.0\n" +
		"[log]\nlevel = \"error\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgFile), 0o644))

	code, _, stderr := execute(t, "sync", "--config", cfgPath)
	require.Equal(t, 0, code, stderr)

	_, err := os.Stat(filepath.Join(dir, "out", "episode", "Pilot.json"))
	assert.NoError(t, err)

	l, err := ledger.Open(ledgerPath)
	require.NoError(t, err)
	defer l.Close()
	runs, err := l.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.StatusCompleted, runs[0].Status)
	assert.Equal(t, 2, runs[0].Pages)
}

func TestSyncCmd_Cancelled(t *testing.T) {
	api := newAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"sync", "--base-url", api.BaseURL(), "-o", t.TempDir(), "--rate", "0", "--log-level", "error"}, &stdout, &stderr)

	assert.Equal(t, 130, code)
}
