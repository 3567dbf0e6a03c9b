package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "state", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpen_MigratesSchema(t *testing.T) {
	l := openTest(t)

	var version int
	require.NoError(t, l.db.QueryRow("PRAGMA user_version;").Scan(&version))
	assert.Equal(t, CurrentSchemaVersion, version)

	var journalMode string
	require.NoError(t, l.db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	l, err := Open(path)
	require.NoError(t, err)
	run, err := l.Start(ctx, record.KindEpisode)
	require.NoError(t, err)
	require.NoError(t, l.Finish(ctx, run, nil))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()

	runs, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestLedger_StartFinishCompleted(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	run, err := l.Start(ctx, record.KindCharacter)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.NotEmpty(t, run.ID)

	runs, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.True(t, runs[0].FinishedAt.IsZero())

	run.Pages = 42
	run.Written = 826
	run.Skipped = 0
	require.NoError(t, l.Finish(ctx, run, nil))

	runs, err = l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, record.KindCharacter, got.Kind)
	assert.Equal(t, 42, got.Pages)
	assert.Equal(t, 826, got.Written)
	assert.Empty(t, got.Error)
	assert.False(t, got.FinishedAt.IsZero())
}

func TestLedger_FinishFailed(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	run, err := l.Start(ctx, record.KindLocation)
	require.NoError(t, err)
	run.Pages = 2
	require.NoError(t, l.Finish(ctx, run, errors.New("load location page 3: retry attempts exhausted")))

	runs, err := l.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "retry attempts exhausted")
	assert.Equal(t, 2, runs[0].Pages)
}

func TestLedger_FinishUnknownRun(t *testing.T) {
	l := openTest(t)
	err := l.Finish(context.Background(), &Run{ID: "missing"}, nil)
	assert.Error(t, err)
}

func TestLedger_RecentNewestFirst(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	var ids []string
	for _, kind := range record.AllKinds() {
		run, err := l.Start(ctx, kind)
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}
