package history_test

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botsarefuture/hetzner-firewall/firewall"
	"github.com/botsarefuture/hetzner-firewall/history"
)

func openTestLog(t *testing.T) *history.Log {
	t.Helper()

	log, err := history.Open(
		filepath.Join(t.TempDir(), "history.db"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, log.Close())
	})

	return log
}

func testRecord(runID string, outcome firewall.Outcome) firewall.RunRecord {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return firewall.RunRecord{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Outcome:    outcome,
		PreviousIP: "1.2.3.4",
		CurrentIP:  "5.6.7.8",
		Changed:    outcome == firewall.OutcomeSucceeded,
	}
}

func TestLogRecordAndList(t *testing.T) {
	t.Parallel()

	log := openTestLog(t)

	rec := testRecord("run-1", firewall.OutcomeSucceeded)
	require.NoError(t, log.Record(t.Context(), rec))

	recs, err := log.List(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec, recs[0])
}

func TestLogListNewestFirst(t *testing.T) {
	t.Parallel()

	log := openTestLog(t)

	for i := range 5 {
		require.NoError(t, log.Record(t.Context(),
			testRecord(fmt.Sprintf("run-%d", i), firewall.OutcomeSucceeded)))
	}

	recs, err := log.List(t.Context(), 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "run-4", recs[0].RunID)
	assert.Equal(t, "run-3", recs[1].RunID)
	assert.Equal(t, "run-2", recs[2].RunID)
}

func TestLogListEmpty(t *testing.T) {
	t.Parallel()

	log := openTestLog(t)

	recs, err := log.List(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLogRecordFailure(t *testing.T) {
	t.Parallel()

	log := openTestLog(t)

	rec := testRecord("run-err", firewall.OutcomeFailed)
	rec.Error = "api down"
	rec.Changed = false
	require.NoError(t, log.Record(t.Context(), rec))

	recs, err := log.List(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, firewall.OutcomeFailed, recs[0].Outcome)
	assert.Equal(t, "api down", recs[0].Error)
	assert.False(t, recs[0].Changed)
}

func TestLogSchemaIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	logger := slog.New(slog.DiscardHandler)

	first, err := history.Open(path, logger)
	require.NoError(t, err)
	require.NoError(t, first.Record(t.Context(), testRecord("run-1", firewall.OutcomeSucceeded)))
	require.NoError(t, first.Close())

	// Reopening must keep the existing rows.
	second, err := history.Open(path, logger)
	require.NoError(t, err)
	defer second.Close() //nolint:errcheck

	recs, err := second.List(t.Context(), 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
