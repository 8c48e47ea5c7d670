package state

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	s, err := LoadAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadCreatesStateDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	s, err := Load(dir)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, filepath.Join(dir, "state.db"))
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestState(t)

	assert.Empty(t, s.Token())

	require.NoError(t, s.SetToken("access-1"))
	assert.Equal(t, "access-1", s.Token())

	require.NoError(t, s.SetToken("access-2"))
	assert.Equal(t, "access-2", s.Token())

	require.NoError(t, s.ClearToken())
	assert.Empty(t, s.Token())
}

func TestTokenSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := LoadAt(path)
	require.NoError(t, err)
	require.NoError(t, s.SetToken("access-1"))
	require.NoError(t, s.Close())

	s, err = LoadAt(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "access-1", s.Token())
}

func TestAppendRunKeepsOrder(t *testing.T) {
	s := newTestState(t)

	started := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendRun(RunSummary{
			StartedAt: started.Add(time.Duration(i) * time.Minute),
			Direction: "push",
			Uploaded:  i,
		}))
	}

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 3)

	for i, run := range runs {
		assert.Equal(t, i, run.Uploaded)
	}
}

func TestAppendRunPrunesOldHistory(t *testing.T) {
	s := newTestState(t)

	for i := 0; i < maxRunHistory+10; i++ {
		require.NoError(t, s.AppendRun(RunSummary{
			Direction: "push",
			Uploaded:  i,
		}))
	}

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, maxRunHistory)

	// The oldest entries were dropped, the newest kept.
	assert.Equal(t, 10, runs[0].Uploaded)
	assert.Equal(t, maxRunHistory+9, runs[len(runs)-1].Uploaded)
}

func TestRunSummaryFieldsSurviveStorage(t *testing.T) {
	s := newTestState(t)

	want := RunSummary{
		StartedAt:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 3, 14, 12, 0, 42, 0, time.UTC),
		Direction:  "both",
		DryRun:     true,
		Uploaded:   1,
		Downloaded: 2,
		Created:    3,
		Skipped:    4,
		Conflicts:  5,
		Errors:     6,
	}
	require.NoError(t, s.AppendRun(want))

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, want, runs[0])
}

func TestConcurrentOpenTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the bolt lock timeout")
	}

	path := filepath.Join(t.TempDir(), "state.db")
	s, err := LoadAt(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = LoadAt(path)
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "state db")
}
