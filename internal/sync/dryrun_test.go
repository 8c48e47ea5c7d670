package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alexjbarnes/drive-sync/internal/drive"
)

func TestSimulatedIDDeterministic(t *testing.T) {
	a := SimulatedID("My Notes")
	b := SimulatedID("My Notes")

	assert.Equal(t, a, b)
	assert.True(t, a.Simulated())
	assert.Equal(t, "dry-run:My_Notes", a.String())
}

func TestItemIDZero(t *testing.T) {
	assert.True(t, ItemID{}.IsZero())
	assert.False(t, RealID("abc").IsZero())
	assert.False(t, SimulatedID("abc").IsZero())
}

func TestSimulatorReadsPassThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)

	items := []drive.Item{{ID: "file-1", Name: "a.txt"}}
	remote.EXPECT().ListChildren(gomock.Any(), RealID("root-1")).Return(items, nil)
	remote.EXPECT().FindRoot(gomock.Any(), "backup").Return(RealID("root-1"), true, nil)

	sim := NewSimulator(remote, testLogger())

	got, err := sim.ListChildren(context.Background(), RealID("root-1"))
	require.NoError(t, err)
	assert.Equal(t, items, got)

	id, found, err := sim.FindRoot(context.Background(), "backup")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, RealID("root-1"), id)
}

func TestSimulatorPlaceholderParentListsEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)

	// No expectation on the mock: listing under a placeholder must not
	// reach the real remote.
	sim := NewSimulator(remote, testLogger())

	got, err := sim.ListChildren(context.Background(), SimulatedID("docs"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSimulatorMutationsNeverReachRemote(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)

	sim := NewSimulator(remote, testLogger())
	ctx := context.Background()

	id, err := sim.CreateFolder(ctx, "docs", RealID("root-1"))
	require.NoError(t, err)
	assert.True(t, id.Simulated())

	id, err = sim.Upload(ctx, "/tmp/a.txt", RealID("root-1"), "a.txt", ItemID{})
	require.NoError(t, err)
	assert.True(t, id.Simulated())

	// Updating an existing file keeps its real id.
	id, err = sim.Upload(ctx, "/tmp/a.txt", RealID("root-1"), "a.txt", RealID("file-1"))
	require.NoError(t, err)
	assert.Equal(t, RealID("file-1"), id)

	n, err := sim.Download(ctx, RealID("file-1"), "/tmp/a.txt")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDryRunWalkIsFullySimulated(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello", baseTime)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "docs"), 0o755))
	writeFile(t, filepath.Join(dir, "docs"), "b.txt", "world", baseTime)

	rootID := RealID("root-1")

	// Only the root listing hits the real remote. The created folder is
	// a placeholder, so its level issues no listing call at all, and no
	// mutating call is ever expected.
	remote.EXPECT().ListChildren(gomock.Any(), rootID).Return(nil, nil)

	sim := NewSimulator(remote, testLogger())
	w := NewWalker(sim, NewerWins, false, true, testLogger())
	require.NoError(t, w.WalkPush(context.Background(), dir, rootID))

	counts := w.Counts()
	assert.Equal(t, 2, counts.Uploaded)
	assert.Equal(t, 1, counts.Created)
	assert.Equal(t, 0, counts.Errors)
}

func TestDryRunRepeatable(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello", baseTime)

	rootID := RealID("root-1")
	remote.EXPECT().ListChildren(gomock.Any(), rootID).Return(nil, nil).Times(2)

	sim := NewSimulator(remote, testLogger())

	for i := 0; i < 2; i++ {
		w := NewWalker(sim, NewerWins, false, true, testLogger())
		require.NoError(t, w.WalkPush(context.Background(), dir, rootID))
		assert.Equal(t, 1, w.Counts().Uploaded)
	}
}
