package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/alexjbarnes/drive-sync/internal/errors"
	"github.com/alexjbarnes/drive-sync/internal/state"
)

// Options is the run-level configuration the engine consumes. Threaded
// explicitly through every engine value so the engine is reentrant and
// testable with varying configs in one process.
type Options struct {
	LocalDir      string
	RootFolder    string
	Direction     Direction
	Policy        ConflictPolicy
	DryRun        bool
	CompareHashes bool
}

// Syncer is the top-level driver: it resolves the remote root folder,
// selects the sync direction, and runs the tree walker. A Syncer may be
// Run repeatedly (watch mode re-runs the push direction).
type Syncer struct {
	remote Remote
	opts   Options
	state  *state.State // nil disables run history
	logger *slog.Logger
}

// New creates a Syncer. In dry-run mode the remote is wrapped in a
// Simulator so no mutating call ever reaches it.
func New(remote Remote, opts Options, appState *state.State, logger *slog.Logger) *Syncer {
	if opts.DryRun {
		remote = NewSimulator(remote, logger)
	}
	return &Syncer{
		remote: remote,
		opts:   opts,
		state:  appState,
		logger: logger,
	}
}

// Run performs one full sync in the configured direction and returns
// the tally. Only root resolution failure (or cancellation) is fatal;
// all other failures are isolated per folder or per item and reflected
// in Counts.Errors.
func (s *Syncer) Run(ctx context.Context) (Counts, error) {
	return s.run(ctx, s.opts.Direction)
}

// RunPush performs one push-direction sync regardless of the configured
// direction. Used by watch mode, where only local changes can trigger.
func (s *Syncer) RunPush(ctx context.Context) (Counts, error) {
	return s.run(ctx, DirectionPush)
}

func (s *Syncer) run(ctx context.Context, direction Direction) (Counts, error) {
	started := time.Now()

	s.logger.Info("sync starting",
		slog.String("local_dir", s.opts.LocalDir),
		slog.String("root_folder", s.opts.RootFolder),
		slog.String("direction", direction.String()),
		slog.String("conflict_policy", s.opts.Policy.String()),
		slog.Bool("dry_run", s.opts.DryRun),
		slog.Bool("compare_hashes", s.opts.CompareHashes),
	)

	rootID, err := s.resolveRoot(ctx)
	if err != nil {
		return Counts{}, err
	}

	walker := NewWalker(s.remote, s.opts.Policy, s.opts.CompareHashes, s.opts.DryRun, s.logger)

	// Two-way sync is literally push then pull over the same walker; a
	// file changed on both sides since a common ancestor is resolved by
	// the conflict policy alone.
	if direction == DirectionPush || direction == DirectionBoth {
		if err := walker.WalkPush(ctx, s.opts.LocalDir, rootID); err != nil {
			return walker.Counts(), err
		}
	}
	if direction == DirectionPull || direction == DirectionBoth {
		if err := walker.WalkPull(ctx, rootID, s.opts.LocalDir); err != nil {
			return walker.Counts(), err
		}
	}

	counts := walker.Counts()
	s.logger.Info("sync finished",
		slog.String("direction", direction.String()),
		slog.Int("uploaded", counts.Uploaded),
		slog.Int("downloaded", counts.Downloaded),
		slog.Int("created", counts.Created),
		slog.Int("skipped", counts.Skipped),
		slog.Int("conflicts", counts.Conflicts),
		slog.Int("errors", counts.Errors),
		slog.Duration("took", time.Since(started)),
	)

	s.recordRun(started, direction, counts)

	return counts, nil
}

// resolveRoot finds or creates the remote root folder. Failure here is
// the one fatal error of a run: without a root id nothing can proceed.
// In a dry run a missing root becomes a placeholder id and the whole
// walk is simulated against an empty remote tree.
func (s *Syncer) resolveRoot(ctx context.Context) (ItemID, error) {
	id, found, err := s.remote.FindRoot(ctx, s.opts.RootFolder)
	if err != nil {
		return ItemID{}, fmt.Errorf("%w: finding %q: %v", apperrors.ErrRootResolve, s.opts.RootFolder, err)
	}
	if found {
		s.logger.Info("using remote root folder",
			slog.String("name", s.opts.RootFolder),
			slog.String("id", id.String()),
		)
		return id, nil
	}

	id, err = s.remote.CreateFolder(ctx, s.opts.RootFolder, RealID(storeRootID))
	if err != nil {
		return ItemID{}, fmt.Errorf("%w: creating %q: %v", apperrors.ErrRootResolve, s.opts.RootFolder, err)
	}

	s.logger.Info("created remote root folder",
		slog.String("name", s.opts.RootFolder),
		slog.String("id", id.String()),
	)
	return id, nil
}

func (s *Syncer) recordRun(started time.Time, direction Direction, counts Counts) {
	if s.state == nil {
		return
	}

	err := s.state.AppendRun(state.RunSummary{
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
		Direction:  direction.String(),
		DryRun:     s.opts.DryRun,
		Uploaded:   counts.Uploaded,
		Downloaded: counts.Downloaded,
		Created:    counts.Created,
		Skipped:    counts.Skipped,
		Conflicts:  counts.Conflicts,
		Errors:     counts.Errors,
	})
	if err != nil {
		s.logger.Warn("failed to record run summary", slog.String("error", err.Error()))
	}
}
