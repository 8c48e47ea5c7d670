package sync

import (
	"context"
	"log/slog"

	"github.com/alexjbarnes/drive-sync/internal/drive"
)

// Simulator wraps a Remote for dry runs. Reads pass through; mutations
// become logged no-ops returning deterministic placeholder ids, and
// listings under a placeholder parent are unconditionally empty so a
// dry run never issues a network call for a folder that does not exist.
type Simulator struct {
	remote Remote
	logger *slog.Logger
}

// NewSimulator wraps remote in a dry-run layer.
func NewSimulator(remote Remote, logger *slog.Logger) *Simulator {
	return &Simulator{remote: remote, logger: logger}
}

func (s *Simulator) ListChildren(ctx context.Context, folderID ItemID) ([]drive.Item, error) {
	if folderID.Simulated() {
		return nil, nil
	}
	return s.remote.ListChildren(ctx, folderID)
}

func (s *Simulator) FindRoot(ctx context.Context, name string) (ItemID, bool, error) {
	return s.remote.FindRoot(ctx, name)
}

func (s *Simulator) CreateFolder(ctx context.Context, name string, parentID ItemID) (ItemID, error) {
	id := SimulatedID(name)
	s.logger.Info("dry-run: would create folder",
		slog.String("name", name),
		slog.String("parent_id", parentID.String()),
		slog.String("placeholder_id", id.String()),
	)
	return id, nil
}

func (s *Simulator) Upload(ctx context.Context, localPath string, parentID ItemID, name string, existingID ItemID) (ItemID, error) {
	if !existingID.IsZero() {
		s.logger.Info("dry-run: would update file",
			slog.String("name", name),
			slog.String("id", existingID.String()),
		)
		return existingID, nil
	}

	id := SimulatedID(name)
	s.logger.Info("dry-run: would upload file",
		slog.String("name", name),
		slog.String("parent_id", parentID.String()),
		slog.String("placeholder_id", id.String()),
	)
	return id, nil
}

func (s *Simulator) Download(ctx context.Context, id ItemID, destPath string) (int64, error) {
	s.logger.Info("dry-run: would download file",
		slog.String("id", id.String()),
		slog.String("dest", destPath),
	)
	return 0, nil
}
