package sync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alexjbarnes/drive-sync/internal/drive"
)

// localDirPerm is the permission mode for directories created on pull.
const localDirPerm = 0o755

// Walker reconciles one directory level at a time, depth-first. Each
// level lists the remote parent once and maps children by name; no
// state is shared across levels beyond the collaborator handle and the
// run tally.
//
// All failures below root resolution are isolated: a listing failure
// skips one folder's contents, an upload/download failure or an entry
// vanishing mid-walk skips one item, and siblings always continue.
type Walker struct {
	remote        Remote
	policy        ConflictPolicy
	compareHashes bool
	dryRun        bool
	hashFile      HashFunc
	logger        *slog.Logger
	counts        Counts
}

// NewWalker creates a walker. The remote should already be wrapped in a
// Simulator for dry runs; dryRun additionally suppresses local-side
// mutations on pull.
func NewWalker(remote Remote, policy ConflictPolicy, compareHashes, dryRun bool, logger *slog.Logger) *Walker {
	return &Walker{
		remote:        remote,
		policy:        policy,
		compareHashes: compareHashes,
		dryRun:        dryRun,
		hashFile:      FileMD5,
		logger:        logger,
	}
}

// Counts returns the tally accumulated so far.
func (w *Walker) Counts() Counts {
	return w.counts
}

// listRemote lists the children of a remote folder into a name->item
// map. The first item wins on duplicate names (best-effort resolution;
// the store permits duplicates). A placeholder parent is treated as
// unconditionally empty without a network call.
func (w *Walker) listRemote(ctx context.Context, folderID ItemID) (map[string]drive.Item, error) {
	mapping := make(map[string]drive.Item)
	if folderID.Simulated() {
		return mapping, nil
	}

	items, err := w.remote.ListChildren(ctx, folderID)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if _, dup := mapping[item.Name]; !dup {
			mapping[item.Name] = item
		}
	}
	return mapping, nil
}

// WalkPush syncs localDir into the remote folder remoteParent,
// recursing top-down into subdirectories. Returns an error only on
// context cancellation; everything else is logged and isolated.
func (w *Walker) WalkPush(ctx context.Context, localDir string, remoteParent ItemID) error {
	mapping, err := w.listRemote(ctx, remoteParent)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn("listing remote folder failed, skipping its contents",
			slog.String("local_dir", localDir),
			slog.String("folder_id", remoteParent.String()),
			slog.String("error", err.Error()),
		)
		w.counts.Errors++
		return nil
	}

	entries, err := os.ReadDir(localDir)
	if err != nil {
		w.logger.Warn("reading local directory failed, skipping its contents",
			slog.String("local_dir", localDir),
			slog.String("error", err.Error()),
		)
		w.counts.Errors++
		return nil
	}

	for _, de := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := de.Name()
		if SkipLocalName(name) {
			w.logger.Debug("skipping hidden or junk entry", slog.String("name", name))
			continue
		}

		entry, err := localEntry(localDir, de)
		if err != nil {
			w.logger.Warn("local entry vanished during walk, skipping",
				slog.String("path", entry.Path),
				slog.String("error", err.Error()),
			)
			w.counts.Skipped++
			continue
		}

		if entry.IsDir {
			if err := w.pushDir(ctx, entry, mapping, remoteParent); err != nil {
				return err
			}
			continue
		}

		w.pushFile(ctx, entry, mapping, remoteParent)
	}

	return nil
}

// pushDir resolves or creates the remote folder for a local directory,
// then recurses into it. Recursion happens unconditionally once a valid
// (or simulated) id is obtained, even when the folder already existed.
func (w *Walker) pushDir(ctx context.Context, entry LocalEntry, mapping map[string]drive.Item, remoteParent ItemID) error {
	var subID ItemID

	if item, ok := mapping[entry.Name]; ok {
		if !item.IsFolder() {
			w.logger.Warn("conflict: local directory has a remote file with the same name, skipping subtree",
				slog.String("name", entry.Name),
				slog.String("remote_id", item.ID),
			)
			w.counts.Conflicts++
			return nil
		}
		subID = RealID(item.ID)
	} else {
		id, err := w.remote.CreateFolder(ctx, entry.Name, remoteParent)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("creating remote folder failed, skipping subtree",
				slog.String("name", entry.Name),
				slog.String("error", err.Error()),
			)
			w.counts.Errors++
			return nil
		}
		w.logger.Info("created remote folder",
			slog.String("name", entry.Name),
			slog.String("id", id.String()),
		)
		w.counts.Created++
		subID = id
	}

	return w.WalkPush(ctx, entry.Path, subID)
}

// pushFile uploads or updates one local file as decided by the
// comparator.
func (w *Walker) pushFile(ctx context.Context, entry LocalEntry, mapping map[string]drive.Item, remoteParent ItemID) {
	var remoteItem *drive.Item
	if item, ok := mapping[entry.Name]; ok {
		remoteItem = &item
	}

	decision := DecideUpload(entry, remoteItem, w.policy, w.compareHashes, w.hashFile)
	switch decision.Action {
	case ActionConflict:
		w.logger.Warn("conflict: local file has a remote folder with the same name, skipping",
			slog.String("name", entry.Name),
		)
		w.counts.Conflicts++
		return

	case ActionSkip:
		w.logger.Debug("skipping file",
			slog.String("name", entry.Name),
			slog.String("reason", decision.Reason),
		)
		w.counts.Skipped++
		return
	}

	var existingID ItemID
	if decision.Action == ActionUpdateFile {
		existingID = RealID(remoteItem.ID)
	}

	id, err := w.remote.Upload(ctx, entry.Path, remoteParent, entry.Name, existingID)
	if err != nil {
		w.logger.Warn("uploading file failed, skipping",
			slog.String("name", entry.Name),
			slog.String("error", err.Error()),
		)
		w.counts.Errors++
		return
	}

	w.logger.Info("uploaded file",
		slog.String("name", entry.Name),
		slog.String("id", id.String()),
		slog.String("reason", decision.Reason),
	)
	w.counts.Uploaded++
}

// WalkPull syncs the remote folder remoteParent into localDir,
// mirroring WalkPush with the roles reversed. The local directory is
// created if absent (and only simulated in a dry run).
func (w *Walker) WalkPull(ctx context.Context, remoteParent ItemID, localDir string) error {
	var items []drive.Item
	if !remoteParent.Simulated() {
		var err error
		items, err = w.remote.ListChildren(ctx, remoteParent)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("listing remote folder failed, skipping its contents",
				slog.String("folder_id", remoteParent.String()),
				slog.String("error", err.Error()),
			)
			w.counts.Errors++
			return nil
		}
	}

	locals := w.readLocalNames(localDir)

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// First match wins on duplicate remote names.
		if _, dup := seen[item.Name]; dup {
			w.logger.Debug("skipping duplicate remote name", slog.String("name", item.Name))
			w.counts.Skipped++
			continue
		}
		seen[item.Name] = struct{}{}

		if item.IsFolder() {
			if err := w.pullDir(ctx, item, locals, localDir); err != nil {
				return err
			}
			continue
		}

		w.pullFile(ctx, item, locals, localDir)
	}

	return nil
}

// readLocalNames maps the current local children by name. A missing
// directory is treated as empty: on pull it is about to be created (or
// is simulated in a dry run).
func (w *Walker) readLocalNames(localDir string) map[string]LocalEntry {
	locals := make(map[string]LocalEntry)

	entries, err := os.ReadDir(localDir)
	if err != nil {
		return locals
	}

	for _, de := range entries {
		entry, err := localEntry(localDir, de)
		if err != nil {
			continue
		}
		locals[entry.Name] = entry
	}
	return locals
}

// pullDir ensures the local directory for a remote folder exists, then
// recurses into it.
func (w *Walker) pullDir(ctx context.Context, item drive.Item, locals map[string]LocalEntry, localDir string) error {
	dest := filepath.Join(localDir, item.Name)

	if local, ok := locals[item.Name]; ok && !local.IsDir {
		w.logger.Warn("conflict: remote folder has a local file with the same name, skipping subtree",
			slog.String("name", item.Name),
		)
		w.counts.Conflicts++
		return nil
	}

	if _, ok := locals[item.Name]; !ok {
		if w.dryRun {
			w.logger.Info("dry-run: would create local directory", slog.String("path", dest))
		} else {
			if err := os.MkdirAll(dest, localDirPerm); err != nil {
				w.logger.Warn("creating local directory failed, skipping subtree",
					slog.String("path", dest),
					slog.String("error", err.Error()),
				)
				w.counts.Errors++
				return nil
			}
			w.logger.Info("created local directory", slog.String("path", dest))
		}
		w.counts.Created++
	}

	return w.WalkPull(ctx, RealID(item.ID), dest)
}

// pullFile downloads one remote file as decided by the comparator.
func (w *Walker) pullFile(ctx context.Context, item drive.Item, locals map[string]LocalEntry, localDir string) {
	dest := filepath.Join(localDir, item.Name)

	var local *LocalEntry
	if entry, ok := locals[item.Name]; ok {
		local = &entry
	}

	decision := DecideDownload(item, local, w.policy, w.compareHashes, w.hashFile)
	switch decision.Action {
	case ActionConflict:
		w.logger.Warn("conflict: remote file has a local directory with the same name, skipping",
			slog.String("name", item.Name),
		)
		w.counts.Conflicts++
		return

	case ActionSkip:
		w.logger.Debug("skipping file",
			slog.String("name", item.Name),
			slog.String("reason", decision.Reason),
		)
		w.counts.Skipped++
		return
	}

	n, err := w.remote.Download(ctx, RealID(item.ID), dest)
	if err != nil {
		w.logger.Warn("downloading file failed, skipping",
			slog.String("name", item.Name),
			slog.String("error", err.Error()),
		)
		w.counts.Errors++
		return
	}

	w.logger.Info("downloaded file",
		slog.String("name", item.Name),
		slog.String("path", dest),
		slog.Int64("bytes", n),
		slog.String("reason", decision.Reason),
	)
	w.counts.Downloaded++
}
