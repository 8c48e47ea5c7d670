package sync

import (
	"context"
	"fmt"

	"github.com/alexjbarnes/drive-sync/internal/drive"
	apperrors "github.com/alexjbarnes/drive-sync/internal/errors"
)

//go:generate mockgen -source=remote.go -destination=mock_remote_test.go -package=sync

// storeRootID is the well-known id of the store's top-level container,
// under which the sync root folder is resolved.
const storeRootID = "root"

// Remote is the collaborator contract the engine consumes. The real
// implementation adapts the REST client; the dry-run simulator wraps
// any Remote and turns mutations into logged no-ops.
type Remote interface {
	// ListChildren returns the metadata of every child of folderID.
	ListChildren(ctx context.Context, folderID ItemID) ([]drive.Item, error)

	// FindRoot looks up the sync root folder by name under the store
	// root. found is false when no such folder exists.
	FindRoot(ctx context.Context, name string) (id ItemID, found bool, err error)

	// CreateFolder creates a folder under parentID and returns its id.
	CreateFolder(ctx context.Context, name string, parentID ItemID) (ItemID, error)

	// Upload creates (empty existingID) or updates a remote file from
	// localPath and returns the resulting id.
	Upload(ctx context.Context, localPath string, parentID ItemID, name string, existingID ItemID) (ItemID, error)

	// Download writes the content of id to destPath and returns the
	// number of bytes written.
	Download(ctx context.Context, id ItemID, destPath string) (int64, error)
}

// driveRemote adapts the REST client to the Remote interface. It
// unwraps ItemIDs into raw store ids and refuses simulated ones, so a
// placeholder can never leak into a network call.
type driveRemote struct {
	client *drive.Client
}

// NewDriveRemote wraps the REST client as a Remote.
func NewDriveRemote(client *drive.Client) Remote {
	return &driveRemote{client: client}
}

func realValue(id ItemID) (string, error) {
	if id.Simulated() {
		return "", fmt.Errorf("%w: %s", apperrors.ErrSimulatedID, id)
	}
	return id.Value(), nil
}

func (r *driveRemote) ListChildren(ctx context.Context, folderID ItemID) ([]drive.Item, error) {
	raw, err := realValue(folderID)
	if err != nil {
		return nil, err
	}
	return r.client.ListChildren(ctx, raw)
}

func (r *driveRemote) FindRoot(ctx context.Context, name string) (ItemID, bool, error) {
	item, err := r.client.FindByName(ctx, name, storeRootID, true)
	if err != nil {
		return ItemID{}, false, err
	}
	if item == nil {
		return ItemID{}, false, nil
	}
	return RealID(item.ID), true, nil
}

func (r *driveRemote) CreateFolder(ctx context.Context, name string, parentID ItemID) (ItemID, error) {
	raw, err := realValue(parentID)
	if err != nil {
		return ItemID{}, err
	}

	id, err := r.client.CreateFolder(ctx, name, raw)
	if err != nil {
		return ItemID{}, err
	}
	return RealID(id), nil
}

func (r *driveRemote) Upload(ctx context.Context, localPath string, parentID ItemID, name string, existingID ItemID) (ItemID, error) {
	rawParent, err := realValue(parentID)
	if err != nil {
		return ItemID{}, err
	}

	rawExisting := ""
	if !existingID.IsZero() {
		if rawExisting, err = realValue(existingID); err != nil {
			return ItemID{}, err
		}
	}

	id, err := r.client.Upload(ctx, localPath, rawParent, name, rawExisting)
	if err != nil {
		return ItemID{}, err
	}
	return RealID(id), nil
}

func (r *driveRemote) Download(ctx context.Context, id ItemID, destPath string) (int64, error) {
	raw, err := realValue(id)
	if err != nil {
		return 0, err
	}
	return r.client.Download(ctx, raw, destPath)
}
