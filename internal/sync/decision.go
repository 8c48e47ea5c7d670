package sync

import (
	"time"

	"github.com/alexjbarnes/drive-sync/internal/drive"
)

// TimestampTolerance absorbs clock-resolution and upload-roundtrip skew
// when comparing modification times. A side must be strictly newer by
// more than this window before the timestamp tier schedules a transfer.
const TimestampTolerance = 2 * time.Second

// ClassifyNameCollision reports a type clash: one side has a file and
// the other a folder under the same name. Clashes are always skipped,
// never auto-renamed or deleted.
func ClassifyNameCollision(localIsDir, remoteIsFolder bool) bool {
	return localIsDir != remoteIsFolder
}

// DecideUpload compares one local entry against the same-named remote
// item (nil when absent) and decides the push-direction action.
// hashFile is only consulted on the hash tier; pass FileMD5 outside
// tests.
func DecideUpload(local LocalEntry, remote *drive.Item, policy ConflictPolicy, compareHashes bool, hashFile HashFunc) Decision {
	if remote == nil {
		if local.IsDir {
			return Decision{Action: ActionCreateFolder, Reason: "not on remote"}
		}
		return Decision{Action: ActionCreateFile, Reason: "not on remote"}
	}

	if ClassifyNameCollision(local.IsDir, remote.IsFolder()) {
		return Decision{Action: ActionConflict, Reason: "type mismatch between local and remote"}
	}

	if local.IsDir {
		return skip("folder already on remote")
	}

	// Deterministic policies short-circuit the tiers entirely.
	switch policy {
	case SkipAlways:
		return skip("conflict policy: skip")
	case RemoteWins:
		return skip("conflict policy: remote-wins")
	case LocalWins:
		return Decision{Action: ActionUpdateFile, Reason: "conflict policy: local-wins"}
	}

	if !local.HasModTime() {
		return skip("local modification time unavailable")
	}

	if reason, update := needsTransfer(local.ModTime, local.Size, remote.ModifiedTime, remote.Size, remote.MD5Checksum, compareHashes, local.Path, hashFile); update {
		return Decision{Action: ActionUpdateFile, Reason: reason}
	}

	return skip("up-to-date")
}

// DecideDownload compares one remote item against the same-named local
// entry (nil when absent) and decides the pull-direction action. Same
// tiered policy as DecideUpload with the roles swapped.
func DecideDownload(remote drive.Item, local *LocalEntry, policy ConflictPolicy, compareHashes bool, hashFile HashFunc) Decision {
	if local == nil {
		if remote.IsFolder() {
			return Decision{Action: ActionCreateFolder, Reason: "not on local"}
		}
		return Decision{Action: ActionCreateFile, Reason: "not on local"}
	}

	if ClassifyNameCollision(local.IsDir, remote.IsFolder()) {
		return Decision{Action: ActionConflict, Reason: "type mismatch between local and remote"}
	}

	if remote.IsFolder() {
		return skip("folder already local")
	}

	switch policy {
	case SkipAlways:
		return skip("conflict policy: skip")
	case LocalWins:
		return skip("conflict policy: local-wins")
	case RemoteWins:
		return Decision{Action: ActionUpdateFile, Reason: "conflict policy: remote-wins"}
	}

	if !remote.HasModifiedTime() {
		return Decision{Action: ActionUpdateFile, Reason: "remote modification time unavailable"}
	}

	if reason, update := needsTransfer(remote.ModifiedTime, remote.Size, local.ModTime, local.Size, remote.MD5Checksum, compareHashes, local.Path, hashFile); update {
		return Decision{Action: ActionUpdateFile, Reason: reason}
	}

	return skip("up-to-date")
}

// needsTransfer runs the tiered update check for the newer-wins policy,
// short-circuiting at the first tier with a definitive answer:
//
//  1. timestamp: destination mtime absent, or source strictly newer
//     beyond TimestampTolerance
//  2. size: sizes known and different
//  3. hash (only when enabled and sizes match): digests differ, or the
//     local digest cannot be determined (fail safe toward re-sync)
//
// srcMTime/srcSize describe the side being copied from, dstMTime/dstSize
// the side being overwritten. remoteMD5 and localPath always refer to
// the remote digest and the local file, whichever role each plays.
func needsTransfer(srcMTime time.Time, srcSize int64, dstMTime time.Time, dstSize int64, remoteMD5 string, compareHashes bool, localPath string, hashFile HashFunc) (string, bool) {
	if dstMTime.IsZero() {
		return "destination modification time unavailable", true
	}

	if srcMTime.After(dstMTime.Add(TimestampTolerance)) {
		return "source newer than destination", true
	}

	if srcSize >= 0 && dstSize >= 0 && srcSize != dstSize {
		return "size mismatch", true
	}

	if !compareHashes {
		return "", false
	}

	if remoteMD5 == "" {
		return "remote digest unavailable", true
	}

	localMD5, err := hashFile(localPath)
	if err != nil {
		return "local digest unavailable", true
	}
	if localMD5 != remoteMD5 {
		return "content digest mismatch", true
	}

	return "", false
}
