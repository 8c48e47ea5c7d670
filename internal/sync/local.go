package sync

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// junkNames are platform artifacts never worth syncing, in addition to
// the hidden-file rule.
var junkNames = map[string]struct{}{
	"Thumbs.db":                 {},
	"desktop.ini":               {},
	"$RECYCLE.BIN":              {},
	"System Volume Information": {},
	"lost+found":                {},
}

// SkipLocalName reports whether a local entry name is excluded from
// sync: hidden names (leading dot) and the platform junk denylist.
func SkipLocalName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, junk := junkNames[name]
	return junk
}

// localEntry stats one directory entry into a LocalEntry. A not-exist
// error means the entry vanished between listing and processing; the
// caller skips it with a warning. Any other stat failure yields an
// entry with an absent modification time, which the comparator treats
// conservatively.
func localEntry(dir string, de os.DirEntry) (LocalEntry, error) {
	entry := LocalEntry{
		Name:  de.Name(),
		Path:  filepath.Join(dir, de.Name()),
		IsDir: de.IsDir(),
		Size:  -1,
	}

	info, err := de.Info()
	if err != nil {
		if os.IsNotExist(err) {
			return entry, err
		}
		return entry, nil
	}

	entry.ModTime = info.ModTime().UTC()
	entry.Size = info.Size()
	return entry, nil
}

// FileMD5 computes the hex MD5 digest of a file, matching the content
// digest the store reports for uploaded files.
func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFunc computes a file's content digest. Injected into the
// comparator so tests can exercise the hash tier without fixture files.
type HashFunc func(path string) (string, error)
