package drive

import (
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// FolderMIMEType is the item-type marker the store uses for folders.
// Everything else is a regular file.
const FolderMIMEType = "application/vnd.google-apps.folder"

// SizeUnknown is the Size value for items the store reports no size for
// (folders, and files whose metadata omits the field).
const SizeUnknown int64 = -1

// Item is the metadata the store returns for one file or folder. The ID
// is an opaque string and the only stable identity; names are not
// guaranteed unique within a parent.
type Item struct {
	ID           string
	Name         string
	MIMEType     string
	ModifiedTime time.Time // zero when the store omitted it
	Size         int64     // SizeUnknown when the store omitted it
	MD5Checksum  string    // "" when the store omitted it
}

// IsFolder reports whether the item is a folder.
func (i Item) IsFolder() bool {
	return i.MIMEType == FolderMIMEType
}

// HasModifiedTime reports whether the store returned a modification time.
func (i Item) HasModifiedTime() bool {
	return !i.ModifiedTime.IsZero()
}

// itemFromJSON builds an Item from one element of a files listing.
// Missing or unparsable optional fields degrade to their zero markers
// rather than failing the whole listing.
func itemFromJSON(v gjson.Result) Item {
	item := Item{
		ID:          v.Get("id").Str,
		Name:        v.Get("name").Str,
		MIMEType:    v.Get("mimeType").Str,
		MD5Checksum: v.Get("md5Checksum").Str,
		Size:        SizeUnknown,
	}

	if mt := v.Get("modifiedTime").Str; mt != "" {
		if t, err := time.Parse(time.RFC3339, mt); err == nil {
			item.ModifiedTime = t.UTC()
		}
	}

	// The store serialises size as a JSON string.
	if sz := v.Get("size").Str; sz != "" {
		if n, err := strconv.ParseInt(sz, 10, 64); err == nil {
			item.Size = n
		}
	}

	return item
}
