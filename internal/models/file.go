package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// File is the metadata row for one blob in the on-disk store. The row and
// the blob are kept consistent by the blob store's commit staging: the row
// exists iff the blob is written (or scheduled to be written) at the next
// successful commit.
type File struct {
	Filename  string
	MediaType string
	AltText   string
	Timestamp time.Time
	Model
}

func (File) TableName() string {
	return "files"
}

func (f File) GetID() uuid.UUID {
	return f.ID
}

// Extension parsed from the filename, without the dot. Empty when the
// filename has none.
func (f *File) Extension() string {
	idx := strings.LastIndex(f.Filename, ".")
	if idx < 0 || idx == len(f.Filename)-1 {
		return ""
	}

	return f.Filename[idx+1:]
}

// BlobName is the name of the blob inside the store root: "<id>[.<ext>]".
func (f *File) BlobName() string {
	name := f.ID.String()
	if ext := f.Extension(); ext != "" {
		name += "." + ext
	}

	return name
}
