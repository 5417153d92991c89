// Package store keeps pulled images on local disk and records them in a
// sqlite database.
//
// Storage layout:
//
//	storageDir/
//	  <collection>/
//	    <image>-<tag>@<version>.sif
//
// The database holds one row per canonical image URI
// (<collection>/<image>:<tag>@<version>), so adding the same image twice
// updates the existing record instead of creating a duplicate.
package store

import (
	"context"

	"github.com/aweris/imgsync"
)

// Store is the local image storage used by the CLI.
type Store interface {
	imgsync.Storage

	// Delete removes the record matching query together with its image file.
	Delete(ctx context.Context, query string) (*imgsync.Container, error)

	// Location describes where records are kept, e.g. sqlite:///path/to/db.
	Location() string

	// Close releases the database.
	Close() error
}
