package imgsync

import (
	"context"
	"encoding/json"
	"time"
)

// Container is a record persisted by a Storage.
type Container struct {
	ID        int64           `json:"id"`
	URI       string          `json:"uri"`
	Name      string          `json:"name"`
	Tag       string          `json:"tag"`
	Version   string          `json:"version,omitempty"`
	ImagePath string          `json:"image"`
	URL       string          `json:"url,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AddRequest describes an image file to record in a Storage.
type AddRequest struct {
	// ImagePath is the file to add. Storage may move it unless Copy is set.
	ImagePath string

	// URI is the canonical "<name>:<tag>@<version>" key.
	URI string

	// URL is where the artifact was fetched from, if anywhere.
	URL string

	Metadata *Manifest
	Copy     bool
}

// Storage persists image records. Add must be safe to repeat for the same URI.
type Storage interface {
	// Add records req under req.URI in the form ParseReference produces:
	// lower-cased, with the default collection filled in. Container.URI holds
	// that normalized key, so "ubuntu:16.04@V1" is stored as
	// "library/ubuntu:16.04@v1". Adding the same reference again updates the
	// record.
	Add(ctx context.Context, req AddRequest) (*Container, error)

	// Get returns the record for an exact URI or the newest record matching a reference.
	Get(ctx context.Context, query string) (*Container, error)

	List(ctx context.Context, query string) ([]Container, error)

	Remove(ctx context.Context, query string) (*Container, error)
}
