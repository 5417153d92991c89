package imgsync

import "context"

// Capability names an optional backend operation.
type Capability string

const (
	CapabilityPull            Capability = "pull"
	CapabilityPush            Capability = "push"
	CapabilitySearch          Capability = "search"
	CapabilityContainerSearch Capability = "container_search"
	CapabilityLabelSearch     Capability = "label_search"
	CapabilityRemove          Capability = "remove"
)

// Backend is the part every registry backend implements.
type Backend interface {
	// Name identifies the backend kind, e.g. "hub".
	Name() string

	// Location describes where the backend points, e.g. its base URL.
	Location() string

	// Close releases resources held by the backend.
	Close() error
}

// Puller resolves references into manifests.
type Puller interface {
	Backend

	// ManifestURL returns the URL the manifest for ref is fetched from.
	ManifestURL(ref Reference) string

	// FetchManifest resolves ref. It fails with ErrNotFound, ErrNetwork or ErrAuth.
	FetchManifest(ctx context.Context, ref Reference) (*Manifest, error)
}

// Pusher uploads local image files.
type Pusher interface {
	Backend
	Push(ctx context.Context, path string, ref Reference) (*Manifest, error)
}

// Searcher lists remote images matching a query.
type Searcher interface {
	Backend
	Search(ctx context.Context, query string) ([]Manifest, error)
}

// ContainerSearcher is a search returning detailed container metadata
// (runscript, deffile, environment, test).
type ContainerSearcher interface {
	Backend
	ContainerSearch(ctx context.Context, query string) ([]Manifest, error)
}

// LabelSearcher queries labels by key and/or value.
type LabelSearcher interface {
	Backend
	LabelSearch(ctx context.Context, key, value string) ([]Label, error)
}

// Remover deletes images from the remote.
type Remover interface {
	Backend
	Remove(ctx context.Context, ref Reference) error
}

// Capabilities returns the capabilities b implements, in a stable order.
func Capabilities(b Backend) []Capability {
	var caps []Capability
	for _, c := range []Capability{
		CapabilityPull,
		CapabilityPush,
		CapabilitySearch,
		CapabilityContainerSearch,
		CapabilityLabelSearch,
		CapabilityRemove,
	} {
		if Supports(b, c) {
			caps = append(caps, c)
		}
	}
	return caps
}

// Supports reports whether b implements the interface for c.
func Supports(b Backend, c Capability) bool {
	var ok bool
	switch c {
	case CapabilityPull:
		_, ok = b.(Puller)
	case CapabilityPush:
		_, ok = b.(Pusher)
	case CapabilitySearch:
		_, ok = b.(Searcher)
	case CapabilityContainerSearch:
		_, ok = b.(ContainerSearcher)
	case CapabilityLabelSearch:
		_, ok = b.(LabelSearcher)
	case CapabilityRemove:
		_, ok = b.(Remover)
	}
	return ok
}
