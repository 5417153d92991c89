package imgsync

import (
	"strings"
)

// Reference defaults.
const (
	DefaultCollection = "library"
	DefaultTag        = "latest"
)

// imageExtensions are stripped from the image part of a reference.
var imageExtensions = []string{".sif", ".simg", ".img"}

// Reference is a parsed image reference of the form [<collection>/]<image>[:<tag>][@<version>].
type Reference struct {
	Collection string
	Image      string
	Tag        string
	Version    string
}

type referenceOptions struct {
	collection string
	tag        string
}

// ReferenceOption configures ParseReference.
type ReferenceOption func(*referenceOptions)

// WithDefaultCollection sets the collection used when a reference has none.
func WithDefaultCollection(collection string) ReferenceOption {
	return func(o *referenceOptions) {
		if collection != "" {
			o.collection = collection
		}
	}
}

// WithDefaultTag sets the tag used when a reference has none.
func WithDefaultTag(tag string) ReferenceOption {
	return func(o *referenceOptions) {
		if tag != "" {
			o.tag = tag
		}
	}
}

// RemoveURI strips a scheme prefix such as "shub://" or "oci://".
func RemoveURI(s string) string {
	if _, rest, ok := strings.Cut(s, "://"); ok {
		return rest
	}
	return s
}

// ParseReference decomposes s into a Reference. It never fails: malformed
// input produces empty fields which backends reject when resolving.
func ParseReference(s string, opts ...ReferenceOption) Reference {
	o := referenceOptions{collection: DefaultCollection, tag: DefaultTag}
	for _, opt := range opts {
		opt(&o)
	}

	s = strings.ToLower(strings.TrimSpace(RemoveURI(s)))

	ref := Reference{Collection: o.collection, Tag: o.tag}

	image := s
	if i := strings.LastIndex(s, "/"); i >= 0 {
		ref.Collection = strings.Trim(s[:i], "/")
		image = s[i+1:]
	}

	image, ref.Version, _ = strings.Cut(image, "@")
	if name, tag, ok := strings.Cut(image, ":"); ok {
		image = name
		if tag != "" {
			ref.Tag = tag
		}
	}

	for _, ext := range imageExtensions {
		if trimmed, ok := strings.CutSuffix(image, ext); ok {
			image = trimmed
			break
		}
	}
	ref.Image = image

	return ref
}

// Name returns "collection/image".
func (r Reference) Name() string {
	if r.Collection == "" {
		return r.Image
	}
	return r.Collection + "/" + r.Image
}

// String returns the reference in canonical form.
func (r Reference) String() string {
	s := r.Name()
	if r.Tag != "" {
		s += ":" + r.Tag
	}
	if r.Version != "" {
		s += "@" + r.Version
	}
	return s
}

// Slug returns the storage slug "collection/image-tag[@version]".
func (r Reference) Slug() string {
	s := r.Name()
	if r.Tag != "" {
		s += "-" + r.Tag
	}
	if r.Version != "" {
		s += "@" + r.Version
	}
	return s
}

// FileName returns the slug with path separators joined by "-".
func (r Reference) FileName() string {
	return strings.ReplaceAll(r.Slug(), "/", "-")
}

// Valid reports whether the reference names an image.
func (r Reference) Valid() bool {
	return r.Image != "" && r.Tag != ""
}
