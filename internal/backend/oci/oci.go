// Package oci is a backend for OCI distribution registries. Every image is
// stored as a single-layer artifact in <registry>/<collection>/<image>.
package oci

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/retry"
)

const (
	// Name identifies the backend.
	Name = "oci"

	DefaultConcurrency = 4

	LabelName = "dev.imgsync.name"
	LabelTag  = "dev.imgsync.tag"
)

var (
	_ imgsync.Puller   = (*Client)(nil)
	_ imgsync.Pusher   = (*Client)(nil)
	_ imgsync.Searcher = (*Client)(nil)
	_ imgsync.Remover  = (*Client)(nil)
)

// Client pulls, pushes, searches and removes images on one registry.
type Client struct {
	registry    name.Registry
	nameOpts    []name.Option
	auth        Authenticator
	transport   http.RoundTripper
	concurrency int
	level       int
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithInsecure talks to the registry over plain http.
func WithInsecure() Option {
	return func(c *Client) { c.nameOpts = append(c.nameOpts, name.Insecure) }
}

// WithAuthenticator sets where credentials come from. Defaults to the
// docker keychain.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) { c.auth = a }
}

// WithTransport sets the HTTP transport for registry calls.
func WithTransport(t http.RoundTripper) Option {
	return func(c *Client) { c.transport = t }
}

// WithConcurrency sets the number of parallel blob uploads.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithCompressionLevel sets the zstd level of pushed layers (1-3).
func WithCompressionLevel(level int) Option {
	return func(c *Client) { c.level = level }
}

// WithLogger sets the logger for diagnostic output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the registry host, e.g. "ghcr.io" or "localhost:5000".
func New(registry string, opts ...Option) (*Client, error) {
	c := &Client{
		auth:        NewDefaultAuthenticator(),
		concurrency: DefaultConcurrency,
		level:       2,
	}
	for _, opt := range opts {
		opt(c)
	}

	reg, err := name.NewRegistry(strings.TrimSuffix(registry, "/"), c.nameOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid registry %q: %v", imgsync.ErrConfiguration, registry, err)
	}
	c.registry = reg
	return c, nil
}

func (c *Client) Name() string     { return Name }
func (c *Client) Location() string { return c.registry.Scheme() + "://" + c.registry.RegistryStr() }
func (c *Client) Close() error     { return nil }

// Registry returns the registry host.
func (c *Client) Registry() string { return c.registry.RegistryStr() }

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func (c *Client) repository(ref imgsync.Reference) (name.Repository, error) {
	repo, err := name.NewRepository(c.registry.RegistryStr()+"/"+ref.Name(), c.nameOpts...)
	if err != nil {
		return name.Repository{}, fmt.Errorf("%w: %v", imgsync.ErrInvalidReference, err)
	}
	return repo, nil
}

// target is the tag of ref, or its digest when ref pins a digest version.
func (c *Client) target(ref imgsync.Reference) (name.Reference, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: %q", imgsync.ErrInvalidReference, ref.String())
	}
	repo, err := c.repository(ref)
	if err != nil {
		return nil, err
	}
	if _, err := v1.NewHash(ref.Version); err == nil {
		return repo.Digest(ref.Version), nil
	}
	return repo.Tag(ref.Tag), nil
}

func (c *Client) ManifestURL(ref imgsync.Reference) string {
	identifier := ref.Tag
	if _, err := v1.NewHash(ref.Version); err == nil {
		identifier = ref.Version
	}
	return fmt.Sprintf("%s/v2/%s/manifests/%s", c.Location(), ref.Name(), identifier)
}

// FetchManifest resolves ref to its manifest. The first layer of the image is
// the artifact, addressed as oci://<repository>@<layer digest>.
func (c *Client) FetchManifest(ctx context.Context, ref imgsync.Reference) (*imgsync.Manifest, error) {
	target, err := c.target(ref)
	if err != nil {
		return nil, err
	}

	desc, err := retry.Do(ctx, 3, retryable, func() (*remote.Descriptor, error) {
		d, err := remote.Get(target, c.remoteOptions(ctx)...)
		return d, mapError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}

	img, err := desc.Image()
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", target, err)
	}
	m, err := img.Manifest()
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", target, err)
	}
	if len(m.Layers) == 0 {
		return nil, fmt.Errorf("%w: %s has no layers", imgsync.ErrNotFound, target)
	}
	layer := m.Layers[0]

	manifest := &imgsync.Manifest{
		Name:    ref.Name(),
		Tag:     ref.Tag,
		Version: desc.Digest.String(),
		Image:   "oci://" + target.Context().Name() + "@" + layer.Digest.String(),
	}
	_ = manifest.SetField("size", layer.Size)
	_ = manifest.SetField("mediaType", string(layer.MediaType))
	if len(layer.Annotations) > 0 {
		_ = manifest.SetField("annotations", layer.Annotations)
	}

	cfg, err := img.ConfigFile()
	if err == nil && len(cfg.Config.Labels) > 0 {
		_ = manifest.SetField("labels", cfg.Config.Labels)
	}

	c.log().Debug("resolved manifest", "ref", target.String(), "digest", manifest.Version)
	return manifest, nil
}

// Search lists the tags of every repository whose name contains query.
func (c *Client) Search(ctx context.Context, query string) ([]imgsync.Manifest, error) {
	repos, err := remote.Catalog(ctx, c.registry, c.remoteOptions(ctx)...)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", mapError(err))
	}

	query = strings.ToLower(query)
	var out []imgsync.Manifest
	for _, r := range repos {
		if query != "" && !strings.Contains(r, query) {
			continue
		}
		tags, err := remote.List(c.registry.Repo(r), c.remoteOptions(ctx)...)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", r, mapError(err))
		}
		for _, t := range tags {
			out = append(out, imgsync.Manifest{Name: r, Tag: t})
		}
	}
	return out, nil
}

// Remove deletes the manifest ref points to.
func (c *Client) Remove(ctx context.Context, ref imgsync.Reference) error {
	target, err := c.target(ref)
	if err != nil {
		return err
	}

	desc, err := remote.Head(target, c.remoteOptions(ctx)...)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", target, mapError(err))
	}

	digest := target.Context().Digest(desc.Digest.String())
	if err := remote.Delete(digest, c.remoteOptions(ctx)...); err != nil {
		return fmt.Errorf("delete %s: %w", digest, mapError(err))
	}
	c.log().Debug("deleted manifest", "ref", target.String(), "digest", desc.Digest.String())
	return nil
}

func (c *Client) remoteOptions(ctx context.Context) []remote.Option {
	return append([]remote.Option{remote.WithContext(ctx)}, c.RemoteOptions()...)
}

// RemoteOptions returns the transport and auth options for registry calls.
// The downloader reuses them to fetch layers from the same registry.
func (c *Client) RemoteOptions() []remote.Option {
	var options []remote.Option
	if c.transport != nil {
		options = append(options, remote.WithTransport(c.transport))
	}
	if c.auth != nil {
		username, password, err := c.auth.Authenticate(c.registry.RegistryStr())
		if err == nil && username != "" {
			return append(options, remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			}))
		}
	}
	return append(options, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}

// NameOptions returns the options used to parse references on this registry.
func (c *Client) NameOptions() []name.Option {
	return c.nameOpts
}
