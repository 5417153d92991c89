// Package registry is the backend for self-hosted registries with
// credentials. It supports every capability.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/backend/httpapi"
	"github.com/aweris/imgsync/internal/backend/hub"
)

// Name identifies the backend.
const Name = "registry"

var (
	_ imgsync.Puller            = (*Client)(nil)
	_ imgsync.Pusher            = (*Client)(nil)
	_ imgsync.Searcher          = (*Client)(nil)
	_ imgsync.ContainerSearcher = (*Client)(nil)
	_ imgsync.LabelSearcher     = (*Client)(nil)
	_ imgsync.Remover           = (*Client)(nil)
)

// Client talks to a registry on behalf of one user.
type Client struct {
	api      *httpapi.Client
	username string
}

// New creates a registry client. The token is sent as a bearer token.
func New(creds Credentials, opts ...httpapi.Option) *Client {
	opts = append([]httpapi.Option{httpapi.WithToken(creds.Token)}, opts...)
	return &Client{api: httpapi.New(creds.Base, opts...), username: creds.Username}
}

func (c *Client) Name() string     { return Name }
func (c *Client) Location() string { return c.api.BaseURL() }
func (c *Client) Close() error     { return nil }

// Username returns the user the client authenticates as.
func (c *Client) Username() string { return c.username }

func (c *Client) ManifestURL(ref imgsync.Reference) string {
	return c.api.URL(hub.ContainerPath(ref), nil)
}

func (c *Client) FetchManifest(ctx context.Context, ref imgsync.Reference) (*imgsync.Manifest, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: %q", imgsync.ErrInvalidReference, ref.String())
	}
	var m imgsync.Manifest
	if err := c.api.Get(ctx, hub.ContainerPath(ref), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Push uploads the image file at path as ref and returns the stored manifest.
func (c *Client) Push(ctx context.Context, path string, ref imgsync.Reference) (*imgsync.Manifest, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: %q", imgsync.ErrInvalidReference, ref.String())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var m imgsync.Manifest
	p := fmt.Sprintf("/push/%s/%s:%s", ref.Collection, ref.Image, ref.Tag)
	if err := c.api.Do(ctx, http.MethodPut, p, nil, f, "application/octet-stream", &m); err != nil {
		return nil, fmt.Errorf("push %s: %w", ref, err)
	}
	return &m, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]imgsync.Manifest, error) {
	return hub.SearchManifests(ctx, c.api, "/container/search", query)
}

// ContainerSearch is Search with the runscript, deffile, environment and
// test of every container included.
func (c *Client) ContainerSearch(ctx context.Context, query string) ([]imgsync.Manifest, error) {
	return hub.SearchManifests(ctx, c.api, "/container/search/details", query)
}

// LabelSearch lists labels by key, value or both. Empty arguments match all.
func (c *Client) LabelSearch(ctx context.Context, key, value string) ([]imgsync.Label, error) {
	q := url.Values{}
	if key != "" {
		q.Set("key", key)
	}
	if value != "" {
		q.Set("value", value)
	}

	var labels []imgsync.Label
	if err := c.api.Get(ctx, "/labels/search", q, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// Remove deletes ref from the registry.
func (c *Client) Remove(ctx context.Context, ref imgsync.Reference) error {
	if !ref.Valid() {
		return fmt.Errorf("%w: %q", imgsync.ErrInvalidReference, ref.String())
	}
	return c.api.Do(ctx, http.MethodDelete, hub.ContainerPath(ref), nil, nil, "", nil)
}
