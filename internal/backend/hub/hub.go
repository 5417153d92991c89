// Package hub is a read-only backend for registry-hub style APIs.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/backend/httpapi"
)

// Name identifies the backend.
const Name = "hub"

var (
	_ imgsync.Puller   = (*Client)(nil)
	_ imgsync.Searcher = (*Client)(nil)
)

// Client pulls and searches images on a hub.
type Client struct {
	api *httpapi.Client
}

// New creates a hub client for the API at base.
func New(base string, opts ...httpapi.Option) *Client {
	return &Client{api: httpapi.New(base, opts...)}
}

func (c *Client) Name() string     { return Name }
func (c *Client) Location() string { return c.api.BaseURL() }
func (c *Client) Close() error     { return nil }

// ManifestURL returns the URL the manifest of ref is fetched from.
func (c *Client) ManifestURL(ref imgsync.Reference) string {
	return c.api.URL(ContainerPath(ref), nil)
}

// FetchManifest retrieves the manifest of ref.
func (c *Client) FetchManifest(ctx context.Context, ref imgsync.Reference) (*imgsync.Manifest, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: %q", imgsync.ErrInvalidReference, ref.String())
	}
	var m imgsync.Manifest
	if err := c.api.Get(ctx, ContainerPath(ref), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Search lists the images matching query.
func (c *Client) Search(ctx context.Context, query string) ([]imgsync.Manifest, error) {
	return SearchManifests(ctx, c.api, "/container/search", query)
}

// ContainerPath is the API path of the container ref.
func ContainerPath(ref imgsync.Reference) string {
	return fmt.Sprintf("/container/%s/%s:%s", ref.Collection, ref.Image, ref.Tag)
}

// SearchManifests runs a search against path. Results may come back as a
// bare array or wrapped in a "results" object.
func SearchManifests(ctx context.Context, api *httpapi.Client, path, query string) ([]imgsync.Manifest, error) {
	var q url.Values
	if query != "" {
		q = url.Values{"q": {query}}
	}

	var raw json.RawMessage
	if err := api.Get(ctx, path, q, &raw); err != nil {
		return nil, err
	}

	var list []imgsync.Manifest
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Results []imgsync.Manifest `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	return wrapped.Results, nil
}
