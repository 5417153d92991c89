package oci

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/compression"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	srv := httptest.NewServer(registry.New(registry.Logger(log.New(io.Discard, "", 0))))
	t.Cleanup(srv.Close)

	c, err := New(strings.TrimPrefix(srv.URL, "http://"), WithInsecure(), WithAuthenticator(StaticAuthenticator{}))
	require.NoError(t, err)
	return c
}

func writeImage(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.sif")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestClient_Capabilities(t *testing.T) {
	t.Parallel()

	c, err := New("registry.example.com")
	require.NoError(t, err)

	assert.Equal(t, []imgsync.Capability{
		imgsync.CapabilityPull,
		imgsync.CapabilityPush,
		imgsync.CapabilitySearch,
		imgsync.CapabilityRemove,
	}, imgsync.Capabilities(c))
	assert.False(t, imgsync.Supports(c, imgsync.CapabilityLabelSearch))
	assert.Equal(t, "https://registry.example.com", c.Location())
	assert.Equal(t, "https://registry.example.com/v2/library/ubuntu/manifests/16.04",
		c.ManifestURL(imgsync.ParseReference("library/ubuntu:16.04")))

	_, err = New("not a registry!")
	assert.ErrorIs(t, err, imgsync.ErrConfiguration)
}

func TestClient_PushThenPull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestClient(t)

	content := strings.Repeat("singularity", 1000)
	ref := imgsync.ParseReference("vsoch/hello:v1")

	pushed, err := c.Push(ctx, writeImage(t, content), ref)
	require.NoError(t, err)
	assert.Equal(t, "vsoch/hello", pushed.Name)
	assert.Equal(t, "v1", pushed.Tag)
	assert.True(t, strings.HasPrefix(pushed.Version, "sha256:"), pushed.Version)
	assert.True(t, strings.HasPrefix(pushed.Image, "oci://"+c.Registry()+"/vsoch/hello@sha256:"), pushed.Image)

	mediaType, ok := pushed.Field("mediaType")
	require.True(t, ok)
	assert.Equal(t, "application/vnd.oci.image.layer.v1.tar+zstd", mediaType)

	raw, ok := pushed.Field("labels")
	require.True(t, ok)
	var labels map[string]string
	require.NoError(t, json.Unmarshal([]byte(raw), &labels))
	assert.Equal(t, "vsoch/hello", labels[LabelName])
	assert.Equal(t, "v1", labels[LabelTag])

	fetched, err := c.FetchManifest(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, pushed.URI(), fetched.URI())
	assert.Equal(t, pushed.Image, fetched.Image)

	// pinned by digest
	byDigest, err := c.FetchManifest(ctx, imgsync.ParseReference(pushed.URI()))
	require.NoError(t, err)
	assert.Equal(t, pushed.Version, byDigest.Version)
}

func TestClient_FetchMissing(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)

	_, err := c.FetchManifest(context.Background(), imgsync.ParseReference("library/nothing:here"))
	assert.ErrorIs(t, err, imgsync.ErrNotFound)

	_, err = c.FetchManifest(context.Background(), imgsync.ParseReference("library/"))
	assert.ErrorIs(t, err, imgsync.ErrInvalidReference)
}

func TestClient_Search(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestClient(t)

	for _, r := range []string{"vsoch/hello:v1", "vsoch/hello:v2", "library/ubuntu:16.04"} {
		_, err := c.Push(ctx, writeImage(t, r), imgsync.ParseReference(r))
		require.NoError(t, err)
	}

	got, err := c.Search(ctx, "hello")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, m := range got {
		assert.Equal(t, "vsoch/hello", m.Name)
	}

	all, err := c.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestClient_Remove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestClient(t)

	ref := imgsync.ParseReference("vsoch/hello:v1")
	pushed, err := c.Push(ctx, writeImage(t, "bye"), ref)
	require.NoError(t, err)

	require.NoError(t, c.Remove(ctx, ref))

	_, err = c.FetchManifest(ctx, imgsync.ParseReference(pushed.URI()))
	assert.ErrorIs(t, err, imgsync.ErrNotFound)

	assert.ErrorIs(t, c.Remove(ctx, imgsync.ParseReference("vsoch/never")), imgsync.ErrNotFound)
}

func TestFileLayer(t *testing.T) {
	t.Parallel()

	path := writeImage(t, strings.Repeat("a", 10_000))
	layer, err := newFileLayer(path, 3)
	require.NoError(t, err)
	defer layer.cleanup()

	size, err := layer.Size()
	require.NoError(t, err)
	assert.Less(t, size, int64(10_000))

	rc, err := layer.Compressed()
	require.NoError(t, err)
	dec, err := compression.NewReader(rc)
	require.NoError(t, err)
	data, err := io.ReadAll(dec)
	require.NoError(t, err)
	require.NoError(t, dec.Close())
	assert.Equal(t, strings.Repeat("a", 10_000), string(data))

	digest, _ := layer.Digest()
	diffID, _ := layer.DiffID()
	assert.NotEqual(t, digest, diffID)

	layer.cleanup()
	_, err = os.Stat(layer.compressed)
	assert.True(t, os.IsNotExist(err))
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "not found", err: &transport.Error{StatusCode: http.StatusNotFound}, want: imgsync.ErrNotFound},
		{name: "unauthorized", err: &transport.Error{StatusCode: http.StatusUnauthorized}, want: imgsync.ErrAuth},
		{name: "server", err: &transport.Error{StatusCode: http.StatusServiceUnavailable}, want: imgsync.ErrNetwork},
		{
			name: "diagnostic code",
			err: &transport.Error{StatusCode: http.StatusBadRequest, Errors: []transport.Diagnostic{
				{Code: transport.NameUnknownErrorCode},
			}},
			want: imgsync.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}

	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(context.Canceled), context.Canceled)
}
