package oci

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/compression"
	"github.com/aweris/imgsync/internal/retry"
)

// fileLayer implements v1.Layer with zstd compression for remote transfer.
// The compressed bytes live in a temporary file removed by cleanup.
type fileLayer struct {
	source     string
	compressed string
	digest     v1.Hash
	diffID     v1.Hash
	size       int64
}

func newFileLayer(path string, level int) (*fileLayer, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", ".imgsync-layer-*.zst")
	if err != nil {
		return nil, err
	}
	defer tmp.Close()

	layer := &fileLayer{source: path, compressed: tmp.Name()}

	uncompressed := digest.SHA256.Digester()
	compressed := digest.SHA256.Digester()
	counter := &countingWriter{}

	if _, err := compression.Compress(io.MultiWriter(tmp, compressed.Hash(), counter), io.TeeReader(src, uncompressed.Hash()), level); err != nil {
		layer.cleanup()
		return nil, fmt.Errorf("compress %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		layer.cleanup()
		return nil, err
	}

	if layer.digest, err = v1.NewHash(compressed.Digest().String()); err != nil {
		layer.cleanup()
		return nil, err
	}
	if layer.diffID, err = v1.NewHash(uncompressed.Digest().String()); err != nil {
		layer.cleanup()
		return nil, err
	}
	layer.size = counter.n
	return layer, nil
}

func (l *fileLayer) cleanup() {
	os.Remove(l.compressed)
}

func (l *fileLayer) Digest() (v1.Hash, error)            { return l.digest, nil }
func (l *fileLayer) DiffID() (v1.Hash, error)            { return l.diffID, nil }
func (l *fileLayer) Compressed() (io.ReadCloser, error)  { return os.Open(l.compressed) }
func (l *fileLayer) Uncompressed() (io.ReadCloser, error) { return os.Open(l.source) }
func (l *fileLayer) Size() (int64, error)                { return l.size, nil }
func (l *fileLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

type countingWriter struct{ n int64 }

func (w *countingWriter) Write(b []byte) (int, error) {
	w.n += int64(len(b))
	return len(b), nil
}

// Push uploads the image file at path as ref and returns the manifest the
// registry now serves for it.
func (c *Client) Push(ctx context.Context, path string, ref imgsync.Reference) (*imgsync.Manifest, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: %q", imgsync.ErrInvalidReference, ref.String())
	}
	repo, err := c.repository(ref)
	if err != nil {
		return nil, err
	}
	tag := repo.Tag(ref.Tag)

	layer, err := newFileLayer(path, c.level)
	if err != nil {
		return nil, fmt.Errorf("build layer: %w", err)
	}
	defer layer.cleanup()

	img, err := c.buildImage(layer, path, ref)
	if err != nil {
		return nil, fmt.Errorf("build image: %w", err)
	}

	c.log().Debug("pushing image", "ref", tag.String(), "bytes", layer.size)

	options := append(c.remoteOptions(ctx), remote.WithJobs(c.concurrency))
	_, err = retry.Do(ctx, 3, retryable, func() (struct{}, error) {
		return struct{}{}, mapError(remote.Write(tag, img, options...))
	})
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", tag, err)
	}

	pushed := ref
	pushed.Version = ""
	return c.FetchManifest(ctx, pushed)
}

func (c *Client) buildImage(layer *fileLayer, path string, ref imgsync.Reference) (v1.Image, error) {
	img := mutate.MediaType(empty.Image, types.OCIManifestSchema1)
	img = mutate.ConfigMediaType(img, types.OCIConfigJSON)

	img, err := mutate.Append(img, mutate.Addendum{
		Layer: layer,
		Annotations: map[string]string{
			ocispec.AnnotationTitle: filepath.Base(path),
		},
	})
	if err != nil {
		return nil, err
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}
	cfg = cfg.DeepCopy()
	cfg.Created = v1.Time{Time: time.Now().UTC()}
	cfg.Config.Labels = map[string]string{
		LabelName: ref.Name(),
		LabelTag:  ref.Tag,
	}

	img, err = mutate.ConfigFile(img, cfg)
	if err != nil {
		return nil, err
	}

	return mutate.Annotations(img, map[string]string{
		ocispec.AnnotationRefName: ref.Tag,
		ocispec.AnnotationCreated: cfg.Created.Format(time.RFC3339),
	}).(v1.Image), nil
}
