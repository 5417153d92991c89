package imgsync

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sourcegraph/conc/pool"
)

// ImagePull is the outcome of pulling one image.
type ImagePull struct {
	// Input is the reference as given by the caller.
	Input string

	Reference Reference
	Manifest  *Manifest

	// Path is the final resting place of the image, empty on failure.
	Path string

	Err error
}

// PullResult holds one ImagePull per requested image, in request order.
type PullResult struct {
	Images []ImagePull
}

// Paths returns the paths of the images that were pulled, in request order.
func (r *PullResult) Paths() []string {
	var paths []string
	for _, img := range r.Images {
		if img.Err == nil && img.Path != "" {
			paths = append(paths, img.Path)
		}
	}
	return paths
}

// Path returns the path of a single-image pull.
func (r *PullResult) Path() (string, bool) {
	if len(r.Images) != 1 {
		return "", false
	}
	img := r.Images[0]
	if img.Err != nil || img.Path == "" {
		return "", false
	}
	return img.Path, true
}

// Err joins the errors of all failed images.
func (r *PullResult) Err() error {
	var errs []error
	for _, img := range r.Images {
		if img.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", img.Input, img.Err))
		}
	}
	return errors.Join(errs...)
}

// Pull fetches images from b, downloads their artifacts with d and, when a
// storage is configured, records them there.
//
// A failing image does not stop the others; its error is kept in the result.
// The returned error is only set for invalid arguments or a done context.
func Pull(ctx context.Context, b Puller, d Downloader, images []string, opts ...PullOption) (*PullResult, error) {
	if b == nil || d == nil {
		return nil, errors.New("imgsync: pull needs a backend and a downloader")
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images to pull", ErrInvalidReference)
	}

	o := defaultPullOptions()
	for _, opt := range opts {
		opt(o)
	}

	o.log().Debug("executing pull", "images", len(images), "backend", b.Name())

	res := &PullResult{Images: make([]ImagePull, len(images))}

	if o.concurrency <= 1 || len(images) == 1 {
		for i, image := range images {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Images[i] = pullOne(ctx, b, d, o, i, image)
		}
		return res, nil
	}

	p := pool.New().WithMaxGoroutines(o.concurrency)
	for i, image := range images {
		p.Go(func() {
			res.Images[i] = pullOne(ctx, b, d, o, i, image)
		})
	}
	p.Wait()

	return res, ctx.Err()
}

func pullOne(ctx context.Context, b Puller, d Downloader, o *pullOptions, idx int, image string) ImagePull {
	log := o.log().With("image", image)

	ref := ParseReference(image, WithDefaultCollection(o.defaultCollection))
	out := ImagePull{Input: image, Reference: ref}

	fail := func(err error) ImagePull {
		out.Err = err
		log.Error("pull failed", "error", err)
		o.emit(ProgressEvent{Stage: StageFailed, Image: image, Err: err})
		return out
	}

	url := b.ManifestURL(ref)
	log.Debug("retrieving manifest", "url", url)
	o.emit(ProgressEvent{Stage: StageFetchingManifest, Image: image, URL: url})

	manifest, err := b.FetchManifest(ctx, ref)
	if err != nil {
		return fail(fmt.Errorf("fetch manifest: %w", err))
	}
	manifest.SelfLink = url
	out.Manifest = manifest

	name := ref.FileName()
	if idx == 0 && o.fileName != "" {
		name = o.fileName
	}

	progress := func(ev ProgressEvent) {
		ev.Image = image
		o.emit(ev)
	}
	path, err := d.Download(ctx, manifest.Image, name, progress)
	if err != nil {
		return fail(fmt.Errorf("download %s: %w", manifest.Image, err))
	}

	if o.storage != nil {
		o.emit(ProgressEvent{Stage: StageSaving, Image: image, Path: path})
		container, err := o.storage.Add(ctx, AddRequest{
			ImagePath: path,
			URI:       manifest.URI(),
			URL:       manifest.Image,
			Metadata:  manifest,
		})
		if err != nil {
			return fail(fmt.Errorf("save %s: %w", manifest.URI(), err))
		}
		path = container.ImagePath
	}

	if _, err := os.Stat(path); err != nil {
		return fail(fmt.Errorf("%w: %s", ErrIncomplete, path))
	}

	log.Debug("retrieved image file", "path", path)
	out.Path = path
	o.emit(ProgressEvent{Stage: StageDone, Image: image, Path: path})
	return out
}
