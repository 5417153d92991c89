// Package download fetches image artifacts by URL into local files.
//
// Artifacts are streamed into a hidden temporary file next to their
// destination and renamed into place once complete, so a failed or
// interrupted download never leaves a partial file under the final name.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/aweris/imgsync"
)

// Opener opens the artifact at u. Size is -1 when unknown.
type Opener interface {
	Open(ctx context.Context, u *url.URL) (rc io.ReadCloser, size int64, err error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, u *url.URL) (io.ReadCloser, int64, error)

func (f OpenerFunc) Open(ctx context.Context, u *url.URL) (io.ReadCloser, int64, error) {
	return f(ctx, u)
}

// Downloader writes artifacts into a directory. It implements imgsync.Downloader.
type Downloader struct {
	dir     string
	mode    os.FileMode
	logger  *slog.Logger
	openers map[string]Opener

	httpClient  *http.Client
	nameOpts    []name.Option
	remoteOpts  []remote.Option
	maxAttempts int
}

var _ imgsync.Downloader = (*Downloader)(nil)

// Option configures a Downloader.
type Option func(*Downloader)

// WithDir sets the directory relative names are resolved against. Defaults
// to the working directory.
func WithDir(dir string) Option {
	return func(d *Downloader) { d.dir = dir }
}

// WithFileMode sets the permissions of downloaded files.
func WithFileMode(mode os.FileMode) Option {
	return func(d *Downloader) { d.mode = mode }
}

// WithLogger sets the logger for diagnostic output.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

// WithHTTPClient sets the client used for http and https URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) { d.httpClient = c }
}

// WithNameOptions sets the options used to parse oci:// references,
// e.g. name.Insecure for plain-http registries.
func WithNameOptions(opts ...name.Option) Option {
	return func(d *Downloader) { d.nameOpts = append(d.nameOpts, opts...) }
}

// WithRemoteOptions sets the options used to fetch oci:// layers.
func WithRemoteOptions(opts ...remote.Option) Option {
	return func(d *Downloader) { d.remoteOpts = append(d.remoteOpts, opts...) }
}

// WithMaxAttempts sets how often a transient http failure is retried.
func WithMaxAttempts(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithOpener registers o for the given URL schemes, replacing any default.
func WithOpener(o Opener, scheme string, schemes ...string) Option {
	return func(d *Downloader) {
		for _, s := range append(schemes, scheme) {
			d.openers[strings.ToLower(s)] = o
		}
	}
}

// New creates a Downloader with openers for http, https, oci, file, mem and s3.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		mode:        0o644,
		openers:     map[string]Opener{},
		httpClient:  http.DefaultClient,
		maxAttempts: 3,
	}

	h := &httpOpener{downloader: d}
	d.openers["http"] = h
	d.openers["https"] = h
	d.openers["oci"] = &ociOpener{downloader: d}
	b := &BucketOpener{}
	for _, s := range []string{"file", "mem", "s3"} {
		d.openers[s] = b
	}

	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Downloader) log() *slog.Logger {
	if d.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.logger
}

// Download fetches rawURL into the file name and returns its absolute path.
// A relative name is placed in the Downloader's directory.
func (d *Downloader) Download(ctx context.Context, rawURL, name string, progress imgsync.ProgressFunc) (string, error) {
	path, err := d.download(ctx, rawURL, name, progress)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", imgsync.ErrDownload, err)
	}
	return path, nil
}

func (d *Downloader) download(ctx context.Context, rawURL, name string, progress imgsync.ProgressFunc) (string, error) {
	if rawURL == "" {
		return "", errors.New("empty url")
	}
	if name == "" {
		return "", errors.New("empty file name")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	opener, ok := d.openers[strings.ToLower(u.Scheme)]
	if !ok {
		return "", fmt.Errorf("no opener registered for scheme %q", u.Scheme)
	}

	dest := name
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(d.dir, dest)
	}
	if dest, err = filepath.Abs(dest); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	log := d.log().With("url", rawURL, "path", dest)
	log.Debug("downloading")

	rc, size, err := opener.Open(ctx, u)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := &progressWriter{w: tmp, url: rawURL, total: size, progress: progress}
	w.report()
	n, err := io.Copy(w, &contextReader{ctx: ctx, r: rc})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	if size >= 0 && n != size {
		return "", fmt.Errorf("short download: got %d of %d bytes", n, size)
	}

	if err := tmp.Chmod(d.mode); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	committed = true

	log.Debug("downloaded", "bytes", n)
	return dest, nil
}

type progressWriter struct {
	w        io.Writer
	url      string
	written  int64
	total    int64
	progress imgsync.ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.report()
	return n, err
}

func (p *progressWriter) report() {
	if p.progress != nil {
		p.progress(imgsync.ProgressEvent{
			Stage: imgsync.StageDownloading,
			URL:   p.url,
			Bytes: p.written,
			Total: p.total,
		})
	}
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(b []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(b)
}
