package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/opencontainers/go-digest"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/compression"
)

// ociOpener reads oci://<registry>/<repository>@<digest> URLs. The layer is
// verified against its digest and zstd layers are decompressed on the fly.
type ociOpener struct {
	downloader *Downloader
}

func (o *ociOpener) Open(ctx context.Context, u *url.URL) (io.ReadCloser, int64, error) {
	d := o.downloader

	ref, err := name.NewDigest(strings.TrimPrefix(u.Host+u.Path, "/"), d.nameOpts...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", imgsync.ErrInvalidReference, err)
	}
	expected, err := digest.Parse(ref.DigestStr())
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", imgsync.ErrInvalidReference, err)
	}

	opts := append([]remote.Option{remote.WithContext(ctx)}, d.remoteOpts...)
	layer, err := remote.Layer(ref, opts...)
	if err != nil {
		return nil, 0, err
	}
	rc, err := layer.Compressed()
	if err != nil {
		return nil, 0, err
	}

	vr := &verifyingReader{rc: rc, verifier: expected.Verifier(), expected: expected}
	r, err := compression.NewReader(vr)
	if err != nil {
		rc.Close()
		return nil, 0, err
	}
	// decompressed size is not known up front
	return r, -1, nil
}

type verifyingReader struct {
	rc       io.ReadCloser
	verifier digest.Verifier
	expected digest.Digest
}

func (v *verifyingReader) Read(b []byte) (int, error) {
	n, err := v.rc.Read(b)
	if n > 0 {
		v.verifier.Write(b[:n])
	}
	if errors.Is(err, io.EOF) && !v.verifier.Verified() {
		return n, fmt.Errorf("%w: layer does not match %s", imgsync.ErrDigestMismatch, v.expected)
	}
	return n, err
}

func (v *verifyingReader) Close() error {
	return v.rc.Close()
}
