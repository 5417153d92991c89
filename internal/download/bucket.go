package download

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/aweris/imgsync"
)

// BucketOpener reads artifacts from gocloud.dev blob buckets.
//
// With Bucket set, the URL path is the key inside that bucket. Otherwise the
// bucket is opened from the URL: file:///dir/image.sif reads image.sif from
// the directory, s3://bucket/key?region=... reads key from bucket.
type BucketOpener struct {
	Bucket *blob.Bucket
}

func (o *BucketOpener) Open(ctx context.Context, u *url.URL) (io.ReadCloser, int64, error) {
	bucket, key, owned, err := o.bucket(ctx, u)
	if err != nil {
		return nil, 0, err
	}

	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		if owned {
			bucket.Close()
		}
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, 0, fmt.Errorf("%w: %s", imgsync.ErrNotFound, u.Redacted())
		}
		return nil, 0, err
	}

	rc := &bucketReader{Reader: r}
	if owned {
		rc.bucket = bucket
	}
	return rc, r.Size(), nil
}

func (o *BucketOpener) bucket(ctx context.Context, u *url.URL) (*blob.Bucket, string, bool, error) {
	if o.Bucket != nil {
		return o.Bucket, strings.TrimPrefix(u.Path, "/"), false, nil
	}

	var bucketURL, key string
	if strings.EqualFold(u.Scheme, "file") {
		dir, file := path.Split(u.Path)
		bucketURL = (&url.URL{Scheme: "file", Path: dir, RawQuery: u.RawQuery}).String()
		key = file
	} else {
		bucketURL = (&url.URL{Scheme: u.Scheme, Host: u.Host, RawQuery: u.RawQuery}).String()
		key = strings.TrimPrefix(u.Path, "/")
	}
	if key == "" {
		return nil, "", false, fmt.Errorf("no object key in %s", u.Redacted())
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, "", false, err
	}
	return bucket, key, true, nil
}

type bucketReader struct {
	*blob.Reader
	bucket *blob.Bucket
}

func (r *bucketReader) Close() error {
	err := r.Reader.Close()
	if r.bucket != nil {
		if cerr := r.bucket.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
