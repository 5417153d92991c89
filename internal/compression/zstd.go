// Package compression wraps zstd for image layers moved over OCI registries.
package compression

import (
	"bufio"
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
)

var magic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Level maps a user level (1 fastest, 2 default, 3 better) to a zstd encoder level.
func Level(level int) zstd.EncoderLevel {
	switch level {
	case 1:
		return zstd.SpeedFastest
	case 3:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedDefault
	}
}

// Compress streams r into w as a single zstd frame and returns the number of
// uncompressed bytes read.
func Compress(w io.Writer, r io.Reader, level int) (int64, error) {
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(Level(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(enc, r)
	if err != nil {
		enc.Close()
		return n, err
	}
	return n, enc.Close()
}

// IsZstd reports whether b starts with a zstd frame header.
func IsZstd(b []byte) bool {
	return bytes.HasPrefix(b, magic)
}

type reader struct {
	io.Reader
	dec *zstd.Decoder
	src io.Closer
}

func (r *reader) Close() error {
	if r.dec != nil {
		r.dec.Close()
	}
	if r.src != nil {
		return r.src.Close()
	}
	return nil
}

// NewReader returns a reader yielding the decompressed content of rc when it
// is zstd-compressed and the raw content otherwise. Closing it closes rc.
func NewReader(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	head, err := br.Peek(len(magic))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if !IsZstd(head) {
		return &reader{Reader: br, src: rc}, nil
	}

	dec, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &reader{Reader: dec, dec: dec, src: rc}, nil
}
