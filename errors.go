package imgsync

import (
	"context"
	"errors"
)

var (
	// ErrConfiguration is returned when no backend can be resolved from the environment.
	ErrConfiguration = errors.New("imgsync: configuration error")

	// ErrNotFound is returned when a reference does not resolve to a manifest or record.
	ErrNotFound = errors.New("imgsync: not found")

	// ErrNetwork is returned on transport failures while talking to a backend.
	ErrNetwork = errors.New("imgsync: network error")

	// ErrDownload is returned when an artifact could not be fetched to disk.
	ErrDownload = errors.New("imgsync: download failed")

	// ErrAuth is returned when a backend rejects the configured credentials.
	ErrAuth = errors.New("imgsync: authentication failed")

	// ErrIncomplete is returned when a pulled image is missing from disk after download.
	ErrIncomplete = errors.New("imgsync: image file missing after pull")

	// ErrInvalidReference is returned when a reference cannot be used by a backend.
	ErrInvalidReference = errors.New("imgsync: invalid reference")

	// ErrDigestMismatch is returned when downloaded content does not match its digest.
	ErrDigestMismatch = errors.New("imgsync: digest mismatch")
)

// ErrorKind classifies an error for reporting.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindConfiguration ErrorKind = "configuration"
	KindNotFound      ErrorKind = "not-found"
	KindAuth          ErrorKind = "auth"
	KindNetwork       ErrorKind = "network"
	KindDownload      ErrorKind = "download"
	KindIncomplete    ErrorKind = "incomplete"
	KindInvalid       ErrorKind = "invalid"
	KindCanceled      ErrorKind = "canceled"
	KindUnknown       ErrorKind = "unknown"
)

// Kind returns the most specific kind matching err.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDownload), errors.Is(err, ErrDigestMismatch):
		return KindDownload
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrIncomplete):
		return KindIncomplete
	case errors.Is(err, ErrInvalidReference):
		return KindInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}
