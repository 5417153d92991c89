package imgsync

import "context"

// ProgressStage identifies the phase of a pull.
type ProgressStage int

const (
	StageFetchingManifest ProgressStage = iota
	StageDownloading
	StageSaving
	StageDone
	StageFailed
)

func (s ProgressStage) String() string {
	switch s {
	case StageFetchingManifest:
		return "fetching manifest"
	case StageDownloading:
		return "downloading"
	case StageSaving:
		return "saving"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProgressEvent is a progress update for one image.
type ProgressEvent struct {
	Stage ProgressStage

	// Image is the reference as given by the caller.
	Image string

	// URL being fetched, set while downloading.
	URL string

	// Bytes written so far and the expected total (-1 if unknown).
	Bytes int64
	Total int64

	// Path is the final path, set on StageDone.
	Path string

	// Err is set on StageFailed.
	Err error
}

// ProgressFunc receives progress updates. With concurrent pulls it is called
// from several goroutines.
type ProgressFunc func(ProgressEvent)

// Downloader streams an artifact URL to a local file named name and returns
// the final path. Nothing is left at the final path when it fails.
type Downloader interface {
	Download(ctx context.Context, url, name string, progress ProgressFunc) (string, error)
}
