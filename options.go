package imgsync

import "log/slog"

// PullOption configures Pull.
type PullOption func(*pullOptions)

type pullOptions struct {
	fileName          string
	storage           Storage
	progress          ProgressFunc
	logger            *slog.Logger
	defaultCollection string
	concurrency       int
}

func defaultPullOptions() *pullOptions {
	return &pullOptions{
		defaultCollection: DefaultCollection,
		concurrency:       1,
	}
}

// PullWithFileName names the downloaded file. Only the first image of a
// request uses it; the others derive their names from their references.
func PullWithFileName(name string) PullOption {
	return func(o *pullOptions) { o.fileName = name }
}

// PullWithStorage reconciles every pulled image into s.
func PullWithStorage(s Storage) PullOption {
	return func(o *pullOptions) { o.storage = s }
}

// PullWithProgress sets the progress callback.
func PullWithProgress(fn ProgressFunc) PullOption {
	return func(o *pullOptions) { o.progress = fn }
}

// PullWithLogger sets the logger for diagnostic output.
func PullWithLogger(l *slog.Logger) PullOption {
	return func(o *pullOptions) { o.logger = l }
}

// PullWithDefaultCollection sets the collection for references without one.
func PullWithDefaultCollection(collection string) PullOption {
	return func(o *pullOptions) {
		if collection != "" {
			o.defaultCollection = collection
		}
	}
}

// PullWithConcurrency sets how many images are pulled at once. The default
// of 1 pulls strictly in order.
func PullWithConcurrency(n int) PullOption {
	return func(o *pullOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func (o *pullOptions) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}

func (o *pullOptions) emit(ev ProgressEvent) {
	if o.progress != nil {
		o.progress(ev)
	}
}
