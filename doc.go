// Package imgsync synchronizes container images between local storage and remote registry backends.
//
// A backend is any value implementing [Backend]. What it can do is expressed by the optional
// capability interfaces it also implements ([Puller], [Pusher], [Searcher], [ContainerSearcher],
// [LabelSearcher], [Remover]); [Capabilities] and [Supports] report them without reflection.
//
// Pulling resolves references into manifests, downloads the artifacts and optionally reconciles
// them into a [Storage]:
//
//	res, err := imgsync.Pull(ctx, backend, downloader, []string{"library/ubuntu:16.04"},
//	    imgsync.PullWithStorage(store),
//	    imgsync.PullWithProgress(render),
//	)
//	if err != nil {
//	    return err
//	}
//	for _, path := range res.Paths() {
//	    fmt.Println(path)
//	}
//
// Images that fail are reported in the result and never abort the rest of the batch:
//
//	for _, img := range res.Images {
//	    if img.Err != nil {
//	        log.Printf("%s: %v", img.Input, img.Err)
//	    }
//	}
package imgsync
