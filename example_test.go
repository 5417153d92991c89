package imgsync_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/backend/hub"
	"github.com/aweris/imgsync/internal/download"
	"github.com/aweris/imgsync/internal/store"
)

func ExampleParseReference() {
	ref := imgsync.ParseReference("shub://vsoch/hello-world:latest")
	fmt.Println(ref.Collection, ref.Image, ref.Tag)
	fmt.Println(ref.FileName())

	// Output:
	// vsoch hello-world latest
	// vsoch-hello-world-latest
}

func ExampleCapabilities() {
	b := hub.New("https://singularity-hub.org/api")
	fmt.Println(imgsync.Capabilities(b))
	fmt.Println(imgsync.Supports(b, imgsync.CapabilityPush))

	// Output:
	// [pull search]
	// false
}

func ExamplePull() {
	ctx := context.Background()

	b := hub.New("https://singularity-hub.org/api")
	d := download.New(download.WithDir("images"))

	res, err := imgsync.Pull(ctx, b, d, []string{"vsoch/hello-world"})
	if err != nil {
		log.Fatal(err)
	}
	if path, ok := res.Path(); ok {
		fmt.Println("Pulled:", path)
	}
}

func ExamplePull_storage() {
	ctx := context.Background()

	s, err := store.NewLocalStore(".imgsync")
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	b := hub.New("https://singularity-hub.org/api")
	d := download.New()

	res, err := imgsync.Pull(ctx, b, d, []string{"vsoch/hello-world", "library/busybox:1.31"},
		imgsync.PullWithStorage(s),
		imgsync.PullWithConcurrency(2),
		imgsync.PullWithProgress(func(ev imgsync.ProgressEvent) {
			if ev.Stage == imgsync.StageDone {
				fmt.Println("Success!", ev.Path)
			}
		}),
	)
	if err != nil {
		log.Fatal(err)
	}
	for _, img := range res.Images {
		if img.Err != nil {
			fmt.Printf("%s: %v\n", img.Input, img.Err)
		}
	}
}
