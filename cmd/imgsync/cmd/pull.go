package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/imgsync"
)

func newPullCmd(app *App, puller imgsync.Puller) *cobra.Command {
	var (
		fileName string
		noCache  bool
	)

	cmd := &cobra.Command{
		Use:   "pull <image>...",
		Short: "Pull images from the registry",
		Long:  "Pull one or more images and, unless --no-cache is set, add them to local storage.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd, app, puller, args, fileName, !noCache)
		},
	}

	cmd.Flags().StringVar(&fileName, "name", "", "custom file name for the first image")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "don't add the images to local storage")
	return cmd
}

func runPull(cmd *cobra.Command, app *App, puller imgsync.Puller, images []string, fileName string, save bool) error {
	renderer := newProgressRenderer(app.Err)

	opts := []imgsync.PullOption{
		imgsync.PullWithLogger(app.Logger),
		imgsync.PullWithProgress(renderer.Handle),
		imgsync.PullWithDefaultCollection(app.Config.GetString("default_collection")),
		imgsync.PullWithConcurrency(app.Config.GetInt("concurrency")),
	}
	if fileName != "" {
		opts = append(opts, imgsync.PullWithFileName(fileName))
	}
	if save {
		opts = append(opts, imgsync.PullWithStorage(app.Store))
	}

	res, err := imgsync.Pull(cmd.Context(), puller, app.Downloader, images, opts...)
	if err != nil {
		return err
	}

	for _, path := range res.Paths() {
		fmt.Fprintln(app.Out, path)
	}

	if err := res.Err(); err != nil {
		return fmt.Errorf("%d of %d images failed: %w", len(images)-len(res.Paths()), len(images), err)
	}
	return nil
}
