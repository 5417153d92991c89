package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aweris/imgsync"
)

func newPushCmd(app *App, pusher imgsync.Pusher) *cobra.Command {
	var name, tag string

	cmd := &cobra.Command{
		Use:   "push <file>",
		Short: "Push an image file to the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd, app, pusher, args[0], name, tag)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", `name of the image, in format "collection/image[:tag]"`)
	cmd.Flags().StringVar(&tag, "tag", "", "tag for the image (default: latest)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func runPush(cmd *cobra.Command, app *App, pusher imgsync.Pusher, path, name, tag string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", imgsync.ErrInvalidReference, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", imgsync.ErrInvalidReference, path)
	}
	ref := imgsync.ParseReference(name, imgsync.WithDefaultCollection(app.Config.GetString("default_collection")))
	if tag != "" {
		ref.Tag = strings.ToLower(tag)
	}
	if !ref.Valid() {
		return fmt.Errorf("%w: %q", imgsync.ErrInvalidReference, name)
	}

	fmt.Fprintf(app.Err, "%s %s -> %s\n", labelStyle.Render("Pushing"), path, ref)

	manifest, err := pusher.Push(cmd.Context(), path, ref)
	if err != nil {
		return fmt.Errorf("push %s: %w", ref, err)
	}

	fmt.Fprintf(app.Err, "%s %s\n", successStyle.Render("Pushed"), manifest.URI())
	fmt.Fprintln(app.Out, manifest.URI())
	return nil
}
