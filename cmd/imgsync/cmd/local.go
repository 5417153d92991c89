package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aweris/imgsync"
)

// reference parses s using the configured default collection.
func (a *App) reference(s string) imgsync.Reference {
	return imgsync.ParseReference(s, imgsync.WithDefaultCollection(a.Config.GetString("default_collection")))
}

func newAddCmd(app *App) *cobra.Command {
	var (
		name      string
		copyImage bool
	)

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Add an image file to local storage",
		Long:  "Add an image file to local storage. The file is moved unless --copy is set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("%w: %v", imgsync.ErrInvalidReference, err)
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			ref := app.reference(name)
			if !ref.Valid() {
				return fmt.Errorf("%w: %q", imgsync.ErrInvalidReference, name)
			}

			c, err := app.Store.Add(cmd.Context(), imgsync.AddRequest{
				ImagePath: path,
				URI:       ref.String(),
				Copy:      copyImage,
			})
			if err != nil {
				return fmt.Errorf("add %s: %w", ref, err)
			}

			fmt.Fprintf(app.Err, "%s %s\n", successStyle.Render("Added"), c.URI)
			fmt.Fprintln(app.Out, c.ImagePath)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", `name of the image, in format "collection/image[:tag]"`)
	cmd.Flags().BoolVar(&copyImage, "copy", false, "copy the image instead of moving it")
	return cmd
}

func newRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <image>...",
		Short: "Remove images from the database, keeping their files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				c, err := app.Store.Remove(cmd.Context(), app.reference(arg).String())
				if err != nil {
					return fmt.Errorf("rm %s: %w", arg, err)
				}
				fmt.Fprintf(app.Err, "%s %s\n", successStyle.Render("Removed"), c.URI)
				if c.ImagePath != "" {
					fmt.Fprintln(app.Out, c.ImagePath)
				}
			}
			return nil
		},
	}
}

func newRmiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rmi <image>...",
		Short: "Remove images from the database and delete their files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				c, err := app.Store.Delete(cmd.Context(), app.reference(arg).String())
				if err != nil {
					return fmt.Errorf("rmi %s: %w", arg, err)
				}
				fmt.Fprintf(app.Err, "%s %s\n", successStyle.Render("Deleted"), c.URI)
			}
			return nil
		},
	}
}
