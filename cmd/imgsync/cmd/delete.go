package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/imgsync"
)

func newDeleteCmd(app *App, remover imgsync.Remover) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <image>",
		Short: "Delete an image from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := imgsync.ParseReference(args[0], imgsync.WithDefaultCollection(app.Config.GetString("default_collection")))
			if !ref.Valid() {
				return fmt.Errorf("%w: %q", imgsync.ErrInvalidReference, args[0])
			}

			if !force {
				ok, err := app.Confirm(fmt.Sprintf("Delete %s from %s?", ref, app.Backend.Location()))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(app.Err, mutedStyle.Render("deletion cancelled"))
					return nil
				}
			}

			if err := remover.Remove(cmd.Context(), ref); err != nil {
				return fmt.Errorf("delete %s: %w", ref, err)
			}
			fmt.Fprintf(app.Err, "%s %s\n", successStyle.Render("Deleted"), ref)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "don't prompt before deletion")
	return cmd
}
