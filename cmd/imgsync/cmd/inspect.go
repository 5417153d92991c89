package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aweris/imgsync"
)

func newInspectCmd(app *App) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "inspect <image>...",
		Short: "Show the stored record of images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				c, err := app.Store.Get(cmd.Context(), app.reference(arg).String())
				if err != nil {
					return fmt.Errorf("inspect %s: %w", arg, err)
				}

				out, err := encodeContainer(c, asYAML)
				if err != nil {
					return err
				}
				fmt.Fprintln(app.Out, string(out))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print YAML instead of JSON")
	return cmd
}

func encodeContainer(c *imgsync.Container, asYAML bool) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil || !asYAML {
		return data, err
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

func newGetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <image>",
		Short: "Print the path of an image in local storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Store.Get(cmd.Context(), app.reference(args[0]).String())
			if err != nil {
				return fmt.Errorf("get %s: %w", args[0], err)
			}
			fmt.Fprintln(app.Out, c.ImagePath)
			return nil
		},
	}
}
