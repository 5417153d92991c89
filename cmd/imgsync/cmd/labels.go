package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aweris/imgsync"
)

func newLabelsCmd(app *App, searcher imgsync.LabelSearcher) *cobra.Command {
	var key, value string

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Query labels on the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			labels, err := searcher.LabelSearch(cmd.Context(), key, value)
			if err != nil {
				return fmt.Errorf("label search: %w", err)
			}
			if len(labels) == 0 {
				fmt.Fprintln(app.Err, mutedStyle.Render("no labels found"))
				return nil
			}

			rows := make([][]string, 0, len(labels))
			for _, l := range labels {
				rows = append(rows, []string{l.Key, l.Value, strconv.Itoa(len(l.Containers)), strings.Join(l.Containers, "\n")})
			}
			renderTable(app.Out, []string{"KEY", "VALUE", "COUNT", "CONTAINERS"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "a label key to search for")
	cmd.Flags().StringVarP(&value, "value", "v", "", "a label value to search for")
	return cmd
}
