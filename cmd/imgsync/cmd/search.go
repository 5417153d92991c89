package cmd

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/aweris/imgsync"
)

// detailFields are the manifest fields a container search can print.
type detailFields struct {
	runscript bool
	deffile   bool
	environ   bool
	test      bool
}

func (d detailFields) keys() []string {
	var keys []string
	if d.runscript {
		keys = append(keys, "runscript")
	}
	if d.deffile {
		keys = append(keys, "deffile")
	}
	if d.environ {
		keys = append(keys, "environment")
	}
	if d.test {
		keys = append(keys, "test")
	}
	return keys
}

func newSearchCmd(app *App, searcher imgsync.Searcher) *cobra.Command {
	var details detailFields

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search remote containers",
		Long:  "Search remote containers. Without a query every container is listed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, app, searcher, strings.Join(args, " "), details)
		},
	}

	if _, ok := searcher.(imgsync.ContainerSearcher); ok {
		cmd.Flags().BoolVarP(&details.runscript, "runscript", "r", false, "show the runscript for each container")
		cmd.Flags().BoolVarP(&details.deffile, "def", "d", false, "show the definition file for each container")
		cmd.Flags().BoolVarP(&details.environ, "env", "e", false, "show the environment for each container")
		cmd.Flags().BoolVarP(&details.test, "test", "t", false, "show the test for each container")
	}
	return cmd
}

func runSearch(cmd *cobra.Command, app *App, searcher imgsync.Searcher, query string, details detailFields) error {
	keys := details.keys()

	var (
		manifests []imgsync.Manifest
		err       error
	)
	if cs, ok := searcher.(imgsync.ContainerSearcher); ok && len(keys) > 0 {
		manifests, err = cs.ContainerSearch(cmd.Context(), query)
	} else {
		manifests, err = searcher.Search(cmd.Context(), query)
	}
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(manifests) == 0 {
		fmt.Fprintln(app.Err, mutedStyle.Render("no containers found"))
		return nil
	}
	sortManifests(manifests)

	rows := make([][]string, 0, len(manifests))
	for _, m := range manifests {
		rows = append(rows, []string{m.Name, m.Tag, m.Version})
	}
	renderTable(app.Out, []string{"NAME", "TAG", "VERSION"}, rows)

	for _, m := range manifests {
		for _, key := range keys {
			value, ok := m.Field(key)
			if !ok || value == "" {
				continue
			}
			fmt.Fprintf(app.Out, "%s %s\n%s\n\n", labelStyle.Render(m.Name+":"+m.Tag), mutedStyle.Render(key), value)
		}
	}
	return nil
}

// sortManifests orders by name, then by tag with the newest semantic
// version first. Tags that are not versions follow in lexical order.
func sortManifests(manifests []imgsync.Manifest) {
	slices.SortStableFunc(manifests, func(a, b imgsync.Manifest) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return compareTags(a.Tag, b.Tag)
	})
}

func compareTags(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return vb.Compare(va)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
