package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/aweris/imgsync"
)

func newImagesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "images [query]",
		Short: "List images in local storage, optionally filtered by query",
		RunE: func(cmd *cobra.Command, args []string) error {
			containers, err := listContainers(cmd, app, args)
			if err != nil || len(containers) == 0 {
				return err
			}

			rows := make([][]string, 0, len(containers))
			for _, c := range containers {
				rows = append(rows, []string{
					strconv.FormatInt(c.ID, 10),
					c.Name,
					c.Tag,
					shortVersion(c.Version),
					units.HumanDuration(time.Since(c.CreatedAt)) + " ago",
				})
			}
			renderTable(app.Out, []string{"ID", "NAME", "TAG", "VERSION", "CREATED"}, rows)
			return nil
		},
	}
}

func newListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list [query]",
		Short: "List local containers with their files",
		RunE: func(cmd *cobra.Command, args []string) error {
			containers, err := listContainers(cmd, app, args)
			if err != nil || len(containers) == 0 {
				return err
			}

			rows := make([][]string, 0, len(containers))
			for _, c := range containers {
				size := "-"
				if info, err := os.Stat(c.ImagePath); err == nil {
					size = units.HumanSize(float64(info.Size()))
				}
				rows = append(rows, []string{c.URI, size, c.ImagePath})
			}
			renderTable(app.Out, []string{"URI", "SIZE", "PATH"}, rows)
			return nil
		},
	}
}

func listContainers(cmd *cobra.Command, app *App, args []string) ([]imgsync.Container, error) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "*" {
		query = ""
	}

	containers, err := app.Store.List(cmd.Context(), query)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	if len(containers) == 0 {
		fmt.Fprintln(app.Err, mutedStyle.Render("no containers found"))
	}
	return containers, nil
}

// shortVersion trims content hashes to the width docker uses for image IDs.
func shortVersion(v string) string {
	if len(v) == 64 {
		return v[:12]
	}
	return v
}
