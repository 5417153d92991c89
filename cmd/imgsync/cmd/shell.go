package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const shellPrompt = "imgsync> "

func newShellCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively against the active client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scanner := bufio.NewScanner(app.In)
			for {
				fmt.Fprint(app.Err, labelStyle.Render(shellPrompt))
				if !scanner.Scan() {
					fmt.Fprintln(app.Err)
					return scanner.Err()
				}

				args := strings.Fields(scanner.Text())
				if len(args) == 0 {
					continue
				}
				switch args[0] {
				case "exit", "quit":
					return nil
				case "shell":
					fmt.Fprintln(app.Err, mutedStyle.Render("already in a shell"))
					continue
				}

				outcome := Dispatch(cmd.Context(), app, args)
				app.Logger.Debug("shell command finished", "command", outcome.Command, "outcome", outcome.Kind.String())

				if err := cmd.Context().Err(); err != nil {
					return err
				}
			}
		},
	}
}
