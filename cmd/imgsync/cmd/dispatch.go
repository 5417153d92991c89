package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/aweris/imgsync"
)

// Exit codes reported by the binary.
const (
	ExitOK            = 0
	ExitError         = 1
	ExitUsage         = 2
	ExitConfiguration = 3
	ExitNotFound      = 4
	ExitAuth          = 5
	ExitNetwork       = 6
	ExitIncomplete    = 7
	ExitCanceled      = 130
)

// OutcomeKind tells how a dispatched command ended.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeUnknownCommand
	OutcomeHandlerError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeUnknownCommand:
		return "unknown command"
	case OutcomeHandlerError:
		return "handler error"
	default:
		return "unknown"
	}
}

// Outcome is the result of Dispatch.
type Outcome struct {
	Kind OutcomeKind

	// Command is the subcommand that ran, or the unrecognized word.
	Command string

	// Err is set for OutcomeHandlerError.
	Err error
}

// ExitCode maps the outcome to a process exit code.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case OutcomeOK:
		return ExitOK
	case OutcomeUnknownCommand:
		return ExitUsage
	default:
		return exitCode(o.Err)
	}
}

func exitCode(err error) int {
	switch imgsync.Kind(err) {
	case imgsync.KindNone:
		return ExitOK
	case imgsync.KindConfiguration:
		return ExitConfiguration
	case imgsync.KindNotFound:
		return ExitNotFound
	case imgsync.KindAuth:
		return ExitAuth
	case imgsync.KindNetwork, imgsync.KindDownload:
		return ExitNetwork
	case imgsync.KindIncomplete:
		return ExitIncomplete
	case imgsync.KindInvalid:
		return ExitUsage
	case imgsync.KindCanceled:
		return ExitCanceled
	default:
		return ExitError
	}
}

// Dispatch builds the command tree for app's backend and runs args through
// it. Unrecognized commands print the help text.
func Dispatch(ctx context.Context, app *App, args []string) Outcome {
	root := NewRootCommand(app)
	root.SetArgs(args)

	if _, _, err := root.Find(args); err != nil {
		fmt.Fprintf(app.Err, "%s\n\n", err)
		root.SetOut(app.Err)
		_ = root.Help()
		return Outcome{Kind: OutcomeUnknownCommand, Command: firstWord(args)}
	}

	cmd, err := root.ExecuteContextC(ctx)
	name := root.Name()
	if cmd != nil {
		name = cmd.Name()
	}
	if err != nil {
		printError(app.Err, err)
		return Outcome{Kind: OutcomeHandlerError, Command: name, Err: err}
	}
	return Outcome{Kind: OutcomeOK, Command: name}
}

func firstWord(args []string) string {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config":
			i++
		case !strings.HasPrefix(args[i], "-"):
			return args[i]
		}
	}
	return ""
}
