package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/backend"
	"github.com/aweris/imgsync/internal/backend/oci"
	"github.com/aweris/imgsync/internal/download"
	"github.com/aweris/imgsync/internal/store"
)

// Version is set at build time.
var Version = "dev"

// App is the state shared by all commands of one process.
type App struct {
	Backend    imgsync.Backend
	Store      store.Store
	Downloader imgsync.Downloader
	Config     *viper.Viper
	Logger     *slog.Logger

	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Confirm asks a yes/no question before destructive commands.
	Confirm func(message string) (bool, error)

	announced bool
}

// NewApp resolves the backend and opens the local store described by v.
func NewApp(v *viper.Viper, logger *slog.Logger, in io.Reader, out, errOut io.Writer) (*App, error) {
	b, err := backend.Resolve(backendConfig(v, logger))
	if err != nil {
		return nil, err
	}

	storeOpts := []store.Option{
		store.WithCacheSize(v.GetInt("cache_size")),
		store.WithLogger(logger),
	}
	if db := v.GetString("database"); db != "" {
		storeOpts = append(storeOpts, store.WithDatabase(db))
	}
	st, err := store.NewLocalStore(v.GetString("storage.dir"), storeOpts...)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("%w: open storage: %v", imgsync.ErrConfiguration, err)
	}

	return &App{
		Backend:    b,
		Store:      st,
		Downloader: download.New(downloadOptions(v, b, logger)...),
		Config:     v,
		Logger:     logger,
		In:         in,
		Out:        out,
		Err:        errOut,
		Confirm:    surveyConfirm,
	}, nil
}

func downloadOptions(v *viper.Viper, b imgsync.Backend, logger *slog.Logger) []download.Option {
	opts := []download.Option{
		download.WithDir(v.GetString("download.dir")),
		download.WithLogger(logger),
		download.WithHTTPClient(&http.Client{}),
	}
	if c, ok := b.(*oci.Client); ok {
		opts = append(opts,
			download.WithNameOptions(c.NameOptions()...),
			download.WithRemoteOptions(c.RemoteOptions()...),
		)
	}
	return opts
}

// Close releases the backend and the store.
func (a *App) Close() error {
	return errors.Join(a.Backend.Close(), a.Store.Close())
}

func (a *App) announce(cmd *cobra.Command) {
	if a.announced {
		return
	}
	switch cmd.Name() {
	case "get", "help":
		return
	}
	a.announced = true
	fmt.Fprintf(a.Err, "%s %s\n",
		mutedStyle.Render("[client|"+a.Backend.Name()+"]"),
		mutedStyle.Render("[database|"+a.Store.Location()+"]"),
	)
}

func surveyConfirm(message string) (bool, error) {
	proceed := false
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	if err := survey.AskOne(prompt, &proceed); err != nil {
		return false, err
	}
	return proceed, nil
}

// NewRootCommand builds the command tree. Commands the backend cannot serve
// are left out, as are flags it cannot honor.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "imgsync",
		Short:         "Container image sync client",
		Long:          "Pull, push and search container images on a registry and manage them in local storage.",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			app.announce(cmd)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(app.In)
	root.SetOut(app.Out)
	root.SetErr(app.Err)

	root.PersistentFlags().Bool("debug", false, "use verbose logging to debug")
	root.PersistentFlags().String("config", "", "config file (default: ~/.config/imgsync/config.yaml)")

	root.AddCommand(
		newAddCmd(app),
		newRmCmd(app),
		newRmiCmd(app),
		newListCmd(app),
		newImagesCmd(app),
		newInspectCmd(app),
		newGetCmd(app),
		newShellCmd(app),
	)

	if p, ok := app.Backend.(imgsync.Puller); ok {
		root.AddCommand(newPullCmd(app, p))
	}
	if p, ok := app.Backend.(imgsync.Pusher); ok {
		root.AddCommand(newPushCmd(app, p))
	}
	if s, ok := app.Backend.(imgsync.Searcher); ok {
		root.AddCommand(newSearchCmd(app, s))
	}
	if s, ok := app.Backend.(imgsync.LabelSearcher); ok {
		root.AddCommand(newLabelsCmd(app, s))
	}
	if r, ok := app.Backend.(imgsync.Remover); ok {
		root.AddCommand(newDeleteCmd(app, r))
	}

	root.InitDefaultHelpCmd()
	return root
}

type globalFlags struct {
	config  string
	debug   bool
	version bool
}

// parseGlobalFlags reads the flags needed before the command tree exists.
func parseGlobalFlags(args []string) globalFlags {
	var g globalFlags

	fs := pflag.NewFlagSet("imgsync", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.StringVar(&g.config, "config", "", "")
	fs.BoolVar(&g.debug, "debug", false, "")
	fs.BoolVar(&g.version, "version", false, "")
	_ = fs.Parse(args)

	return g
}

// Run executes one command line and returns the exit code.
func Run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	flags := parseGlobalFlags(args)
	if flags.version {
		fmt.Fprintln(out, Version)
		return ExitOK
	}

	v, err := loadConfig(flags.config)
	if err != nil {
		printError(errOut, err)
		return exitCode(err)
	}
	logger := newLogger(errOut, v.GetString("log_level"), flags.debug)

	app, err := NewApp(v, logger, in, out, errOut)
	if err != nil {
		printError(errOut, err)
		return exitCode(err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to close", "error", err)
		}
	}()

	outcome := Dispatch(ctx, app, args)
	logger.Debug("command finished", "command", outcome.Command, "outcome", outcome.Kind.String())
	return outcome.ExitCode()
}

// Execute runs the command line of the current process and exits.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
