package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/backend/httpapi"
	"github.com/aweris/imgsync/internal/backend/hub"
	"github.com/aweris/imgsync/internal/backend/registry"
	"github.com/aweris/imgsync/internal/download"
	"github.com/aweris/imgsync/internal/store"
)

type testApp struct {
	*App
	out    *bytes.Buffer
	errOut *bytes.Buffer
	dir    string
}

func newTestApp(t *testing.T, b imgsync.Backend) *testApp {
	t.Helper()

	dir := t.TempDir()
	st, err := store.NewLocalStore(filepath.Join(dir, "storage"))
	require.NoError(t, err)

	v := viper.New()
	v.Set("default_collection", imgsync.DefaultCollection)
	v.Set("concurrency", 1)

	ta := &testApp{out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, dir: dir}
	ta.App = &App{
		Backend:    b,
		Store:      st,
		Downloader: download.New(download.WithDir(filepath.Join(dir, "downloads"))),
		Config:     v,
		Logger:     slog.New(slog.DiscardHandler),
		In:         strings.NewReader(""),
		Out:        ta.out,
		Err:        ta.errOut,
		Confirm:    func(string) (bool, error) { return false, nil },
	}
	t.Cleanup(func() { _ = ta.Close() })
	return ta
}

func (ta *testApp) reset() {
	ta.out.Reset()
	ta.errOut.Reset()
	ta.announced = false
}

// newHubServer serves one manifest and its artifact.
func newHubServer(t *testing.T) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/container/library/ubuntu:16.04", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"name":"library/ubuntu","tag":"16.04","version":"v1","image":"%s/files/ubuntu.sif"}`, srv.URL)
	})
	mux.HandleFunc("GET /files/ubuntu.sif", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ubuntu-bytes"))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fakeRemover struct {
	removed []imgsync.Reference
}

func (f *fakeRemover) Name() string     { return "fake" }
func (f *fakeRemover) Location() string { return "mem://fake" }
func (f *fakeRemover) Close() error     { return nil }

func (f *fakeRemover) Remove(_ context.Context, ref imgsync.Reference) error {
	f.removed = append(f.removed, ref)
	return nil
}

func commandNames(app *App) []string {
	var names []string
	for _, c := range NewRootCommand(app).Commands() {
		names = append(names, c.Name())
	}
	return names
}

func TestNewRootCommand_CapabilityGating(t *testing.T) {
	t.Parallel()

	local := []string{"add", "rm", "rmi", "list", "images", "inspect", "get", "shell"}

	tests := []struct {
		name    string
		backend imgsync.Backend
		present []string
		absent  []string
	}{
		{
			name:    "hub",
			backend: hub.New("http://hub.example.com/api"),
			present: []string{"pull", "search"},
			absent:  []string{"push", "labels", "delete"},
		},
		{
			name:    "registry",
			backend: registry.New(registry.Credentials{Base: "http://registry.example.com/api", Token: "tok"}),
			present: []string{"pull", "push", "search", "labels", "delete"},
		},
		{
			name:    "remove only",
			backend: &fakeRemover{},
			present: []string{"delete"},
			absent:  []string{"pull", "push", "search", "labels"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ta := newTestApp(t, tt.backend)

			names := commandNames(ta.App)
			for _, n := range append(local, tt.present...) {
				assert.Contains(t, names, n)
			}
			for _, n := range tt.absent {
				assert.NotContains(t, names, n)
			}
		})
	}
}

func TestNewRootCommand_ContainerSearchFlags(t *testing.T) {
	t.Parallel()

	hubApp := newTestApp(t, hub.New("http://hub.example.com/api"))
	search, _, err := NewRootCommand(hubApp.App).Find([]string{"search"})
	require.NoError(t, err)
	assert.Nil(t, search.Flags().Lookup("runscript"))

	regApp := newTestApp(t, registry.New(registry.Credentials{Base: "http://registry.example.com/api", Token: "tok"}))
	search, _, err = NewRootCommand(regApp.App).Find([]string{"search"})
	require.NoError(t, err)
	for _, flag := range []string{"runscript", "def", "env", "test"} {
		assert.NotNil(t, search.Flags().Lookup(flag), flag)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, hub.New("http://hub.example.com/api"))

	outcome := Dispatch(context.Background(), ta.App, []string{"teleport", "x"})
	assert.Equal(t, OutcomeUnknownCommand, outcome.Kind)
	assert.Equal(t, "teleport", outcome.Command)
	assert.Equal(t, ExitUsage, outcome.ExitCode())
	assert.Contains(t, ta.errOut.String(), "unknown command")
	assert.Contains(t, ta.errOut.String(), "Available Commands")
}

func TestDispatch_PushUnreachableOnHub(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, hub.New("http://hub.example.com/api"))

	outcome := Dispatch(context.Background(), ta.App, []string{"push", "file.sif", "--name", "a/b"})
	assert.Equal(t, OutcomeUnknownCommand, outcome.Kind)
}

func TestDispatch_PullAndGet(t *testing.T) {
	t.Parallel()
	srv := newHubServer(t)
	ta := newTestApp(t, hub.New(srv.URL+"/api", httpapi.WithMaxAttempts(1)))
	ctx := context.Background()

	outcome := Dispatch(ctx, ta.App, []string{"pull", "library/ubuntu:16.04"})
	require.Equal(t, OutcomeOK, outcome.Kind, ta.errOut.String())
	assert.Equal(t, "pull", outcome.Command)

	want := filepath.Join(ta.dir, "storage", "library", "ubuntu-16.04@v1.sif")
	assert.Equal(t, want+"\n", ta.out.String())
	assert.Contains(t, ta.errOut.String(), "[client|hub]")
	assert.Contains(t, ta.errOut.String(), "[database|sqlite://")
	assert.Contains(t, ta.errOut.String(), "Success!")

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "ubuntu-bytes", string(data))

	ta.reset()
	outcome = Dispatch(ctx, ta.App, []string{"get", "library/ubuntu:16.04"})
	require.Equal(t, OutcomeOK, outcome.Kind)
	assert.Equal(t, want+"\n", ta.out.String())
	assert.Empty(t, ta.errOut.String(), "get must not announce")
}

func TestDispatch_PullNoCache(t *testing.T) {
	t.Parallel()
	srv := newHubServer(t)
	ta := newTestApp(t, hub.New(srv.URL+"/api", httpapi.WithMaxAttempts(1)))

	outcome := Dispatch(context.Background(), ta.App, []string{"pull", "--no-cache", "--name", "mine.sif", "library/ubuntu:16.04"})
	require.Equal(t, OutcomeOK, outcome.Kind, ta.errOut.String())
	assert.Equal(t, filepath.Join(ta.dir, "downloads", "mine.sif")+"\n", ta.out.String())

	containers, err := ta.Store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, containers)
}

func TestDispatch_PullFailure(t *testing.T) {
	t.Parallel()
	srv := newHubServer(t)
	ta := newTestApp(t, hub.New(srv.URL+"/api", httpapi.WithMaxAttempts(1)))

	outcome := Dispatch(context.Background(), ta.App, []string{"pull", "library/missing", "library/ubuntu:16.04"})
	assert.Equal(t, OutcomeHandlerError, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, imgsync.ErrNotFound)
	assert.Equal(t, ExitNotFound, outcome.ExitCode())
	assert.Contains(t, ta.errOut.String(), "ERROR")

	// the second image is still pulled
	assert.Contains(t, ta.out.String(), "ubuntu-16.04@v1.sif")
}

func TestDispatch_LocalCommands(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, hub.New("http://hub.example.com/api"))
	ctx := context.Background()

	src := filepath.Join(ta.dir, "hello.sif")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	outcome := Dispatch(ctx, ta.App, []string{"add", "--copy", "--name", "vsoch/hello:v1", src})
	require.Equal(t, OutcomeOK, outcome.Kind, ta.errOut.String())
	stored := strings.TrimSpace(ta.out.String())
	assert.FileExists(t, src)
	assert.FileExists(t, stored)

	ta.reset()
	require.Equal(t, OutcomeOK, Dispatch(ctx, ta.App, []string{"images"}).Kind)
	assert.Contains(t, ta.out.String(), "vsoch/hello")

	ta.reset()
	require.Equal(t, OutcomeOK, Dispatch(ctx, ta.App, []string{"list", "hello"}).Kind)
	assert.Contains(t, ta.out.String(), stored)

	ta.reset()
	require.Equal(t, OutcomeOK, Dispatch(ctx, ta.App, []string{"inspect", "--yaml", "vsoch/hello:v1"}).Kind)
	assert.Contains(t, ta.out.String(), "uri: ")
	assert.Contains(t, ta.out.String(), "vsoch/hello:v1@")

	ta.reset()
	require.Equal(t, OutcomeOK, Dispatch(ctx, ta.App, []string{"rm", "vsoch/hello:v1"}).Kind)
	assert.FileExists(t, stored, "rm keeps the file")

	ta.reset()
	outcome = Dispatch(ctx, ta.App, []string{"get", "vsoch/hello:v1"})
	assert.Equal(t, OutcomeHandlerError, outcome.Kind)
	assert.Equal(t, ExitNotFound, outcome.ExitCode())
}

func TestDispatch_Rmi(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, hub.New("http://hub.example.com/api"))
	ctx := context.Background()

	src := filepath.Join(ta.dir, "hello.sif")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	require.Equal(t, OutcomeOK, Dispatch(ctx, ta.App, []string{"add", "--name", "vsoch/hello", src}).Kind)
	stored := strings.TrimSpace(ta.out.String())
	assert.NoFileExists(t, src, "add moves without --copy")

	require.Equal(t, OutcomeOK, Dispatch(ctx, ta.App, []string{"rmi", "vsoch/hello"}).Kind)
	assert.NoFileExists(t, stored)
}

func TestDispatch_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remover := &fakeRemover{}
	ta := newTestApp(t, remover)

	var asked string
	ta.Confirm = func(msg string) (bool, error) {
		asked = msg
		return false, nil
	}
	require.Equal(t, OutcomeOK, Dispatch(ctx, ta.App, []string{"delete", "vsoch/hello"}).Kind)
	assert.Contains(t, asked, "vsoch/hello:latest")
	assert.Empty(t, remover.removed)

	require.Equal(t, OutcomeOK, Dispatch(ctx, ta.App, []string{"delete", "--force", "vsoch/hello"}).Kind)
	require.Len(t, remover.removed, 1)
	assert.Equal(t, "vsoch/hello:latest", remover.removed[0].String())

	ta.Confirm = func(string) (bool, error) { return false, errors.New("interrupt") }
	outcome := Dispatch(ctx, ta.App, []string{"delete", "vsoch/hello"})
	assert.Equal(t, OutcomeHandlerError, outcome.Kind)
	assert.Equal(t, ExitError, outcome.ExitCode())
}

func TestDispatch_Shell(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, hub.New("http://hub.example.com/api"))
	ta.In = strings.NewReader("images\n\nteleport\nshell\nexit\nimages\n")

	outcome := Dispatch(context.Background(), ta.App, []string{"shell"})
	require.Equal(t, OutcomeOK, outcome.Kind)

	stderr := ta.errOut.String()
	assert.Equal(t, 1, strings.Count(stderr, "[client|hub]"), "announced once")
	assert.Contains(t, stderr, `unknown command "teleport"`)
	assert.Contains(t, stderr, "already in a shell")
	assert.Equal(t, 1, strings.Count(stderr, "no containers found"), "input after exit is ignored")
}

func TestOutcome_ExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome Outcome
		want    int
	}{
		{Outcome{Kind: OutcomeOK}, ExitOK},
		{Outcome{Kind: OutcomeUnknownCommand}, ExitUsage},
		{Outcome{Kind: OutcomeHandlerError, Err: fmt.Errorf("x: %w", imgsync.ErrConfiguration)}, ExitConfiguration},
		{Outcome{Kind: OutcomeHandlerError, Err: imgsync.ErrAuth}, ExitAuth},
		{Outcome{Kind: OutcomeHandlerError, Err: imgsync.ErrNetwork}, ExitNetwork},
		{Outcome{Kind: OutcomeHandlerError, Err: imgsync.ErrDownload}, ExitNetwork},
		{Outcome{Kind: OutcomeHandlerError, Err: imgsync.ErrIncomplete}, ExitIncomplete},
		{Outcome{Kind: OutcomeHandlerError, Err: imgsync.ErrInvalidReference}, ExitUsage},
		{Outcome{Kind: OutcomeHandlerError, Err: context.Canceled}, ExitCanceled},
		{Outcome{Kind: OutcomeHandlerError, Err: errors.New("boom")}, ExitError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.outcome.ExitCode(), "%v %v", tt.outcome.Kind, tt.outcome.Err)
	}
}
