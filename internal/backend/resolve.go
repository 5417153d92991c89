// Package backend picks the backend a command talks to.
package backend

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/backend/httpapi"
	"github.com/aweris/imgsync/internal/backend/hub"
	"github.com/aweris/imgsync/internal/backend/oci"
	"github.com/aweris/imgsync/internal/backend/registry"
)

// Backend names accepted by Config.Client.
const (
	Hub      = hub.Name
	Registry = registry.Name
	OCI      = oci.Name
)

type HubConfig struct {
	Base string
}

type RegistryConfig struct {
	Base     string
	Username string
	Token    string

	// CredentialsFile holds base, username and token. Values set above
	// take precedence over the file.
	CredentialsFile string
}

type OCIConfig struct {
	Registry    string
	Insecure    bool
	Username    string
	Password    string
	Concurrency int
}

// Config is everything Resolve needs to know.
type Config struct {
	// Client forces a backend by name. Empty selects one from the other settings.
	Client string

	Hub      HubConfig
	Registry RegistryConfig
	OCI      OCIConfig

	Timeout time.Duration
	Logger  *slog.Logger
}

// Resolve returns the backend described by cfg:
//
//  1. the backend named by Client, if set;
//  2. registry, when its credentials file exists or a registry base is set;
//  3. oci, when an OCI registry is set;
//  4. hub, when a hub base is set.
//
// It fails with imgsync.ErrConfiguration when nothing matches or the chosen
// backend lacks required settings. Resolve never talks to the network.
func Resolve(cfg Config) (imgsync.Backend, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Client))
	if name == "" {
		name = detect(cfg)
	}

	log := cfg.log()

	switch name {
	case Registry:
		return newRegistry(cfg)
	case OCI:
		return newOCI(cfg)
	case Hub:
		if cfg.Hub.Base == "" {
			return nil, fmt.Errorf("%w: hub backend needs a base url", imgsync.ErrConfiguration)
		}
		log.Debug("resolved backend", "client", Hub, "base", cfg.Hub.Base)
		return hub.New(cfg.Hub.Base, cfg.httpOptions()...), nil
	case "":
		return nil, fmt.Errorf("%w: no backend configured", imgsync.ErrConfiguration)
	default:
		return nil, fmt.Errorf("%w: unknown client %q (want %s, %s or %s)", imgsync.ErrConfiguration, cfg.Client, Hub, Registry, OCI)
	}
}

func detect(cfg Config) string {
	switch {
	case fileExists(cfg.Registry.CredentialsFile) || cfg.Registry.Base != "":
		return Registry
	case cfg.OCI.Registry != "":
		return OCI
	case cfg.Hub.Base != "":
		return Hub
	default:
		return ""
	}
}

func newRegistry(cfg Config) (imgsync.Backend, error) {
	creds := registry.Credentials{
		Base:     cfg.Registry.Base,
		Username: cfg.Registry.Username,
		Token:    cfg.Registry.Token,
	}
	if !creds.Complete() && fileExists(cfg.Registry.CredentialsFile) {
		fromFile, err := registry.LoadCredentials(cfg.Registry.CredentialsFile)
		if err != nil {
			return nil, err
		}
		creds = creds.Merge(fromFile)
	}
	if !creds.Complete() {
		return nil, fmt.Errorf("%w: registry backend needs a base url and a token", imgsync.ErrConfiguration)
	}

	cfg.log().Debug("resolved backend", "client", Registry, "base", creds.Base, "username", creds.Username)
	return registry.New(creds, cfg.httpOptions()...), nil
}

func newOCI(cfg Config) (imgsync.Backend, error) {
	if cfg.OCI.Registry == "" {
		return nil, fmt.Errorf("%w: oci backend needs a registry", imgsync.ErrConfiguration)
	}

	opts := []oci.Option{oci.WithLogger(cfg.Logger)}
	if cfg.OCI.Insecure {
		opts = append(opts, oci.WithInsecure())
	}
	if cfg.OCI.Username != "" {
		opts = append(opts, oci.WithAuthenticator(oci.StaticAuthenticator{
			Username: cfg.OCI.Username,
			Password: cfg.OCI.Password,
		}))
	}
	if cfg.OCI.Concurrency > 0 {
		opts = append(opts, oci.WithConcurrency(cfg.OCI.Concurrency))
	}

	c, err := oci.New(cfg.OCI.Registry, opts...)
	if err != nil {
		return nil, err
	}
	cfg.log().Debug("resolved backend", "client", OCI, "registry", c.Registry())
	return c, nil
}

func (cfg Config) httpOptions() []httpapi.Option {
	if cfg.Timeout > 0 {
		return []httpapi.Option{httpapi.WithTimeout(cfg.Timeout)}
	}
	return nil
}

func (cfg Config) log() *slog.Logger {
	if cfg.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return cfg.Logger
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
