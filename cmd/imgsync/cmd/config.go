package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/backend"
)

const envPrefix = "IMGSYNC"

// loadConfig reads the config file, an optional env file and IMGSYNC_*
// variables. An explicit configFile must exist; the default one may not.
func loadConfig(configFile string) (*viper.Viper, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("client", "")
	v.SetDefault("hub.base", "https://singularity-hub.org/api")
	v.SetDefault("registry.credentials", defaultCredentialsFile())
	v.SetDefault("oci.concurrency", 4)
	v.SetDefault("storage.dir", defaultDataDir())
	v.SetDefault("download.dir", "")
	v.SetDefault("default_collection", imgsync.DefaultCollection)
	v.SetDefault("concurrency", 1)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("cache_size", 128)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config: %v", imgsync.ErrConfiguration, err)
		}
	}
	return v, nil
}

// loadEnvFile loads IMGSYNC_ENV_FILE, or .env from the working directory
// when present. Variables already set in the environment win.
func loadEnvFile() error {
	if path := os.Getenv(envPrefix + "_ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("%w: load env file: %v", imgsync.ErrConfiguration, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("%w: load .env: %v", imgsync.ErrConfiguration, err)
	}
	return nil
}

func backendConfig(v *viper.Viper, logger *slog.Logger) backend.Config {
	return backend.Config{
		Client: v.GetString("client"),
		Hub: backend.HubConfig{
			Base: v.GetString("hub.base"),
		},
		Registry: backend.RegistryConfig{
			Base:            v.GetString("registry.base"),
			Username:        v.GetString("registry.username"),
			Token:           v.GetString("registry.token"),
			CredentialsFile: v.GetString("registry.credentials"),
		},
		OCI: backend.OCIConfig{
			Registry:    v.GetString("oci.registry"),
			Insecure:    v.GetBool("oci.insecure"),
			Username:    v.GetString("oci.username"),
			Password:    v.GetString("oci.password"),
			Concurrency: v.GetInt("oci.concurrency"),
		},
		Timeout: v.GetDuration("timeout"),
		Logger:  logger,
	}
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "imgsync")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "imgsync")
	}
	return ".imgsync"
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "imgsync")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "imgsync")
	}
	return ".imgsync"
}

func defaultCredentialsFile() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".imgsync")
	}
	return ".imgsync"
}
