package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aweris/imgsync"
)

// Credentials identify a user on a registry.
type Credentials struct {
	Base     string `yaml:"base" json:"base"`
	Username string `yaml:"username" json:"username"`
	Token    string `yaml:"token" json:"token"`
}

// Complete reports whether the credentials carry a base URL and a token.
func (c Credentials) Complete() bool {
	return c.Base != "" && c.Token != ""
}

// Merge fills the empty fields of c from other.
func (c Credentials) Merge(other Credentials) Credentials {
	if c.Base == "" {
		c.Base = other.Base
	}
	if c.Username == "" {
		c.Username = other.Username
	}
	if c.Token == "" {
		c.Token = other.Token
	}
	return c
}

// LoadCredentials reads a credentials file of the form
//
//	registry:
//	  base: https://registry.example.com/api
//	  username: vsoch
//	  token: xxxxxxxx
//
// JSON with the same shape is accepted too.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, fmt.Errorf("%w: credentials file %s does not exist", imgsync.ErrConfiguration, path)
		}
		return Credentials{}, err
	}

	var file struct {
		Registry Credentials `yaml:"registry"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Credentials{}, fmt.Errorf("%w: parse %s: %v", imgsync.ErrConfiguration, path, err)
	}
	return file.Registry, nil
}
