package imgsync

import (
	"encoding/json"
	"fmt"
)

// Manifest is the metadata a backend returns for a resolved image.
//
// Fields other than the well-known ones are kept verbatim in Extra so they
// survive into storage metadata.
type Manifest struct {
	Name     string
	Tag      string
	Version  string
	Image    string // artifact URL
	SelfLink string

	Extra map[string]json.RawMessage
}

// Label is a key/value pair attached to remote containers.
type Label struct {
	Key        string   `json:"key"`
	Value      string   `json:"value"`
	Containers []string `json:"containers,omitempty"`
}

var manifestKeys = []string{"name", "tag", "version", "image", "selfLink"}

// URI returns the canonical storage URI "<name>:<tag>@<version>".
func (m *Manifest) URI() string {
	return fmt.Sprintf("%s:%s@%s", m.Name, m.Tag, m.Version)
}

// Field returns an opaque string field.
func (m *Manifest) Field(key string) (string, bool) {
	raw, ok := m.Extra[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw), true
	}
	return s, true
}

// SetField stores an opaque field.
func (m *Manifest) SetField(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if m.Extra == nil {
		m.Extra = make(map[string]json.RawMessage)
	}
	m.Extra[key] = raw
	return nil
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+len(manifestKeys))
	for k, v := range m.Extra {
		out[k] = v
	}
	for k, v := range map[string]string{
		"name":     m.Name,
		"tag":      m.Tag,
		"version":  m.Version,
		"image":    m.Image,
		"selfLink": m.SelfLink,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := map[string]*string{
		"name":     &m.Name,
		"tag":      &m.Tag,
		"version":  &m.Version,
		"image":    &m.Image,
		"selfLink": &m.SelfLink,
	}
	for key, dst := range fields {
		v, ok := raw[key]
		if !ok {
			continue
		}
		delete(raw, key)
		if string(v) == "null" {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			// Registries report numeric versions; keep them as text.
			*dst = string(v)
		}
	}

	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}
