package imgsync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_URI(t *testing.T) {
	t.Parallel()

	m := Manifest{Name: "library/ubuntu", Tag: "16.04", Version: "v1", Image: "http://x/ubuntu.sif"}
	assert.Equal(t, "library/ubuntu:16.04@v1", m.URI())
}

func TestManifest_KeepsOpaqueFields(t *testing.T) {
	t.Parallel()

	var m Manifest
	err := json.Unmarshal([]byte(`{
		"name": "vsoch/hello",
		"tag": "latest",
		"version": 3,
		"image": "https://example.com/hello.sif",
		"runscript": "exec /bin/bash",
		"metrics": {"size_mb": 12}
	}`), &m)
	require.NoError(t, err)

	assert.Equal(t, "vsoch/hello", m.Name)
	assert.Equal(t, "3", m.Version)
	assert.Equal(t, "https://example.com/hello.sif", m.Image)

	runscript, ok := m.Field("runscript")
	require.True(t, ok)
	assert.Equal(t, "exec /bin/bash", runscript)

	m.SelfLink = "https://example.com/api/container/vsoch/hello:latest"
	out, err := json.Marshal(m)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "exec /bin/bash", back["runscript"])
	assert.Equal(t, map[string]any{"size_mb": float64(12)}, back["metrics"])
	assert.Equal(t, m.SelfLink, back["selfLink"])
}

func TestManifest_SetField(t *testing.T) {
	t.Parallel()

	var m Manifest
	require.NoError(t, m.SetField("labels", map[string]string{"a": "b"}))

	_, ok := m.Field("missing")
	assert.False(t, ok)

	raw, ok := m.Field("labels")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":"b"}`, raw)
}
