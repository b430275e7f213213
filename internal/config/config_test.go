package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MergesOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[peer]
name = "peer-a"
listen_path = "/tmp/peer-a.sock"

[arena]
buffer_size = 2097152
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "peer-a", cfg.Peer.Name)
	assert.Equal(t, "/tmp/peer-a.sock", cfg.Peer.ListenPath)
	assert.Equal(t, uint32(2097152), cfg.Arena.BufferSize)
	// Fields absent from the file keep Default()'s values.
	assert.Equal(t, Default().Arena.MaxMessageSize, cfg.Arena.MaxMessageSize)
	assert.Equal(t, Default().RateLimit, cfg.RateLimit)
	assert.Equal(t, Default().Log, cfg.Log)
}

func TestLoad_InvalidTOMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
