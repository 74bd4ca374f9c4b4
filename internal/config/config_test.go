package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	p := writeTempConfig(t, "node_id: node-1\n")
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "node-1", cfg.NodeID)
	assert.Equal(t, ":7200", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:9000", cfg.CoordinatorAddr)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRequiresNodeID(t *testing.T) {
	p := writeTempConfig(t, "listen_addr: :7200\n")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadParsesPeerAddrs(t *testing.T) {
	p := writeTempConfig(t, "node_id: node-1\npeer_addrs:\n  node-2: localhost:7201\n  node-3: localhost:7202\n")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"node-2": "localhost:7201", "node-3": "localhost:7202"}, cfg.PeerAddrs)
	assert.Equal(t, 3, cfg.TotalNodes)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFileValues(t *testing.T) {
	p := writeTempConfig(t, "node_id: node-1\nlisten_addr: :7200\n")
	t.Setenv("QUORUMCAST_LISTEN_ADDR", ":9999")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
}

func TestLoadEmptyPathUsesEnvAndDefaults(t *testing.T) {
	t.Setenv("QUORUMCAST_NODE_ID", "node-from-env")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "node-from-env", cfg.NodeID)
	assert.Equal(t, ":7200", cfg.ListenAddr)
}
