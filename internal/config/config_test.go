package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.HTTPPort())
	require.Equal(t, 50051, cfg.GRPCPort())
	require.Equal(t, 15*time.Second, cfg.KeepaliveInterval())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  http_port: 9000
database:
  url: postgres://localhost/flowline
gemini:
  model: gemini-2.0-flash
engine:
  tool_call_timeout: 30s
stream:
  keepalive_interval: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.HTTPPort())
	require.Equal(t, "postgres://localhost/flowline", cfg.Database.URL)
	require.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	require.Equal(t, 30*time.Second, cfg.Engine.ToolCallTimeout)
	require.Equal(t, 5*time.Second, cfg.KeepaliveInterval())
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.HTTPPort())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("HTTP_PORT", "8081")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres://env/db", cfg.Database.URL)
	require.Equal(t, 8081, cfg.HTTPPort())
}

func TestEnvBadPortIgnored(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-port")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.HTTPPort())
}
