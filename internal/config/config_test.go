package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, "fraktor", cfg.System.Name)
	require.Equal(t, 128, cfg.System.MailboxCapacity)
}

func TestLoadDecodesFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraktor.toml")
	content := `
[system]
name = "shard-1"
canonical_host = "10.0.0.5"
canonical_port = 25520

[remoting]
handshake_timeout_ms = 7000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "shard-1", cfg.System.Name)
	require.Equal(t, "10.0.0.5", cfg.System.CanonicalHost)
	require.Equal(t, uint16(25520), cfg.System.CanonicalPort)
	require.Equal(t, 7000, cfg.Remoting.HandshakeTimeoutMS)
}

func TestEnvOverrideWinsOverFileValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraktor.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[system]
name = "from-file"
`), 0o644))

	t.Setenv("FRAKTOR__SYSTEM__NAME", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.System.Name)
}

func TestDurationHelpersConvertConfiguredUnits(t *testing.T) {
	cfg := Default()
	require.Equal(t, int64(100)*1_000_000, cfg.HeartbeatInterval().Nanoseconds())
}
