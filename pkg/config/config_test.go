package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_server_port: 9999\nlog_level: debug\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.HTTPServerPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, Defaults().FlowAgeTimeMs, cfg.FlowAgeTimeMs)
}

func TestLoad_FlagOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "info", "")
	cmd.Flags().Int("http-server-port", 8085, "")
	cmd.Flags().String("metrics-addr", "", "")
	cmd.Flags().String("health-addr", "", "")
	cmd.Flags().Int("scheduler-workers", 0, "")
	require.NoError(t, cmd.Flags().Set("log-level", "warn"))

	cfg, err := Load(path, cmd)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestParseTunnelType_DefaultsToMPLSGRE(t *testing.T) {
	assert.Equal(t, TunnelMPLSoUDP, ParseTunnelType("MPLSoUDP"))
	assert.Equal(t, TunnelVXLAN, ParseTunnelType("VXLAN"))
	assert.Equal(t, TunnelMPLSGRE, ParseTunnelType("garbage"))
}
