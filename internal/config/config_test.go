package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsInvalidUntilDeviceIDSet(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "device_id is required")

	cfg.DeviceID = "AA:BB:CC:DD:EE:FF"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.DeviceID = "dev"
	cfg.LogLevel = "verbose"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsMonitorEnabledWithoutAddr(t *testing.T) {
	cfg := Default()
	cfg.DeviceID = "dev"
	cfg.Monitor.Enabled = true
	cfg.Monitor.Addr = ""
	require.Error(t, cfg.Validate())
}

func TestLoadParsesYAMLAndFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device_id: \"11:22:33:44:55:66\"\nlog_level: debug\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "11:22:33:44:55:66", cfg.DeviceID)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 4000, cfg.Session.DefaultCommandTimeoutMS, "unset session fields keep Default()'s values")
}

func TestTimeoutsConvertsMillisecondsToDuration(t *testing.T) {
	cfg := Default()
	cmdTimeout, streaming, tick := cfg.Session.Timeouts()
	require.Equal(t, 4000_000_000, int(cmdTimeout))
	require.Equal(t, 4000_000_000, int(streaming))
	require.Equal(t, 1000_000_000, int(tick))
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, "DEBUG", ParseLogLevel("debug").String())
	require.Equal(t, "WARN", ParseLogLevel("warn").String())
	require.Equal(t, "ERROR", ParseLogLevel("error").String())
	require.Equal(t, "INFO", ParseLogLevel("anything-else").String())
}
