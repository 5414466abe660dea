package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ValidateConfig(cfg))

	sc, err := cfg.SenderConfig()
	require.NoError(t, err)
	require.Equal(t, DefaultSenderConfig(), sc)
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultHost, cfg.Destination.Host)
	require.Equal(t, 100*time.Millisecond, cfg.Interval())
	require.Equal(t, 5*time.Second, cfg.ReceiveTimeout())
}

func TestLoadConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"destination": {"host": "10.0.0.7", "port": 5004},
		"stream": {"count": 3, "counter_mode": "rtp", "payload_type": 96, "payload_hex": "cafe"},
		"transport": {"dscp": 46}
	}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "10.0.0.7", cfg.Destination.Host)
	require.Equal(t, 5004, cfg.Destination.Port)
	require.Equal(t, 3, cfg.Stream.Count)
	require.Equal(t, DefaultIntervalMs, cfg.Stream.IntervalMs)
	require.Equal(t, uint32(DefaultSSRC), cfg.Stream.SSRC)
	require.Equal(t, 46, cfg.Transport.DSCP)

	sc, err := cfg.SenderConfig()
	require.NoError(t, err)
	require.Equal(t, CounterModeRTP, sc.Mode)
	require.Equal(t, "10.0.0.7:5004", sc.Address())
	require.Equal(t, []byte{0xca, 0xfe}, sc.Template.Payload)
	require.Equal(t, uint8(96), sc.Template.PayloadType)
	require.Equal(t, 14, sc.Template.Size())
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.json"))
	require.True(t, IsConfigError(err))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"destination":`), 0o644))
	_, err = LoadConfig(bad)
	require.True(t, IsConfigError(err))
}

func TestValidateConfig(t *testing.T) {
	for _, ca := range []struct {
		name string
		edit func(*Config)
	}{
		{"empty host", func(c *Config) { c.Destination.Host = "" }},
		{"port zero", func(c *Config) { c.Destination.Port = 0 }},
		{"port too large", func(c *Config) { c.Destination.Port = 70000 }},
		{"no packets", func(c *Config) { c.Stream.Count = 0 }},
		{"negative interval", func(c *Config) { c.Stream.IntervalMs = -1 }},
		{"unknown mode", func(c *Config) { c.Stream.CounterMode = "ntp" }},
		{"payload type", func(c *Config) { c.Stream.PayloadType = 128 }},
		{"payload hex", func(c *Config) { c.Stream.PayloadHex = "xyz" }},
		{"dscp", func(c *Config) { c.Transport.DSCP = 64 }},
		{"ttl", func(c *Config) { c.Transport.TTL = 256 }},
		{"bind addr", func(c *Config) { c.Transport.BindAddr = "nope" }},
		{"srtp keys", func(c *Config) { c.SRTP.Enabled = true }},
		{"capture path", func(c *Config) { c.Capture.Enabled = true; c.Capture.Path = "" }},
		{"mysql dsn", func(c *Config) { c.Database.MySQLDSN = "user@tcp(" }},
		{"redis addr", func(c *Config) { c.Database.RedisEnabled = true }},
		{"receiver timeout", func(c *Config) { c.Receiver.TimeoutMs = 0 }},
		{"loss threshold", func(c *Config) { c.Receiver.Alerts.PacketLossThreshold = 101 }},
		{"jitter threshold", func(c *Config) { c.Receiver.Alerts.JitterThresholdMs = -1 }},
	} {
		t.Run(ca.name, func(t *testing.T) {
			cfg := DefaultConfig()
			ca.edit(cfg)
			err := ValidateConfig(cfg)
			require.Error(t, err)
			require.True(t, IsConfigError(err))
		})
	}
}

func TestValidateConfigAcceptsOptionalBackends(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SRTP = testSRTPConfig()
	cfg.Database.MySQLDSN = "rtpsend:secret@tcp(127.0.0.1:3306)/rtpsend"
	cfg.Database.RedisEnabled = true
	cfg.Database.RedisAddr = "127.0.0.1:6379"
	cfg.Transport.BindAddr = "127.0.0.1:0"
	cfg.Capture.Enabled = true

	require.NoError(t, ValidateConfig(cfg))
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.json")

	cfg := DefaultConfig()
	cfg.Stream.Count = 9
	cfg.Stream.CounterMode = string(CounterModeLegacy)
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9, loaded.Stream.Count)
	require.Equal(t, string(CounterModeLegacy), loaded.Stream.CounterMode)
}
