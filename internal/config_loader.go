package internal

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DefaultConfig returns the settings of the historical script: five packets to
// 127.0.0.1:12000, 100ms apart.
func DefaultConfig() *Config {
	return &Config{
		Version: ConfigVersion,
		Destination: DestinationConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Stream: StreamConfig{
			Count:            DefaultCount,
			IntervalMs:       DefaultIntervalMs,
			CounterMode:      string(CounterModeLegacy),
			PayloadType:      0,
			SSRC:             DefaultSSRC,
			InitialSequence:  1,
			InitialTimestamp: 1,
		},
		SRTP: SRTPConfig{
			Profile: DefaultSRTPProfile,
		},
		Capture: CaptureConfig{
			Path: DefaultCapturePath,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddr,
		},
		Database: DatabaseConfig{
			ReportTTL: DefaultReportTTL,
		},
		Receiver: ReceiverConfig{
			ListenAddr: DefaultListenAddr,
			TimeoutMs:  DefaultReceiveTimeout,
			Alerts: AlertSettings{
				JitterThresholdMs: DefaultJitterAlertMs,
			},
		},
	}
}

// LoadConfig reads the configuration file on top of the defaults and validates it.
// An empty path yields the defaults.
func LoadConfig(filePath string) (*Config, error) {
	cfg := DefaultConfig()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, NewError(err, ErrCodeConfiguration, "config", "read")
		}

		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, NewError(err, ErrCodeConfiguration, "config", "parse").WithContext(filePath)
		}
	}

	cfg.LastUpdated = time.Now()
	if cfg.Version == "" {
		cfg.Version = ConfigVersion
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateConfig performs configuration validation
func ValidateConfig(cfg *Config) error {
	invalid := func(format string, args ...interface{}) error {
		return NewError(fmt.Errorf(format, args...), ErrCodeConfiguration, "config", "validate")
	}

	if cfg.Destination.Host == "" {
		return invalid("destination host not specified")
	}

	if cfg.Destination.Port < 1 || cfg.Destination.Port > 65535 {
		return invalid("invalid destination port: %d", cfg.Destination.Port)
	}

	if cfg.Stream.Count < 1 {
		return invalid("invalid packet count: %d", cfg.Stream.Count)
	}

	if cfg.Stream.IntervalMs < 0 {
		return invalid("invalid interval: %dms", cfg.Stream.IntervalMs)
	}

	if _, err := ParseCounterMode(cfg.Stream.CounterMode); err != nil {
		return invalid("%v", err)
	}

	if cfg.Stream.PayloadType > 127 {
		return invalid("invalid payload type: %d", cfg.Stream.PayloadType)
	}

	if _, err := hex.DecodeString(cfg.Stream.PayloadHex); err != nil {
		return invalid("invalid payload_hex: %v", err)
	}

	if cfg.Transport.DSCP < 0 || cfg.Transport.DSCP > 63 {
		return invalid("invalid DSCP value: %d", cfg.Transport.DSCP)
	}

	if cfg.Transport.TTL < 0 || cfg.Transport.TTL > 255 {
		return invalid("invalid TTL: %d", cfg.Transport.TTL)
	}

	if cfg.Transport.BindAddr != "" {
		if _, err := net.ResolveUDPAddr("udp", cfg.Transport.BindAddr); err != nil {
			return invalid("invalid bind address %s: %v", cfg.Transport.BindAddr, err)
		}
	}

	if cfg.SRTP.Enabled {
		if _, _, _, err := decodeSRTPKeys(cfg.SRTP); err != nil {
			return invalid("%v", err)
		}
	}

	if cfg.Capture.Enabled && cfg.Capture.Path == "" {
		return invalid("capture enabled but path not specified")
	}

	if cfg.Database.MySQLDSN != "" {
		if _, err := mysql.ParseDSN(cfg.Database.MySQLDSN); err != nil {
			return invalid("invalid MySQL DSN: %v", err)
		}
	}

	if cfg.Database.RedisEnabled && cfg.Database.RedisAddr == "" {
		return invalid("Redis enabled but address not specified")
	}

	if cfg.Receiver.TimeoutMs <= 0 {
		return invalid("invalid receiver timeout: %dms", cfg.Receiver.TimeoutMs)
	}

	if a := cfg.Receiver.Alerts; a.PacketLossThreshold < 0 || a.PacketLossThreshold > 100 || a.JitterThresholdMs < 0 {
		return invalid("invalid alert thresholds: loss %.1f%%, jitter %dms", a.PacketLossThreshold, a.JitterThresholdMs)
	}

	return nil
}

// SaveConfig writes the configuration as indented JSON
func SaveConfig(filePath string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return err
	}

	log.Printf("💾 Configuration saved to %s", filePath)
	return nil
}

// PacketTemplate builds the fixed part of the packet from the stream settings
func (c *Config) PacketTemplate() (PacketTemplate, error) {
	tmpl := DefaultTemplate()
	tmpl.PayloadType = c.Stream.PayloadType
	tmpl.Marker = c.Stream.Marker
	tmpl.SSRC = c.Stream.SSRC

	if c.Stream.PayloadHex != "" {
		payload, err := hex.DecodeString(c.Stream.PayloadHex)
		if err != nil {
			return PacketTemplate{}, fmt.Errorf("invalid payload_hex: %w", err)
		}
		tmpl.Payload = payload
	}

	return tmpl, nil
}

// SenderConfig converts the file configuration into sender parameters
func (c *Config) SenderConfig() (SenderConfig, error) {
	mode, err := ParseCounterMode(c.Stream.CounterMode)
	if err != nil {
		return SenderConfig{}, err
	}

	tmpl, err := c.PacketTemplate()
	if err != nil {
		return SenderConfig{}, err
	}

	return SenderConfig{
		Host:     c.Destination.Host,
		Port:     c.Destination.Port,
		Count:    c.Stream.Count,
		Interval: c.Interval(),
		Mode:     mode,
		Template: tmpl,
		Initial: PacketState{
			SequenceNumber: c.Stream.InitialSequence,
			Timestamp:      c.Stream.InitialTimestamp,
		},
		Transport: c.Transport,
	}, nil
}
