package internal

import "time"

// Version information and defaults
const (
	ConfigVersion = "1.0.0"

	DefaultHost       = "127.0.0.1"
	DefaultPort       = 12000
	DefaultCount      = 5
	DefaultIntervalMs = 100

	DefaultMetricsAddr    = ":9091"
	DefaultCapturePath    = "logs/rtpsend_capture.pcap"
	DefaultListenAddr     = ":12000"
	DefaultReceiveTimeout = 5000 // ms
	DefaultReportTTL      = 86400
	DefaultSRTPProfile    = "AES_CM_128_HMAC_SHA1_80"
	DefaultJitterAlertMs  = 50
)

// DestinationConfig is where the burst is sent
type DestinationConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StreamConfig describes the burst itself
type StreamConfig struct {
	Count            int    `json:"count"`
	IntervalMs       int    `json:"interval_ms"`
	CounterMode      string `json:"counter_mode"` // legacy (default), byte, rtp
	PayloadType      uint8  `json:"payload_type"`
	Marker           bool   `json:"marker"`
	SSRC             uint32 `json:"ssrc"`
	PayloadHex       string `json:"payload_hex"`
	InitialSequence  uint16 `json:"initial_sequence"`
	InitialTimestamp uint32 `json:"initial_timestamp"`
}

// TransportConfig holds socket settings
type TransportConfig struct {
	BindAddr string `json:"bind_addr"`
	DSCP     int    `json:"dscp"` // 0-63, 46 = EF
	TTL      int    `json:"ttl"`  // 0 keeps the OS default
}

// SRTPConfig defines secure RTP settings
type SRTPConfig struct {
	Enabled bool   `json:"enabled"`
	Profile string `json:"profile"`
	Key     string `json:"srtp_key"`  // hex
	Salt    string `json:"srtp_salt"` // hex
}

// CaptureConfig enables pcap recording of sent datagrams
type CaptureConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// DatabaseConfig defines MySQL and Redis settings for run reports
type DatabaseConfig struct {
	MySQLDSN      string `json:"mysql_dsn"`
	RedisEnabled  bool   `json:"redis_enabled"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	ReportTTL     int    `json:"report_ttl"` // seconds
}

// ReceiverConfig is used by the receive/verify mode
type ReceiverConfig struct {
	ListenAddr string        `json:"listen_addr"`
	TimeoutMs  int           `json:"timeout_ms"`
	Alerts     AlertSettings `json:"alerts"`
}

// Config struct holds all settings
type Config struct {
	Version     string            `json:"version"`
	LastUpdated time.Time         `json:"last_updated"`
	Verbose     bool              `json:"verbose"`
	Destination DestinationConfig `json:"destination"`
	Stream      StreamConfig      `json:"stream"`
	Transport   TransportConfig   `json:"transport"`
	SRTP        SRTPConfig        `json:"srtp"`
	Capture     CaptureConfig     `json:"capture"`
	Metrics     MetricsConfig     `json:"metrics"`
	Database    DatabaseConfig    `json:"database"`
	Receiver    ReceiverConfig    `json:"receiver"`
}

// Interval returns the pause between sends
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Stream.IntervalMs) * time.Millisecond
}

// ReceiveTimeout returns how long the receiver waits for a full burst
func (c *Config) ReceiveTimeout() time.Duration {
	return time.Duration(c.Receiver.TimeoutMs) * time.Millisecond
}
