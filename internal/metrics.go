package internal

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors of one process. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	packetsSent     prometheus.Counter
	bytesSent       prometheus.Counter
	packetsReceived prometheus.Counter
	sendErrors      *prometheus.CounterVec
	sendDuration    prometheus.Histogram
	runs            *prometheus.CounterVec
	lastSequence    prometheus.Gauge
	alerts          *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		packetsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtpsend_packets_sent_total",
			Help: "Total number of RTP packets sent",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtpsend_bytes_sent_total",
			Help: "Total number of bytes written to the socket",
		}),
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtpsend_packets_received_total",
			Help: "Total number of RTP packets collected in receive mode",
		}),
		sendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtpsend_send_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rtpsend_send_duration_seconds",
			Help:    "Time taken by a single socket write",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8), // 10us to ~160ms
		}),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtpsend_runs_total",
				Help: "Completed bursts by result",
			},
			[]string{"result"},
		),
		lastSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rtpsend_last_sequence_number",
			Help: "Sequence number of the last packet sent",
		}),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtpsend_receive_alerts_total",
				Help: "Receive-side alerts by type",
			},
			[]string{"type"},
		),
	}

	m.registry.MustRegister(
		m.packetsSent,
		m.bytesSent,
		m.packetsReceived,
		m.sendErrors,
		m.sendDuration,
		m.runs,
		m.lastSequence,
		m.alerts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry, nil for a nil *Metrics
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the /metrics handler. A nil *Metrics serves an empty registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PacketSent records a successful write
func (m *Metrics) PacketSent(n int, seq uint16, took time.Duration) {
	if m == nil {
		return
	}
	m.packetsSent.Inc()
	m.bytesSent.Add(float64(n))
	m.lastSequence.Set(float64(seq))
	m.sendDuration.Observe(took.Seconds())
}

// PacketReceived records a datagram collected by the receiver
func (m *Metrics) PacketReceived() {
	if m == nil {
		return
	}
	m.packetsReceived.Inc()
}

// Error increments the error counter for an error code
func (m *Metrics) Error(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.sendErrors.WithLabelValues(code).Inc()
}

// RunFinished records the outcome of a burst
func (m *Metrics) RunFinished(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.runs.WithLabelValues(result).Inc()
}

// Alert records a receive-side alert
func (m *Metrics) Alert(alert RTPAlert) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(alert.Type).Inc()
}

// MetricsServer serves /metrics, /health and /config
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// StartMetricsServer starts the metrics HTTP server. cfg may be nil.
func StartMetricsServer(address string, m *Metrics, health *HealthChecker, cfg *Config) (*MetricsServer, error) {
	if address == "" {
		address = DefaultMetricsAddr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	if health != nil {
		mux.Handle("/health", health.Handler())
	}

	if cfg != nil {
		mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(redactConfig(cfg)); err != nil {
				http.Error(w, "Failed to encode configuration", http.StatusInternalServerError)
			}
		})
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, NewError(err, ErrCodeNetwork, "metrics", "listen").WithContext(address)
	}

	s := &MetricsServer{
		server: &http.Server{
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		listener: ln,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		log.Printf("🔍 Starting metrics server on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("❌ Metrics server error: %v", err)
		}
	}()

	return s, nil
}

// Addr returns the bound address
func (s *MetricsServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop gracefully stops the metrics server
func (s *MetricsServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Println("🛑 Shutting down metrics server...")
	err := s.server.Shutdown(ctx)
	<-s.done
	return err
}

// redactConfig hides secrets before the configuration leaves the process
func redactConfig(cfg *Config) Config {
	c := *cfg
	if c.SRTP.Key != "" {
		c.SRTP.Key = "***"
	}
	if c.SRTP.Salt != "" {
		c.SRTP.Salt = "***"
	}
	if c.Database.RedisPassword != "" {
		c.Database.RedisPassword = "***"
	}
	if c.Database.MySQLDSN != "" {
		c.Database.MySQLDSN = "***"
	}
	return c
}
