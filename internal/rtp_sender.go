package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// SenderState is the lifecycle of a Sender: Idle -> Sending -> Closed
type SenderState int32

const (
	SenderIdle SenderState = iota
	SenderSending
	SenderClosed
)

func (s SenderState) String() string {
	switch s {
	case SenderIdle:
		return "idle"
	case SenderSending:
		return "sending"
	case SenderClosed:
		return "closed"
	}
	return "unknown"
}

// ErrSenderUsed is returned when Run is called more than once
var ErrSenderUsed = errors.New("sender has already run")

// SenderConfig holds the parameters of one burst
type SenderConfig struct {
	Host      string
	Port      int
	Count     int
	Interval  time.Duration
	Mode      CounterMode
	Template  PacketTemplate
	Initial   PacketState
	Transport TransportConfig
}

// DefaultSenderConfig returns five packets to 127.0.0.1:12000, 100ms apart
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		Host:     DefaultHost,
		Port:     DefaultPort,
		Count:    DefaultCount,
		Interval: DefaultIntervalMs * time.Millisecond,
		Mode:     CounterModeLegacy,
		Template: DefaultTemplate(),
		Initial:  InitialState(),
	}
}

// Address returns host:port
func (c SenderConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the burst parameters
func (c SenderConfig) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("destination host not specified")
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("invalid destination port: %d", c.Port)
	case c.Count < 1:
		return fmt.Errorf("invalid packet count: %d", c.Count)
	case c.Interval < 0:
		return fmt.Errorf("invalid interval: %s", c.Interval)
	}
	_, err := ParseCounterMode(string(c.Mode))
	return err
}

// Sender emits a bounded burst of RTP packets over one datagram socket
type Sender struct {
	// Dial opens the socket. Defaults to DialUDP.
	Dial DialFunc

	// Sleep pauses between sends. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// optional
	Metrics   *Metrics
	Recorder  DatagramRecorder
	Protector Protector
	OnSent    func(i int, st PacketState, datagram []byte)
	Verbose   bool

	cfg   SenderConfig
	state atomic.Int32
}

// NewSender creates a Sender for the given burst
func NewSender(cfg SenderConfig) *Sender {
	return &Sender{
		Dial:  DialUDP,
		Sleep: sleepContext,
		cfg:   cfg,
	}
}

// Config returns the burst parameters
func (s *Sender) Config() SenderConfig {
	return s.cfg
}

// State returns the current lifecycle state
func (s *Sender) State() SenderState {
	return SenderState(s.state.Load())
}

// HealthCheck reports the sender lifecycle as a health component
func (s *Sender) HealthCheck() ComponentHealth {
	health := CreateComponentHealth(StatusUp, "sender "+s.State().String())
	health.Details["destination"] = s.cfg.Address()
	health.Details["mode"] = string(s.cfg.Mode)
	return health
}

// Run sends the burst. The socket is closed on every return path, including a
// failed write; a write failure is returned as is, without retry.
func (s *Sender) Run(ctx context.Context) (report *RunReport, err error) {
	if !s.state.CompareAndSwap(int32(SenderIdle), int32(SenderSending)) {
		return nil, ErrSenderUsed
	}
	defer s.state.Store(int32(SenderClosed))

	cfg := s.cfg
	report = NewRunReport(cfg)
	defer func() {
		report.Finish(err)
		s.Metrics.RunFinished(err)
	}()

	if err := cfg.Validate(); err != nil {
		return report, NewError(err, ErrCodeConfiguration, "sender", "validate")
	}

	switch cfg.Mode {
	case CounterModeByte:
		log.Println("⚠️ Counter mode 'byte': sequence and timestamp wrap every 256 packets")
	case CounterModeLegacy:
		log.Println("⚠️ Counter mode 'legacy': sequence high byte and timestamp low byte wrap every 256 packets")
	}

	conn, err := s.Dial(ctx, cfg.Host, cfg.Port, cfg.Transport)
	if err != nil {
		s.Metrics.Error(ErrCodeNetwork)
		return report, NewError(err, ErrCodeNetwork, "sender", "dial").WithContext(cfg.Address())
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = NewError(cerr, ErrCodeNetwork, "sender", "close")
		}
	}()

	if s.Verbose {
		log.Printf("📡 Sending %d packets to %s (mode=%s, interval=%s)",
			cfg.Count, cfg.Address(), cfg.Mode, cfg.Interval)
	}

	st := cfg.Initial
	for i := 1; i <= cfg.Count; i++ {
		log.Printf("Sending packet %d...", i)

		datagram, err := s.serialize(st)
		if err != nil {
			s.Metrics.Error(ErrorCode(err))
			return report, err.(*SendError).WithIteration(i)
		}

		start := time.Now()
		n, err := conn.Write(datagram)
		if err != nil {
			s.Metrics.Error(ErrCodeNetwork)
			return report, NewError(err, ErrCodeNetwork, "sender", "write").
				WithIteration(i).
				WithContext(cfg.Address())
		}

		s.Metrics.PacketSent(n, st.SequenceNumber, time.Since(start))
		report.Record(st, n)

		if s.Recorder != nil {
			if err := s.Recorder.RecordDatagram(conn.LocalAddr(), conn.RemoteAddr(), datagram, start); err != nil {
				s.Metrics.Error(ErrCodeIO)
				log.Printf("⚠️ Failed to capture packet %d: %v", i, err)
			}
		}

		if s.OnSent != nil {
			s.OnSent(i, st, datagram)
		}

		if s.Verbose {
			log.Printf("📦 Sent packet %d: seq=%d ts=%d size=%d bytes", i, st.SequenceNumber, st.Timestamp, n)
		}

		st = st.Next(cfg.Mode)

		if err := s.Sleep(ctx, cfg.Interval); err != nil {
			code := ErrCodeCanceled
			if errors.Is(err, context.DeadlineExceeded) {
				code = ErrCodeTimeout
			}
			return report, NewError(err, code, "sender", "pause").WithIteration(i)
		}
	}

	log.Println("Done sending packets")
	return report, nil
}

// serialize builds the datagram for the given state
func (s *Sender) serialize(st PacketState) ([]byte, error) {
	pkt, err := s.cfg.Template.Marshal(st)
	if err != nil {
		return nil, NewError(err, ErrCodeRTP, "sender", "marshal")
	}

	if s.Protector == nil {
		return pkt, nil
	}

	header := s.cfg.Template.Header(st)
	out, err := s.Protector.Protect(pkt, &header)
	if err != nil {
		var sendErr *SendError
		if errors.As(err, &sendErr) {
			return nil, sendErr
		}
		return nil, NewError(err, ErrCodeSRTP, "sender", "protect")
	}
	return out, nil
}

// Send runs a single burst with the default socket
func Send(ctx context.Context, cfg SenderConfig) (*RunReport, error) {
	return NewSender(cfg).Run(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
