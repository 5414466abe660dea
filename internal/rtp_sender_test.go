package internal

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected write failure")

// fakeConn records writes and can fail on a given write
type fakeConn struct {
	mu      sync.Mutex
	writes  [][]byte
	failOn  int // 1-based write index, 0 never fails
	closed  bool
	nwrites int
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nwrites++
	if c.nwrites == c.failOn {
		return 0, errInjected
	}
	c.writes = append(c.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort}
}

func newFakeSender(cfg SenderConfig, conn *fakeConn) (*Sender, *[]time.Duration) {
	var sleeps []time.Duration
	s := NewSender(cfg)
	s.Dial = func(_ context.Context, host string, port int, _ TransportConfig) (DatagramConn, error) {
		return conn, nil
	}
	s.Sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return s, &sleeps
}

func TestSenderDefaultBurst(t *testing.T) {
	conn := &fakeConn{}
	var dialed string

	s, sleeps := newFakeSender(DefaultSenderConfig(), conn)
	s.Dial = func(_ context.Context, host string, port int, _ TransportConfig) (DatagramConn, error) {
		dialed = net.JoinHostPort(host, strconv.Itoa(port))
		return conn, nil
	}

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:12000", dialed)
	require.True(t, conn.closed)
	require.Equal(t, SenderClosed, s.State())

	require.Len(t, conn.writes, 5)
	script := BuildInitialPacket()
	for i, w := range conn.writes {
		require.Len(t, w, 28)
		require.Equal(t, byte(i), w[2], "byte 2 of packet %d", i+1)
		require.Equal(t, byte(0x01), w[3], "byte 3 of packet %d", i+1)
		require.Equal(t, byte(i+1), w[7], "timestamp low byte of packet %d", i+1)
		require.Equal(t, conn.writes[0][0:2], w[0:2])
		require.Equal(t, conn.writes[0][8:], w[8:])

		require.Equal(t, script, w, "packet %d differs from the script buffer", i+1)
		script[2]++
		script[7]++
	}

	require.Equal(t, []time.Duration{
		100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond,
		100 * time.Millisecond, 100 * time.Millisecond,
	}, *sleeps)

	require.Equal(t, 5, report.PacketsSent)
	require.Equal(t, 140, report.BytesSent)
	require.Equal(t, uint16(0x0001), report.FirstSequence)
	require.Equal(t, uint16(0x0401), report.LastSequence)
	require.Equal(t, uint32(5), report.LastTimestamp)
	require.Equal(t, CounterModeLegacy, report.Mode)
	require.True(t, report.Succeeded())
}

func TestSenderClosesSocketOnWriteFailure(t *testing.T) {
	conn := &fakeConn{failOn: 3}
	m := NewMetrics()

	s, _ := newFakeSender(DefaultSenderConfig(), conn)
	s.Metrics = m

	report, err := s.Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, errInjected)
	require.True(t, IsNetworkError(err))

	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	require.Equal(t, 3, sendErr.Iteration)

	require.True(t, conn.closed)
	require.Len(t, conn.writes, 2)
	require.Equal(t, SenderClosed, s.State())

	require.Equal(t, 2, report.PacketsSent)
	require.False(t, report.Succeeded())
	require.NotEmpty(t, report.Error)

	require.Equal(t, float64(2), testutil.ToFloat64(m.packetsSent))
	require.Equal(t, float64(1), testutil.ToFloat64(m.sendErrors.WithLabelValues(ErrCodeNetwork)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("failure")))
}

func TestSenderDialFailure(t *testing.T) {
	s := NewSender(DefaultSenderConfig())
	s.Dial = func(context.Context, string, int, TransportConfig) (DatagramConn, error) {
		return nil, errInjected
	}

	report, err := s.Run(context.Background())
	require.ErrorIs(t, err, errInjected)
	require.True(t, IsNetworkError(err))
	require.Equal(t, 0, report.PacketsSent)
}

func TestSenderRunsOnce(t *testing.T) {
	s, _ := newFakeSender(DefaultSenderConfig(), &fakeConn{})
	require.Equal(t, SenderIdle, s.State())

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.ErrorIs(t, err, ErrSenderUsed)
}

func TestSenderInvalidConfig(t *testing.T) {
	cfg := DefaultSenderConfig()
	cfg.Count = 0

	conn := &fakeConn{}
	s, _ := newFakeSender(cfg, conn)

	_, err := s.Run(context.Background())
	require.True(t, IsConfigError(err))
	require.Empty(t, conn.writes)
}

func TestSenderCanceled(t *testing.T) {
	conn := &fakeConn{}
	ctx, cancel := context.WithCancel(context.Background())

	s := NewSender(DefaultSenderConfig())
	s.Dial = func(context.Context, string, int, TransportConfig) (DatagramConn, error) {
		return conn, nil
	}
	s.OnSent = func(i int, _ PacketState, _ []byte) {
		if i == 2 {
			cancel()
		}
	}

	report, err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, ErrCodeCanceled, ErrorCode(err))
	require.Equal(t, 2, report.PacketsSent)
	require.True(t, conn.closed)
}

func TestSenderOnSentAndRecorder(t *testing.T) {
	conn := &fakeConn{}
	rec := &recorder{}

	cfg := DefaultSenderConfig()
	cfg.Count = 3
	cfg.Mode = CounterModeRTP
	cfg.Initial = PacketState{SequenceNumber: 0xffff, Timestamp: 0xffffffff}

	var states []PacketState
	s, _ := newFakeSender(cfg, conn)
	s.Recorder = rec
	s.OnSent = func(_ int, st PacketState, _ []byte) {
		states = append(states, st)
	}

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []PacketState{
		{SequenceNumber: 0xffff, Timestamp: 0xffffffff},
		{SequenceNumber: 0, Timestamp: 0},
		{SequenceNumber: 1, Timestamp: 1},
	}, states)
	require.Equal(t, conn.writes, rec.payloads)
}

type recorder struct {
	payloads [][]byte
}

func (r *recorder) RecordDatagram(_, _ net.Addr, payload []byte, _ time.Time) error {
	r.payloads = append(r.payloads, append([]byte(nil), payload...))
	return nil
}

func TestSenderLoopback(t *testing.T) {
	for _, mode := range []CounterMode{CounterModeByte, CounterModeRTP, CounterModeLegacy} {
		t.Run(string(mode), func(t *testing.T) {
			recv, err := ListenReceiver("127.0.0.1:0", nil)
			require.NoError(t, err)
			defer recv.Close()

			cfg := DefaultSenderConfig()
			cfg.Port = recv.Addr().Port
			cfg.Interval = time.Millisecond
			cfg.Mode = mode

			report, err := Send(context.Background(), cfg)
			require.NoError(t, err)
			require.Equal(t, 5, report.PacketsSent)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			pkts, err := recv.Collect(ctx, 5)
			require.NoError(t, err)
			require.NoError(t, VerifyBurst(PlainDatagrams(pkts), ExpectationFor(cfg)))

			for _, p := range pkts {
				require.Len(t, p.Datagram, 28)
			}

			if mode == CounterModeLegacy {
				for i, p := range pkts {
					require.Equal(t, byte(i), p.Datagram[2])
					require.Equal(t, byte(0x01), p.Datagram[3])
					require.Equal(t, byte(i+1), p.Datagram[7])
				}
			}
		})
	}
}

func TestSenderLoopbackSRTP(t *testing.T) {
	keys := testSRTPConfig()

	recvSession, err := NewSRTPSession(keys)
	require.NoError(t, err)

	recv, err := ListenReceiver("127.0.0.1:0", recvSession)
	require.NoError(t, err)
	defer recv.Close()

	sendSession, err := NewSRTPSession(keys)
	require.NoError(t, err)

	cfg := DefaultSenderConfig()
	cfg.Port = recv.Addr().Port
	cfg.Interval = time.Millisecond

	s := NewSender(cfg)
	s.Protector = sendSession

	_, err = s.Run(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pkts, err := recv.Collect(ctx, 5)
	require.NoError(t, err)

	for _, p := range pkts {
		require.Len(t, p.Datagram, 28+10)
		require.Len(t, p.Plain, 28)
	}
	require.NoError(t, VerifyBurst(PlainDatagrams(pkts), ExpectationFor(cfg)))
}

func TestReceiverClosedSocket(t *testing.T) {
	recv, err := ListenReceiver("127.0.0.1:0", nil)
	require.NoError(t, err)
	require.NoError(t, recv.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pkts, err := recv.Collect(ctx, 1)
	require.Empty(t, pkts)
	require.True(t, IsNetworkError(err))
	require.ErrorIs(t, err, net.ErrClosed)
}

func TestReceiverTimeout(t *testing.T) {
	recv, err := ListenReceiver("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer recv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	pkts, err := recv.Collect(ctx, 1)
	require.Empty(t, pkts)
	require.Equal(t, ErrCodeTimeout, ErrorCode(err))
}
