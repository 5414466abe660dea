package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/pion/rtp"
)

const (
	receiveBufferSize = 1500 // Standard MTU size
	receivePollPeriod = 100 * time.Millisecond
)

// ReceivedPacket is one datagram collected by the Receiver
type ReceivedPacket struct {
	From       net.Addr
	ReceivedAt time.Time
	Datagram   []byte // as received
	Plain      []byte // after SRTP decryption, equal to Datagram without SRTP
	Packet     rtp.Packet
}

// Receiver listens on a UDP port and collects RTP packets, the counterpart of
// Sender for loopback checks.
type Receiver struct {
	Metrics *Metrics
	Verbose bool

	conn        *net.UDPConn
	unprotector Unprotector
}

// ListenReceiver binds a UDP socket. unprotector may be nil.
func ListenReceiver(addr string, unprotector Unprotector) (*Receiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, NewError(err, ErrCodeConfiguration, "receiver", "resolve").WithContext(addr)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, NewError(err, ErrCodeNetwork, "receiver", "listen").WithContext(addr)
	}

	log.Printf("🎧 RTP receiver listening on %s", conn.LocalAddr())
	return &Receiver{conn: conn, unprotector: unprotector}, nil
}

// Addr returns the bound address
func (r *Receiver) Addr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Collect reads until n valid RTP packets arrived or ctx is done. On timeout it
// returns what was collected together with the error.
func (r *Receiver) Collect(ctx context.Context, n int) ([]ReceivedPacket, error) {
	buf := make([]byte, receiveBufferSize)
	out := make([]ReceivedPacket, 0, n)

	for len(out) < n {
		if err := ctx.Err(); err != nil {
			code := ErrCodeCanceled
			if errors.Is(err, context.DeadlineExceeded) {
				code = ErrCodeTimeout
			}
			return out, NewError(err, code, "receiver", "collect").
				WithContext(fmt.Sprintf("received %d of %d", len(out), n))
		}

		if err := r.conn.SetReadDeadline(time.Now().Add(receivePollPeriod)); err != nil {
			return out, NewError(err, ErrCodeNetwork, "receiver", "set deadline")
		}
		nr, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return out, NewError(err, ErrCodeNetwork, "receiver", "read")
		}

		pkt, err := r.decode(buf[:nr], from)
		if err != nil {
			r.Metrics.Error(ErrorCode(err))
			log.Printf("❌ Dropping datagram from %s: %v", from, err)
			continue
		}

		r.Metrics.PacketReceived()
		if r.Verbose {
			log.Printf("📦 RTP Packet - SSRC: %d, SeqNum: %d, Timestamp: %d, PayloadType: %d",
				pkt.Packet.SSRC, pkt.Packet.SequenceNumber, pkt.Packet.Timestamp, pkt.Packet.PayloadType)
		}
		out = append(out, pkt)
	}

	return out, nil
}

func (r *Receiver) decode(data []byte, from net.Addr) (ReceivedPacket, error) {
	datagram := append([]byte(nil), data...)
	plain := datagram

	if r.unprotector != nil {
		var err error
		plain, err = r.unprotector.Unprotect(datagram)
		if err != nil {
			return ReceivedPacket{}, err
		}
	}

	rp := ReceivedPacket{
		From:       from,
		ReceivedAt: time.Now(),
		Datagram:   datagram,
		Plain:      plain,
	}
	if err := rp.Packet.Unmarshal(plain); err != nil {
		return ReceivedPacket{}, NewError(err, ErrCodeRTP, "receiver", "unmarshal")
	}
	return rp, nil
}

// Close releases the socket
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// PlainDatagrams returns the decrypted bytes of each packet
func PlainDatagrams(pkts []ReceivedPacket) [][]byte {
	out := make([][]byte, len(pkts))
	for i, p := range pkts {
		out[i] = p.Plain
	}
	return out
}
