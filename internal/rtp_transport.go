package internal

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// DatagramConn is the connected socket the sender writes to.
// *net.UDPConn satisfies it.
type DatagramConn interface {
	Write(b []byte) (int, error)
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// DialFunc opens the sender's socket
type DialFunc func(ctx context.Context, host string, port int, cfg TransportConfig) (DatagramConn, error)

// DialUDP opens a connected UDP socket towards host:port and applies the
// DSCP and TTL settings of cfg.
func DialUDP(ctx context.Context, host string, port int, cfg TransportConfig) (DatagramConn, error) {
	dialer := net.Dialer{}

	if cfg.BindAddr != "" {
		laddr, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve bind address: %w", err)
		}
		dialer.LocalAddr = laddr
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	c, err := dialer.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, err
	}

	conn := c.(*net.UDPConn)

	if err := applySocketOptions(conn, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// applySocketOptions marks outgoing datagrams with the configured traffic class and TTL
func applySocketOptions(conn *net.UDPConn, cfg TransportConfig) error {
	if cfg.DSCP == 0 && cfg.TTL == 0 {
		return nil
	}

	raddr, _ := conn.RemoteAddr().(*net.UDPAddr)
	isIPv4 := raddr != nil && raddr.IP.To4() != nil

	if isIPv4 {
		pc := ipv4.NewConn(conn)
		if cfg.DSCP != 0 {
			if err := pc.SetTOS(cfg.DSCP << 2); err != nil {
				return fmt.Errorf("failed to set DSCP %d: %w", cfg.DSCP, err)
			}
		}
		if cfg.TTL != 0 {
			if err := pc.SetTTL(cfg.TTL); err != nil {
				return fmt.Errorf("failed to set TTL %d: %w", cfg.TTL, err)
			}
		}
	} else {
		pc := ipv6.NewConn(conn)
		if cfg.DSCP != 0 {
			if err := pc.SetTrafficClass(cfg.DSCP << 2); err != nil {
				return fmt.Errorf("failed to set DSCP %d: %w", cfg.DSCP, err)
			}
		}
		if cfg.TTL != 0 {
			if err := pc.SetHopLimit(cfg.TTL); err != nil {
				return fmt.Errorf("failed to set hop limit %d: %w", cfg.TTL, err)
			}
		}
	}

	log.Printf("Socket options applied: DSCP=%d TTL=%d", cfg.DSCP, cfg.TTL)
	return nil
}
