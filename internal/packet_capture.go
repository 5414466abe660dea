package internal

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const pcapSnapLen = 65536

var (
	captureSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	captureDstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// DatagramRecorder receives a copy of every datagram put on the wire
type DatagramRecorder interface {
	RecordDatagram(src, dst net.Addr, payload []byte, ts time.Time) error
}

// PacketCapture writes sent datagrams to a pcap file as Ethernet/IP/UDP frames,
// so the file opens in Wireshark with the RTP dissector.
type PacketCapture struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *pcapgo.Writer
	ipID   uint16
	count  int
}

// OpenPacketCapture creates the pcap file and writes its header
func OpenPacketCapture(path string) (*PacketCapture, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, NewError(err, ErrCodeIO, "capture", "mkdir").WithContext(dir)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, NewError(err, ErrCodeIO, "capture", "create").WithContext(path)
	}

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(pcapSnapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, NewError(err, ErrCodeIO, "capture", "header").WithContext(path)
	}

	log.Printf("Packet capture initialized: %s", path)
	return &PacketCapture{path: path, file: f, writer: w}, nil
}

// RecordDatagram appends one UDP datagram to the capture
func (c *PacketCapture) RecordDatagram(src, dst net.Addr, payload []byte, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writer == nil {
		return errors.New("capture is closed")
	}

	c.ipID++
	frame, err := buildUDPFrame(udpAddrOf(src), udpAddrOf(dst), c.ipID, payload)
	if err != nil {
		return err
	}

	err = c.writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(frame),
		Length:        len(frame),
	}, frame)
	if err != nil {
		return err
	}

	c.count++
	return nil
}

// Count returns how many datagrams were written
func (c *PacketCapture) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Close properly closes the pcap file
func (c *PacketCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return nil
	}

	err := c.file.Close()
	c.file = nil
	c.writer = nil
	log.Printf("PCAP capture file closed (%s)", c.path)
	return err
}

func udpAddrOf(a net.Addr) *net.UDPAddr {
	if u, ok := a.(*net.UDPAddr); ok && u != nil {
		return u
	}
	if a != nil {
		if u, err := net.ResolveUDPAddr("udp", a.String()); err == nil {
			return u
		}
	}
	return &net.UDPAddr{IP: net.IPv4zero}
}

func buildUDPFrame(src, dst *net.UDPAddr, ipID uint16, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC: captureSrcMAC,
		DstMAC: captureDstMAC,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}

	var network gopacket.SerializableLayer
	src4, dst4 := src.IP.To4(), dst.IP.To4()

	if src4 != nil && dst4 != nil {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Id:       ipID,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    src4,
			DstIP:    dst4,
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolUDP,
			SrcIP:      src.IP.To16(),
			DstIP:      dst.IP.To16(),
		}
		if ip.SrcIP == nil {
			ip.SrcIP = net.IPv6unspecified
		}
		if ip.DstIP == nil {
			ip.DstIP = net.IPv6unspecified
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, network, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("failed to serialize capture frame: %w", err)
	}
	return buf.Bytes(), nil
}

// CapturedDatagram is one UDP datagram read back from a pcap file
type CapturedDatagram struct {
	Timestamp time.Time
	Src       *net.UDPAddr
	Dst       *net.UDPAddr
	Payload   []byte
}

// ReadCapturedDatagrams decodes every UDP datagram in a pcap file
func ReadCapturedDatagrams(path string) ([]CapturedDatagram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewError(err, ErrCodeIO, "capture", "open").WithContext(path)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, NewError(err, ErrCodeIO, "capture", "read header").WithContext(path)
	}

	var out []CapturedDatagram
	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, NewError(err, ErrCodeIO, "capture", "read packet").WithContext(path)
		}

		pkt := gopacket.NewPacket(data, r.LinkType(), gopacket.Default)
		udpLayer, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			continue
		}

		d := CapturedDatagram{
			Timestamp: ci.Timestamp,
			Src:       &net.UDPAddr{Port: int(udpLayer.SrcPort)},
			Dst:       &net.UDPAddr{Port: int(udpLayer.DstPort)},
			Payload:   append([]byte(nil), udpLayer.Payload...),
		}

		switch ip := pkt.NetworkLayer().(type) {
		case *layers.IPv4:
			d.Src.IP, d.Dst.IP = ip.SrcIP, ip.DstIP
		case *layers.IPv6:
			d.Src.IP, d.Dst.IP = ip.SrcIP, ip.DstIP
		}

		out = append(out, d)
	}

	return out, nil
}
