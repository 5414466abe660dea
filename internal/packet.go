package internal

import (
	"fmt"
	"strings"

	"github.com/pion/rtp"
)

// RTP header constants
const (
	RTPVersion       = 2
	RTPHeaderSize    = 12
	DefaultSSRC      = 0x00000001
	DefaultPacketLen = RTPHeaderSize + 16
)

// CounterMode selects how sequence number and timestamp advance between sends
type CounterMode string

const (
	// CounterModeByte advances both counters by one and wraps them at 256.
	// Only the low-order byte of either field ever changes.
	CounterModeByte CounterMode = "byte"

	// CounterModeRTP advances both counters over their full field width.
	CounterModeRTP CounterMode = "rtp"

	// CounterModeLegacy reproduces the historical test script byte for byte:
	// byte 2 (sequence high byte) and byte 7 (timestamp low byte) are bumped.
	// This is the default.
	CounterModeLegacy CounterMode = "legacy"
)

// ParseCounterMode converts a configuration string into a CounterMode.
// An empty string selects CounterModeLegacy.
func ParseCounterMode(s string) (CounterMode, error) {
	switch m := CounterMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return CounterModeLegacy, nil
	case CounterModeByte, CounterModeRTP, CounterModeLegacy:
		return m, nil
	default:
		return "", fmt.Errorf("unknown counter mode %q", s)
	}
}

// PacketTemplate holds the fields that stay fixed for every packet of a burst
type PacketTemplate struct {
	PayloadType uint8
	Marker      bool
	SSRC        uint32
	Payload     []byte
}

// DefaultPayload returns the 16 static payload bytes 0x01..0x10
func DefaultPayload() []byte {
	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	return payload
}

// DefaultTemplate returns PT 0 (PCMU), marker unset, SSRC 1 and the default payload
func DefaultTemplate() PacketTemplate {
	return PacketTemplate{
		PayloadType: 0,
		SSRC:        DefaultSSRC,
		Payload:     DefaultPayload(),
	}
}

// Size returns the serialized length of every packet built from the template
func (t PacketTemplate) Size() int {
	return RTPHeaderSize + len(t.Payload)
}

// Header returns the RTP header for the given state
func (t PacketTemplate) Header(st PacketState) rtp.Header {
	return rtp.Header{
		Version:        RTPVersion,
		Marker:         t.Marker,
		PayloadType:    t.PayloadType,
		SequenceNumber: st.SequenceNumber,
		Timestamp:      st.Timestamp,
		SSRC:           t.SSRC,
	}
}

// Marshal serializes the template with the given counters into a fresh buffer
func (t PacketTemplate) Marshal(st PacketState) ([]byte, error) {
	if t.PayloadType > 0x7f {
		return nil, fmt.Errorf("payload type %d out of range", t.PayloadType)
	}

	pkt := rtp.Packet{
		Header:  t.Header(st),
		Payload: t.Payload,
	}

	buf, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RTP packet: %w", err)
	}
	return buf, nil
}

// PacketState is the mutable part of the packet
type PacketState struct {
	SequenceNumber uint16
	Timestamp      uint32
}

// InitialState is the state of the first packet of a burst
func InitialState() PacketState {
	return PacketState{SequenceNumber: 1, Timestamp: 1}
}

// Next returns the state of the following packet under the given mode
func (s PacketState) Next(mode CounterMode) PacketState {
	switch mode {
	case CounterModeRTP:
		return PacketState{
			SequenceNumber: s.SequenceNumber + 1,
			Timestamp:      s.Timestamp + 1,
		}

	case CounterModeLegacy:
		return PacketState{
			SequenceNumber: s.SequenceNumber + 0x0100,
			Timestamp:      bumpLowByte32(s.Timestamp),
		}

	default:
		return PacketState{
			SequenceNumber: s.SequenceNumber&0xff00 | uint16(uint8(s.SequenceNumber)+1),
			Timestamp:      bumpLowByte32(s.Timestamp),
		}
	}
}

func bumpLowByte32(v uint32) uint32 {
	return v&0xffffff00 | uint32(uint8(v)+1)
}

// BuildInitialPacket returns the 28-byte packet the sender starts from
func BuildInitialPacket() []byte {
	buf, err := DefaultTemplate().Marshal(InitialState())
	if err != nil {
		// the default template is always valid
		panic(err)
	}
	return buf
}
