package internal

import (
	"bytes"
	"fmt"

	"github.com/pion/rtp"
)

// BurstExpectation describes what a receiver should observe for one burst
type BurstExpectation struct {
	Count    int
	Mode     CounterMode
	Template PacketTemplate
	Initial  PacketState
}

// ExpectationFor derives the expectation from the sender parameters
func ExpectationFor(cfg SenderConfig) BurstExpectation {
	return BurstExpectation{
		Count:    cfg.Count,
		Mode:     cfg.Mode,
		Template: cfg.Template,
		Initial:  cfg.Initial,
	}
}

func verifyError(i int, format string, args ...interface{}) error {
	return NewError(fmt.Errorf(format, args...), ErrCodeVerification, "verify", "burst").WithIteration(i)
}

// VerifyBurst checks a sequence of plain RTP datagrams: exact count, fixed size,
// unchanged fixed fields, and counters following the mode from the initial state
// in lock-step.
func VerifyBurst(datagrams [][]byte, exp BurstExpectation) error {
	if len(datagrams) != exp.Count {
		return verifyError(0, "expected %d datagrams, got %d", exp.Count, len(datagrams))
	}

	size := exp.Template.Size()
	st := exp.Initial

	var first []byte

	for idx, d := range datagrams {
		i := idx + 1

		if len(d) != size {
			return verifyError(i, "expected %d bytes, got %d", size, len(d))
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(d); err != nil {
			return verifyError(i, "not an RTP packet: %v", err)
		}

		if pkt.Version != RTPVersion || pkt.Padding || pkt.Extension || len(pkt.CSRC) != 0 {
			return verifyError(i, "unexpected header flags %#02x", d[0])
		}
		if pkt.PayloadType != exp.Template.PayloadType || pkt.Marker != exp.Template.Marker {
			return verifyError(i, "unexpected marker/payload type %#02x", d[1])
		}
		if pkt.SSRC != exp.Template.SSRC {
			return verifyError(i, "SSRC changed: %#08x", pkt.SSRC)
		}
		if !bytes.Equal(pkt.Payload, exp.Template.Payload) {
			return verifyError(i, "payload mismatch")
		}

		if pkt.SequenceNumber != st.SequenceNumber {
			return verifyError(i, "sequence number %d, expected %d", pkt.SequenceNumber, st.SequenceNumber)
		}
		if pkt.Timestamp != st.Timestamp {
			return verifyError(i, "timestamp %d, expected %d", pkt.Timestamp, st.Timestamp)
		}

		if first == nil {
			first = d
		} else if !fixedBytesEqual(first, d) {
			return verifyError(i, "fixed header bytes differ from packet 1")
		}

		st = st.Next(exp.Mode)
	}

	return nil
}

// fixedBytesEqual compares everything except the sequence and timestamp fields
func fixedBytesEqual(a, b []byte) bool {
	return bytes.Equal(a[0:2], b[0:2]) && bytes.Equal(a[8:], b[8:])
}
