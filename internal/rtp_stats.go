package internal

import (
	"fmt"
	"log"
	"time"
)

// ReceiveStats summarizes a collected burst against its expectation
type ReceiveStats struct {
	Expected   int           `json:"expected"`
	Received   int           `json:"received"`
	Lost       int           `json:"lost"`
	Duplicates int           `json:"duplicates"`
	Reordered  int           `json:"reordered"`
	Unexpected int           `json:"unexpected"`
	MeanGap    time.Duration `json:"mean_gap"`
	Jitter     time.Duration `json:"jitter"` // mean deviation of the arrival gap from the send interval
}

// LossPercent returns the share of expected packets that never arrived
func (s ReceiveStats) LossPercent() float64 {
	if s.Expected == 0 {
		return 0
	}
	return float64(s.Lost) * 100 / float64(s.Expected)
}

func (s ReceiveStats) String() string {
	return fmt.Sprintf("received %d/%d, lost %d (%.1f%%), duplicates %d, reordered %d, unexpected %d, mean gap %s, jitter %s",
		s.Received, s.Expected, s.Lost, s.LossPercent(), s.Duplicates, s.Reordered, s.Unexpected,
		s.MeanGap.Round(time.Microsecond), s.Jitter.Round(time.Microsecond))
}

// ComputeReceiveStats matches packets to the expected burst by sequence number and
// timestamp. interval is the sender's pause; 0 skips the jitter figure.
func ComputeReceiveStats(pkts []ReceivedPacket, exp BurstExpectation, interval time.Duration) ReceiveStats {
	stats := ReceiveStats{Expected: exp.Count, Received: len(pkts)}

	index := make(map[PacketState]int, exp.Count)
	st := exp.Initial
	for i := 0; i < exp.Count; i++ {
		if _, ok := index[st]; !ok {
			index[st] = i
		}
		st = st.Next(exp.Mode)
	}

	seen := make(map[int]bool, exp.Count)
	highest := -1

	for _, p := range pkts {
		i, ok := index[PacketState{SequenceNumber: p.Packet.SequenceNumber, Timestamp: p.Packet.Timestamp}]
		switch {
		case !ok:
			stats.Unexpected++
			continue
		case seen[i]:
			stats.Duplicates++
			continue
		}

		seen[i] = true
		if i < highest {
			stats.Reordered++
		} else {
			highest = i
		}
	}
	stats.Lost = exp.Count - len(seen)

	if len(pkts) > 1 {
		var total, deviation time.Duration
		for i := 1; i < len(pkts); i++ {
			gap := pkts[i].ReceivedAt.Sub(pkts[i-1].ReceivedAt)
			total += gap

			d := gap - interval
			if d < 0 {
				d = -d
			}
			deviation += d
		}
		n := time.Duration(len(pkts) - 1)
		stats.MeanGap = total / n
		if interval > 0 {
			stats.Jitter = deviation / n
		}
	}

	return stats
}

// AlertSettings defines thresholds for receive-side alerts
type AlertSettings struct {
	PacketLossThreshold float64 `json:"packet_loss_threshold"` // percent
	JitterThresholdMs   int     `json:"jitter_threshold_ms"`
}

// RTPAlert represents an RTP-related issue detected in a collected burst
type RTPAlert struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Value       float64   `json:"value"`
	Threshold   float64   `json:"threshold"`
}

// CheckAlerts evaluates the statistics against the thresholds. A zero threshold
// disables its check.
func CheckAlerts(stats ReceiveStats, settings AlertSettings) []RTPAlert {
	var alerts []RTPAlert

	if settings.PacketLossThreshold > 0 && stats.LossPercent() > settings.PacketLossThreshold {
		alerts = append(alerts, newAlert("Packet Loss", "High packet loss detected",
			stats.LossPercent(), settings.PacketLossThreshold))
	}

	jitterMs := float64(stats.Jitter) / float64(time.Millisecond)
	if settings.JitterThresholdMs > 0 && jitterMs > float64(settings.JitterThresholdMs) {
		alerts = append(alerts, newAlert("Jitter", "High jitter detected",
			jitterMs, float64(settings.JitterThresholdMs)))
	}

	if stats.Duplicates > 0 {
		alerts = append(alerts, newAlert("Duplicates", "Duplicate packets received",
			float64(stats.Duplicates), 0))
	}

	return alerts
}

func newAlert(alertType, description string, value, threshold float64) RTPAlert {
	log.Printf("ALERT: %s - %s (Value: %.2f, Threshold: %.2f)", alertType, description, value, threshold)
	return RTPAlert{
		Timestamp:   time.Now(),
		Type:        alertType,
		Description: description,
		Value:       value,
		Threshold:   threshold,
	}
}
