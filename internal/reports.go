package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// RunReport summarizes one burst
type RunReport struct {
	RunID            string      `json:"run_id"`
	Destination      string      `json:"destination"`
	Mode             CounterMode `json:"mode"`
	SSRC             uint32      `json:"ssrc"`
	PacketsRequested int         `json:"packets_requested"`
	PacketsSent      int         `json:"packets_sent"`
	BytesSent        int         `json:"bytes_sent"`
	FirstSequence    uint16      `json:"first_sequence"`
	LastSequence     uint16      `json:"last_sequence"`
	FirstTimestamp   uint32      `json:"first_timestamp"`
	LastTimestamp    uint32      `json:"last_timestamp"`
	StartedAt        time.Time   `json:"started_at"`
	FinishedAt       time.Time   `json:"finished_at"`
	Error            string      `json:"error,omitempty"`
}

// NewRunReport starts a report for the given burst
func NewRunReport(cfg SenderConfig) *RunReport {
	return &RunReport{
		RunID:            uuid.NewString(),
		Destination:      cfg.Address(),
		Mode:             cfg.Mode,
		SSRC:             cfg.Template.SSRC,
		PacketsRequested: cfg.Count,
		StartedAt:        time.Now(),
	}
}

// Record accounts for one sent packet
func (r *RunReport) Record(st PacketState, n int) {
	if r.PacketsSent == 0 {
		r.FirstSequence = st.SequenceNumber
		r.FirstTimestamp = st.Timestamp
	}
	r.LastSequence = st.SequenceNumber
	r.LastTimestamp = st.Timestamp
	r.PacketsSent++
	r.BytesSent += n
}

// Finish stamps the end time and the error, if any
func (r *RunReport) Finish(err error) {
	r.FinishedAt = time.Now()
	if err != nil {
		r.Error = err.Error()
	}
}

// Succeeded reports whether every requested packet went out without error
func (r *RunReport) Succeeded() bool {
	return r.Error == "" && r.PacketsSent == r.PacketsRequested
}

// Duration returns the wall time of the burst
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunReport) String() string {
	status := "ok"
	if r.Error != "" {
		status = "failed: " + r.Error
	}
	return fmt.Sprintf("run %s to %s: %d/%d packets, %d bytes, seq %d..%d, ts %d..%d in %s (%s)",
		r.RunID, r.Destination, r.PacketsSent, r.PacketsRequested, r.BytesSent,
		r.FirstSequence, r.LastSequence, r.FirstTimestamp, r.LastTimestamp,
		r.Duration().Round(time.Millisecond), status)
}

// ReportStore persists run reports
type ReportStore interface {
	SaveReport(ctx context.Context, r *RunReport) error
	Close() error
}

// MultiReportStore fans a report out to several stores
type MultiReportStore []ReportStore

// SaveReport saves to every store and joins the errors
func (m MultiReportStore) SaveReport(ctx context.Context, r *RunReport) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveReport(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every store
func (m MultiReportStore) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogReportStore writes reports to the process log
type LogReportStore struct{}

// SaveReport logs the report summary
func (LogReportStore) SaveReport(_ context.Context, r *RunReport) error {
	log.Printf("📊 %s", r)
	return nil
}

// Close is a no-op
func (LogReportStore) Close() error { return nil }
