package internal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	saved  []*RunReport
	err    error
	closed bool
}

func (s *memoryStore) SaveReport(_ context.Context, r *RunReport) error {
	s.saved = append(s.saved, r)
	return s.err
}

func (s *memoryStore) Close() error {
	s.closed = true
	return s.err
}

func sampleReport() *RunReport {
	r := NewRunReport(DefaultSenderConfig())
	st := InitialState()
	for i := 0; i < 5; i++ {
		r.Record(st, DefaultPacketLen)
		st = st.Next(r.Mode)
	}
	r.Finish(nil)
	return r
}

func TestRunReport(t *testing.T) {
	r := sampleReport()

	_, err := uuid.Parse(r.RunID)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:12000", r.Destination)
	require.Equal(t, CounterModeLegacy, r.Mode)
	require.Equal(t, 5, r.PacketsSent)
	require.Equal(t, 140, r.BytesSent)
	require.Equal(t, uint16(0x0001), r.FirstSequence)
	require.Equal(t, uint16(0x0401), r.LastSequence)
	require.Equal(t, uint32(1), r.FirstTimestamp)
	require.Equal(t, uint32(5), r.LastTimestamp)
	require.True(t, r.Succeeded())
	require.False(t, r.FinishedAt.Before(r.StartedAt))
	require.Contains(t, r.String(), "5/5 packets")

	failed := NewRunReport(DefaultSenderConfig())
	failed.Finish(errors.New("connection refused"))
	require.False(t, failed.Succeeded())
	require.Contains(t, failed.String(), "failed: connection refused")

	require.NotEqual(t, r.RunID, failed.RunID)
}

func TestMultiReportStore(t *testing.T) {
	ok := &memoryStore{}
	broken := &memoryStore{err: errors.New("disk full")}
	stores := MultiReportStore{LogReportStore{}, ok, broken}

	r := sampleReport()
	err := stores.SaveReport(context.Background(), r)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
	require.Equal(t, []*RunReport{r}, ok.saved)
	require.Equal(t, []*RunReport{r}, broken.saved)

	require.Error(t, stores.Close())
	require.True(t, ok.closed)
	require.True(t, broken.closed)

	require.NoError(t, MultiReportStore{LogReportStore{}, ok}.SaveReport(context.Background(), r))
}

func TestRedisReportFields(t *testing.T) {
	r := sampleReport()
	r.SSRC = 0xfffffffe
	r.LastTimestamp = 0xffffffff
	r.Error = "write: connection refused"

	fields := reportFields(r)
	flat := make(map[string]string, len(fields))
	for k, v := range fields {
		flat[k] = v.(string)
	}

	back, err := reportFromFields(flat)
	require.NoError(t, err)
	require.Equal(t, r.RunID, back.RunID)
	require.Equal(t, r.SSRC, back.SSRC)
	require.Equal(t, r.LastTimestamp, back.LastTimestamp)
	require.Equal(t, r.LastSequence, back.LastSequence)
	require.Equal(t, r.BytesSent, back.BytesSent)
	require.Equal(t, r.Mode, back.Mode)
	require.Equal(t, r.Error, back.Error)
	require.True(t, r.StartedAt.Equal(back.StartedAt))

	_, err = reportFromFields(map[string]string{})
	require.Error(t, err)

	require.True(t, strings.HasPrefix(redisRunKey(r.RunID), "rtpsend:run:"))
}

func TestRedisReportStoreUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisReportStore(ctx, DatabaseConfig{RedisEnabled: true, RedisAddr: "127.0.0.1:1"})
	require.Error(t, err)
	require.Equal(t, ErrCodeDatabase, ErrorCode(err))
}

func TestMySQLHelpers(t *testing.T) {
	cfg, err := mysqlConfig("rtpsend:secret@tcp(127.0.0.1:3306)/rtpsend")
	require.NoError(t, err)
	require.True(t, cfg.ParseTime)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.Equal(t, "rtpsend", cfg.DBName)

	cfg, err = mysqlConfig("u:p@tcp(db:3306)/x?timeout=1s")
	require.NoError(t, err)
	require.Equal(t, time.Second, cfg.Timeout)

	_, err = mysqlConfig("user@tcp(")
	require.Error(t, err)

	r := sampleReport()
	args := insertArgs(r)
	require.Len(t, args, strings.Count(insertRun, "?"))
	require.Equal(t, r.RunID, args[0])
	require.Nil(t, args[len(args)-1])

	r.Error = "boom"
	require.Equal(t, "boom", insertArgs(r)[len(args)-1])
}
