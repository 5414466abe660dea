package internal

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisRunKeyPrefix = "rtpsend:run:"
	redisRunsListKey  = "rtpsend:runs"
	redisRunsListMax  = 100
)

// RedisReportStore keeps run reports in Redis hashes with a TTL, plus a capped
// list of recent run IDs.
type RedisReportStore struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedisReportStore connects to Redis and checks the connection
func NewRedisReportStore(ctx context.Context, cfg DatabaseConfig) (*RedisReportStore, error) {
	log.Println("🔌 Connecting to Redis at:", cfg.RedisAddr)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, NewError(err, ErrCodeDatabase, "redis", "ping").WithContext(cfg.RedisAddr)
	}

	log.Println("✅ Redis connected successfully.")
	return &RedisReportStore{
		Client: rdb,
		TTL:    time.Duration(cfg.ReportTTL) * time.Second,
	}, nil
}

func redisRunKey(runID string) string {
	return redisRunKeyPrefix + runID
}

// reportFields flattens a report into hash fields
func reportFields(r *RunReport) map[string]interface{} {
	return map[string]interface{}{
		"run_id":            r.RunID,
		"destination":       r.Destination,
		"mode":              string(r.Mode),
		"ssrc":              strconv.FormatUint(uint64(r.SSRC), 10),
		"packets_requested": strconv.Itoa(r.PacketsRequested),
		"packets_sent":      strconv.Itoa(r.PacketsSent),
		"bytes_sent":        strconv.Itoa(r.BytesSent),
		"first_sequence":    strconv.Itoa(int(r.FirstSequence)),
		"last_sequence":     strconv.Itoa(int(r.LastSequence)),
		"first_timestamp":   strconv.FormatUint(uint64(r.FirstTimestamp), 10),
		"last_timestamp":    strconv.FormatUint(uint64(r.LastTimestamp), 10),
		"started_at":        r.StartedAt.UTC().Format(time.RFC3339Nano),
		"finished_at":       r.FinishedAt.UTC().Format(time.RFC3339Nano),
		"error":             r.Error,
	}
}

// reportFromFields is the inverse of reportFields
func reportFromFields(fields map[string]string) (*RunReport, error) {
	if fields["run_id"] == "" {
		return nil, errors.New("missing run_id")
	}

	atoi := func(k string) int {
		v, _ := strconv.Atoi(fields[k])
		return v
	}
	atou := func(k string) uint64 {
		v, _ := strconv.ParseUint(fields[k], 10, 32)
		return v
	}
	parseTime := func(k string) time.Time {
		t, _ := time.Parse(time.RFC3339Nano, fields[k])
		return t
	}

	return &RunReport{
		RunID:            fields["run_id"],
		Destination:      fields["destination"],
		Mode:             CounterMode(fields["mode"]),
		SSRC:             uint32(atou("ssrc")),
		PacketsRequested: atoi("packets_requested"),
		PacketsSent:      atoi("packets_sent"),
		BytesSent:        atoi("bytes_sent"),
		FirstSequence:    uint16(atoi("first_sequence")),
		LastSequence:     uint16(atoi("last_sequence")),
		FirstTimestamp:   uint32(atou("first_timestamp")),
		LastTimestamp:    uint32(atou("last_timestamp")),
		StartedAt:        parseTime("started_at"),
		FinishedAt:       parseTime("finished_at"),
		Error:            fields["error"],
	}, nil
}

// SaveReport stores the report hash and pushes its ID onto the recent list
func (s *RedisReportStore) SaveReport(ctx context.Context, r *RunReport) error {
	key := redisRunKey(r.RunID)

	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, reportFields(r))
		if s.TTL > 0 {
			pipe.Expire(ctx, key, s.TTL)
		}
		pipe.LPush(ctx, redisRunsListKey, r.RunID)
		pipe.LTrim(ctx, redisRunsListKey, 0, redisRunsListMax-1)
		return nil
	})
	if err != nil {
		return NewError(err, ErrCodeDatabase, "redis", "save report").WithContext(r.RunID)
	}
	return nil
}

// GetReport loads a single report; it returns nil, nil when the run is unknown or expired
func (s *RedisReportStore) GetReport(ctx context.Context, runID string) (*RunReport, error) {
	fields, err := s.Client.HGetAll(ctx, redisRunKey(runID)).Result()
	if err != nil {
		return nil, NewError(err, ErrCodeDatabase, "redis", "get report").WithContext(runID)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return reportFromFields(fields)
}

// RecentRuns returns up to n most recent reports that have not expired
func (s *RedisReportStore) RecentRuns(ctx context.Context, n int) ([]*RunReport, error) {
	if n <= 0 {
		return nil, nil
	}

	ids, err := s.Client.LRange(ctx, redisRunsListKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, NewError(err, ErrCodeDatabase, "redis", "recent runs")
	}

	var out []*RunReport
	for _, id := range ids {
		r, err := s.GetReport(ctx, id)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// HealthCheck pings Redis
func (s *RedisReportStore) HealthCheck() ComponentHealth {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.Client.Ping(ctx).Err(); err != nil {
		return CreateComponentHealth(StatusDown, err.Error())
	}
	return CreateComponentHealth(StatusUp, "Redis is healthy")
}

// Close gracefully shuts down the Redis connection
func (s *RedisReportStore) Close() error {
	log.Println("🔌 Closing Redis connection...")
	return s.Client.Close()
}
