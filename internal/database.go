package internal

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS rtp_send_runs (
    run_id            CHAR(36)     NOT NULL PRIMARY KEY,
    destination       VARCHAR(255) NOT NULL,
    counter_mode      VARCHAR(16)  NOT NULL,
    ssrc              INT UNSIGNED NOT NULL,
    packets_requested INT          NOT NULL,
    packets_sent      INT          NOT NULL,
    bytes_sent        INT          NOT NULL,
    first_sequence    SMALLINT UNSIGNED NOT NULL,
    last_sequence     SMALLINT UNSIGNED NOT NULL,
    first_timestamp   INT UNSIGNED NOT NULL,
    last_timestamp    INT UNSIGNED NOT NULL,
    started_at        DATETIME(6)  NOT NULL,
    finished_at       DATETIME(6)  NOT NULL,
    error             TEXT
)`

const insertRun = `
INSERT INTO rtp_send_runs (
    run_id, destination, counter_mode, ssrc, packets_requested, packets_sent, bytes_sent,
    first_sequence, last_sequence, first_timestamp, last_timestamp, started_at, finished_at, error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// MySQLReportStore logs run reports into MySQL
type MySQLReportStore struct {
	db *sql.DB
}

// mysqlConfig parses the DSN and forces time.Time scanning
func mysqlConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ParseTime = true
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return cfg, nil
}

// NewMySQLReportStore opens and pings the database
func NewMySQLReportStore(ctx context.Context, dsn string) (*MySQLReportStore, error) {
	cfg, err := mysqlConfig(dsn)
	if err != nil {
		return nil, NewError(err, ErrCodeConfiguration, "mysql", "parse dsn")
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, NewError(err, ErrCodeDatabase, "mysql", "connect")
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, NewError(err, ErrCodeDatabase, "mysql", "ping").WithContext(cfg.Addr)
	}

	log.Println("✅ Connected to MySQL successfully")
	return &MySQLReportStore{db: db}, nil
}

// EnsureSchema creates the runs table if it does not exist
func (s *MySQLReportStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createRunsTable); err != nil {
		return NewError(err, ErrCodeDatabase, "mysql", "create table")
	}
	return nil
}

// insertArgs returns the positional arguments of insertRun
func insertArgs(r *RunReport) []interface{} {
	var runErr interface{}
	if r.Error != "" {
		runErr = r.Error
	}
	return []interface{}{
		r.RunID, r.Destination, string(r.Mode), r.SSRC,
		r.PacketsRequested, r.PacketsSent, r.BytesSent,
		r.FirstSequence, r.LastSequence, r.FirstTimestamp, r.LastTimestamp,
		r.StartedAt.UTC(), r.FinishedAt.UTC(), runErr,
	}
}

// SaveReport inserts the report
func (s *MySQLReportStore) SaveReport(ctx context.Context, r *RunReport) error {
	if _, err := s.db.ExecContext(ctx, insertRun, insertArgs(r)...); err != nil {
		return NewError(err, ErrCodeDatabase, "mysql", "insert run").WithContext(r.RunID)
	}

	log.Printf("✅ Run report logged: ID=%s, packets=%d", r.RunID, r.PacketsSent)
	return nil
}

// CountRuns returns how many runs were logged for a destination
func (s *MySQLReportStore) CountRuns(ctx context.Context, destination string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rtp_send_runs WHERE destination = ?`, destination).Scan(&n)
	if err != nil {
		return 0, NewError(err, ErrCodeDatabase, "mysql", "count runs")
	}
	return n, nil
}

// HealthCheck pings MySQL
func (s *MySQLReportStore) HealthCheck() ComponentHealth {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return CreateComponentHealth(StatusDown, err.Error())
	}
	return CreateComponentHealth(StatusUp, "MySQL is healthy")
}

// Close closes the MySQL connection
func (s *MySQLReportStore) Close() error {
	if err := s.db.Close(); err != nil {
		log.Printf("❌ Failed to close MySQL connection: %v", err)
		return err
	}
	log.Println("✅ MySQL connection closed")
	return nil
}
