package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const createTableStmt = `
CREATE TABLE IF NOT EXISTS audit_log (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	ts DATETIME(6) NOT NULL,
	operation VARCHAR(64) NOT NULL,
	operation_type VARCHAR(32) NOT NULL,
	status VARCHAR(16) NOT NULL,
	reason TEXT,
	duration_us BIGINT NOT NULL,
	metadata TEXT,
	INDEX idx_operation (operation),
	INDEX idx_ts (ts)
)`

// SQLStore persists audit records in MySQL. Each Append is a single
// autocommitted INSERT, which gives the one-transaction-per-record
// atomicity the engines rely on while reads run concurrently.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore connects to MySQL and creates the audit table if needed.
func NewSQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Append(ctx context.Context, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	var meta []byte
	if len(rec.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(rec.Metadata); err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (ts, operation, operation_type, status, reason, duration_us, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Operation, rec.Kind, string(rec.Status), rec.Reason,
		rec.Duration.Microseconds(), meta)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, ts, operation, operation_type, status, reason, duration_us, metadata
		 FROM audit_log`
	args := []any{}
	if f.Operation != "" {
		query += ` WHERE operation = ?`
		args = append(args, f.Operation)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var rec Record
		var reason, meta sql.NullString
		var durationUS int64
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Operation, &rec.Kind,
			&rec.Status, &reason, &durationUS, &meta); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Reason = reason.String
		rec.Duration = time.Duration(durationUS) * time.Microsecond
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
				rec.Metadata = nil
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT operation, COUNT(*), SUM(status = 'failure'), AVG(duration_us)
		 FROM audit_log GROUP BY operation ORDER BY operation`)
	if err != nil {
		return Stats{}, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var op OperationStats
		var avgUS float64
		if err := rows.Scan(&op.Operation, &op.Count, &op.Failures, &avgUS); err != nil {
			return Stats{}, fmt.Errorf("scan audit stats: %w", err)
		}
		op.AvgDuration = time.Duration(avgUS) * time.Microsecond
		stats.Total += op.Count
		stats.Operations = append(stats.Operations, op)
	}
	return stats, rows.Err()
}

func (s *SQLStore) Close() error { return s.db.Close() }
