package trace

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/apsfactory/aps-core/internal/infrastructure/logging"
)

// Record is one captured broker message.
type Record struct {
	ID         int64     `json:"id"`
	Topic      string    `json:"topic"`
	Payload    []byte    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// Store captures broker traffic into SQLite as a rolling window.
//
// Capture feeds the structural analyzer: a bounded slice of recent
// traffic per topic is enough to infer templates, so inserts prune the
// oldest rows past the per-topic cap. Pruning happens opportunistically
// every pruneInterval inserts to keep the write path cheap.
type Store struct {
	db          *sql.DB
	perTopicCap int
	inserts     atomic.Int64
	logger      *logging.Logger
}

const (
	defaultPerTopicCap = 500
	pruneInterval      = 128
)

// NewStore creates a capture store over an open database. perTopicCap
// bounds retained rows per topic; zero selects the default.
func NewStore(db *sql.DB, perTopicCap int, logger *logging.Logger) *Store {
	if perTopicCap <= 0 {
		perTopicCap = defaultPerTopicCap
	}
	return &Store{db: db, perTopicCap: perTopicCap, logger: logger}
}

// Add captures one message.
func (s *Store) Add(ctx context.Context, topic string, payload []byte, receivedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trace_messages (topic, payload, received_at) VALUES (?, ?, ?)`,
		topic, string(payload), receivedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("capturing message on %s: %w", topic, err)
	}

	if s.inserts.Add(1)%pruneInterval == 0 {
		if err := s.Prune(ctx); err != nil && s.logger != nil {
			s.logger.Warn("trace prune failed", "error", err)
		}
	}
	return nil
}

// Prune trims every topic back to the per-topic cap, oldest rows
// first.
func (s *Store) Prune(ctx context.Context) error {
	query := `
		DELETE FROM trace_messages
		WHERE id NOT IN (
			SELECT id FROM trace_messages AS t
			WHERE (
				SELECT COUNT(*) FROM trace_messages AS newer
				WHERE newer.topic = t.topic AND newer.id >= t.id
			) <= ?
		)`

	res, err := s.db.ExecContext(ctx, query, s.perTopicCap)
	if err != nil {
		return fmt.Errorf("pruning trace window: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 && s.logger != nil {
		s.logger.Debug("trace window pruned", "rows", n)
	}
	return nil
}

// Recent returns the newest captured records, newest first. An empty
// topic selects across all topics.
func (s *Store) Recent(ctx context.Context, topic string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, topic, payload, received_at
		FROM trace_messages`
	args := []any{}
	if topic != "" {
		query += ` WHERE topic = ?`
		args = append(args, topic)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trace window: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// All returns every retained record, oldest first, the shape the
// analyzer consumes.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, payload, received_at
		FROM trace_messages
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying trace window: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Topics lists the distinct captured topics with their retained row
// counts, sorted by topic.
func (s *Store) Topics(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic, COUNT(*)
		FROM trace_messages
		GROUP BY topic`)
	if err != nil {
		return nil, fmt.Errorf("querying trace topics: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var topic string
		var count int
		if err := rows.Scan(&topic, &count); err != nil {
			return nil, fmt.Errorf("scanning trace topic: %w", err)
		}
		out[topic] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trace topics: %w", err)
	}
	return out, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		var payload, receivedAt string
		if err := rows.Scan(&rec.ID, &rec.Topic, &payload, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning trace record: %w", err)
		}
		rec.Payload = []byte(payload)
		ts, err := time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at: %w", err)
		}
		rec.ReceivedAt = ts
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trace records: %w", err)
	}
	return out, nil
}
