package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists terminated orders. The tracker itself is purely
// in-memory; the repository receives a flush on shutdown and serves
// queries over past runs.
type Repository interface {
	// Save inserts or replaces one order record.
	Save(ctx context.Context, o Order) error

	// SaveAll persists a batch in one transaction.
	SaveAll(ctx context.Context, orders []Order) error

	// GetByID retrieves one persisted order.
	// Returns ErrOrderNotFound if the order does not exist.
	GetByID(ctx context.Context, id string) (*Order, error)

	// ListRecent returns the most recently updated orders, newest
	// first, capped at limit.
	ListRecent(ctx context.Context, limit int) ([]Order, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save inserts or replaces one order record.
func (r *SQLiteRepository) Save(ctx context.Context, o Order) error {
	return r.save(ctx, r.db.ExecContext, o)
}

// SaveAll persists a batch in one transaction.
func (r *SQLiteRepository) SaveAll(ctx context.Context, orders []Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning order flush: %w", err)
	}
	defer tx.Rollback()

	for _, o := range orders {
		if err := r.save(ctx, tx.ExecContext, o); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing order flush: %w", err)
	}
	return nil
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (r *SQLiteRepository) save(ctx context.Context, exec execFunc, o Order) error {
	history, err := json.Marshal(o.History)
	if err != nil {
		return fmt.Errorf("encoding order history for %s: %w", o.ID, err)
	}

	query := `
		INSERT INTO order_history (
			order_id, workpiece_id, color, order_type, status, reason,
			start_time, end_time, updated_at, messages
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			end_time = excluded.end_time,
			updated_at = excluded.updated_at,
			messages = excluded.messages`

	var endTime any
	if !o.EndTime.IsZero() {
		endTime = o.EndTime.UTC().Format(time.RFC3339Nano)
	}

	_, err = exec(ctx, query,
		o.ID, o.WorkpieceID, o.Color, o.OrderType, string(o.Status), o.Reason,
		o.StartTime.UTC().Format(time.RFC3339Nano), endTime,
		o.UpdatedAt.UTC().Format(time.RFC3339Nano), string(history))
	if err != nil {
		return fmt.Errorf("saving order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves one persisted order.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	query := `
		SELECT order_id, workpiece_id, color, order_type, status, reason,
			start_time, end_time, updated_at, messages
		FROM order_history
		WHERE order_id = ?`

	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("querying order by id: %w", err)
	}
	return o, nil
}

// ListRecent returns the most recently updated orders, newest first.
func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT order_id, workpiece_id, color, order_type, status, reason,
			start_time, end_time, updated_at, messages
		FROM order_history
		ORDER BY updated_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	return out, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*Order, error) {
	var o Order
	var status, startTime, updatedAt, history string
	var reason, endTime sql.NullString

	err := row.Scan(&o.ID, &o.WorkpieceID, &o.Color, &o.OrderType, &status,
		&reason, &startTime, &endTime, &updatedAt, &history)
	if err != nil {
		return nil, err
	}

	o.Status = Status(status)
	o.Reason = reason.String

	if o.StartTime, err = time.Parse(time.RFC3339Nano, startTime); err != nil {
		return nil, fmt.Errorf("parsing start_time: %w", err)
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if endTime.Valid && endTime.String != "" {
		if o.EndTime, err = time.Parse(time.RFC3339Nano, endTime.String); err != nil {
			return nil, fmt.Errorf("parsing end_time: %w", err)
		}
	}
	if history != "" {
		if err := json.Unmarshal([]byte(history), &o.History); err != nil {
			return nil, fmt.Errorf("decoding order history: %w", err)
		}
	}
	return &o, nil
}
