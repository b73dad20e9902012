package sequencer

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists sequence counters across restarts.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// LoadAll returns the last issued value per module.
	LoadAll(ctx context.Context) (map[string]int64, error)

	// Save stores a module's last issued value.
	Save(ctx context.Context, module string, value int64) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// LoadAll returns the last issued value per module.
func (r *SQLiteRepository) LoadAll(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT module_id, value FROM sequence_counters`)
	if err != nil {
		return nil, fmt.Errorf("querying sequence counters: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var module string
		var value int64
		if err := rows.Scan(&module, &value); err != nil {
			return nil, fmt.Errorf("scanning sequence counter: %w", err)
		}
		out[module] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sequence counters: %w", err)
	}
	return out, nil
}

// Save stores a module's last issued value.
func (r *SQLiteRepository) Save(ctx context.Context, module string, value int64) error {
	query := `
		INSERT INTO sequence_counters (module_id, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(module_id) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query, module, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving sequence counter for %s: %w", module, err)
	}
	return nil
}
