package database

import (
	"context"
	"path/filepath"
	"testing"
)

// openTestDB opens a database in a temporary directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func TestOpen(t *testing.T) {
	db := openTestDB(t)

	if db.Path() == "" {
		t.Error("Path() should not be empty")
	}
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open(context.Background(), Config{Path: path, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()
}

func TestDB_Transactions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES ('a')"); err != nil {
		t.Fatalf("insert in tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantOK      bool
	}{
		{"20260301_120000_initial_schema.up.sql", "20260301_120000", true},
		{"20260301_120000_initial_schema.down.sql", "", false},
		{"notes.txt", "", false},
		{"bad.up.sql", "", false},
	}

	for _, tt := range tests {
		version, ok := parseMigrationFilename(tt.name)
		if version != tt.wantVersion || ok != tt.wantOK {
			t.Errorf("parseMigrationFilename(%q) = (%q, %v), want (%q, %v)",
				tt.name, version, ok, tt.wantVersion, tt.wantOK)
		}
	}
}

func TestExtractMigrationName(t *testing.T) {
	got := extractMigrationName("20260301_120000_order_history.up.sql")
	if got != "order_history" {
		t.Errorf("extractMigrationName() = %q, want order_history", got)
	}
}
