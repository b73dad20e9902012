// Package database provides SQLite connectivity for APS Core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Additive-only schema migrations embedded in the binary
//   - Connection pooling and lifecycle management
//
// SQLite holds the durable core state: flushed order history, per-module
// sequencer counters, and captured message traces for the analyzer.
// Live order state is never replayed from disk on startup.
//
// All queries use parameterised statements; the database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/apscore.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
