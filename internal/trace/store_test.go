package trace

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/apsfactory/aps-core/internal/infrastructure/database"
)

func openTestStore(t *testing.T, perTopicCap int) *Store {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(ctx, `
		CREATE TABLE trace_messages (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			topic       TEXT NOT NULL,
			payload     TEXT NOT NULL,
			received_at TEXT NOT NULL
		)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}

	return NewStore(db.DB, perTopicCap, nil)
}

func TestStore_AddAndRecent(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		payload := fmt.Sprintf(`{"seq":%d}`, i)
		if err := s.Add(ctx, "ccu/order/response", []byte(payload), now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if err := s.Add(ctx, "txt/j1/o1", []byte(`{}`), now); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	recent, err := s.Recent(ctx, "ccu/order/response", 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent() length = %d, want 2", len(recent))
	}
	if string(recent[0].Payload) != `{"seq":2}` {
		t.Errorf("Recent()[0] = %s, want newest", recent[0].Payload)
	}

	all, err := s.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent(all) error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("Recent(all) length = %d, want 4", len(all))
	}
}

func TestStore_PruneKeepsNewestPerTopic(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		s.Add(ctx, "module/v1/ff/SVR3QA0022/state", []byte(fmt.Sprintf(`{"seq":%d}`, i)), now)
	}
	s.Add(ctx, "txt/j1/o1", []byte(`{}`), now)

	if err := s.Prune(ctx); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	topics, err := s.Topics(ctx)
	if err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	if topics["module/v1/ff/SVR3QA0022/state"] != 3 {
		t.Errorf("retained = %d, want 3", topics["module/v1/ff/SVR3QA0022/state"])
	}
	// The quiet topic is untouched
	if topics["txt/j1/o1"] != 1 {
		t.Errorf("quiet topic retained = %d, want 1", topics["txt/j1/o1"])
	}

	recent, _ := s.Recent(ctx, "module/v1/ff/SVR3QA0022/state", 10)
	if string(recent[0].Payload) != `{"seq":9}` {
		t.Errorf("newest after prune = %s, want seq 9", recent[0].Payload)
	}
}

func TestStore_All_OldestFirst(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	s.Add(ctx, "a/b", []byte(`{"seq":0}`), now)
	s.Add(ctx, "a/b", []byte(`{"seq":1}`), now.Add(time.Second))

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("All() length = %d, want 2", len(all))
	}
	if string(all[0].Payload) != `{"seq":0}` {
		t.Errorf("All()[0] = %s, want oldest first", all[0].Payload)
	}
	if !all[1].ReceivedAt.Equal(now.Add(time.Second)) {
		t.Errorf("ReceivedAt = %v", all[1].ReceivedAt)
	}
}
