package order

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/apsfactory/aps-core/internal/infrastructure/database"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
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
		CREATE TABLE order_history (
			order_id     TEXT PRIMARY KEY,
			workpiece_id TEXT NOT NULL,
			color        TEXT NOT NULL,
			order_type   TEXT NOT NULL,
			status       TEXT NOT NULL,
			reason       TEXT,
			start_time   TEXT NOT NULL,
			end_time     TEXT,
			updated_at   TEXT NOT NULL,
			messages     TEXT NOT NULL DEFAULT '[]'
		)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func sampleOrder(id string, status Status, updated time.Time) Order {
	o := Order{
		ID:          id,
		WorkpieceID: "040a8dca341291",
		Color:       "RED",
		OrderType:   "PRODUCTION",
		Status:      status,
		StartTime:   updated.Add(-time.Minute),
		UpdatedAt:   updated,
		History: []Message{
			{Topic: "ccu/order/response", Payload: map[string]any{"orderId": id}, ReceivedAt: updated},
		},
	}
	if status.Terminal() {
		o.EndTime = updated
	}
	return o
}

func TestSQLiteRepository_SaveAndGet(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	in := sampleOrder("ord-1", StatusCompleted, now)
	if err := repo.Save(ctx, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "ord-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", got.Status)
	}
	if got.WorkpieceID != in.WorkpieceID {
		t.Errorf("WorkpieceID = %s, want %s", got.WorkpieceID, in.WorkpieceID)
	}
	if !got.EndTime.Equal(now) {
		t.Errorf("EndTime = %v, want %v", got.EndTime, now)
	}
	if len(got.History) != 1 || got.History[0].Topic != "ccu/order/response" {
		t.Errorf("History = %+v", got.History)
	}
}

func TestSQLiteRepository_SaveUpserts(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	if err := repo.Save(ctx, sampleOrder("ord-1", StatusActive, now)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	final := sampleOrder("ord-1", StatusError, now.Add(time.Minute))
	final.Reason = ReasonLifetimeExceeded
	if err := repo.Save(ctx, final); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "ord-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusError || got.Reason != ReasonLifetimeExceeded {
		t.Errorf("order = %s/%s, want ERROR/%s", got.Status, got.Reason, ReasonLifetimeExceeded)
	}
}

func TestSQLiteRepository_GetByID_NotFound(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.GetByID(context.Background(), "nope")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("GetByID() error = %v, want ErrOrderNotFound", err)
	}
}

func TestSQLiteRepository_SaveAllAndListRecent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	batch := []Order{
		sampleOrder("ord-1", StatusCompleted, now),
		sampleOrder("ord-2", StatusError, now.Add(time.Minute)),
		sampleOrder("ord-3", StatusCancelled, now.Add(2*time.Minute)),
	}
	if err := repo.SaveAll(ctx, batch); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}

	recent, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("ListRecent() length = %d, want 2", len(recent))
	}
	if recent[0].ID != "ord-3" || recent[1].ID != "ord-2" {
		t.Errorf("ListRecent() order = %s, %s; want newest first", recent[0].ID, recent[1].ID)
	}
}
