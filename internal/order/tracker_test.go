package order

import (
	"errors"
	"testing"
	"time"
)

func newTestTracker() (*Tracker, *time.Time) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	t := NewTracker(Config{PendingTimeout: 60 * time.Second}, nil)
	t.now = func() time.Time { return now }
	return t, &now
}

func startActiveOrder(t *testing.T, tr *Tracker, workpieceID, orderID string) {
	t.Helper()

	if _, err := tr.Start(workpieceID, "RED", "PRODUCTION"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr.OnControllerResponse(workpieceID, map[string]any{
		"orderId":     orderID,
		"workpieceId": workpieceID,
	})

	o, err := tr.Get(orderID)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", orderID, err)
	}
	if o.Status != StatusActive {
		t.Fatalf("order status = %s, want ACTIVE", o.Status)
	}
}

func TestTracker_HappyPath(t *testing.T) {
	tr, _ := newTestTracker()

	handle, err := tr.Start("040a8dca341291", "RED", "STORAGE")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if handle != "pending:040a8dca341291" {
		t.Errorf("handle = %q, want pending:040a8dca341291", handle)
	}

	o, err := tr.Get(handle)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if o.Status != StatusPendingID {
		t.Errorf("status = %s, want PENDING_ID", o.Status)
	}

	tr.OnControllerResponse("040a8dca341291", map[string]any{
		"orderId": "a1b2c3d4", "type": "RED", "workpieceId": "040a8dca341291",
	})

	if _, err := tr.Get(handle); !errors.Is(err, ErrOrderNotFound) {
		t.Error("pending handle still resolvable after rekey")
	}
	o, err = tr.Get("a1b2c3d4")
	if err != nil {
		t.Fatalf("Get() after rekey error = %v", err)
	}
	if o.Status != StatusActive {
		t.Errorf("status = %s, want ACTIVE", o.Status)
	}

	tr.OnState("a1b2c3d4", "module/v1/ff/SVR3QA0022/state", map[string]any{
		"orderId": "a1b2c3d4", "state": "FINISHED",
	})

	o, _ = tr.Get("a1b2c3d4")
	if o.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", o.Status)
	}
	if o.EndTime.IsZero() {
		t.Error("EndTime not stamped on completion")
	}
	if len(tr.Active()) != 0 {
		t.Errorf("Active() = %v, want empty", tr.Active())
	}
	if len(tr.History()) != 1 {
		t.Errorf("History() length = %d, want 1", len(tr.History()))
	}
}

func TestTracker_TerminalStatesAreAbsorbing(t *testing.T) {
	tests := []struct {
		name      string
		terminate func(tr *Tracker)
		want      Status
	}{
		{
			name: "completed",
			terminate: func(tr *Tracker) {
				tr.OnState("ord-1", "t", map[string]any{"state": "FINISHED"})
			},
			want: StatusCompleted,
		},
		{
			name: "error",
			terminate: func(tr *Tracker) {
				tr.OnState("ord-1", "t", map[string]any{"state": "ERROR"})
			},
			want: StatusError,
		},
		{
			name: "cancelled",
			terminate: func(tr *Tracker) {
				tr.Cancel("ord-1", "operator")
			},
			want: StatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker()
			startActiveOrder(t, tr, "040a8dca341291", "ord-1")
			tt.terminate(tr)

			// Deliver every event kind to the terminated order
			tr.OnState("ord-1", "t", map[string]any{"state": "FINISHED"})
			tr.OnState("ord-1", "t", map[string]any{"state": "ERROR"})
			tr.OnControllerResponse("040a8dca341291", map[string]any{"orderId": "ord-1"})
			tr.Cancel("ord-1", "again")

			o, _ := tr.Get("ord-1")
			if o.Status != tt.want {
				t.Errorf("status = %s, want %s to be absorbing", o.Status, tt.want)
			}
			if c := tr.Counters(); c.DroppedTerminal == 0 {
				t.Error("dropped events on terminal order not counted")
			}
		})
	}
}

func TestTracker_PendingTimeout(t *testing.T) {
	tr, now := newTestTracker()

	tr.Start("040a8dca341291", "RED", "STORAGE")

	*now = now.Add(59 * time.Second)
	if n := tr.ExpireTimeouts(); n != 0 {
		t.Errorf("ExpireTimeouts() before deadline = %d, want 0", n)
	}

	*now = now.Add(2 * time.Second)
	if n := tr.ExpireTimeouts(); n != 1 {
		t.Errorf("ExpireTimeouts() after deadline = %d, want 1", n)
	}

	o, _ := tr.Get("pending:040a8dca341291")
	if o.Status != StatusError {
		t.Errorf("status = %s, want ERROR", o.Status)
	}
	if o.Reason != ReasonNoControllerAck {
		t.Errorf("reason = %q, want %s", o.Reason, ReasonNoControllerAck)
	}

	// A late controller response is dropped
	tr.OnControllerResponse("040a8dca341291", map[string]any{"orderId": "late-1"})
	if _, err := tr.Get("late-1"); !errors.Is(err, ErrOrderNotFound) {
		t.Error("late controller response activated a timed-out order")
	}
	if c := tr.Counters(); c.DroppedTerminal != 1 {
		t.Errorf("DroppedTerminal = %d, want 1", c.DroppedTerminal)
	}
}

func TestTracker_LifetimeTimeout(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	tr := NewTracker(Config{
		PendingTimeout:  60 * time.Second,
		LifetimeTimeout: 10 * time.Minute,
	}, nil)
	tr.now = func() time.Time { return now }

	startActiveOrder(t, tr, "040a8dca341291", "ord-1")

	now = now.Add(11 * time.Minute)
	if n := tr.ExpireTimeouts(); n != 1 {
		t.Fatalf("ExpireTimeouts() = %d, want 1", n)
	}

	o, _ := tr.Get("ord-1")
	if o.Status != StatusError || o.Reason != ReasonLifetimeExceeded {
		t.Errorf("order = %s/%s, want ERROR/%s", o.Status, o.Reason, ReasonLifetimeExceeded)
	}
}

func TestTracker_UnknownEventsDropped(t *testing.T) {
	tr, _ := newTestTracker()

	tr.OnControllerResponse("unknown-wp", map[string]any{"orderId": "x"})
	tr.OnState("unknown-order", "t", map[string]any{"state": "FINISHED"})

	if c := tr.Counters(); c.DroppedUnknown != 2 {
		t.Errorf("DroppedUnknown = %d, want 2", c.DroppedUnknown)
	}
	if len(tr.All()) != 0 {
		t.Error("dropped events created order records")
	}
}

func TestTracker_ResponseWithoutOrderID(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Start("040a8dca341291", "RED", "STORAGE")

	tr.OnControllerResponse("040a8dca341291", map[string]any{"type": "RED"})

	o, err := tr.Get("pending:040a8dca341291")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if o.Status != StatusPendingID {
		t.Errorf("status = %s, want PENDING_ID after id-less response", o.Status)
	}
	if c := tr.Counters(); c.DroppedUnknown != 1 {
		t.Errorf("DroppedUnknown = %d, want 1", c.DroppedUnknown)
	}
}

func TestTracker_DuplicateOrderIDKeepsFirst(t *testing.T) {
	tr, _ := newTestTracker()

	startActiveOrder(t, tr, "040a8dca341291", "ord-1")
	tr.Start("0499aabbccdd11", "BLUE", "PRODUCTION")

	// Controller hands the same order id to a second workpiece
	tr.OnControllerResponse("0499aabbccdd11", map[string]any{"orderId": "ord-1"})

	o, _ := tr.Get("ord-1")
	if o.WorkpieceID != "040a8dca341291" {
		t.Errorf("order ord-1 belongs to %s, want first registration kept", o.WorkpieceID)
	}
	if _, err := tr.Get("pending:0499aabbccdd11"); err != nil {
		t.Error("second workpiece lost its pending record")
	}
	if c := tr.Counters(); c.DuplicateOrders != 1 {
		t.Errorf("DuplicateOrders = %d, want 1", c.DuplicateOrders)
	}
}

func TestTracker_DuplicatePendingRejected(t *testing.T) {
	tr, _ := newTestTracker()

	if _, err := tr.Start("040a8dca341291", "RED", "STORAGE"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := tr.Start("040a8dca341291", "BLUE", "STORAGE"); !errors.Is(err, ErrDuplicateOrder) {
		t.Errorf("second Start() error = %v, want ErrDuplicateOrder", err)
	}
}

func TestTracker_StateTokenMatching(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    Status
	}{
		{"plain state", map[string]any{"state": "FINISHED"}, StatusCompleted},
		{"suffixed state", map[string]any{"state": "FINISHED_OK"}, StatusCompleted},
		{"lower case", map[string]any{"state": "finished"}, StatusCompleted},
		{"status field", map[string]any{"status": "COMPLETED"}, StatusCompleted},
		{"nested action state", map[string]any{"actionState": map[string]any{"state": "ERROR"}}, StatusError},
		{"fault token", map[string]any{"state": "FAULT_DETECTED"}, StatusError},
		{"no terminal token", map[string]any{"state": "RUNNING"}, StatusActive},
		{"non-string state", map[string]any{"state": 3.0}, StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker()
			startActiveOrder(t, tr, "040a8dca341291", "ord-1")

			tr.OnState("ord-1", "t", tt.payload)
			o, _ := tr.Get("ord-1")
			if o.Status != tt.want {
				t.Errorf("status = %s, want %s", o.Status, tt.want)
			}
		})
	}
}

func TestTracker_ErrorBeatsCompletedInOnePayload(t *testing.T) {
	tr, _ := newTestTracker()
	startActiveOrder(t, tr, "040a8dca341291", "ord-1")

	tr.OnState("ord-1", "t", map[string]any{"state": "FINISHED", "status": "ERROR"})

	o, _ := tr.Get("ord-1")
	if o.Status != StatusError {
		t.Errorf("status = %s, want ERROR to win over FINISHED", o.Status)
	}
}

func TestTracker_QueriesAndStats(t *testing.T) {
	tr, _ := newTestTracker()

	startActiveOrder(t, tr, "040a8dca341291", "ord-1")
	tr.Start("0499aabbccdd11", "BLUE", "STORAGE")
	startActiveOrder(t, tr, "04ffeeddccbb22", "ord-3")
	tr.OnState("ord-3", "t", map[string]any{"state": "FINISHED"})

	if got := len(tr.Active()); got != 2 {
		t.Errorf("Active() length = %d, want 2", got)
	}
	if got := len(tr.History()); got != 1 {
		t.Errorf("History() length = %d, want 1", got)
	}
	if got := len(tr.ByColor("RED")); got != 2 {
		t.Errorf("ByColor(RED) length = %d, want 2", got)
	}
	if got := len(tr.ByStatus(StatusPendingID)); got != 1 {
		t.Errorf("ByStatus(PENDING_ID) length = %d, want 1", got)
	}

	stats := tr.Stats()
	if stats.Total != 3 || stats.Active != 2 || stats.Completed != 1 || stats.Pending != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.ByColor["RED"] != 2 || stats.ByColor["BLUE"] != 1 {
		t.Errorf("Stats().ByColor = %v", stats.ByColor)
	}
}

func TestTracker_ActiveOrderIDsUnique(t *testing.T) {
	tr, _ := newTestTracker()

	startActiveOrder(t, tr, "040a8dca341291", "ord-1")
	startActiveOrder(t, tr, "0499aabbccdd11", "ord-2")

	seen := make(map[string]bool)
	for _, o := range tr.Active() {
		if seen[o.ID] {
			t.Errorf("duplicate id %s in active set", o.ID)
		}
		seen[o.ID] = true
	}
}

func TestTracker_TransitionHook(t *testing.T) {
	tr, _ := newTestTracker()

	var events []Status
	tr.SetOnTransition(func(o Order) { events = append(events, o.Status) })

	startActiveOrder(t, tr, "040a8dca341291", "ord-1")
	tr.OnState("ord-1", "t", map[string]any{"state": "FINISHED"})

	want := []Status{StatusPendingID, StatusActive, StatusCompleted}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestTracker_RecordDispatch(t *testing.T) {
	tr, _ := newTestTracker()
	startActiveOrder(t, tr, "040a8dca341291", "ord-1")

	tr.RecordDispatch("ord-1", "module/v1/ff/SVR4H76449/order", map[string]any{"orderUpdateId": int64(1)})
	tr.OnState("ord-1", "module/v1/ff/SVR4H76449/state", map[string]any{"state": "RUNNING"})

	o, err := tr.Get("ord-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// Activation response, the dispatched command, then the state event.
	if len(o.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(o.History))
	}
	if o.History[0].Direction != DirectionIn {
		t.Errorf("history[0].Direction = %q, want in", o.History[0].Direction)
	}
	if o.History[1].Direction != DirectionOut || o.History[1].Topic != "module/v1/ff/SVR4H76449/order" {
		t.Errorf("history[1] = %+v, want outbound command", o.History[1])
	}
	if o.History[2].Direction != DirectionIn {
		t.Errorf("history[2].Direction = %q, want in", o.History[2].Direction)
	}

	// Terminal orders keep their history frozen.
	if err := tr.Cancel("ord-1", "done"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	tr.RecordDispatch("ord-1", "module/v1/ff/SVR4H76449/order", map[string]any{"orderUpdateId": int64(2)})

	o, _ = tr.Get("ord-1")
	if len(o.History) != 3 {
		t.Errorf("history length after terminal dispatch = %d, want 3", len(o.History))
	}
}

func TestIsPendingHandle(t *testing.T) {
	if !IsPendingHandle(PendingHandle("040a8dca341291")) {
		t.Error("IsPendingHandle(PendingHandle(...)) = false")
	}
	if IsPendingHandle("7b8e4f02-91ce-4d3a-b7aa-30c2ad41f9d0") {
		t.Error("IsPendingHandle(uuid) = true")
	}
}
