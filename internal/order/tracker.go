package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apsfactory/aps-core/internal/infrastructure/logging"
)

// Counters are diagnostic tallies of events the tracker dropped rather
// than applied. They only ever grow.
type Counters struct {
	DroppedTerminal int64 `json:"dropped_terminal"`
	DroppedUnknown  int64 `json:"dropped_unknown"`
	DuplicateOrders int64 `json:"duplicate_orders"`
	TimedOutPending int64 `json:"timed_out_pending"`
	TimedOutActive  int64 `json:"timed_out_active"`
}

// Stats summarizes the tracked order population.
type Stats struct {
	Active    int            `json:"active"`
	Pending   int            `json:"pending"`
	Completed int            `json:"completed"`
	Error     int            `json:"error"`
	Cancelled int            `json:"cancelled"`
	Total     int            `json:"total"`
	ByColor   map[string]int `json:"by_color"`
}

// Config carries the tracker's tunables.
type Config struct {
	// PendingTimeout bounds how long an order may wait for the
	// controller's order id before it is failed.
	PendingTimeout time.Duration

	// LifetimeTimeout bounds an order's total runtime. Zero disables
	// the check.
	LifetimeTimeout time.Duration

	// CompletedStates and ErrorStates are the free-form state markers
	// recognized in inbound payloads.
	CompletedStates []string
	ErrorStates     []string
}

// Tracker follows every order from request to terminal state.
//
// Records are keyed by the pending handle until the controller assigns
// the authoritative order id, then rekeyed. Terminal states are
// absorbing: any event delivered to a terminated order is dropped and
// counted, never applied. All mutations run under one coarse lock;
// the event rate is a handful per second, well below contention.
type Tracker struct {
	mu       sync.Mutex
	orders   map[string]*Order
	counters Counters

	cfg    Config
	logger *logging.Logger
	now    func() time.Time

	onTransition func(Order)
}

// NewTracker creates an empty tracker.
func NewTracker(cfg Config, logger *logging.Logger) *Tracker {
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = 60 * time.Second
	}
	if len(cfg.CompletedStates) == 0 {
		cfg.CompletedStates = []string{"FINISHED", "COMPLETED"}
	}
	if len(cfg.ErrorStates) == 0 {
		cfg.ErrorStates = []string{"ERROR", "FAULT"}
	}
	return &Tracker{
		orders: make(map[string]*Order),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetOnTransition registers a hook invoked with a copy of each order
// after it changes status. Called outside the tracker lock; the hook
// may call back into the tracker.
func (t *Tracker) SetOnTransition(fn func(Order)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTransition = fn
}

// Start registers a new order awaiting its controller-assigned id and
// returns the pending handle it is tracked under. A non-terminal order
// already pending for the same workpiece is rejected.
func (t *Tracker) Start(workpieceID, color, orderType string) (string, error) {
	handle := PendingHandle(workpieceID)
	now := t.now()

	t.mu.Lock()
	if existing, ok := t.orders[handle]; ok && !existing.Status.Terminal() {
		t.mu.Unlock()
		return "", fmt.Errorf("%w: %s still %s", ErrDuplicateOrder, handle, existing.Status)
	}

	rec := &Order{
		ID:          handle,
		WorkpieceID: workpieceID,
		Color:       color,
		OrderType:   orderType,
		Status:      StatusPendingID,
		StartTime:   now,
		UpdatedAt:   now,
	}
	t.orders[handle] = rec
	notify, hook := rec.clone(), t.onTransition
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Info("order started", "handle", handle, "color", color, "order_type", orderType)
	}
	fire(hook, notify)
	return handle, nil
}

// OnControllerResponse applies the controller's answer to an order
// request: the authoritative order id is extracted, the record is
// rekeyed from its pending handle and the order becomes ACTIVE.
//
// A response for an unknown or already-terminated workpiece is dropped
// with a counter increment, not an error; inbound traffic must never
// fail the intake path.
func (t *Tracker) OnControllerResponse(workpieceID string, payload map[string]any) {
	orderID, _ := payload["orderId"].(string)
	handle := PendingHandle(workpieceID)
	now := t.now()

	t.mu.Lock()
	rec, ok := t.orders[handle]
	switch {
	case !ok:
		t.counters.DroppedUnknown++
		t.mu.Unlock()
		if t.logger != nil {
			t.logger.Warn("controller response for unknown workpiece", "workpiece_id", workpieceID)
		}
		return
	case rec.Status.Terminal():
		t.counters.DroppedTerminal++
		t.mu.Unlock()
		return
	case orderID == "":
		t.counters.DroppedUnknown++
		t.mu.Unlock()
		if t.logger != nil {
			t.logger.Warn("controller response without orderId", "workpiece_id", workpieceID)
		}
		return
	}

	if other, exists := t.orders[orderID]; exists && !other.Status.Terminal() {
		// First registration wins
		t.counters.DuplicateOrders++
		t.mu.Unlock()
		if t.logger != nil {
			t.logger.Error("controller reused an active order id", "order_id", orderID)
		}
		return
	}

	delete(t.orders, handle)
	rec.ID = orderID
	rec.Status = StatusActive
	rec.UpdatedAt = now
	rec.History = append(rec.History, Message{Topic: "ccu/order/response", Direction: DirectionIn, Payload: payload, ReceivedAt: now})
	t.orders[orderID] = rec
	notify, hook := rec.clone(), t.onTransition
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Info("order activated", "order_id", orderID, "workpiece_id", workpieceID)
	}
	fire(hook, notify)
}

// OnState appends an inbound state payload to an order's history and
// applies terminal markers. Unknown order ids and terminated orders
// drop the event with a counter increment.
func (t *Tracker) OnState(orderID, topic string, payload map[string]any) {
	now := t.now()

	t.mu.Lock()
	rec, ok := t.orders[orderID]
	if !ok {
		t.counters.DroppedUnknown++
		t.mu.Unlock()
		return
	}
	if rec.Status.Terminal() {
		t.counters.DroppedTerminal++
		t.mu.Unlock()
		return
	}

	rec.History = append(rec.History, Message{Topic: topic, Direction: DirectionIn, Payload: payload, ReceivedAt: now})
	rec.UpdatedAt = now

	tokens := stateTokens(payload)
	transitioned := false
	switch {
	case matchesAny(tokens, t.cfg.ErrorStates):
		rec.Status = StatusError
		rec.Reason = "MODULE_REPORTED_ERROR"
		rec.EndTime = now
		transitioned = true
	case matchesAny(tokens, t.cfg.CompletedStates):
		rec.Status = StatusCompleted
		rec.EndTime = now
		transitioned = true
	}
	notify, hook := rec.clone(), t.onTransition
	t.mu.Unlock()

	if transitioned {
		if t.logger != nil {
			t.logger.Info("order reached terminal state", "order_id", orderID, "status", notify.Status)
		}
		fire(hook, notify)
	}
}

// RecordDispatch appends an outbound payload to an order's history.
// Unknown ids and terminated orders drop the entry silently; the
// dispatch itself already succeeded.
func (t *Tracker) RecordDispatch(id, topic string, payload map[string]any) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.orders[id]
	if !ok || rec.Status.Terminal() {
		return
	}
	rec.History = append(rec.History, Message{Topic: topic, Direction: DirectionOut, Payload: payload, ReceivedAt: now})
	rec.UpdatedAt = now
}

// Cancel transitions a pending or active order to CANCELLED. Cancelling
// an already-terminated order returns ErrTerminalState; the record
// keeps its original outcome.
func (t *Tracker) Cancel(orderID, reason string) error {
	now := t.now()

	t.mu.Lock()
	rec, ok := t.orders[orderID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if rec.Status.Terminal() {
		t.counters.DroppedTerminal++
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, orderID, rec.Status)
	}

	rec.Status = StatusCancelled
	rec.Reason = reason
	rec.EndTime = now
	rec.UpdatedAt = now
	notify, hook := rec.clone(), t.onTransition
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Info("order cancelled", "order_id", orderID, "reason", reason)
	}
	fire(hook, notify)
	return nil
}

// ExpireTimeouts fails orders that outlived their deadlines: pendings
// that never got a controller ack, and actives past the lifetime bound
// when one is configured. Returns how many orders were failed.
func (t *Tracker) ExpireTimeouts() int {
	now := t.now()

	t.mu.Lock()
	var expired []Order
	for _, rec := range t.orders {
		switch {
		case rec.Status == StatusPendingID && now.Sub(rec.StartTime) >= t.cfg.PendingTimeout:
			rec.Status = StatusError
			rec.Reason = ReasonNoControllerAck
			rec.EndTime = now
			rec.UpdatedAt = now
			t.counters.TimedOutPending++
			expired = append(expired, rec.clone())
		case rec.Status == StatusActive && t.cfg.LifetimeTimeout > 0 && now.Sub(rec.StartTime) >= t.cfg.LifetimeTimeout:
			rec.Status = StatusError
			rec.Reason = ReasonLifetimeExceeded
			rec.EndTime = now
			rec.UpdatedAt = now
			t.counters.TimedOutActive++
			expired = append(expired, rec.clone())
		}
	}
	hook := t.onTransition
	t.mu.Unlock()

	for _, o := range expired {
		if t.logger != nil {
			t.logger.Warn("order timed out", "order_id", o.ID, "reason", o.Reason)
		}
		fire(hook, o)
	}
	return len(expired)
}

// Run drives timeout expiry until the context ends. Intended to run as
// its own goroutine from startup.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.ExpireTimeouts()
		}
	}
}

// Get returns a copy of one order by id or pending handle.
func (t *Tracker) Get(id string) (Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return rec.clone(), nil
}

// Active returns all non-terminal orders, newest first.
func (t *Tracker) Active() []Order {
	return t.collect(func(o *Order) bool { return !o.Status.Terminal() })
}

// History returns all terminated orders, newest first.
func (t *Tracker) History() []Order {
	return t.collect(func(o *Order) bool { return o.Status.Terminal() })
}

// ByColor returns all orders for one workpiece color, newest first.
func (t *Tracker) ByColor(color string) []Order {
	return t.collect(func(o *Order) bool { return o.Color == color })
}

// ByStatus returns all orders in one status, newest first.
func (t *Tracker) ByStatus(status Status) []Order {
	return t.collect(func(o *Order) bool { return o.Status == status })
}

// Stats summarizes the current order population.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Stats{ByColor: make(map[string]int)}
	for _, rec := range t.orders {
		stats.Total++
		stats.ByColor[rec.Color]++
		switch rec.Status {
		case StatusPendingID:
			stats.Pending++
			stats.Active++
		case StatusActive:
			stats.Active++
		case StatusCompleted:
			stats.Completed++
		case StatusError:
			stats.Error++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// Counters returns the diagnostic drop tallies.
func (t *Tracker) Counters() Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

// All returns a copy of every tracked order, newest first. Used by the
// shutdown flush.
func (t *Tracker) All() []Order {
	return t.collect(func(*Order) bool { return true })
}

func (t *Tracker) collect(keep func(*Order) bool) []Order {
	t.mu.Lock()
	out := make([]Order, 0, len(t.orders))
	for _, rec := range t.orders {
		if keep(rec) {
			out = append(out, rec.clone())
		}
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func fire(hook func(Order), o Order) {
	if hook != nil {
		hook(o)
	}
}
