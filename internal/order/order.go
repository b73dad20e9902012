package order

import (
	"strings"
	"time"
)

// Status is an order's lifecycle state.
type Status string

// Order lifecycle states. An order starts in PENDING_ID while waiting
// for the controller to assign its authoritative id, runs as ACTIVE,
// and ends in exactly one of the terminal states.
const (
	StatusPendingID Status = "PENDING_ID"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status is absorbing. Orders in a
// terminal state never transition again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Well-known failure reasons recorded on orders.
const (
	ReasonNoControllerAck  = "NO_CONTROLLER_ACK"
	ReasonLifetimeExceeded = "LIFETIME_EXCEEDED"
)

// PendingHandle derives the temporary tracking key used before the
// controller assigns an order id.
func PendingHandle(workpieceID string) string {
	return "pending:" + workpieceID
}

// IsPendingHandle reports whether an id is a pending tracking handle
// rather than a controller-assigned order id.
func IsPendingHandle(id string) bool {
	return strings.HasPrefix(id, "pending:")
}

// Message direction tags.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Message is one payload recorded against an order, inbound module
// traffic and dispatched requests alike.
type Message struct {
	Topic      string         `json:"topic"`
	Direction  string         `json:"direction"`
	Payload    map[string]any `json:"payload"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Order is one tracked workflow from request to terminal state.
// ID holds the pending handle until the controller responds, then the
// authoritative order id.
type Order struct {
	ID          string    `json:"id"`
	WorkpieceID string    `json:"workpiece_id"`
	Color       string    `json:"color"`
	OrderType   string    `json:"order_type"`
	Status      Status    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time,omitzero"`
	UpdatedAt   time.Time `json:"updated_at"`
	History     []Message `json:"history,omitempty"`
}

// clone copies the order so callers never share memory with tracker
// state.
func (o *Order) clone() Order {
	cpy := *o
	if o.History != nil {
		cpy.History = make([]Message, len(o.History))
		copy(cpy.History, o.History)
	}
	return cpy
}

// stateTokens extracts the free-form state strings from an inbound
// payload. Station firmware is inconsistent about where the state
// lives, so both the top-level field and the nested actionState are
// checked.
func stateTokens(payload map[string]any) []string {
	var tokens []string

	for _, key := range []string{"state", "status"} {
		if s, ok := payload[key].(string); ok {
			tokens = append(tokens, s)
		}
	}
	if action, ok := payload["actionState"].(map[string]any); ok {
		if s, ok := action["state"].(string); ok {
			tokens = append(tokens, s)
		}
	}
	return tokens
}

// matchesAny reports whether any extracted token contains one of the
// configured markers. Matching is case-insensitive substring search
// because the firmware emits free-form strings like "FINISHED_OK".
func matchesAny(tokens, markers []string) bool {
	for _, tok := range tokens {
		upper := strings.ToUpper(tok)
		for _, marker := range markers {
			if strings.Contains(upper, strings.ToUpper(marker)) {
				return true
			}
		}
	}
	return false
}
