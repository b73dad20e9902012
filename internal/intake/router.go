package intake

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/apsfactory/aps-core/internal/infrastructure/logging"
	"github.com/apsfactory/aps-core/internal/infrastructure/mqtt"
	"github.com/apsfactory/aps-core/internal/order"
	"github.com/apsfactory/aps-core/internal/template"
)

// Event is one parsed inbound message, annotated with its template
// classification. Subscribers receive events after order routing.
type Event struct {
	Topic       string               `json:"topic"`
	Payload     map[string]any       `json:"payload"`
	Raw         []byte               `json:"-"`
	Category    template.Category    `json:"category"`
	SubCategory template.SubCategory `json:"sub_category"`
	Serial      string               `json:"serial,omitempty"`
	ReceivedAt  time.Time            `json:"received_at"`
}

// Counters are diagnostic tallies over inbound traffic.
type Counters struct {
	Received           int64 `json:"received"`
	ParseFailures      int64 `json:"parse_failures"`
	ValidationFailures int64 `json:"validation_failures"`
	UnknownTopics      int64 `json:"unknown_topics"`
	RoutedResponses    int64 `json:"routed_responses"`
	RoutedStates       int64 `json:"routed_states"`
	Forwarded          int64 `json:"forwarded"`
}

// Router classifies inbound broker traffic and feeds the order
// tracker.
//
// Controller responses and module state payloads mutate order state;
// everything else is fanned out to subscribers untouched. Validation
// on this path is advisory: mismatches are logged and counted but the
// message still routes, because captured traffic must never be lost to
// a stale template.
type Router struct {
	registry  *template.Registry
	validator *template.Validator
	tracker   *order.Tracker
	logger    *logging.Logger

	mu          sync.Mutex
	counters    Counters
	subscribers []func(Event)
}

// NewRouter wires the router to its collaborators. The validator may
// be nil to skip advisory validation entirely.
func NewRouter(registry *template.Registry, validator *template.Validator, tracker *order.Tracker, logger *logging.Logger) *Router {
	return &Router{
		registry:  registry,
		validator: validator,
		tracker:   tracker,
		logger:    logger,
	}
}

// Subscribe registers a fan-out callback. Every successfully parsed
// event is delivered, including the ones that also touched order
// state. Callbacks run on the broker client's network goroutine and
// must not block.
func (r *Router) Subscribe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Handle is the broker-facing entry point, matching the client's
// MessageHandler signature. It never returns an error for payload
// problems; inbound traffic failures are counted, not propagated.
func (r *Router) Handle(topic string, raw []byte) error {
	r.count(func(c *Counters) { c.Received++ })

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		r.count(func(c *Counters) { c.ParseFailures++ })
		if r.logger != nil {
			r.logger.Warn("dropping unparseable payload", "topic", topic, "error", err)
		}
		return nil
	}

	r.softValidate(topic, payload)

	event := Event{
		Topic:      topic,
		Payload:    payload,
		Raw:        raw,
		Serial:     mqtt.SerialFromTopic(topic),
		ReceivedAt: time.Now(),
	}
	event.Category, event.SubCategory = r.classify(topic)

	r.route(event)
	r.forward(event)
	return nil
}

// classify resolves the topic's category and sub-category, preferring
// the curated template over prefix heuristics.
func (r *Router) classify(topic string) (template.Category, template.SubCategory) {
	if tmpl, err := r.registry.Get(topic); err == nil {
		return tmpl.Category, tmpl.SubCategory
	}
	r.count(func(c *Counters) { c.UnknownTopics++ })
	return template.ClassifyTopic(topic), template.ClassifySubCategory(topic)
}

// softValidate runs advisory validation. Findings are logged and
// counted; the message keeps routing.
func (r *Router) softValidate(topic string, payload map[string]any) {
	if r.validator == nil {
		return
	}

	res := r.validator.Validate(topic, payload)
	if res.Valid {
		return
	}
	if len(res.Errors) == 1 && res.Errors[0].Code == template.CodeUnknownTopic {
		// Counted separately during classification
		return
	}

	r.count(func(c *Counters) { c.ValidationFailures++ })
	if r.logger != nil {
		r.logger.Warn("inbound payload fails its template",
			"topic", topic, "findings", len(res.Errors), "first", res.Errors[0].Error())
	}
}

// route feeds order-critical events into the tracker. Connection,
// factsheet and UI traffic never touches order state.
func (r *Router) route(event Event) {
	if r.tracker == nil {
		return
	}

	switch {
	case event.Topic == mqtt.TopicCCUOrderResponse:
		workpieceID, _ := event.Payload["workpieceId"].(string)
		if workpieceID == "" {
			if r.logger != nil {
				r.logger.Warn("controller response without workpieceId", "topic", event.Topic)
			}
			return
		}
		r.tracker.OnControllerResponse(workpieceID, event.Payload)
		r.count(func(c *Counters) { c.RoutedResponses++ })

	case event.SubCategory == template.SubCategoryState &&
		(event.Category == template.CategoryModule || event.Category == template.CategoryFTS):
		orderID, _ := event.Payload["orderId"].(string)
		if orderID == "" {
			return
		}
		r.tracker.OnState(orderID, event.Topic, event.Payload)
		r.count(func(c *Counters) { c.RoutedStates++ })
	}
}

// forward fans the event out to subscribers.
func (r *Router) forward(event Event) {
	r.mu.Lock()
	subs := make([]func(Event), len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	r.count(func(c *Counters) { c.Forwarded++ })
	for _, fn := range subs {
		fn(event)
	}
}

// Counters returns the diagnostic tallies.
func (r *Router) Counters() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

func (r *Router) count(apply func(*Counters)) {
	r.mu.Lock()
	apply(&r.counters)
	r.mu.Unlock()
}
