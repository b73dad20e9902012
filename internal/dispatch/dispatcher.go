package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/apsfactory/aps-core/internal/builder"
	"github.com/apsfactory/aps-core/internal/infrastructure/logging"
	"github.com/apsfactory/aps-core/internal/infrastructure/mqtt"
	"github.com/apsfactory/aps-core/internal/order"
	"github.com/apsfactory/aps-core/internal/sequencer"
)

// Publisher is the outbound seam the dispatcher needs from the broker
// client.
type Publisher interface {
	PublishJSON(topic string, payload any, qos byte) error
	IsConnected() bool
}

// Dispatcher coordinates one outbound command: build the payload,
// draw the sequence number, publish, and record tracking state.
//
// Per-module dispatch is serialized so the orderUpdateId drawn from
// the sequencer hits the wire in issue order. A publish refused
// up-front never advances the sequencer, and a publish that fails
// after drawing its number rolls the counter back under the same
// per-module lock, so the numbers reaching the wire never skip.
type Dispatcher struct {
	builder   *builder.Builder
	sequencer *sequencer.Sequencer
	tracker   *order.Tracker
	publisher Publisher
	topics    mqtt.Topics
	logger    *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires a Dispatcher.
func New(b *builder.Builder, seq *sequencer.Sequencer, tracker *order.Tracker, pub Publisher, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		builder:   b,
		sequencer: seq,
		tracker:   tracker,
		publisher: pub,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// StartOrder publishes an order request to the controller and begins
// tracking under the pending handle. Params beyond orderType, color
// and workpieceID come from template defaults.
func (d *Dispatcher) StartOrder(orderType, color, workpieceID string) (string, error) {
	payload, err := d.builder.Build(mqtt.TopicCCUOrderRequest, map[string]any{
		"orderType":   orderType,
		"type":        color,
		"workpieceId": workpieceID,
	})
	if err != nil {
		return "", err
	}

	handle, err := d.tracker.Start(workpieceID, color, orderType)
	if err != nil {
		return "", err
	}

	if err := d.publisher.PublishJSON(mqtt.TopicCCUOrderRequest, payload, 1); err != nil {
		d.tracker.Cancel(handle, "PUBLISH_FAILED")
		return "", fmt.Errorf("publishing order request: %w", err)
	}
	d.tracker.RecordDispatch(handle, mqtt.TopicCCUOrderRequest, payload)

	if d.logger != nil {
		d.logger.Info("order request dispatched",
			"handle", handle, "order_type", orderType, "color", color)
	}
	return handle, nil
}

// SendCommand dispatches one module command with the next
// orderUpdateId for that module. Returns the sequence number used.
func (d *Dispatcher) SendCommand(ctx context.Context, serial string, cmd builder.Command, workpieceType, workpieceID string) (int64, error) {
	if !builder.ValidCommand(cmd) {
		return 0, fmt.Errorf("unknown module command %q", cmd)
	}

	// Serialize per module so sequence numbers reach the wire in
	// issue order.
	lock := d.moduleLock(serial)
	lock.Lock()
	defer lock.Unlock()

	if !d.publisher.IsConnected() {
		return 0, mqtt.ErrNotConnected
	}

	// Build against the value Next will issue; a build failure must
	// not burn a sequence number.
	topic := d.topics.ModuleOrder(serial)
	payload, err := d.builder.Build(topic, d.builder.ModuleOrderParams(serial, cmd, d.sequencer.Peek(serial), workpieceType, workpieceID))
	if err != nil {
		return 0, err
	}

	seq, err := d.sequencer.Next(ctx, serial)
	if err != nil {
		return 0, err
	}

	if err := d.publisher.PublishJSON(topic, payload, 1); err != nil {
		d.rollback(ctx, serial, seq)
		return 0, fmt.Errorf("publishing command %s to %s: %w", cmd, serial, err)
	}

	if d.logger != nil {
		d.logger.Info("module command dispatched",
			"serial", serial, "command", cmd, "order_update_id", seq)
	}
	return seq, nil
}

// SendTransportCommand dispatches a command to a transport vehicle.
// Transports share the module sequence discipline.
func (d *Dispatcher) SendTransportCommand(ctx context.Context, serial string, params map[string]any) (int64, error) {
	lock := d.moduleLock(serial)
	lock.Lock()
	defer lock.Unlock()

	if !d.publisher.IsConnected() {
		return 0, mqtt.ErrNotConnected
	}

	merged := map[string]any{
		"serialNumber":  serial,
		"orderUpdateId": d.sequencer.Peek(serial),
	}
	for k, v := range params {
		merged[k] = v
	}

	topic := d.topics.TransportOrder(serial)
	payload, err := d.builder.Build(topic, merged)
	if err != nil {
		return 0, err
	}

	seq, err := d.sequencer.Next(ctx, serial)
	if err != nil {
		return 0, err
	}

	if err := d.publisher.PublishJSON(topic, payload, 1); err != nil {
		d.rollback(ctx, serial, seq)
		return 0, fmt.Errorf("publishing transport command to %s: %w", serial, err)
	}
	return seq, nil
}

// rollback hands a drawn sequence number back after a failed publish.
// Runs under the module lock, so no other dispatch raced past it.
func (d *Dispatcher) rollback(ctx context.Context, serial string, seq int64) {
	if err := d.sequencer.Rollback(ctx, serial, seq); err != nil && d.logger != nil {
		d.logger.Error("sequence rollback failed, module sequence will skip",
			"serial", serial, "order_update_id", seq, "error", err)
	}
}

// CancelOrder marks the local record CANCELLED and informs the
// controller out of band. The local transition happens regardless of
// whether the broker accepts the status publish.
//
// An order still waiting for its controller-assigned id is cancelled
// locally only: the controller never learned about it, and the pending
// handle is not a valid order id on the status topic.
func (d *Dispatcher) CancelOrder(orderID, reason string) error {
	if err := d.tracker.Cancel(orderID, reason); err != nil {
		return err
	}
	if order.IsPendingHandle(orderID) {
		return nil
	}

	payload, err := d.builder.Build(mqtt.TopicCCUOrderStatus, map[string]any{
		"orderId": orderID,
		"action":  "CANCEL",
		"reason":  reason,
	})
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("cancel notification not built, local record already cancelled",
				"order_id", orderID, "error", err)
		}
		return nil
	}

	if err := d.publisher.PublishJSON(mqtt.TopicCCUOrderStatus, payload, 1); err != nil {
		if d.logger != nil {
			d.logger.Warn("cancel notification failed, local record already cancelled",
				"order_id", orderID, "error", err)
		}
	}
	return nil
}

func (d *Dispatcher) moduleLock(serial string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	lock, ok := d.locks[serial]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[serial] = lock
	}
	return lock
}
