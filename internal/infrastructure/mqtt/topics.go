package mqtt

import (
	"fmt"
	"strings"
)

// Topic constants for the factory's fixed (non-parameterised) topics.
// Patterns are bit-exact with the traffic captured from the installation;
// do not "normalise" them.
const (
	// TopicCCUOrderRequest is where order requests are sent to the controller.
	TopicCCUOrderRequest = "ccu/order/request"

	// TopicCCUOrderResponse is where the controller echoes authoritative order IDs.
	TopicCCUOrderResponse = "ccu/order/response"

	// TopicCCUOrderStatus carries controller-side order status updates.
	TopicCCUOrderStatus = "ccu/order/status"

	// TopicSystemStatus is the core's own online/offline status topic (LWT).
	TopicSystemStatus = "aps/core/status"
)

// Topics provides builders for the factory's parameterised MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	orderTopic := topics.ModuleOrder("SVR4H76449")
//	// Returns: "module/v1/ff/SVR4H76449/order"
type Topics struct{}

// ModuleOrder returns the command topic for a processing module.
//
// Example: module/v1/ff/SVR4H76449/order
func (Topics) ModuleOrder(serial string) string {
	return fmt.Sprintf("module/v1/ff/%s/order", serial)
}

// ModuleState returns the state topic for a processing module.
//
// Example: module/v1/ff/SVR4H76449/state
func (Topics) ModuleState(serial string) string {
	return fmt.Sprintf("module/v1/ff/%s/state", serial)
}

// ModuleConnection returns the connection topic for a processing module.
//
// Example: module/v1/ff/SVR4H76449/connection
func (Topics) ModuleConnection(serial string) string {
	return fmt.Sprintf("module/v1/ff/%s/connection", serial)
}

// ModuleFactsheet returns the factsheet topic for a processing module.
//
// Example: module/v1/ff/SVR4H76449/factsheet
func (Topics) ModuleFactsheet(serial string) string {
	return fmt.Sprintf("module/v1/ff/%s/factsheet", serial)
}

// ModuleInstantAction returns the instant-action topic for a processing module.
//
// Example: module/v1/ff/SVR4H76449/instantAction
func (Topics) ModuleInstantAction(serial string) string {
	return fmt.Sprintf("module/v1/ff/%s/instantAction", serial)
}

// TransportOrder returns the command topic for the transport vehicle (FTS).
//
// Example: fts/v1/ff/5iO4/order
func (Topics) TransportOrder(serial string) string {
	return fmt.Sprintf("fts/v1/ff/%s/order", serial)
}

// TransportState returns the state topic for the transport vehicle.
//
// Example: fts/v1/ff/5iO4/state
func (Topics) TransportState(serial string) string {
	return fmt.Sprintf("fts/v1/ff/%s/state", serial)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllModuleStates returns a pattern matching all module state updates.
//
// Pattern: module/v1/ff/+/state
func (Topics) AllModuleStates() string {
	return "module/v1/ff/+/state"
}

// AllModuleConnections returns a pattern matching all module connection updates.
//
// Pattern: module/v1/ff/+/connection
func (Topics) AllModuleConnections() string {
	return "module/v1/ff/+/connection"
}

// AllModuleFactsheets returns a pattern matching all module factsheets.
//
// Pattern: module/v1/ff/+/factsheet
func (Topics) AllModuleFactsheets() string {
	return "module/v1/ff/+/factsheet"
}

// AllTransportStates returns a pattern matching all transport vehicle states.
//
// Pattern: fts/v1/ff/+/state
func (Topics) AllTransportStates() string {
	return "fts/v1/ff/+/state"
}

// AllCCUOrders returns a pattern matching all controller order topics.
//
// Pattern: ccu/order/#
func (Topics) AllCCUOrders() string {
	return "ccu/order/#"
}

// AllTXT returns a pattern matching all TXT controller topics.
//
// Pattern: txt/#
func (Topics) AllTXT() string {
	return "txt/#"
}

// SerialFromTopic extracts the module serial embedded in a module or
// transport topic. Returns "" when the topic does not carry a serial.
//
// Example: "module/v1/ff/SVR4H76449/state" -> "SVR4H76449"
func SerialFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 {
		return ""
	}
	if (parts[0] != "module" && parts[0] != "fts") || parts[1] != "v1" || parts[2] != "ff" {
		return ""
	}
	return parts[3]
}
