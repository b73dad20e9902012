// Package builder synthesizes outbound MQTT payloads from templates.
//
// A build overlays caller-supplied params on template-derived defaults
// (first enum value, fresh UUID, current timestamp, reference NFC code,
// zero value by type) and validates the result before returning it.
// Payloads that fail their own template never leave the builder, which
// keeps malformed commands off the wire.
package builder
