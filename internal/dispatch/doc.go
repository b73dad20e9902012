// Package dispatch coordinates outbound factory commands.
//
// A dispatch is build, sequence, publish, track: the payload comes
// from the template builder, the orderUpdateId from the per-module
// sequencer, the wire from the broker client at QoS 1, and the order
// lifecycle from the tracker. Dispatch is serialized per module so
// sequence numbers reach the wire in issue order; commands to
// different modules proceed concurrently.
package dispatch
