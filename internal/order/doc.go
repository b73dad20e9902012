// Package order tracks production and storage orders through their
// lifecycle.
//
// An order begins when a request is published and the controller has
// not yet answered; during that window it is tracked under a pending
// handle derived from the workpiece NFC code. The controller response
// carries the authoritative order id, which rekeys the record and
// activates it. Inbound state payloads append to the order's history
// and move it to a terminal state when a configured completion or
// error marker is observed. Terminal states are absorbing; late
// events are dropped and counted.
//
// Live state is memory-only. Terminated orders are flushed to SQLite
// on shutdown and are not replayed on startup.
package order
