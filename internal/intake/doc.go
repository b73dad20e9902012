// Package intake routes inbound broker traffic.
//
// Every subscribed message lands here: it is parsed as JSON, checked
// against its template in advisory mode, classified through the
// template registry, and routed. Controller order responses and
// module state payloads drive the order tracker; all other traffic is
// fanned out to subscribers (trace capture, websocket feed, metrics)
// without touching order state.
//
// Nothing on this path returns an error to the broker client. Bad
// payloads are dropped with counters so a misbehaving station cannot
// stall intake.
package intake
