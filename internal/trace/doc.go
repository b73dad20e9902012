// Package trace captures inbound broker traffic into a rolling SQLite
// window.
//
// The window feeds the structural analyzer and the operator-facing
// trace queries. Retention is bounded per topic so a chatty state
// topic cannot evict the occasional factsheet.
package trace
