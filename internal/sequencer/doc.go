// Package sequencer issues per-module orderUpdateId values.
//
// Station firmware rejects commands whose orderUpdateId is not exactly
// one past the last accepted value, so each module's sequence must be
// strictly monotonic starting at 1. Sequences are partitioned by
// module serial and protected by per-module locks; commands to
// different modules never serialize against each other. The SQLite
// repository carries sequences across process restarts.
package sequencer
