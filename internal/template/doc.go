// Package template holds the topic template registry and the payload
// validator built on it.
//
// A template describes one MQTT topic's payload: field types, required
// flags, enums, string formats and numeric ranges. Templates come from
// a curated YAML source document and may be refined at runtime by the
// structural analyzer. The registry keeps every loaded generation as
// an immutable snapshot behind an atomic pointer, so lookups on the
// hot intake path never take a lock.
//
// Topic resolution prefers exact matches over wildcard patterns, and
// among wildcard patterns the one with the most fixed segments wins.
// Two wildcard patterns of equal precedence that can match the same
// topic are rejected when the source document loads.
//
// Validation collects every finding in one pass so a single round trip
// reports everything wrong with a payload. Fields present in a payload
// but absent from the template are tolerated by default; strict mode
// rejects them.
package template
