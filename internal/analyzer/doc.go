// Package analyzer infers topic templates from captured traffic.
//
// Given a batch of (topic, payload, timestamp) records it produces one
// suggested template per topic: field types from the most frequent
// observed JSON type, enums for low-cardinality strings, formats for
// timestamps, UUIDs and NFC codes, observed bounds for integers, and
// required flags for fields present in at least 80% of messages. The
// newest payloads are attached as examples, filtered so every kept
// example validates under the inferred structure.
//
// The analyzer is pure over its input: identical batches yield
// identical templates. It never publishes or mutates state on its own;
// suggestions reach the registry only through Apply.
package analyzer
