// Package storage is the persistence layer behind preferences, tracked
// food items, check-run history and notifier dedup state.
//
// Backends:
//   - memory: process-local maps (tests, throwaway runs)
//   - file: one JSON snapshot rewritten atomically plus a JSONL run log
//   - sqlite: a single database file (modernc.org/sqlite, no cgo)
package storage
