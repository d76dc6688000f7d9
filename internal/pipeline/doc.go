// Package pipeline persists manufacturing work orders in SQLite and owns the
// task lifecycle vocabulary.
//
// The Store manages database connections, schema initialization, stats
// queries, and the compare-and-swap status transitions that back the engine's
// guard checks. Tasks capture device serials, timing, technician assignment,
// and pass numbers so the review ledger can scope decisions to one attempt
// through the QA pipeline.
//
// Treat this package as the single source of truth for lifecycle semantics;
// when you add new statuses or ledger fields, update schema.sql, bump
// schemaVersion, and extend the transition table in transitions.go. All legal
// state changes go through Next; call sites never compare status strings.
package pipeline
