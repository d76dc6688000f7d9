// Package services defines shared utilities consumed by the pipeline engine
// and the transport layers.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, review stages, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the pipeline error taxonomy (validation, invalid transition,
//     conflict, not found, unavailable).
//   - The HTTPStatus mapping the API server uses to translate engine errors
//     into response codes.
//
// Use these helpers when wiring new engine operations so error handling and
// observability stay uniform across the pipeline.
package services
