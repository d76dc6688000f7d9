// Package daemon hosts the long-running joddb process: it owns the store,
// the lifecycle engine, and the HTTP API, and enforces single-instance
// execution through a lock file.
package daemon
