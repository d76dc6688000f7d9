// Package config loads, normalizes, and validates joddb configuration.
//
// Configuration lives in a TOML file (default ~/.config/joddb/config.toml,
// with a project-local joddb.toml fallback). Load applies defaults first, so
// a missing file yields a runnable configuration. Policy numbers that shape
// pipeline behaviour (tester stage toggle, workday length, alert thresholds,
// review-queue bucket bounds) all live here so the engine and the pure
// computation packages stay free of hard-coded constants.
package config
