package testsupport

import (
	"path/filepath"
	"testing"

	"joddb/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithoutTesterStage disables the tester review stage on the test config.
func WithoutTesterStage() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.TesterStage = false
	}
}

// WithReworkThreshold overrides the rework alert threshold.
func WithReworkThreshold(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.ReworkThreshold = n
	}
}

// WithAPIToken requires bearer authentication on the API server.
func WithAPIToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.APIToken = token
	}
}
