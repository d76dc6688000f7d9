package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"joddb/internal/logging"
	"joddb/internal/services"
)

func TestNewConsoleWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("task claimed", logging.String(logging.FieldActor, "alice"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "task claimed") {
		t.Fatalf("expected message in log output, got %q", content)
	}
	if !strings.Contains(string(content), "actor=alice") {
		t.Fatalf("expected actor attribute in log output, got %q", content)
	}
}

func TestNewJSONFormatsLevelAndTimestamp(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "daemon.log")

	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "warn",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("filtered out")
	logger.Warn("stale review record", logging.Bool(logging.FieldIntegrity, true))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if strings.Contains(text, "filtered out") {
		t.Fatalf("expected info record to be filtered at warn level, got %q", text)
	}
	if !strings.Contains(text, `"level":"warn"`) {
		t.Fatalf("expected lowercase level key, got %q", text)
	}
	if !strings.Contains(text, `"ts":`) {
		t.Fatalf("expected ts key in JSON output, got %q", text)
	}
	if !strings.Contains(text, `"integrity":true`) {
		t.Fatalf("expected integrity flag in JSON output, got %q", text)
	}
}

func TestNewRejectsUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestNewCreatesLogDirectory(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "joddbd.log")

	logger, err := logging.New(logging.Options{
		Format:      "json",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("daemon started")

	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}

func TestWithContextAddsStandardFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "context.log")

	base, err := logging.New(logging.Options{
		Format:      "json",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithTaskID(context.Background(), 42)
	ctx = services.WithStage(ctx, "qa")
	ctx = services.WithActor(ctx, "bob")

	logging.WithContext(ctx, base).Info("decision recorded")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, want := range []string{`"task_id":42`, `"stage":"qa"`, `"actor":"bob"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %s in log output, got %q", want, text)
		}
	}
}

func TestNewComponentLoggerFallsBackToNop(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "engine")
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Info("no output expected")
}
