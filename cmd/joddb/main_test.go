package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	cfgPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"
`, filepath.Join(base, "data"), filepath.Join(base, "logs"))
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func runCommand(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("joddb %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestSeedAndLifecycleCommands(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out := runCommand(t, cfgPath, "seed", "--devices", "2", "--code", "JO-CLI")
	if !strings.Contains(out, "Seeded job order JO-CLI") {
		t.Fatalf("seed output: %s", out)
	}

	out = runCommand(t, cfgPath, "tasks", "list")
	if !strings.Contains(out, "Available") {
		t.Fatalf("tasks list output missing seeded tasks: %s", out)
	}

	out = runCommand(t, cfgPath, "tasks", "start", "1", "--technician", "alice")
	if !strings.Contains(out, "claimed by alice") {
		t.Fatalf("start output: %s", out)
	}

	out = runCommand(t, cfgPath, "tasks", "end", "1", "--technician", "alice")
	if !strings.Contains(out, "Pending QA") {
		t.Fatalf("end output: %s", out)
	}

	out = runCommand(t, cfgPath, "review", "queue", "--role", "qa")
	if !strings.Contains(out, "SN-") {
		t.Fatalf("review queue output: %s", out)
	}

	out = runCommand(t, cfgPath, "review", "decide", "1", "rejected",
		"--stage", "qa", "--actor", "quinn", "--comments", "bad solder")
	if !strings.Contains(out, "Rework Required") {
		t.Fatalf("decide output: %s", out)
	}

	out = runCommand(t, cfgPath, "tasks", "resume", "1")
	if !strings.Contains(out, "pass 2") {
		t.Fatalf("resume output: %s", out)
	}

	out = runCommand(t, cfgPath, "metrics", "job-order", "1")
	if !strings.Contains(out, "Devices") {
		t.Fatalf("metrics output: %s", out)
	}

	out = runCommand(t, cfgPath, "metrics", "dashboard")
	if !strings.Contains(out, "Available") {
		t.Fatalf("dashboard output: %s", out)
	}
}

func TestConfigInitCommand(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "joddb.toml")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v\n%s", err, out.String())
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	if !strings.Contains(string(data), "[pipeline]") {
		t.Fatalf("sample config missing pipeline section:\n%s", data)
	}

	// A second init without --overwrite refuses to clobber the file.
	cmd = newRootCommand()
	cmd.SetArgs([]string{"config", "init", "--path", target})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestHumanizeLabel(t *testing.T) {
	cases := map[string]string{
		"pending_qa":      "Pending QA",
		"rework_required": "Rework Required",
		"qa_approved":     "QA Approved",
		"":                "-",
	}
	for input, want := range cases {
		if got := humanizeLabel(input); got != want {
			t.Errorf("humanizeLabel(%q) = %q, want %q", input, got, want)
		}
	}
}
