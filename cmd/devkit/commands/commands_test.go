package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devkit/devkit/pkg/engine"
)

const testManifest = `
default_cost: 10s
units:
  - name: homebrew
    cost: 60
  - name: git
    version: "2.44"
    depends_on: [homebrew]
  - name: node
    version: "20.11"
    depends_on: [homebrew]
`

// setupConfig writes a config with a file cache under a temporary directory
// and returns its path.
func setupConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	content := `
cache:
  backend: file
  dir: ` + filepath.Join(dir, "cache") + `
  default_ttl: 1h
optimizer:
  policy_dir: ""
logging:
  level: error
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func run(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand("test", "abc123", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfg}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, cfg string, args ...string) string {
	t.Helper()
	out, err := run(t, cfg, args...)
	if err != nil {
		t.Fatalf("devkit %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestCheckAndMark(t *testing.T) {
	cfg := setupConfig(t)

	out := mustRun(t, cfg, "check", "node", "20.11")
	if !strings.Contains(out, "install needed") {
		t.Errorf("expected install needed before mark, got %q", out)
	}

	out = mustRun(t, cfg, "mark", "node", "20.11")
	if !strings.Contains(out, "Recorded success for node@20.11") {
		t.Errorf("unexpected mark output %q", out)
	}

	out = mustRun(t, cfg, "check", "node", "20.11")
	if !strings.Contains(out, "up to date") {
		t.Errorf("expected up to date after mark, got %q", out)
	}

	out = mustRun(t, cfg, "check", "node", "22.0")
	if !strings.Contains(out, "install needed") {
		t.Errorf("expected a different version to need installing, got %q", out)
	}
}

func TestMarkFailed(t *testing.T) {
	cfg := setupConfig(t)

	mustRun(t, cfg, "mark", "rust", "1.80")
	mustRun(t, cfg, "mark", "rust", "1.80", "--failed")

	out := mustRun(t, cfg, "--json", "check", "rust", "1.80")
	var res checkResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if !res.Install {
		t.Error("expected a failed result to require installation")
	}
	if res.Key != "install:rust:1.80" {
		t.Errorf("unexpected key %q", res.Key)
	}
}

func TestMarkZeroTTL(t *testing.T) {
	cfg := setupConfig(t)

	mustRun(t, cfg, "mark", "go", "1.25", "--ttl", "0s")

	out := mustRun(t, cfg, "cache", "sweep")
	if !strings.Contains(out, "Removed 1 expired entries") {
		t.Errorf("unexpected sweep output %q", out)
	}

	out = mustRun(t, cfg, "check", "go", "1.25")
	if !strings.Contains(out, "install needed") {
		t.Errorf("expected a zero TTL result to expire immediately, got %q", out)
	}
}

func TestPlan(t *testing.T) {
	cfg := setupConfig(t)
	manifest := writeFile(t, "units.yaml", testManifest)

	mustRun(t, cfg, "mark", "homebrew", "")

	out := mustRun(t, cfg, "plan", "--manifest", manifest, "--max-parallel", "2")

	for _, want := range []string{
		"Wave 1: homebrew",
		"Wave 2: git, node",
		"skip     homebrew",
		"install  git@2.44",
		"2 of 3 units need installing",
		"Estimated time (all units): 1m10s",
		"Estimated time (needed):    10s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plan output missing %q:\n%s", want, out)
		}
	}
}

func TestPlanJSON(t *testing.T) {
	cfg := setupConfig(t)
	manifest := writeFile(t, "units.yaml", testManifest)
	dot := filepath.Join(t.TempDir(), "plan.dot")

	out := mustRun(t, cfg, "--json", "plan", "-m", manifest, "--max-parallel", "1", "--dot", dot)

	var plan engine.Plan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if len(plan.Waves) != 2 {
		t.Fatalf("expected 2 waves, got %v", plan.Waves)
	}
	if plan.MaxParallel != 1 {
		t.Errorf("expected max parallel 1, got %d", plan.MaxParallel)
	}
	if plan.Estimate.Total.Seconds() != 80 {
		t.Errorf("expected 80s serial estimate, got %s", plan.Estimate.Total)
	}

	data, err := os.ReadFile(dot)
	if err != nil {
		t.Fatalf("expected DOT file: %v", err)
	}
	if !strings.Contains(string(data), "digraph") {
		t.Errorf("unexpected DOT output %q", data)
	}
}

func TestPlanCycle(t *testing.T) {
	cfg := setupConfig(t)
	manifest := writeFile(t, "units.yaml", `
units:
  - name: a
    depends_on: [b]
  - name: b
    depends_on: [a]
`)

	_, err := run(t, cfg, "plan", "--manifest", manifest)
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	if !engine.IsCycle(err) {
		t.Errorf("expected a cycle error, got %v", err)
	}
	if errorCode(err) != engine.ErrCodeCycle {
		t.Errorf("expected code %s, got %s", engine.ErrCodeCycle, errorCode(err))
	}
}

func TestPlanRequiresManifest(t *testing.T) {
	cfg := setupConfig(t)

	if _, err := run(t, cfg, "plan"); err == nil {
		t.Fatal("expected an error without --manifest")
	}
}

func TestCacheCommands(t *testing.T) {
	cfg := setupConfig(t)

	mustRun(t, cfg, "mark", "node", "20.11")
	mustRun(t, cfg, "mark", "git", "2.44")

	out := mustRun(t, cfg, "--json", "cache", "stats")
	var stats struct {
		Entries  int `json:"entries"`
		Reserved int `json:"reserved"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if stats.Entries != 2 {
		t.Errorf("expected 2 entries, got %d", stats.Entries)
	}
	// unit history
	if stats.Reserved != 1 {
		t.Errorf("expected 1 reserved entry, got %d", stats.Reserved)
	}

	out = mustRun(t, cfg, "cache", "get", "install:node:20.11")
	if !strings.Contains(out, `"success": true`) {
		t.Errorf("unexpected entry %q", out)
	}

	mustRun(t, cfg, "cache", "invalidate", "install:node:20.11")
	if _, err := run(t, cfg, "cache", "get", "install:node:20.11"); err == nil {
		t.Error("expected a missing entry after invalidate")
	}

	// git plus the unit history
	out = mustRun(t, cfg, "cache", "clear")
	if !strings.Contains(out, "Cleared 2 cache entries") {
		t.Errorf("unexpected clear output %q", out)
	}

	out = mustRun(t, cfg, "check", "git", "2.44")
	if !strings.Contains(out, "install needed") {
		t.Errorf("expected install needed after clear, got %q", out)
	}
}

func TestSuggest(t *testing.T) {
	cfg := setupConfig(t)

	out := mustRun(t, cfg, "suggest")
	if !strings.Contains(out, "No suggestions") {
		t.Errorf("expected no suggestions on an empty cache, got %q", out)
	}

	mustRun(t, cfg, "mark", "xcode", "15", "--duration", "45s")

	out = mustRun(t, cfg, "suggest", "--report")
	if !strings.Contains(out, "Slow operation detected (install:xcode): avg 45.00s") {
		t.Errorf("expected a slow operation suggestion, got %q", out)
	}
	if !strings.Contains(out, "PERFORMANCE METRICS REPORT") {
		t.Errorf("expected a timing report, got %q", out)
	}
}

func TestVersion(t *testing.T) {
	cfg := setupConfig(t)

	out := mustRun(t, cfg, "version")
	if !strings.Contains(out, "devkit test (commit: abc123, built: today)") {
		t.Errorf("unexpected version output %q", out)
	}

	out = mustRun(t, cfg, "--json", "version")
	var info buildInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if info.Commit != "abc123" {
		t.Errorf("unexpected commit %q", info.Commit)
	}
}

func TestErrorCode(t *testing.T) {
	err := engine.NewPermanentError("bad", nil).WithCode(engine.ErrCodeValidation)
	if got := errorCode(err); got != engine.ErrCodeValidation {
		t.Errorf("expected %s, got %s", engine.ErrCodeValidation, got)
	}
	if got := errorClass(err); got != string(engine.ErrorClassPermanent) {
		t.Errorf("expected permanent class, got %s", got)
	}
	if got := errorCode(os.ErrNotExist); got != "unknown" {
		t.Errorf("expected unknown, got %s", got)
	}
}
