package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/config"
	"github.com/xenrt/haoracle/internal/fault"
)

const poolYAML = `pool:
  coordinator: bbbb
  nodes:
    - id: aaaa
      name: host1
    - id: bbbb
      name: host0
    - id: cccc
timeouts:
  W: 12
  X: 200
harness:
  observe: ["sh", "-c", "cat state.json"]
  inject: ["./fault.sh", "inject"]
  poll_interval: 250ms
  scale: 0.5
`

func write(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "haoracle.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	return path
}

func TestLoadFrom(t *testing.T) {
	cfg, err := config.LoadFrom(write(t, poolYAML))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	topology, err := cfg.Topology()
	if err != nil {
		t.Fatalf("Topology: %v", err)
	}

	if topology.Len() != 3 || topology.Coordinator() != "bbbb" {
		t.Errorf("unexpected topology: %v coordinator %s", topology.IDs(), topology.Coordinator())
	}

	timeouts, err := cfg.HATimeouts()
	if err != nil {
		t.Fatalf("HATimeouts: %v", err)
	}

	expected := map[fault.TimeoutClass]time.Duration{
		fault.Watchdog:  12 * time.Second,
		fault.Xapi:      200 * time.Second,
		fault.Statefile: fault.DefaultTimeouts()[fault.Statefile],
	}

	for class, d := range expected {
		if timeouts[class] != d {
			t.Errorf("timeout %s: expected %s, got %s", class, d, timeouts[class])
		}
	}

	poll, err := cfg.Harness.Poll()
	if err != nil || poll != 250*time.Millisecond {
		t.Errorf("expected 250ms poll interval, got %s (%v)", poll, err)
	}

	if cfg.Harness.Scale != 0.5 {
		t.Errorf("expected scale 0.5, got %v", cfg.Harness.Scale)
	}
}

func TestLoadFromInvalid(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		contains string
	}{
		{
			name:     "Empty Pool",
			content:  "pool:\n  coordinator: a\n",
			contains: "at least one node",
		},
		{
			name:     "Unknown Coordinator",
			content:  "pool:\n  coordinator: z\n  nodes:\n    - id: a\n",
			contains: "not a pool member",
		},
		{
			name:     "Unknown Timeout Class",
			content:  "pool:\n  coordinator: a\n  nodes:\n    - id: a\ntimeouts:\n  Q: 3\n",
			contains: "unknown timeout class",
		},
		{
			name:     "Bad Poll Interval",
			content:  "pool:\n  coordinator: a\n  nodes:\n    - id: a\nharness:\n  poll_interval: soon\n",
			contains: "invalid poll_interval",
		},
		{
			name:     "Malformed YAML",
			content:  "pool: [",
			contains: "failed to parse",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := config.LoadFrom(write(t, test.content))
			if err == nil || !strings.Contains(err.Error(), test.contains) {
				t.Fatalf("expected error containing %q, got %v", test.contains, err)
			}
		})
	}
}

func TestSaveTo(t *testing.T) {
	topology, err := cluster.Generate(3)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "haoracle.yaml")
	if err := config.SaveTo(config.New(topology), path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	loaded, err := cfg.Topology()
	if err != nil {
		t.Fatalf("Topology: %v", err)
	}

	if loaded.Coordinator() != topology.Coordinator() || loaded.Len() != 3 {
		t.Errorf("saved pool does not match: %v", loaded.IDs())
	}

	timeouts, err := cfg.HATimeouts()
	if err != nil {
		t.Fatalf("HATimeouts: %v", err)
	}

	if timeouts[fault.Watchdog] != fault.DefaultTimeouts()[fault.Watchdog] {
		t.Errorf("expected default watchdog timeout, got %s", timeouts[fault.Watchdog])
	}
}
