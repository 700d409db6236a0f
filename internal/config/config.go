package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/fault"
)

// DefaultPath is where the pool description is looked up.
const DefaultPath = "haoracle.yaml"

type Node struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

type Pool struct {
	Coordinator string `yaml:"coordinator"`
	Nodes       []Node `yaml:"nodes"`
}

type Harness struct {
	// Observe prints the pool state as JSON: {"liveset": [...], "master": "..."}.
	Observe []string `yaml:"observe,omitempty"`
	// Inject and Undo are argv prefixes; the fault description is appended.
	Inject []string `yaml:"inject,omitempty"`
	Undo   []string `yaml:"undo,omitempty"`

	PollInterval string  `yaml:"poll_interval,omitempty"`
	Scale        float64 `yaml:"scale,omitempty"`
}

type Config struct {
	Pool     Pool           `yaml:"pool"`
	Timeouts map[string]int `yaml:"timeouts,omitempty"`
	Harness  Harness        `yaml:"harness"`
}

// New returns a config describing t with default timeouts.
func New(t *cluster.Topology) *Config {
	cfg := &Config{
		Pool:     Pool{Coordinator: string(t.Coordinator())},
		Timeouts: make(map[string]int),
		Harness:  Harness{PollInterval: "5s", Scale: 1},
	}

	for _, node := range t.Nodes() {
		cfg.Pool.Nodes = append(cfg.Pool.Nodes, Node{ID: string(node.ID), Name: node.Name})
	}

	for class, d := range fault.DefaultTimeouts() {
		cfg.Timeouts[string(class)] = int(d / time.Second)
	}

	return cfg
}

func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s not found\nRun 'haoracle init' to describe your pool", path)
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Harness.Scale == 0 {
		cfg.Harness.Scale = 1
	}

	// Validation
	if len(cfg.Pool.Nodes) == 0 {
		return nil, fmt.Errorf("pool must list at least one node")
	}

	if cfg.Harness.Scale < 0 {
		return nil, fmt.Errorf("harness scale cannot be negative")
	}

	if _, err := cfg.Topology(); err != nil {
		return nil, err
	}

	if _, err := cfg.HATimeouts(); err != nil {
		return nil, err
	}

	if _, err := cfg.Harness.Poll(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func SaveTo(cfg *Config, path string) error {
	bytes, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, bytes, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Topology builds the pool described by the config.
func (c *Config) Topology() (*cluster.Topology, error) {
	nodes := make([]cluster.Node, len(c.Pool.Nodes))
	for i, n := range c.Pool.Nodes {
		nodes[i] = cluster.Node{ID: cluster.NodeID(n.ID), Name: n.Name}
	}

	return cluster.New(nodes, cluster.NodeID(c.Pool.Coordinator))
}

// HATimeouts returns the product defaults overridden by the configured seconds.
func (c *Config) HATimeouts() (fault.Timeouts, error) {
	overrides := make(fault.Timeouts, len(c.Timeouts))
	for name, seconds := range c.Timeouts {
		class, err := fault.ParseTimeoutClass(name)
		if err != nil {
			return nil, err
		}

		if seconds <= 0 {
			return nil, fmt.Errorf("timeout %s must be positive, got %d", name, seconds)
		}

		overrides[class] = time.Duration(seconds) * time.Second
	}

	return fault.DefaultTimeouts().Merge(overrides), nil
}

// Poll returns the observation poll interval.
func (h Harness) Poll() (time.Duration, error) {
	if h.PollInterval == "" {
		return 5 * time.Second, nil
	}

	d, err := time.ParseDuration(h.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval %q: %w", h.PollInterval, err)
	}

	return d, nil
}
