package attest

import (
	"time"

	"github.com/xenrt/haoracle/internal/fault"
	"github.com/xenrt/haoracle/internal/oracle"
)

// Config holds configuration options for the test framework.
type Config struct {
	// Observe is the command that prints the pool state as JSON.
	Observe []string
	// Inject and Undo are argv prefixes used to apply and reverse a fault on the real pool.
	Inject []string
	Undo   []string

	// DryRun skips every external command; only predictions are made.
	DryRun bool
	// Verbose prints each harness step.
	Verbose bool

	// Timeouts are the pool's HA timeouts by class.
	Timeouts fault.Timeouts
	// Arbitration decides between several components that still reach the statefile.
	Arbitration oracle.Arbitration

	// Seed drives Do.Rand. Runs with the same seed and pool make the same choices.
	Seed uint64
	// Operations is how many steps a randomized scenario takes.
	Operations int
	// Playback replays recorded steps of a randomized scenario instead of drawing them.
	Playback []string

	// Scale multiplies every wall-clock wait derived from the timeouts.
	Scale float64

	// DefaultRetryTimeout for Eventually and Consistently operations.
	DefaultRetryTimeout time.Duration
	// RetryPollInterval for Eventually and Consistently operations.
	RetryPollInterval time.Duration

	// ExecuteTimeout for harness commands.
	ExecuteTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeouts:            fault.DefaultTimeouts(),
		Scale:               1,
		Operations:          20,
		DefaultRetryTimeout: 5 * time.Minute,
		RetryPollInterval:   5 * time.Second,
		ExecuteTimeout:      time.Minute,
	}
}

// scaled converts a modelled duration into the wall-clock time to wait.
func (c *Config) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * c.Scale)
}
