package fault

import (
	"fmt"
	"slices"
	"time"
)

// TimeoutClass names one of the pool's HA timeouts.
type TimeoutClass string

const (
	// Watchdog is the general HA watchdog timeout.
	Watchdog TimeoutClass = "W"
	// Statefile is the statefile access timeout.
	Statefile TimeoutClass = "T"
	// StatefileRead is the first-stage statefile timeout.
	StatefileRead TimeoutClass = "T1"
	// StatefileWrite is the second-stage statefile timeout.
	StatefileWrite TimeoutClass = "T2"
	// Xapi is the management daemon health-check timeout.
	Xapi TimeoutClass = "X"
)

// TemporaryOutage is how long a temporary fault is left in place before it is undone.
const TemporaryOutage = 10 * time.Second

// Timeouts maps timeout classes to their base durations.
type Timeouts map[TimeoutClass]time.Duration

// DefaultTimeouts returns the product defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Watchdog:       30 * time.Second,
		Statefile:      60 * time.Second,
		StatefileRead:  45 * time.Second,
		StatefileWrite: 75 * time.Second,
		Xapi:           120 * time.Second,
	}
}

// ParseTimeoutClass validates a class name.
func ParseTimeoutClass(name string) (TimeoutClass, error) {
	class := TimeoutClass(name)
	if !slices.Contains(Classes(), class) {
		return "", fmt.Errorf("unknown timeout class %q", name)
	}

	return class, nil
}

// Classes lists every known timeout class.
func Classes() []TimeoutClass {
	return []TimeoutClass{Watchdog, Statefile, StatefileRead, StatefileWrite, Xapi}
}

// Base returns the base duration of class.
func (t Timeouts) Base(class TimeoutClass) (time.Duration, error) {
	base, ok := t[class]
	if !ok {
		return 0, fmt.Errorf("no timeout configured for class %q", class)
	}

	return base, nil
}

// Window returns the convergence window for class scaled by multiplier.
func (t Timeouts) Window(class TimeoutClass, multiplier int) (time.Duration, error) {
	if multiplier < 1 {
		return 0, fmt.Errorf("multiplier must be positive, got %d", multiplier)
	}

	base, err := t.Base(class)
	if err != nil {
		return 0, err
	}

	return base * time.Duration(multiplier), nil
}

// TooShortForTemporary reports whether class is too short to tell a temporary
// outage apart from a permanent one.
func (t Timeouts) TooShortForTemporary(class TimeoutClass) bool {
	base, err := t.Base(class)
	return err != nil || base <= TemporaryOutage
}

// Merge returns a copy of t with every entry of other applied on top.
func (t Timeouts) Merge(other Timeouts) Timeouts {
	merged := make(Timeouts, len(t)+len(other))
	for class, d := range t {
		merged[class] = d
	}

	for class, d := range other {
		if d > 0 {
			merged[class] = d
		}
	}

	return merged
}
