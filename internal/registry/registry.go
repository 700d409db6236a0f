package registry

import (
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/xenrt/haoracle/internal/attest"
	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/fault"
	"github.com/xenrt/haoracle/internal/oracle"
)

func init() {
	log.SetFlags(0)
}

var families = make(map[string]*Family)

// Family groups scenarios that exercise the same failure mode.
type Family struct {
	Key           string
	Name          string
	Summary       string
	Scenarios     map[string]*Scenario
	ScenarioOrder []string
}

// FaultFunc returns the faults a scenario injects into the given pool.
type FaultFunc func(t *cluster.Topology) ([]fault.Fault, error)

// SuiteFunc builds the attest suite that runs a scenario against a real pool.
type SuiteFunc func() *attest.Suite

// Scenario is a named, repeatable fault injection with a predictable outcome.
type Scenario struct {
	Key    string
	Name   string
	Family string

	// Hosts is the minimum pool size; with Exact the pool must have exactly that many.
	Hosts int
	Exact bool

	// Timeout and Multiplier give the window the pool needs to react.
	Timeout    fault.TimeoutClass
	Multiplier int

	// Temporary scenarios are also run as a short outage that must go unnoticed.
	Temporary bool
	// Disruptive scenarios may make any host crash while the pool recovers.
	Disruptive bool
	// Randomized scenarios draw their faults while they run; Faults cannot list them up front.
	Randomized bool

	Faults FaultFunc
	Fn     SuiteFunc
}

func (f *Family) AddScenario(key string, scenario *Scenario) {
	if f.Scenarios == nil {
		f.Scenarios = make(map[string]*Scenario)
	}

	scenario.Key = key
	f.Scenarios[key] = scenario
	f.ScenarioOrder = append(f.ScenarioOrder, key)
}

func (f *Family) Len() int {
	return len(f.ScenarioOrder)
}

func RegisterFamily(key string, family *Family) {
	if len(family.Scenarios) == 0 {
		log.Fatalf("Cannot register empty scenario family %s.", key)
	}

	for _, scenario := range family.Scenarios {
		if scenario.Faults == nil || scenario.Fn == nil {
			log.Fatalf("Scenario %s in family %s is incomplete.", scenario.Key, key)
		}

		if _, err := GetScenario(scenario.Key); err == nil {
			log.Fatalf("Scenario %s is registered twice.", scenario.Key)
		}

		scenario.Family = key
	}

	family.Key = key
	families[key] = family
}

func GetFamily(key string) (*Family, error) {
	family, exists := families[key]
	if !exists {
		return nil, fmt.Errorf("Scenario family %s not found", key)
	}

	return family, nil
}

// GetAllFamilies returns every family ordered by key.
func GetAllFamilies() []*Family {
	keys := make([]string, 0, len(families))
	for key := range families {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	all := make([]*Family, len(keys))
	for i, key := range keys {
		all[i] = families[key]
	}

	return all
}

func GetScenario(key string) (*Scenario, error) {
	for _, family := range families {
		if scenario, exists := family.Scenarios[key]; exists {
			return scenario, nil
		}
	}

	return nil, fmt.Errorf("Scenario %s not found", key)
}

// Fits reports whether the scenario can run against t.
func (s *Scenario) Fits(t *cluster.Topology) error {
	switch {
	case s.Exact && t.Len() != s.Hosts:
		return fmt.Errorf("%w: %s needs exactly %d hosts, pool has %d", oracle.ErrInvalidScenario, s.Key, s.Hosts, t.Len())
	case t.Len() < s.Hosts:
		return fmt.Errorf("%w: %s needs at least %d hosts, pool has %d", oracle.ErrInvalidScenario, s.Key, s.Hosts, t.Len())
	default:
		return nil
	}
}

// Requires describes the pool size the scenario needs.
func (s *Scenario) Requires() string {
	if s.Exact {
		return fmt.Sprintf("%d hosts", s.Hosts)
	}

	return fmt.Sprintf("%d+ hosts", s.Hosts)
}

// Window returns how long the pool is given to react to the scenario's faults.
func (s *Scenario) Window(timeouts fault.Timeouts) (time.Duration, error) {
	return timeouts.Window(s.Timeout, s.Multiplier)
}

// RunsTemporary reports whether the temporary outage is meaningful with these timeouts.
func (s *Scenario) RunsTemporary(timeouts fault.Timeouts) bool {
	return s.Temporary && !timeouts.TooShortForTemporary(s.Timeout)
}

// Predict injects the scenario's faults into a fresh state, lets them converge
// and returns the faults with the oracle's outcome.
func (s *Scenario) Predict(t *cluster.Topology, evaluator oracle.Evaluator) ([]fault.Fault, *oracle.Result, error) {
	if err := s.Fits(t); err != nil {
		return nil, nil, err
	}

	faults, err := s.Faults(t)
	if err != nil {
		return nil, nil, err
	}

	state := fault.NewState()
	if err := state.RequestAll(faults); err != nil {
		return nil, nil, err
	}
	state.ConfirmAll()

	result, err := evaluator.Predict(t, state.Snapshot())
	if err != nil {
		return nil, nil, err
	}

	return faults, result, nil
}
