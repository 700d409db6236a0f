package registry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xenrt/haoracle/internal/attest"
	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/fault"
	"github.com/xenrt/haoracle/internal/oracle"
	"github.com/xenrt/haoracle/internal/registry"
)

func powerOffLowest(t *cluster.Topology) ([]fault.Fault, error) {
	return []fault.Fault{fault.PowerOff(t.IDs()[0])}, nil
}

func TestFamily(t *testing.T) {
	family := &registry.Family{Name: "Test Family"}
	family.AddScenario("test-power-lowest", &registry.Scenario{
		Name:       "Power Off The Lowest Host",
		Hosts:      2,
		Timeout:    fault.Xapi,
		Multiplier: 2,
		Faults:     powerOffLowest,
		Fn:         attest.New,
	})
	family.AddScenario("test-power-exact", &registry.Scenario{
		Name:       "Power Off In A Three Host Pool",
		Hosts:      3,
		Exact:      true,
		Timeout:    fault.Watchdog,
		Multiplier: 3,
		Temporary:  true,
		Faults:     powerOffLowest,
		Fn:         attest.New,
	})

	registry.RegisterFamily("test", family)

	got, err := registry.GetFamily("test")
	if err != nil || got.Len() != 2 {
		t.Fatalf("expected registered family with 2 scenarios, got %v (%v)", got, err)
	}

	scenario, err := registry.GetScenario("test-power-exact")
	if err != nil {
		t.Fatalf("GetScenario: %v", err)
	}

	if scenario.Key != "test-power-exact" || scenario.Family != "test" {
		t.Errorf("unexpected scenario identity %q in family %q", scenario.Key, scenario.Family)
	}

	if _, err := registry.GetScenario("test-missing"); err == nil {
		t.Error("expected an error for an unknown scenario")
	}

	if _, err := registry.GetFamily("missing"); err == nil {
		t.Error("expected an error for an unknown family")
	}
}

func TestScenario(t *testing.T) {
	topology, err := cluster.New([]cluster.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}, "a")
	if err != nil {
		t.Fatalf("cluster.New: %v", err)
	}

	minimum := &registry.Scenario{Key: "min", Hosts: 2, Timeout: fault.Xapi, Multiplier: 2, Faults: powerOffLowest}
	exact := &registry.Scenario{Key: "exact", Hosts: 4, Exact: true, Timeout: fault.Watchdog, Multiplier: 3, Temporary: true, Faults: powerOffLowest}

	if err := minimum.Fits(topology); err != nil {
		t.Errorf("expected a 3 host pool to fit 2+ hosts: %v", err)
	}

	if err := exact.Fits(topology); !errors.Is(err, oracle.ErrInvalidScenario) {
		t.Errorf("expected ErrInvalidScenario for a 3 host pool, got %v", err)
	}

	if minimum.Requires() != "2+ hosts" || exact.Requires() != "4 hosts" {
		t.Errorf("unexpected requirements %q and %q", minimum.Requires(), exact.Requires())
	}

	window, err := minimum.Window(fault.DefaultTimeouts())
	if err != nil || window != 240*time.Second {
		t.Errorf("expected a 240s window, got %s (%v)", window, err)
	}

	if minimum.RunsTemporary(fault.DefaultTimeouts()) {
		t.Error("a permanent-only scenario should not run a temporary outage")
	}

	short := fault.DefaultTimeouts().Merge(fault.Timeouts{fault.Watchdog: 10 * time.Second})
	if exact.RunsTemporary(short) || !exact.RunsTemporary(fault.DefaultTimeouts()) {
		t.Error("temporary outage should only run when the watchdog timeout exceeds the outage")
	}

	faults, result, err := minimum.Predict(topology, oracle.Evaluator{})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	if len(faults) != 1 || faults[0] != fault.PowerOff("a") {
		t.Errorf("expected the injected faults to be returned, got %v", faults)
	}

	if !result.CoordinatorChanged() || result.Coordinator() != "b" {
		t.Errorf("expected re-election to b after powering off a, got %s", result)
	}
}
