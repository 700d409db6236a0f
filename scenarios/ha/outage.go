package ha

import (
	"fmt"

	. "github.com/xenrt/haoracle/internal/attest"
	"github.com/xenrt/haoracle/internal/fault"
	"github.com/xenrt/haoracle/internal/registry"
)

// outage runs a scenario first as a short outage the pool must ride out,
// then as a permanent one whose outcome must match the oracle.
func outage(s *registry.Scenario) registry.SuiteFunc {
	return func() *Suite {
		return New().
			// 0
			Setup(func(do *Do) {
				if err := s.Fits(do.Topology()); err != nil {
					panic(err.Error())
				}

				if do.DryRun() {
					return
				}

				do.Observe().Eventually().
					T().JSON("liveset", SameSet(do.Topology().IDs()...)).
					Assert("Every host should be live before any fault is injected.\n" +
						"Check the pool with the observe command and re-enable HA on hosts that are not.")
			}).

			// 1
			Test("Temporary Outage", func(do *Do) {
				if !s.RunsTemporary(do.Timeouts()) {
					return
				}

				window := do.UseTimeout(s.Timeout, s.Multiplier)
				faults := inject(do, s)

				do.Wait(fault.TemporaryOutage)
				do.Undo(faults...)
				do.Wait(window)

				result := do.Predict()
				if len(result.Liveset()) != do.Topology().Len() {
					panic(fmt.Sprintf("An outage shorter than the %s timeout should not shrink the liveset, predicted %v",
						s.Timeout, result.Liveset()))
				}

				if do.DryRun() {
					return
				}

				do.Observe().Consistently().For(window / 2).
					T().Prediction(result).
					Assert(fmt.Sprintf("A %s outage must not fence any host.\n"+
						"The fault was undone before the %s timeout expired, so every host should stay live.",
						fault.TemporaryOutage, s.Timeout))
			}).

			// 2
			Test("Permanent Outage", func(do *Do) {
				do.UseTimeout(s.Timeout, s.Multiplier)
				inject(do, s)
				do.Converge()

				result := do.Predict()
				do.Fence(result)
				if s.Disruptive {
					do.ExpectCrashdump(do.Topology().IDs()...)
				}

				if !do.DryRun() {
					do.Observe().Eventually().
						T().Prediction(result).
						Assert(fmt.Sprintf("After %s the pool should settle on the predicted liveset.\n"+
							"Hosts outside it should have self-fenced and the coordinator should be %s.",
							s.Name, result.Coordinator()))
				}

				if !result.TotalFencing() {
					do.Reelect(result)
				}
			})
	}
}

func inject(do *Do, s *registry.Scenario) []fault.Fault {
	faults, err := s.Faults(do.Topology())
	if err != nil {
		panic(err.Error())
	}

	do.Inject(faults...)

	return faults
}
