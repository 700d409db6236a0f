package ha

import (
	"fmt"
	"slices"
	"strings"

	. "github.com/xenrt/haoracle/internal/attest"
	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/fault"
	"github.com/xenrt/haoracle/internal/oracle"
	"github.com/xenrt/haoracle/internal/registry"
)

type op string

const (
	opHeartbeat op = "heartbeat"
	opStatefile op = "statefile"
	opKill      op = "kill"
	opRestore   op = "restore"
)

var ops = []op{opHeartbeat, opStatefile, opKill, opRestore}

// step is one operation on one host, written "op:host" so a run can be played back.
// Without a host, playback picks one the same way a random run does.
type step struct {
	Op   op
	Host cluster.NodeID
}

func (s step) String() string {
	if s.Host == "" {
		return string(s.Op)
	}

	return fmt.Sprintf("%s:%s", s.Op, s.Host)
}

func parseSteps(raw []string) ([]step, error) {
	var steps []step
	for _, r := range raw {
		name, host, _ := strings.Cut(strings.TrimSpace(r), ":")
		if !slices.Contains(ops, op(name)) {
			return nil, fmt.Errorf("unknown operation %q in %q, expected one of %v", name, r, ops)
		}

		steps = append(steps, step{Op: op(name), Host: cluster.NodeID(host)})
	}

	return steps, nil
}

// move is a step with the faults it injects and undoes.
type move struct {
	step
	inject []fault.Fault
	undo   []fault.Fault
}

// walk drives a pool through random operations. An operation is refused when the
// oracle predicts it would leave fewer than minLive hosts in the liveset.
type walk struct {
	scenario *registry.Scenario
	minLive  int

	last  *oracle.Result
	steps []step
}

func newWalk(s *registry.Scenario, minLive int) *walk {
	return &walk{scenario: s, minLive: max(1, minLive)}
}

func randomized(s *registry.Scenario, minLive int) registry.SuiteFunc {
	return func() *Suite {
		return newWalk(s, minLive).suite()
	}
}

func (w *walk) suite() *Suite {
	s := w.scenario

	return New().
		// 0
		Setup(func(do *Do) {
			if err := s.Fits(do.Topology()); err != nil {
				panic(err.Error())
			}

			w.steps = nil
			w.last = do.Predict()
			do.Logf("seed %d, keeping %d hosts live", do.Seed(), w.minLive)

			if do.DryRun() {
				return
			}

			do.Observe().Eventually().
				T().JSON("liveset", SameSet(do.Topology().IDs()...)).
				Assert("Every host should be live before the random operations start.\n" +
					"Check the pool with the observe command and re-enable HA on hosts that are not.")
		}).

		// 1
		Test("Random Operations", func(do *Do) {
			playback, err := parseSteps(do.Playback())
			if err != nil {
				panic(err.Error())
			}

			n := do.Operations()
			if playback != nil {
				n = len(playback)
			}

			for i := range n {
				var want step
				if playback != nil {
					want = playback[i]
				} else {
					want = step{Op: ops[do.Rand().IntN(len(ops))]}
				}

				m, ok := w.choose(do, want)
				switch {
				case ok:
					do.Logf("%d/%d %s", i+1, n, m.step)
					w.take(do, m)
				case want.Host != "":
					panic(fmt.Sprintf("Cannot play back %s: the host is not in a state this operation applies to,\n"+
						"or it would leave fewer than %d hosts live. Played so far: %s", want, w.minLive, w.played()))
				default:
					do.Logf("%d/%d %s skipped, no suitable host", i+1, n, want.Op)
				}
			}
		})
}

// choose picks the first host, in random order, that want can act on.
func (w *walk) choose(do *Do, want step) (move, bool) {
	hosts := []cluster.NodeID{want.Host}
	if want.Host == "" {
		hosts = do.Topology().IDs()
		do.Rand().Shuffle(len(hosts), func(i, j int) {
			hosts[i], hosts[j] = hosts[j], hosts[i]
		})
	} else if !do.Topology().Contains(want.Host) {
		panic(fmt.Sprintf("Cannot play back %s: %s is not a pool member", want, want.Host))
	}

	for _, host := range hosts {
		m, ok := w.plan(do, step{Op: want.Op, Host: host})
		if !ok {
			continue
		}

		result, err := do.WhatIf(m.inject, m.undo)
		if err != nil {
			do.Logf("refusing %s: %v", m.step, err)
			continue
		}

		if live := len(result.Liveset()); live < w.minLive {
			do.Logf("refusing %s: only %d hosts would stay live", m.step, live)
			continue
		}

		return m, true
	}

	return move{}, false
}

// plan returns the faults st needs, or false when st does not apply to its host.
func (w *walk) plan(do *Do, st step) (move, bool) {
	view := do.Faults()
	active := view.Active()
	m := move{step: st}

	switch st.Op {
	case opHeartbeat:
		if !w.last.Live(st.Host) {
			return m, false
		}

		for _, f := range fault.Isolate(do.Topology(), st.Host) {
			if !slices.Contains(active, f) {
				m.inject = append(m.inject, f)
			}
		}

	case opStatefile:
		if !w.last.Live(st.Host) || view.QuorumLost(st.Host) || view.QuorumLostGlobally() {
			return m, false
		}

		m.inject = []fault.Fault{fault.LoseQuorumDisk(st.Host)}

	case opKill:
		if !w.last.Live(st.Host) {
			return m, false
		}

		m.inject = []fault.Fault{fault.PowerOff(st.Host)}

	case opRestore:
		if w.last.Live(st.Host) {
			return m, false
		}

		for _, f := range active {
			if slices.Contains(f.Nodes(), st.Host) {
				m.undo = append(m.undo, f)
			}
		}
	}

	return m, len(m.inject)+len(m.undo) > 0
}

func (w *walk) take(do *Do, m move) {
	s := w.scenario

	do.UseTimeout(s.Timeout, s.Multiplier)
	do.Inject(m.inject...)
	do.Undo(m.undo...)
	do.Converge()

	result := do.Predict()
	do.Fence(result)
	w.steps = append(w.steps, m.step)

	if !do.DryRun() {
		do.Observe().Eventually().
			T().Prediction(result).
			Assert(fmt.Sprintf("After %s the pool should settle on the predicted liveset.\n"+
				"Replay with --seed %d, or with --playback %s",
				m.step, do.Seed(), w.played()))
	}

	do.Reelect(result)
	w.last = result
}

func (w *walk) played() string {
	parts := make([]string, len(w.steps))
	for i, st := range w.steps {
		parts[i] = st.String()
	}

	return strings.Join(parts, ",")
}
