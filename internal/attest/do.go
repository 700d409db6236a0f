package attest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/fault"
	"github.com/xenrt/haoracle/internal/oracle"
	"github.com/xenrt/haoracle/pkg/threadsafe"
)

// Do provides the test harness and acts as the test runner.
// It owns the scenario's fault state and keeps it in step with the real pool.
type Do struct {
	config    *Config
	topology  *cluster.Topology
	state     *fault.State
	evaluator oracle.Evaluator

	skipCrashdump *threadsafe.Map[cluster.NodeID, struct{}]
	// undoing holds faults whose undo command has not succeeded yet.
	undoing *threadsafe.Map[fault.Fault, struct{}]

	rng *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc
}

// newDo creates a new Do instance for the given pool
func newDo(ctx context.Context, config *Config, topology *cluster.Topology) *Do {
	doCtx, cancel := context.WithCancel(ctx)

	return &Do{
		config:        config,
		topology:      topology,
		state:         fault.NewState(),
		evaluator:     oracle.Evaluator{Arbitration: config.Arbitration},
		skipCrashdump: threadsafe.NewMap[cluster.NodeID, struct{}](),
		undoing:       threadsafe.NewMap[fault.Fault, struct{}](),
		rng:           rand.New(rand.NewPCG(config.Seed, config.Seed)),
		ctx:           doCtx,
		cancel:        cancel,
	}
}

// Topology returns the pool as currently known, after any re-election.
func (do *Do) Topology() *cluster.Topology {
	return do.topology
}

// DryRun reports whether commands against the pool are skipped.
func (do *Do) DryRun() bool {
	return do.config.DryRun
}

// Timeouts returns the pool's HA timeouts.
func (do *Do) Timeouts() fault.Timeouts {
	return do.config.Timeouts
}

// Seed returns the seed of Rand, for replaying a randomized run.
func (do *Do) Seed() uint64 {
	return do.config.Seed
}

// Rand returns the run's random source. It is seeded from the config so a run can be replayed.
func (do *Do) Rand() *rand.Rand {
	return do.rng
}

// Operations returns how many steps a randomized scenario should take.
func (do *Do) Operations() int {
	return do.config.Operations
}

// Playback returns the recorded steps to replay, if any.
func (do *Do) Playback() []string {
	return do.config.Playback
}

// Faults returns a read-only view of the scenario's fault state.
func (do *Do) Faults() fault.View {
	return do.state.Snapshot()
}

// UseTimeout sets the convergence window for subsequent injections and undos.
func (do *Do) UseTimeout(class fault.TimeoutClass, multiplier int) time.Duration {
	window, err := do.config.Timeouts.Window(class, multiplier)
	if err != nil {
		panic(fmt.Sprintf("Invalid timeout: %v", err))
	}

	do.state.SetWindow(window)
	do.Logf("window %s (%s x%d)", window, class, multiplier)

	return window
}

// Inject requests the faults and applies them to the pool.
func (do *Do) Inject(faults ...fault.Fault) {
	for _, f := range faults {
		if err := do.state.RequestFault(f); err != nil {
			panic(err.Error())
		}
	}

	do.apply(do.config.Inject, "inject", faults)
}

// Undo requests that the faults are reversed and reverses them on the pool.
func (do *Do) Undo(faults ...fault.Fault) {
	for _, f := range faults {
		if err := do.state.RequestUndo(f); err != nil {
			panic(err.Error())
		}
	}

	do.apply(do.config.Undo, "undo", faults)
}

// UndoAll reverses every fault that is not already being undone.
func (do *Do) UndoAll() {
	do.apply(do.config.Undo, "undo", do.state.RequestUndoAll())
}

// apply runs one command per fault, concurrently
func (do *Do) apply(argv []string, verb string, faults []fault.Fault) {
	if len(faults) == 0 {
		return
	}

	for _, f := range faults {
		do.Logf("%s %s", verb, f)
	}

	if do.config.DryRun {
		return
	}

	if len(argv) == 0 {
		panic(fmt.Sprintf("No %s command configured.\n\n"+
			"  Set harness.%s in haoracle.yaml, or pass --dry-run to only print predictions", verb, verb))
	}

	fns := make([]func(), len(faults))
	for i, f := range faults {
		if verb != "undo" {
			fns[i] = func() { do.run(argv, f) }
			continue
		}

		fns[i] = func() {
			do.undoing.Set(f, struct{}{})
			do.run(argv, f)
			do.undoing.Delete(f)
		}
	}

	do.Concurrently(fns...)
}

// run executes argv with the fault's arguments appended
func (do *Do) run(argv []string, f fault.Fault) {
	ctx, cancel := context.WithTimeout(do.ctx, do.config.ExecuteTimeout)
	defer cancel()

	args := append(slices.Clone(argv[1:]), f.Args()...)
	cmd := exec.CommandContext(ctx, argv[0], args...)

	output, err := cmd.CombinedOutput()
	if err == nil {
		return
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}

	panic(fmt.Sprintf("%s %s\n  Failed: %v\n  Output: %q",
		argv[0], strings.Join(args, " "), err, strings.TrimSpace(string(output))))
}

// Wait lets the modelled duration elapse, then confirms every transition that is due.
// The wall-clock sleep is scaled by the configured factor and skipped in dry runs.
func (do *Do) Wait(d time.Duration) {
	if !do.config.DryRun {
		select {
		case <-do.ctx.Done():
			return
		case <-time.After(do.config.scaled(d)):
		}
	}

	do.state.Advance(d)
	for _, f := range do.state.ConfirmDue() {
		do.Logf("confirmed %s", f)
	}
}

// Converge waits until every pending transition has reached its deadline.
func (do *Do) Converge() {
	var latest time.Duration
	for _, e := range do.state.Pending() {
		latest = max(latest, e.Deadline)
	}

	do.Wait(latest - do.state.Now())
}

// Predict returns the oracle's outcome for the confirmed faults.
func (do *Do) Predict() *oracle.Result {
	result, err := do.evaluator.Predict(do.topology, do.state.Snapshot())
	if err != nil {
		panic(fmt.Sprintf("Prediction failed: %v", err))
	}

	do.Logf("predicted %s", result)

	return result
}

// WhatIf predicts the outcome if the given faults were injected and undone, without
// touching the scenario's state or the pool.
func (do *Do) WhatIf(inject, undo []fault.Fault) (*oracle.Result, error) {
	state := do.state.Clone()
	for _, f := range inject {
		if err := state.RequestFault(f); err != nil {
			return nil, err
		}
	}

	for _, f := range undo {
		if err := state.RequestUndo(f); err != nil {
			return nil, err
		}
	}
	state.ConfirmAll()

	return do.evaluator.Predict(do.topology, state.Snapshot())
}

// Fence records every node the result expects to self-fence so that its crash dump is ignored.
func (do *Do) Fence(result *oracle.Result) {
	do.ExpectCrashdump(result.Fencing()...)
}

// ExpectCrashdump marks nodes whose next crash dump is expected and should be skipped.
func (do *Do) ExpectCrashdump(ids ...cluster.NodeID) {
	for _, id := range ids {
		do.skipCrashdump.Set(id, struct{}{})
	}
}

// SkipCrashdump lists the nodes recorded by Fence and ExpectCrashdump, in ID order.
func (do *Do) SkipCrashdump() []cluster.NodeID {
	ids := do.skipCrashdump.Keys()
	slices.Sort(ids)

	if len(ids) == 0 {
		return nil
	}

	return ids
}

// Reelect replaces the known pool with the one the result leaves behind.
func (do *Do) Reelect(result *oracle.Result) {
	topology, err := result.NewTopology(do.topology)
	if err != nil {
		panic(err.Error())
	}

	do.topology = topology
}

// Done cancels outstanding commands and reverses any faults still applied to the pool.
// Undos whose command failed earlier are retried.
func (do *Do) Done() {
	defer do.cancel()

	undone := do.state.RequestUndoAll()
	for _, f := range do.undoing.Keys() {
		if !slices.Contains(undone, f) {
			undone = append(undone, f)
		}
	}

	if do.config.DryRun || len(do.config.Undo) == 0 || len(undone) == 0 {
		return
	}

	select {
	case <-do.ctx.Done():
		return
	default:
	}

	func() {
		defer func() {
			if err := recover(); err != nil {
				fmt.Printf("%s cleanup: %v\n", crossMark, err)
			}
		}()

		do.apply(do.config.Undo, "undo", undone)
	}()
}

// Concurrently runs multiple functions in parallel and waits for completion
func (do *Do) Concurrently(fns ...func()) {
	var wg sync.WaitGroup
	var panicErr any
	var panicMu sync.Mutex

	for _, fn := range fns {
		wg.Add(1)
		go func(f func()) {
			defer wg.Done()
			defer func() {
				err := recover()
				if err != nil {
					panicMu.Lock()
					if panicErr == nil {
						panicErr = err
					}
					panicMu.Unlock()
				}
			}()

			f()
		}(fn)
	}

	wg.Wait()

	if panicErr != nil {
		panic(panicErr)
	}
}

// Exec creates a deferred CLI command execution
func (do *Do) Exec(command string, args ...string) *CLIPromise {
	return &CLIPromise{
		PromiseBase: PromiseBase{
			timing: TimingImmediate,
			ctx:    do.ctx,
			config: do.config,
		},

		command: command,
		args:    args,
	}
}

// Observe creates a deferred run of the configured observe command
func (do *Do) Observe() *CLIPromise {
	if len(do.config.Observe) == 0 {
		panic("No observe command configured.\n\n" +
			"  Set harness.observe in haoracle.yaml to a command printing {\"liveset\": [...], \"master\": \"...\"}")
	}

	return do.Exec(do.config.Observe[0], do.config.Observe[1:]...)
}

// Logf prints a harness step when running verbosely or dry.
func (do *Do) Logf(format string, args ...any) {
	if do.config.Verbose || do.config.DryRun {
		fmt.Printf("  %s %s\n", yellow("○"), fmt.Sprintf(format, args...))
	}
}
