package fault

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/xenrt/haoracle/internal/cluster"
)

// ErrIllegalTransition is returned when a fault is moved through an impossible phase change.
var ErrIllegalTransition = errors.New("illegal fault transition")

// Phase of a requested transition.
type Phase int

const (
	// Pending transitions have been requested but the pool has not detected them yet.
	Pending Phase = iota
	// Confirmed transitions are assumed to be in effect.
	Confirmed
)

func (p Phase) String() string {
	if p == Confirmed {
		return "confirmed"
	}

	return "pending"
}

// Intent distinguishes injecting a fault from reversing it.
type Intent int

const (
	Inject Intent = iota
	Undo
)

func (i Intent) String() string {
	if i == Undo {
		return "undo"
	}

	return "inject"
}

// Entry describes the last requested transition of one fault.
type Entry struct {
	Fault    Fault
	Intent   Intent
	Phase    Phase
	Deadline time.Duration

	// Active reports whether the fault is visible to the evaluator.
	Active bool
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s (%s, due %s)", e.Intent, e.Fault, e.Phase, e.Deadline)
}

// View is the read-only surface the evaluator consumes. Only confirmed faults are visible.
type View interface {
	// Converged reports whether no transition is pending.
	Converged() bool
	// Pending lists the transitions that are still waiting for confirmation.
	Pending() []Entry
	// Active lists every fault currently in effect.
	Active() []Fault

	PoweredOff(id cluster.NodeID) bool
	QuorumLost(id cluster.NodeID) bool
	QuorumLostGlobally() bool
	Blocked(link Link) bool
}

var _ View = (*State)(nil)
var _ View = (*Snapshot)(nil)

// State records the faults of one scenario. It is not safe for concurrent use;
// a scenario owns its state exclusively.
type State struct {
	entries map[Fault]*Entry

	now    time.Duration
	window time.Duration
}

// NewState creates an empty fault state at logical time zero.
func NewState() *State {
	return &State{entries: make(map[Fault]*Entry)}
}

// SetWindow sets the convergence window applied to subsequent requests.
func (s *State) SetWindow(window time.Duration) {
	s.window = window
}

// Window returns the current convergence window.
func (s *State) Window() time.Duration {
	return s.window
}

// Now returns the logical clock.
func (s *State) Now() time.Duration {
	return s.now
}

// Advance moves the logical clock forward.
func (s *State) Advance(d time.Duration) {
	if d > 0 {
		s.now += d
	}
}

// RequestFault records that a fault has been injected but not yet detected.
func (s *State) RequestFault(f Fault) error {
	if e, ok := s.entries[f]; ok {
		return fmt.Errorf("%w: cannot inject %s, already %s", ErrIllegalTransition, f, e)
	}

	s.entries[f] = &Entry{Fault: f, Intent: Inject, Phase: Pending, Deadline: s.now + s.window}
	return nil
}

// ConfirmFault makes a requested fault visible to the evaluator.
func (s *State) ConfirmFault(f Fault) error {
	e, ok := s.entries[f]
	if !ok || e.Intent != Inject || e.Phase != Pending {
		return fmt.Errorf("%w: cannot confirm %s, it was never requested", ErrIllegalTransition, f)
	}

	e.Phase = Confirmed
	e.Active = true
	return nil
}

// RequestUndo records that a fault has been reversed. A confirmed fault stays visible
// until the undo is confirmed; undoing a pending fault cancels it before it ever took effect.
func (s *State) RequestUndo(f Fault) error {
	e, ok := s.entries[f]
	if !ok {
		return fmt.Errorf("%w: cannot undo %s, it was never requested", ErrIllegalTransition, f)
	}

	if e.Intent == Undo {
		return fmt.Errorf("%w: undo of %s already requested", ErrIllegalTransition, f)
	}

	e.Intent = Undo
	e.Phase = Pending
	e.Deadline = s.now + s.window
	return nil
}

// ConfirmUndo removes a fault whose undo was requested.
func (s *State) ConfirmUndo(f Fault) error {
	e, ok := s.entries[f]
	if !ok || e.Intent != Undo || e.Phase != Pending {
		return fmt.Errorf("%w: cannot confirm undo of %s, no undo was requested", ErrIllegalTransition, f)
	}

	delete(s.entries, f)
	return nil
}

// RequestAll requests every fault in order, stopping at the first failure.
func (s *State) RequestAll(faults []Fault) error {
	for _, f := range faults {
		if err := s.RequestFault(f); err != nil {
			return err
		}
	}

	return nil
}

// ConfirmAll confirms every pending transition regardless of deadlines.
func (s *State) ConfirmAll() []Fault {
	return s.confirm(func(*Entry) bool { return true })
}

// ConfirmDue confirms every pending transition whose deadline has passed on the logical clock.
func (s *State) ConfirmDue() []Fault {
	return s.confirm(func(e *Entry) bool { return e.Deadline <= s.now })
}

func (s *State) confirm(due func(*Entry) bool) []Fault {
	var confirmed []Fault
	for _, e := range s.sorted() {
		if e.Phase != Pending || !due(e) {
			continue
		}

		var err error
		if e.Intent == Inject {
			err = s.ConfirmFault(e.Fault)
		} else {
			err = s.ConfirmUndo(e.Fault)
		}

		if err == nil {
			confirmed = append(confirmed, e.Fault)
		}
	}

	return confirmed
}

// RequestUndoAll requests undo for every fault that is not already being undone.
func (s *State) RequestUndoAll() []Fault {
	var undone []Fault
	for _, e := range s.sorted() {
		if e.Intent == Inject && s.RequestUndo(e.Fault) == nil {
			undone = append(undone, e.Fault)
		}
	}

	return undone
}

// Converged reports whether no transition is pending.
func (s *State) Converged() bool {
	for _, e := range s.entries {
		if e.Phase == Pending {
			return false
		}
	}

	return true
}

// Pending lists transitions waiting for confirmation.
func (s *State) Pending() []Entry {
	var pending []Entry
	for _, e := range s.sorted() {
		if e.Phase == Pending {
			pending = append(pending, *e)
		}
	}

	return pending
}

// Entries lists every tracked fault.
func (s *State) Entries() []Entry {
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.sorted() {
		entries = append(entries, *e)
	}

	return entries
}

// Active lists faults visible to the evaluator.
func (s *State) Active() []Fault {
	var active []Fault
	for _, e := range s.sorted() {
		if e.Active {
			active = append(active, e.Fault)
		}
	}

	return active
}

func (s *State) isActive(f Fault) bool {
	e, ok := s.entries[f]
	return ok && e.Active
}

func (s *State) PoweredOff(id cluster.NodeID) bool {
	return s.isActive(PowerOff(id))
}

func (s *State) QuorumLost(id cluster.NodeID) bool {
	return s.isActive(LoseQuorumDisk(id))
}

func (s *State) QuorumLostGlobally() bool {
	return s.isActive(LoseQuorumDiskGlobally())
}

func (s *State) Blocked(link Link) bool {
	return s.isActive(Fault{Kind: Heartbeat, Link: link})
}

// Snapshot freezes the current state so it can be shared with concurrent readers.
func (s *State) Snapshot() *Snapshot {
	active := make(map[Fault]bool)
	for f, e := range s.entries {
		if e.Active {
			active[f] = true
		}
	}

	return &Snapshot{active: active, pending: s.Pending()}
}

// Clone returns an independent copy of the state.
func (s *State) Clone() *State {
	entries := make(map[Fault]*Entry, len(s.entries))
	for f, e := range s.entries {
		copied := *e
		entries[f] = &copied
	}

	return &State{entries: entries, now: s.now, window: s.window}
}

func (s *State) String() string {
	var parts []string
	for _, e := range s.sorted() {
		parts = append(parts, e.String())
	}

	return fmt.Sprintf("t=%s [%s]", s.now, strings.Join(parts, ", "))
}

func (s *State) sorted() []*Entry {
	keys := slices.SortedFunc(maps.Keys(s.entries), compareFaults)

	entries := make([]*Entry, len(keys))
	for i, k := range keys {
		entries[i] = s.entries[k]
	}

	return entries
}

func compareFaults(a, b Fault) int {
	if a.Kind != b.Kind {
		return int(a.Kind) - int(b.Kind)
	}

	if c := strings.Compare(string(a.Node), string(b.Node)); c != 0 {
		return c
	}

	if c := strings.Compare(string(a.Link.From), string(b.Link.From)); c != 0 {
		return c
	}

	return strings.Compare(string(a.Link.To), string(b.Link.To))
}

// Snapshot is an immutable copy of a State.
type Snapshot struct {
	active  map[Fault]bool
	pending []Entry
}

func (s *Snapshot) Converged() bool {
	return len(s.pending) == 0
}

func (s *Snapshot) Pending() []Entry {
	return slices.Clone(s.pending)
}

func (s *Snapshot) Active() []Fault {
	return slices.SortedFunc(maps.Keys(s.active), compareFaults)
}

func (s *Snapshot) PoweredOff(id cluster.NodeID) bool {
	return s.active[PowerOff(id)]
}

func (s *Snapshot) QuorumLost(id cluster.NodeID) bool {
	return s.active[LoseQuorumDisk(id)]
}

func (s *Snapshot) QuorumLostGlobally() bool {
	return s.active[LoseQuorumDiskGlobally()]
}

func (s *Snapshot) Blocked(link Link) bool {
	return s.active[Fault{Kind: Heartbeat, Link: link}]
}
