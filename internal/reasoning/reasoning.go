// Package reasoning implements the strictly-ordered, at-most-one-running
// reasoning event state machine that sits behind the turn loop's streamed
// output.
//
// Consumers (event sinks, UI subscribers) must observe at most one step
// running at any instant and step indices in strictly increasing order of
// first STARTED. The machine accepts events out of order, deduplicates by
// eventId, guards per-step monotonicity by eventSeq, and queues events for
// any step that is not currently active until the active step finishes.
package reasoning

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lifecycle is the event kind carried by a ReasoningEvent.
type Lifecycle string

const (
	Started Lifecycle = "STARTED"
	Updated Lifecycle = "UPDATED"
	Finished Lifecycle = "FINISHED"
)

// FinalStatus is the terminal outcome of a completed step.
type FinalStatus string

const (
	Succeeded FinalStatus = "SUCCEEDED"
	Failed    FinalStatus = "FAILED"
	Canceled  FinalStatus = "CANCELED"
)

// StepStatus is the current lifecycle phase of a Step.
type StepStatus string

const (
	StatusRunning   StepStatus = "running"
	StatusCompleted StepStatus = "completed"
)

// Event is the wire record the machine consumes. EventID is the dedupe
// key; EventSeq must be monotone per StepID for events to be accepted.
type Event struct {
	EventID     string
	TraceID     string
	StepID      string
	StepIndex   int
	EventSeq    uint64
	Lifecycle   Lifecycle
	Timestamp   time.Time
	Label       string
	Message     string
	FinalStatus FinalStatus
	Details     map[string]any
	ThinkingContent string
}

// Step is the trace element the machine maintains and emits snapshots of.
type Step struct {
	StepID          string
	StepIndex       int
	TraceID         string
	Label           string
	Status          StepStatus
	FinalStatus     FinalStatus
	StartedAt       time.Time
	CompletedAt     time.Time
	DurationMs      int64
	Message         string
	Details         map[string]any
	ThinkingContent string
}

// Sink receives a snapshot of a step every time the machine emits a
// transition (STARTED, UPDATED, or FINISHED). Implementations must not
// block indefinitely; the turn loop's event sink honors the same
// discipline as internal/agent/event_emitter.go.
type Sink interface {
	Emit(step Step)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Step)

func (f SinkFunc) Emit(step Step) { f(step) }

// Machine is the single-active-step reasoning state machine for one
// trace (one turn). It is safe for concurrent use, though the turn loop
// is expected to be its only caller within a turn.
type Machine struct {
	mu sync.Mutex

	traceID string
	sink    Sink

	seen       map[string]struct{}
	highestSeq map[string]uint64
	steps      map[string]*Step
	order      []string

	activeStep  string
	nextIndex   int
	issuedIndex int
	pending     map[string][]Event

	lastEmit time.Time

	late []Event
	log  []Step
}

// New creates a reasoning machine for the given trace. sink may be nil.
func New(traceID string, sink Sink) *Machine {
	return &Machine{
		traceID:    traceID,
		sink:       sink,
		seen:       make(map[string]struct{}),
		highestSeq: make(map[string]uint64),
		steps:      make(map[string]*Step),
		pending:    make(map[string][]Event),
	}
}

// NewEventID returns a fresh event id suitable for the EventID dedupe key.
func NewEventID() string { return uuid.NewString() }

// NewStepID returns a fresh step id.
func NewStepID() string { return uuid.NewString() }

// Apply feeds one event through the transition rules of §4.4:
//  1. eventId already seen -> drop.
//  2. step already FINISHED -> append to late-event log, drop.
//  3. eventSeq <= highest seen for the step -> drop.
//  4. a different step is active -> enqueue to pending, return.
//  5. otherwise: emit.
func (m *Machine) Apply(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(ev)
}

// apply is the entry point for events arriving fresh from Apply: it owns
// the eventId dedupe guard (rule 1), then hands off to route. Events
// replayed out of the pending queue must NOT re-enter here — they were
// already marked seen the first time they arrived, and re-checking seen
// against their own mark would drop every queued step on drain. drainPending
// calls route directly for exactly this reason.
func (m *Machine) apply(ev Event) {
	if _, ok := m.seen[ev.EventID]; ok {
		return
	}
	m.seen[ev.EventID] = struct{}{}
	m.route(ev)
}

// route applies rules 2-5 of §4.4 (late/stale-seq drop, enqueue-if-inactive,
// emit) without touching the seen set, so it is safe to call both for a
// fresh event (from apply) and a replayed one (from drainPending).
func (m *Machine) route(ev Event) {
	if ev.StepIndex >= m.issuedIndex {
		m.issuedIndex = ev.StepIndex + 1
	}

	if step, ok := m.steps[ev.StepID]; ok && step.Status == StatusCompleted {
		m.late = append(m.late, ev)
		return
	}

	if ev.EventSeq <= m.highestSeq[ev.StepID] {
		return
	}

	if m.activeStep != "" && m.activeStep != ev.StepID {
		m.pending[ev.StepID] = append(m.pending[ev.StepID], ev)
		return
	}

	// Step indices must become active in strictly increasing order of
	// first STARTED (package invariant), regardless of delivery order: a
	// step whose turn hasn't come up yet queues behind whichever step is
	// still outstanding at nextIndex. (A completed step never reaches
	// here: the late-event check above already caught it.)
	if m.activeStep == "" && ev.StepIndex != m.nextIndex {
		m.pending[ev.StepID] = append(m.pending[ev.StepID], ev)
		return
	}

	m.emit(ev)
}

func (m *Machine) emit(ev Event) {
	m.highestSeq[ev.StepID] = ev.EventSeq

	step, ok := m.steps[ev.StepID]
	if !ok {
		step = &Step{
			StepID:    ev.StepID,
			StepIndex: ev.StepIndex,
			TraceID:   ev.TraceID,
		}
		m.steps[ev.StepID] = step
		m.order = append(m.order, ev.StepID)
	}

	switch ev.Lifecycle {
	case Started:
		m.activeStep = ev.StepID
		ts := m.nextEmitTime(ev.Timestamp)
		step.Status = StatusRunning
		step.StartedAt = ts
		if ev.Label != "" {
			step.Label = ev.Label
		}
		step.Message = ev.Message
		step.Details = ev.Details
	case Updated:
		m.activeStep = ev.StepID
		if ev.Label != "" {
			step.Label = ev.Label
		}
		if ev.Message != "" {
			step.Message = ev.Message
		}
		if ev.Details != nil {
			step.Details = ev.Details
		}
		if ev.ThinkingContent != "" {
			step.ThinkingContent = ev.ThinkingContent
		}
	case Finished:
		m.finishStep(step, ev.Timestamp, ev.FinalStatus, ev.Message, ev.ThinkingContent)
		return
	}

	m.recordEmit(*step)
}

func (m *Machine) finishStep(step *Step, now time.Time, final FinalStatus, message, thinking string) {
	ts := m.nextEmitTime(now)
	step.Status = StatusCompleted
	step.FinalStatus = final
	step.CompletedAt = ts
	step.DurationMs = ts.Sub(step.StartedAt).Milliseconds()
	if message != "" {
		step.Message = message
	}
	if thinking != "" {
		step.ThinkingContent = thinking
	}
	if m.activeStep == step.StepID {
		m.activeStep = ""
	}
	if step.StepIndex >= m.nextIndex {
		m.nextIndex = step.StepIndex + 1
	}
	m.recordEmit(*step)
	m.drainPending()
}

func (m *Machine) recordEmit(snapshot Step) {
	m.log = append(m.log, snapshot)
	if m.sink != nil {
		m.sink.Emit(snapshot)
	}
}

// drainPending picks the pending step with the lowest StepIndex and
// replays its queued events in eventSeq order, as the single active step.
func (m *Machine) drainPending() {
	m.drainPendingStep(false)
}

// drainPendingStep is drainPending's implementation. force bypasses the
// nextIndex ordering gate by fast-forwarding nextIndex to the lowest
// pending StepIndex; it exists only so Finalize can still terminate if
// the step actually expected at nextIndex never arrives. Returns whether
// anything was replayed.
func (m *Machine) drainPendingStep(force bool) bool {
	if len(m.pending) == 0 {
		return false
	}
	bestID := ""
	bestIdx := 0
	first := true
	for stepID, queue := range m.pending {
		if len(queue) == 0 {
			continue
		}
		idx := queue[0].StepIndex
		if first || idx < bestIdx {
			bestIdx = idx
			bestID = stepID
			first = false
		}
	}
	if bestID == "" {
		return false
	}
	if force && bestIdx > m.nextIndex {
		m.nextIndex = bestIdx
	}
	queue := m.pending[bestID]
	delete(m.pending, bestID)
	for _, qev := range queue {
		m.route(qev)
	}
	return true
}

// Finalize forces any lingering active step to completed/SUCCEEDED with
// completedAt=now, then drains any remaining pending steps, guaranteeing
// trace termination on turn end. If the step expected at nextIndex never
// showed up, the ordered drain alone would spin forever re-queuing
// whatever's left, so a stalled pass falls back to a forced drain that
// admits the lowest-index step out of order.
func (m *Machine) Finalize(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if m.activeStep != "" {
			step := m.steps[m.activeStep]
			m.finishStep(step, now, Succeeded, "", "")
			continue
		}
		if len(m.pending) == 0 {
			return
		}
		if !m.drainPendingStep(false) {
			return
		}
		if m.activeStep == "" && len(m.pending) > 0 {
			m.drainPendingStep(true)
		}
		if m.activeStep == "" && len(m.pending) == 0 {
			return
		}
	}
}

// EmitCanceled synthesizes a step that starts and immediately finishes as
// CANCELED, for synthetic notifications (a denied tool call) that aren't
// part of the model's own turn-by-turn reasoning trace. It claims an
// index past every index issued so far, so it can never collide with a
// step that is still active or pending; it waits its ordered turn behind
// any lower-indexed step exactly like a genuine reasoning step would.
func (m *Machine) EmitCanceled(now time.Time, label, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stepID := NewStepID()
	idx := m.issuedIndex
	m.route(Event{
		EventID:   NewEventID(),
		TraceID:   m.traceID,
		StepID:    stepID,
		StepIndex: idx,
		EventSeq:  1,
		Lifecycle: Started,
		Timestamp: now,
		Label:     label,
	})
	m.route(Event{
		EventID:     NewEventID(),
		TraceID:     m.traceID,
		StepID:      stepID,
		StepIndex:   idx,
		EventSeq:    2,
		Lifecycle:   Finished,
		Timestamp:   now,
		FinalStatus: Canceled,
		Message:     message,
	})
}

func (m *Machine) nextEmitTime(now time.Time) time.Time {
	if !now.After(m.lastEmit) {
		now = m.lastEmit.Add(time.Nanosecond)
	}
	m.lastEmit = now
	return now
}

// Steps returns a snapshot of all known steps in order of first STARTED.
func (m *Machine) Steps() []Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Step, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.steps[id])
	}
	return out
}

// EmittedLog returns every emitted snapshot in emission order (one entry
// per STARTED/UPDATED/FINISHED transition, not per input event).
func (m *Machine) EmittedLog() []Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Step, len(m.log))
	copy(out, m.log)
	return out
}

// LateEvents returns events that arrived for an already-FINISHED step.
func (m *Machine) LateEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.late))
	copy(out, m.late)
	return out
}

// RunningCount returns the number of steps currently in StatusRunning.
// Used by tests asserting the single-active-step invariant (P1).
func (m *Machine) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.steps {
		if s.Status == StatusRunning {
			n++
		}
	}
	return n
}

// ActiveStepID returns the id of the currently running step, or "".
func (m *Machine) ActiveStepID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeStep
}
