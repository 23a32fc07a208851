package reasoning

import (
	"testing"
	"time"
)

func ev(stepID string, idx int, seq uint64, lifecycle Lifecycle, t time.Time) Event {
	return Event{
		EventID:   stepID + "#" + lifecycle2str(lifecycle) + "#" + uintStr(seq),
		TraceID:   "trace-1",
		StepID:    stepID,
		StepIndex: idx,
		EventSeq:  seq,
		Lifecycle: lifecycle,
		Timestamp: t,
		Label:     "step",
	}
}

func lifecycle2str(l Lifecycle) string { return string(l) }
func uintStr(u uint64) string {
	if u == 0 {
		return "0"
	}
	digits := ""
	for u > 0 {
		digits = string(rune('0'+u%10)) + digits
		u /= 10
	}
	return digits
}

func TestOutOfOrderDelivery(t *testing.T) {
	// Scenario 4: (s2,STARTED,seq1) (s1,STARTED,seq1) (s1,STARTED,seq1 dup)
	// (s1,FINISHED,seq2) (s2,FINISHED,seq2)
	m := New("trace-1", nil)
	base := time.Unix(0, 0)

	e1 := ev("s2", 1, 1, Started, base)
	e2 := ev("s1", 0, 1, Started, base.Add(time.Millisecond))
	e3 := e2 // exact duplicate (same EventID) must be dropped by rule 1
	e4 := ev("s1", 0, 2, Finished, base.Add(2*time.Millisecond))
	e4.FinalStatus = Succeeded
	e5 := ev("s2", 1, 2, Finished, base.Add(3*time.Millisecond))
	e5.FinalStatus = Succeeded

	for _, e := range []Event{e1, e2, e3, e4, e5} {
		m.Apply(e)
		if n := m.RunningCount(); n > 1 {
			t.Fatalf("running count exceeded 1 after applying %+v: got %d", e, n)
		}
	}

	log := m.EmittedLog()
	var order []string
	for _, s := range log {
		order = append(order, s.StepID+":"+string(s.Status))
	}
	// Expected emitted order mirrors s1 STARTED, s1 FINISHED, s2 STARTED, s2 FINISHED.
	want := []string{"s1:running", "s1:completed", "s2:running", "s2:completed"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("position %d: got %s want %s (full: %v)", i, order[i], want[i], order)
		}
	}

	steps := m.Steps()
	if len(steps) != 2 {
		t.Fatalf("expected 2 final steps, got %d", len(steps))
	}
}

func TestNoFinishedEventOverwritten(t *testing.T) {
	m := New("trace-1", nil)
	base := time.Now()
	m.Apply(ev("s1", 0, 1, Started, base))
	fin := ev("s1", 0, 2, Finished, base.Add(time.Second))
	fin.FinalStatus = Succeeded
	fin.Message = "done"
	m.Apply(fin)

	// A late UPDATED for the same step must not mutate visible fields.
	late := ev("s1", 0, 3, Updated, base.Add(2*time.Second))
	late.Message = "should not appear"
	m.Apply(late)

	if got := m.LateEvents(); len(got) != 1 {
		t.Fatalf("expected 1 late event logged, got %d", len(got))
	}

	steps := m.Steps()
	if steps[0].Message != "done" {
		t.Fatalf("FINISHED step message was overwritten: %q", steps[0].Message)
	}
	if steps[0].Status != StatusCompleted {
		t.Fatalf("step should remain completed")
	}
}

func TestDuplicateEventIDDropped(t *testing.T) {
	m := New("trace-1", nil)
	base := time.Now()
	e := ev("s1", 0, 1, Started, base)
	m.Apply(e)
	m.Apply(e) // identical eventId must be a pure no-op (R2)

	if len(m.EmittedLog()) != 1 {
		t.Fatalf("expected exactly one emission, got %d", len(m.EmittedLog()))
	}
}

func TestFinalizeForcesTerminationAndDrainsPending(t *testing.T) {
	m := New("trace-1", nil)
	base := time.Now()
	m.Apply(ev("s1", 0, 1, Started, base))
	// s2 arrives while s1 is active: queued.
	m.Apply(ev("s2", 1, 1, Started, base.Add(time.Millisecond)))

	if m.ActiveStepID() != "s1" {
		t.Fatalf("expected s1 active, got %q", m.ActiveStepID())
	}

	m.Finalize(base.Add(time.Second))

	if m.RunningCount() != 0 {
		t.Fatalf("expected no running steps after finalize, got %d", m.RunningCount())
	}
	steps := m.Steps()
	if len(steps) != 2 {
		t.Fatalf("expected both steps resolved, got %d", len(steps))
	}
	for _, s := range steps {
		if s.Status != StatusCompleted {
			t.Fatalf("step %s not completed after finalize", s.StepID)
		}
	}
}

func TestStrictlyIncreasingStepIndexOnCompletion(t *testing.T) {
	m := New("trace-1", nil)
	base := time.Now()
	m.Apply(ev("s1", 0, 1, Started, base))
	fin1 := ev("s1", 0, 2, Finished, base.Add(time.Millisecond))
	fin1.FinalStatus = Succeeded
	m.Apply(fin1)

	m.Apply(ev("s2", 1, 1, Started, base.Add(2*time.Millisecond)))
	fin2 := ev("s2", 1, 2, Finished, base.Add(3*time.Millisecond))
	fin2.FinalStatus = Succeeded
	m.Apply(fin2)

	steps := m.Steps()
	for i := 1; i < len(steps); i++ {
		if steps[i].StepIndex <= steps[i-1].StepIndex {
			t.Fatalf("step indices not strictly increasing: %v", steps)
		}
	}
}

func TestEmitCanceledRecordsStartAndCanceledFinish(t *testing.T) {
	m := New("trace-1", nil)
	base := time.Now()

	m.Apply(ev("s1", 0, 1, Started, base))
	fin := ev("s1", 0, 2, Finished, base.Add(time.Millisecond))
	fin.FinalStatus = Succeeded
	m.Apply(fin)

	m.EmitCanceled(base.Add(2*time.Millisecond), "tool_denial", "Skipped duplicate transcript extraction for the same URL.")

	log := m.EmittedLog()
	if len(log) != 4 {
		t.Fatalf("expected 2 steps x 2 transitions = 4 log entries, got %d: %+v", len(log), log)
	}
	last := log[len(log)-1]
	if last.Status != StatusCompleted || last.FinalStatus != Canceled {
		t.Fatalf("expected the synthesized step to finish CANCELED, got %+v", last)
	}
	if last.Message != "Skipped duplicate transcript extraction for the same URL." {
		t.Fatalf("unexpected message: %q", last.Message)
	}
	if m.RunningCount() != 0 {
		t.Fatalf("expected no running steps after EmitCanceled, got %d", m.RunningCount())
	}
}

func TestEmitCanceledQueuesBehindActiveStep(t *testing.T) {
	m := New("trace-1", nil)
	base := time.Now()
	m.Apply(ev("s1", 0, 1, Started, base))

	m.EmitCanceled(base.Add(time.Millisecond), "tool_denial", "denied")

	if m.RunningCount() != 1 {
		t.Fatalf("expected the pre-existing active step to still be the only running step, got %d", m.RunningCount())
	}

	fin := ev("s1", 0, 2, Finished, base.Add(2*time.Millisecond))
	fin.FinalStatus = Succeeded
	m.Apply(fin)

	m.Finalize(base.Add(3 * time.Millisecond))

	steps := m.Steps()
	if len(steps) != 2 {
		t.Fatalf("expected the queued canceled step to eventually drain, got %d steps: %+v", len(steps), steps)
	}
}

func TestSanitizeThinkingStripsMarkers(t *testing.T) {
	in := "before <thinking>secret plan</thinking> after"
	out := SanitizeThinking(in)
	if out != "before  after" && out != "before after" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}
