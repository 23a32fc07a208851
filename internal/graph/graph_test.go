package graph

import (
	"errors"
	"testing"
)

type testState struct {
	current  string
	errs     []error
	warnings []string
	counter  int
}

func (s *testState) CurrentNode() string    { return s.current }
func (s *testState) SetCurrentNode(id string) { s.current = id }
func (s *testState) AddError(err error)     { s.errs = append(s.errs, err) }
func (s *testState) AddWarning(msg string)  { s.warnings = append(s.warnings, msg) }

func TestLinearGraphCompletes(t *testing.T) {
	g := New("start")
	g.AddNode(&Node{
		ID: "start",
		Execute: func(state State, _ any) (any, error) {
			state.(*testState).counter++
			return nil, nil
		},
		Edge: "finish",
	})
	g.AddNode(&Node{
		ID: "finish",
		Execute: func(state State, _ any) (any, error) {
			state.(*testState).counter++
			return nil, nil
		},
		Edge: EndNode,
	})

	result := Execute(g, &testState{})
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (errs=%v)", result.Status, result.Errors)
	}
	if len(result.ExecutionPath) != 2 {
		t.Fatalf("expected 2 steps recorded, got %d", len(result.ExecutionPath))
	}
	if result.FinalState.(*testState).counter != 2 {
		t.Fatalf("expected both nodes to run")
	}
}

func TestFatalPostconditionRoutesToFailureHandler(t *testing.T) {
	g := New("start")
	g.AddNode(&Node{
		ID:      "start",
		Execute: func(State, any) (any, error) { return "bad", nil },
		Postconditions: []Postcondition{
			func(_ State, output any) (error, bool) {
				if output == "bad" {
					return errors.New("postcondition violated"), true
				}
				return nil, false
			},
		},
		Edge: EndNode,
	})
	g.AddNode(&Node{
		ID:      FailureHandlerNode,
		Execute: func(State, any) (any, error) { return "handled", nil },
		Edge:    EndNode,
	})

	result := Execute(g, &testState{})
	if result.Status != StatusCompleted {
		t.Fatalf("expected failure_handler to recover the run, got %s", result.Status)
	}
	found := false
	for _, step := range result.ExecutionPath {
		if step.NodeID == FailureHandlerNode {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected failure_handler node in execution path: %v", result.ExecutionPath)
	}
}

func TestFatalPreconditionWithoutHandlerFails(t *testing.T) {
	g := New("start")
	g.AddNode(&Node{
		ID: "start",
		Preconditions: []Precondition{
			func(State) (error, bool) { return errors.New("missing requirement"), true },
		},
		Execute: func(State, any) (any, error) { return nil, nil },
		Edge:    EndNode,
	})

	result := Execute(g, &testState{})
	if result.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", result.Status)
	}
	if len(result.Errors) == 0 {
		t.Fatalf("expected errors recorded")
	}
}

func TestConditionalEdgeRouting(t *testing.T) {
	g := New("check")
	g.AddNode(&Node{
		ID:      "check",
		Execute: func(State, any) (any, error) { return nil, nil },
		Conditional: &ConditionalEdge{
			Condition: func(s State) string {
				if s.(*testState).counter >= 3 {
					return "enough"
				}
				return "more"
			},
			Routes: map[string]string{"enough": EndNode, "more": "check"},
		},
		UpdateState: func(s State, _ any) State {
			s.(*testState).counter++
			return s
		},
	})

	result := Execute(g, &testState{})
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.FinalState.(*testState).counter != 3 {
		t.Fatalf("expected loop to run exactly 3 times, got %d", result.FinalState.(*testState).counter)
	}
}
