// Package graph implements the Deterministic Scenario Graph Engine: a
// generic node/edge executor with preconditions, postconditions, and
// deterministic conditional routing (spec §4.7).
//
// Grounded in kadirpekel-hector/workflow for the status/step vocabulary
// and the shared-state execution-context shape (ExecutionContext's
// mutex-guarded sharedState/errors/results), adapted here to the
// precondition -> execute -> postcondition -> updateState node
// lifecycle spec.md actually asks for, which hector's own executor does
// not model (hector's nodes are agent/tool/condition steps without a
// pre/postcondition gate). The graph shares no state with the turn loop
// except identity ids (spec §9): it is not the loop with fewer features.
package graph

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Status is the terminal outcome of a graph execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// EndNode is the sentinel "to" id meaning the graph terminates normally.
const EndNode = "END"

// FailureHandlerNode is the conventional node id consulted when a fatal
// precondition or postcondition fails, if present in the graph.
const FailureHandlerNode = "failure_handler"

// State is the caller-defined, mutable execution state threaded through
// every node. Implementations embed whatever domain fields they need;
// the engine only calls the hooks below.
type State interface {
	// CurrentNode reports/records the node the state believes it is at,
	// purely for diagnostics; the engine is the source of truth for
	// control flow.
	CurrentNode() string
	SetCurrentNode(id string)
	AddError(err error)
	AddWarning(msg string)
}

// Precondition is checked before a node executes. A non-nil, fatal error
// aborts the run (routing to the failure handler if present).
type Precondition func(state State) (err error, fatal bool)

// Postcondition is checked after a node executes, given its output.
type Postcondition func(state State, output any) (err error, fatal bool)

// NodeFunc executes the node's work.
type NodeFunc func(state State, input any) (output any, err error)

// UpdateState folds a node's output into the shared state.
type UpdateState func(state State, output any) State

// ConditionalEdge routes to one of a set of named destinations based on
// a condition evaluated against the post-update state.
type ConditionalEdge struct {
	Condition func(state State) string
	Routes    map[string]string // routeKey -> destination node id (or EndNode)
}

// Node is one stage of the graph.
type Node struct {
	ID               string
	Preconditions    []Precondition
	Postconditions   []Postcondition
	Execute          NodeFunc
	UpdateState      UpdateState
	Edge             string           // plain "from -> to" edge, consulted after conditional edges
	Conditional      *ConditionalEdge
}

// Graph is a generic DAG of Nodes with a single entry point.
type Graph struct {
	EntryPoint string
	Nodes      map[string]*Node
}

// New constructs an empty graph with the given entry point.
func New(entryPoint string) *Graph {
	return &Graph{EntryPoint: entryPoint, Nodes: make(map[string]*Node)}
}

// AddNode registers a node.
func (g *Graph) AddNode(n *Node) {
	g.Nodes[n.ID] = n
}

// ExecutionStep is one entry of the recorded execution path.
type ExecutionStep struct {
	NodeID string
	Status Status
	Error  string
}

// Result is the outcome of Execute.
type Result struct {
	Status         Status
	ExecutionPath  []ExecutionStep
	FinalState     State
	Errors         []error
}

// Execute runs the graph from EntryPoint until it reaches EndNode, a
// fatal precondition/postcondition failure with no failure_handler, or
// there is no node for the computed next id.
func Execute(g *Graph, initial State) Result {
	state := initial
	nodeID := g.EntryPoint
	var path []ExecutionStep
	var errs []error

	for {
		if nodeID == EndNode {
			return Result{Status: StatusCompleted, ExecutionPath: path, FinalState: state, Errors: errs}
		}

		node, ok := g.Nodes[nodeID]
		if !ok {
			errs = append(errs, fmt.Errorf("graph: no such node %q", nodeID))
			return Result{Status: StatusFailed, ExecutionPath: path, FinalState: state, Errors: errs}
		}
		state.SetCurrentNode(nodeID)

		if fatal, err, handled := runPreconditions(g, node, state, &path, &errs); fatal {
			if handled {
				nodeID = FailureHandlerNode
				continue
			}
			_ = err
			return Result{Status: StatusFailed, ExecutionPath: path, FinalState: state, Errors: errs}
		}

		output, err := node.Execute(state, nil)
		if err != nil {
			errs = append(errs, err)
			state.AddError(err)
			path = append(path, ExecutionStep{NodeID: nodeID, Status: StatusFailed, Error: err.Error()})
			return Result{Status: StatusFailed, ExecutionPath: path, FinalState: state, Errors: errs}
		}

		if fatal, perr, handled := runPostconditions(g, node, state, output, &path, &errs); fatal {
			if handled {
				nodeID = FailureHandlerNode
				continue
			}
			_ = perr
			return Result{Status: StatusFailed, ExecutionPath: path, FinalState: state, Errors: errs}
		}

		if node.UpdateState != nil {
			state = node.UpdateState(state, output)
		}

		path = append(path, ExecutionStep{NodeID: nodeID, Status: StatusCompleted})

		nodeID = nextNode(g, node, state)
	}
}

// preconditionResult carries the outcome of one independent check so
// runPreconditions can fan them out concurrently (via errgroup) and then
// resolve fatality deterministically in declaration order, regardless of
// which goroutine finishes first.
type preconditionResult struct {
	err   error
	fatal bool
}

func runPreconditions(g *Graph, node *Node, state State, path *[]ExecutionStep, errs *[]error) (fatal bool, err error, handled bool) {
	if len(node.Preconditions) == 0 {
		return false, nil, false
	}

	results := make([]preconditionResult, len(node.Preconditions))
	if len(node.Preconditions) > 1 {
		var eg errgroup.Group
		for i, pre := range node.Preconditions {
			i, pre := i, pre
			eg.Go(func() error {
				e, isFatal := pre(state)
				results[i] = preconditionResult{err: e, fatal: isFatal}
				return nil
			})
		}
		_ = eg.Wait()
	} else {
		e, isFatal := node.Preconditions[0](state)
		results[0] = preconditionResult{err: e, fatal: isFatal}
	}

	for _, res := range results {
		if res.err == nil {
			continue
		}
		*errs = append(*errs, res.err)
		if res.fatal {
			state.AddError(res.err)
			*path = append(*path, ExecutionStep{NodeID: node.ID, Status: StatusFailed, Error: res.err.Error()})
			_, hasHandler := g.Nodes[FailureHandlerNode]
			return true, res.err, hasHandler
		}
		state.AddWarning(res.err.Error())
	}
	return false, nil, false
}

func runPostconditions(g *Graph, node *Node, state State, output any, path *[]ExecutionStep, errs *[]error) (fatal bool, err error, handled bool) {
	for _, post := range node.Postconditions {
		if e, isFatal := post(state, output); e != nil {
			*errs = append(*errs, e)
			if isFatal {
				state.AddError(e)
				*path = append(*path, ExecutionStep{NodeID: node.ID, Status: StatusFailed, Error: e.Error()})
				_, hasHandler := g.Nodes[FailureHandlerNode]
				return true, e, hasHandler
			}
			state.AddWarning(e.Error())
		}
	}
	return false, nil, false
}

func nextNode(g *Graph, node *Node, state State) string {
	if node.Conditional != nil {
		key := node.Conditional.Condition(state)
		if dest, ok := node.Conditional.Routes[key]; ok {
			return dest
		}
	}
	if node.Edge != "" {
		return node.Edge
	}
	return EndNode
}
