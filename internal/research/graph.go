package research

import (
	"github.com/haasonsaas/turnctl/internal/agent"
	"github.com/haasonsaas/turnctl/internal/graph"
)

// Node ids for the research scenario graph (spec §4.8).
const (
	NodeIntentParsing = "intent_parsing"
	NodeDiscover      = "discover"
	NodeValidate      = "validate"
	NodeRecover       = "recover"
	NodeHalt          = "halt"
	NodeSummarize     = "summarize"
	NodeCompare       = "compare"
	NodeSynthesize    = "synthesize"
	NodeFinalWriter   = "final_writer"
)

// BuildGraph wires the full research node set into a *graph.Graph:
// Intent Parsing -> Paper Discovery -> Discovery Validation, which
// conditionally routes to Recall Recovery (looping back to Discovery
// Validation), Halt/Evidence Gap Report, or the summarize/compare/
// synthesize/final-writer chain (spec §4.8).
func BuildGraph(searcher Searcher, provider agent.LLMProvider, model string) *graph.Graph {
	g := graph.New(NodeIntentParsing)

	g.AddNode(&graph.Node{
		ID: NodeIntentParsing,
		Execute: func(s graph.State, _ any) (any, error) {
			st := s.(*State)
			st.ParsedIntent = ParseIntent(st.Ctx, provider, model, st.UserPrompt)
			if st.SearchQuery == "" {
				st.SearchQuery = st.UserPrompt
			}
			return nil, nil
		},
		Edge: NodeDiscover,
	})

	g.AddNode(&graph.Node{
		ID: NodeDiscover,
		Execute: func(s graph.State, _ any) (any, error) {
			st := s.(*State)
			return nil, Discover(st.Ctx, searcher, st)
		},
		Edge: NodeValidate,
	})

	g.AddNode(&graph.Node{
		ID: NodeValidate,
		Execute: func(s graph.State, _ any) (any, error) {
			st := s.(*State)
			ValidatePapers(st)
			return nil, nil
		},
		Conditional: &graph.ConditionalEdge{
			Condition: func(s graph.State) string {
				st := s.(*State)
				switch {
				case len(st.ValidPapers) >= minValidPapersForSynthesis:
					return "enough"
				case !st.RecallExhausted:
					return "recover"
				default:
					return "halt"
				}
			},
			Routes: map[string]string{
				"enough":  NodeSummarize,
				"recover": NodeRecover,
				"halt":    NodeHalt,
			},
		},
	})

	g.AddNode(&graph.Node{
		ID: NodeRecover,
		Execute: func(s graph.State, _ any) (any, error) {
			st := s.(*State)
			return nil, Recover(st.Ctx, searcher, st)
		},
		Edge: NodeValidate,
	})

	g.AddNode(&graph.Node{
		ID: NodeHalt,
		Execute: func(s graph.State, _ any) (any, error) {
			st := s.(*State)
			st.EvidenceGapReport = BuildEvidenceGapReport(st)
			return nil, nil
		},
		Edge: graph.EndNode,
	})

	g.AddNode(&graph.Node{
		ID: NodeSummarize,
		Execute: func(s graph.State, _ any) (any, error) {
			Summarize(s.(*State))
			return nil, nil
		},
		Edge: NodeCompare,
	})

	g.AddNode(&graph.Node{
		ID: NodeCompare,
		Execute: func(s graph.State, _ any) (any, error) {
			Compare(s.(*State))
			return nil, nil
		},
		Edge: NodeSynthesize,
	})

	g.AddNode(&graph.Node{
		ID: NodeSynthesize,
		Execute: func(s graph.State, _ any) (any, error) {
			st := s.(*State)
			return nil, Synthesize(st)
		},
		Postconditions: []graph.Postcondition{
			func(s graph.State, _ any) (error, bool) {
				st := s.(*State)
				if err := ClaimsCiteValidPapers(st.SynthesizedClaims, st.ValidPapers); err != nil {
					return err, true
				}
				return nil, false
			},
		},
		Edge: NodeFinalWriter,
	})

	g.AddNode(&graph.Node{
		ID: NodeFinalWriter,
		Execute: func(s graph.State, _ any) (any, error) {
			FinalWriter(s.(*State))
			return nil, nil
		},
		Edge: graph.EndNode,
	})

	return g
}

// Run executes the research graph end to end for one request, returning
// the final state. Status is always StatusCompleted unless graph.Execute
// hits an unhandled fatal error (e.g. Synthesize is called with zero
// valid papers, which Discovery Validation's routing is designed to
// prevent).
func Run(state *State, g *graph.Graph) graph.Result {
	return graph.Execute(g, state)
}
