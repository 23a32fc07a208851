package research

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/turnctl/internal/agent"
	"github.com/haasonsaas/turnctl/internal/cache"
	"github.com/haasonsaas/turnctl/internal/graph"
)

// recentQueryTTL bounds how long an identical query is treated as a
// repeat: long enough to catch a model re-issuing the same call inside
// one turn's tool-call loop, short enough that a user legitimately
// re-running the same research topic later in the session isn't
// blocked.
const recentQueryTTL = 2 * time.Minute

// Tool implements agent.Tool, exposing the research scenario graph
// (BuildGraph + graph.Execute) as the "paper_search" tool the Task
// Director already treats as search-class (internal/director.go's
// SearchClassTools), so its quota and "already searched" admission
// rules apply to the whole graph run, not just one query.
type Tool struct {
	searcher Searcher
	provider agent.LLMProvider
	model    string

	recent *cache.DedupeCache
}

// Params is the tool's JSON-schema input.
type Params struct {
	Query string `json:"query"`
}

// NewTool constructs the paper_search tool. provider is used for intent
// parsing (spec §4.8's advisory classification step); it may be nil, in
// which case intent parsing always falls back to general_chat without
// affecting the rest of the graph.
func NewTool(searcher Searcher, provider agent.LLMProvider, model string) *Tool {
	return &Tool{
		searcher: searcher,
		provider: provider,
		model:    model,
		recent:   cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: recentQueryTTL, MaxSize: 64}),
	}
}

func (t *Tool) Name() string { return "paper_search" }

func (t *Tool) Description() string {
	return "Discovers and synthesizes research papers for a topic, running query reformulation, " +
		"recall-exhaustion recovery, and claim synthesis grounded in the discovered sources. " +
		"Returns a Markdown report, or an evidence gap report if no sources could be validated."
}

const paramsSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "The research question or topic to investigate."}
  },
  "required": ["query"]
}`

func (t *Tool) Schema() json.RawMessage { return json.RawMessage(paramsSchema) }

// Execute runs the full discovery/validation/recovery/synthesis graph
// (spec §4.8) for one query and returns either FinalReport or, if
// recall was exhausted before enough papers validated, EvidenceGapReport.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p Params
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid params: %v", err), IsError: true}, nil
	}
	if p.Query == "" {
		return &agent.ToolResult{Content: "query is required", IsError: true}, nil
	}
	if t.recent.Check(p.Query) {
		return &agent.ToolResult{
			Content: fmt.Sprintf("this query was already run in the last %s; use its earlier result instead of repeating it", recentQueryTTL),
			IsError: true,
		}, nil
	}

	state := NewState(ctx, "", "", uuid.NewString(), p.Query)
	g := BuildGraph(t.searcher, t.provider, t.model)
	result := Run(state, g)

	if result.Status != graph.StatusCompleted {
		return &agent.ToolResult{Content: fmt.Sprintf("research graph failed: %v", result.Errors), IsError: true}, nil
	}

	final := result.FinalState.(*State)
	if final.FinalReport != "" {
		return &agent.ToolResult{Content: final.FinalReport}, nil
	}
	return &agent.ToolResult{Content: final.EvidenceGapReport}, nil
}

var _ agent.Tool = (*Tool)(nil)
