// Package research implements the Research Graph Nodes: a recall-permissive
// paper discovery pipeline wired into internal/graph (spec §4.8). It leans on
// internal/tools/websearch for retrieval rather than reimplementing search,
// and on internal/graph for the node/edge execution contract the turn loop
// already uses for scenario graphs.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/turnctl/internal/agent"
	"github.com/haasonsaas/turnctl/internal/tools/websearch"
)

// Paper is a discovered candidate source.
type Paper struct {
	ID      string
	Title   string
	URL     string
	Snippet string
	Source  string // the query/strategy that surfaced it
}

// Searcher abstracts paper retrieval so the graph nodes do not depend on
// websearch's backend selection, caching, or rate limiting.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Paper, error)
}

// ToolSearcher adapts any agent.Tool (normally *websearch.WebSearchTool) into
// a Searcher by calling Execute and decoding its JSON ToolResult content,
// the same contract internal/agent's executor uses for every other tool.
type ToolSearcher struct {
	Tool agent.Tool
}

func (s ToolSearcher) Search(ctx context.Context, query string) ([]Paper, error) {
	params, err := json.Marshal(websearch.SearchParams{
		Query: query,
		Type:  websearch.SearchTypeWeb,
	})
	if err != nil {
		return nil, fmt.Errorf("research: marshal search params: %w", err)
	}

	result, err := s.Tool.Execute(ctx, params)
	if err != nil {
		return nil, err
	}
	if result.IsError {
		return nil, fmt.Errorf("research: search tool error: %s", result.Content)
	}

	var resp websearch.SearchResponse
	if err := json.Unmarshal([]byte(result.Content), &resp); err != nil {
		return nil, fmt.Errorf("research: decode search response: %w", err)
	}

	papers := make([]Paper, 0, len(resp.Results))
	for i, r := range resp.Results {
		papers = append(papers, Paper{
			ID:      fmt.Sprintf("p-%d-%s", i, shortHash(r.URL)),
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Snippet,
			Source:  query,
		})
	}
	return papers, nil
}

func shortHash(s string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return fmt.Sprintf("%x", h)
}

// Intent is the parsed shape of a user request at the research graph's
// entry point.
type Intent string

const (
	IntentResearch Intent = "research"
	IntentPPT      Intent = "ppt"
	IntentSummary  Intent = "summary"
	IntentGeneral  Intent = "general_chat"
)

// ParsedIntent is Intent Parsing's output.
type ParsedIntent struct {
	Kind       Intent
	Confidence float64
}

// DiscoveryAttempt records one search attempt for the Evidence Gap Report
// and for recall-exhaustion bookkeeping.
type DiscoveryAttempt struct {
	AttemptNumber int
	Query         string
	Strategy      string
	ResultsFound  int
	Timestamp     time.Time
}

// Claim is one synthesized statement with its supporting evidence.
type Claim struct {
	Text               string
	SupportingPaperIDs []string
}

// PaperSummary is one paper's condensed summary.
type PaperSummary struct {
	PaperID string
	Summary string
}

const intentSystemPrompt = `Classify the user's request into exactly one of:
research, ppt, summary, general_chat.
Respond with JSON only: {"intent": "<one of the above>", "confidence": <0..1>}`

// ParseIntent classifies the user's prompt. On any parse failure it
// defaults to general_chat at confidence 0.5 rather than failing the turn
// (spec §4.8: intent parsing is advisory, never fatal).
func ParseIntent(ctx context.Context, provider agent.LLMProvider, model, prompt string) ParsedIntent {
	fallback := ParsedIntent{Kind: IntentGeneral, Confidence: 0.5}
	if provider == nil {
		return fallback
	}

	req := &agent.CompletionRequest{
		Model:  model,
		System: intentSystemPrompt,
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: prompt},
		},
	}
	chunks, err := provider.Complete(ctx, req)
	if err != nil {
		return fallback
	}

	var text strings.Builder
	for chunk := range chunks {
		if chunk == nil {
			continue
		}
		text.WriteString(chunk.Text)
	}

	raw := extractJSON(text.String())
	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fallback
	}

	switch Intent(parsed.Intent) {
	case IntentResearch, IntentPPT, IntentSummary, IntentGeneral:
		return ParsedIntent{Kind: Intent(parsed.Intent), Confidence: parsed.Confidence}
	default:
		return fallback
	}
}

// extractJSON pulls the first {...} object out of a possibly chatty
// completion, tolerating a model that wraps JSON in prose or code fences.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return s[start : end+1]
}
