package research

import (
	"context"

	"github.com/haasonsaas/turnctl/internal/graph"
)

// State is the Graph Execution State's research extension (spec §3):
// everything the research node set reads and writes as it runs inside
// internal/graph's generic executor.
type State struct {
	// Ctx is the turn's context, threaded through for cancellation;
	// graph.NodeFunc carries no context parameter of its own.
	Ctx context.Context

	SessionID  string
	UserID     string
	RequestID  string
	UserPrompt string

	ParsedIntent ParsedIntent

	currentNode string
	Errors      []error
	Warnings    []string

	SearchQuery       string
	DiscoveredPapers  []Paper
	ValidPapers       []Paper
	RecallAttempts    int
	QueriesAttempted  []DiscoveryAttempt
	MaxRecallAttempts int
	RecallExhausted   bool

	PaperSummaries     []PaperSummary
	ComparisonMatrix   map[string]map[string]string
	SynthesizedClaims  []Claim
	FinalReport        string
	EvidenceGapReport  string
}

// NewState constructs a research State ready to enter the graph at the
// intent_parsing node, with the default recall budget of 5 attempts
// (spec §4.8).
func NewState(ctx context.Context, sessionID, userID, requestID, userPrompt string) *State {
	return &State{
		Ctx:               ctx,
		SessionID:         sessionID,
		UserID:            userID,
		RequestID:         requestID,
		UserPrompt:        userPrompt,
		SearchQuery:       userPrompt,
		MaxRecallAttempts: 5,
		ComparisonMatrix:  make(map[string]map[string]string),
	}
}

var _ graph.State = (*State)(nil)

func (s *State) CurrentNode() string      { return s.currentNode }
func (s *State) SetCurrentNode(id string) { s.currentNode = id }
func (s *State) AddError(err error)       { s.Errors = append(s.Errors, err) }
func (s *State) AddWarning(msg string)    { s.Warnings = append(s.Warnings, msg) }
