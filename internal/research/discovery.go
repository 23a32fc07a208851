package research

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// QueryAttempt is one reformulated candidate query.
type QueryAttempt struct {
	Query    string
	Strategy string
}

var (
	adjectiveRegex = regexp.MustCompile(`(?i)\b(very|extremely|highly|novel|innovative|advanced|comprehensive|detailed|cutting-edge|state-of-the-art)\b`)
	connectorSplit = regexp.MustCompile(`(?i)\s+\b(and|or|for|in|with|using|about|regarding)\b\s+`)
	multiSpace     = regexp.MustCompile(`\s{2,}`)
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "to": true, "on": true,
	"is": true, "are": true, "research": true, "study": true, "studies": true,
	"paper": true, "papers": true, "please": true, "find": true, "me": true,
	"about": true, "for": true, "and": true,
}

func stripAdjectives(q string) string {
	out := adjectiveRegex.ReplaceAllString(q, "")
	return strings.TrimSpace(multiSpace.ReplaceAllString(out, " "))
}

func firstClause(q string) string {
	parts := connectorSplit.Split(q, 2)
	return strings.TrimSpace(parts[0])
}

func coreTerms(q string) string {
	words := strings.Fields(q)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		clean := strings.ToLower(strings.Trim(w, ".,?!\"'"))
		if clean == "" || stopwords[clean] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

func academicDirect(q string) string {
	return coreTerms(q) + " academic paper site:arxiv.org OR site:acm.org OR site:ieee.org"
}

// GenerateQueries produces up to max distinct reformulations of original
// (spec §4.8: original, simplified, sub_query, broadened, academic_skill_direct),
// deduplicated case-insensitively, in that priority order.
func GenerateQueries(original string, max int) []QueryAttempt {
	if max <= 0 {
		max = 5
	}
	candidates := []QueryAttempt{
		{Query: strings.TrimSpace(original), Strategy: "original"},
		{Query: stripAdjectives(original), Strategy: "simplified"},
		{Query: firstClause(original), Strategy: "sub_query"},
		{Query: coreTerms(original), Strategy: "broadened"},
		{Query: academicDirect(original), Strategy: "academic_skill_direct"},
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]QueryAttempt, 0, len(candidates))
	for _, c := range candidates {
		if c.Query == "" {
			continue
		}
		key := strings.ToLower(c.Query)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if len(out) >= max {
			break
		}
	}
	return out
}

// earlyStopPaperCount is the recall-permissive early-stop threshold: once
// this many distinct papers are discovered, further reformulations are
// skipped even if recall attempts remain (spec §4.8).
const earlyStopPaperCount = 10

// Discover runs the recall-permissive paper discovery loop against a
// State's SearchQuery, mutating DiscoveredPapers, QueriesAttempted,
// RecallAttempts, and RecallExhausted in place.
func Discover(ctx context.Context, searcher Searcher, state *State) error {
	queries := GenerateQueries(state.SearchQuery, state.MaxRecallAttempts)

	seen := make(map[string]bool, len(state.DiscoveredPapers))
	for _, p := range state.DiscoveredPapers {
		seen[strings.ToLower(p.URL)] = true
	}

	for _, q := range queries {
		if state.RecallAttempts >= state.MaxRecallAttempts {
			break
		}
		if len(state.DiscoveredPapers) >= earlyStopPaperCount {
			break
		}
		state.RecallAttempts++

		papers, err := searcher.Search(ctx, q.Query)
		attempt := DiscoveryAttempt{
			AttemptNumber: state.RecallAttempts,
			Query:         q.Query,
			Strategy:      q.Strategy,
			Timestamp:     time.Now(),
		}
		if err != nil {
			attempt.ResultsFound = 0
			state.QueriesAttempted = append(state.QueriesAttempted, attempt)
			continue
		}

		attempt.ResultsFound = len(papers)
		for _, p := range papers {
			key := strings.ToLower(p.URL)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			state.DiscoveredPapers = append(state.DiscoveredPapers, p)
		}
		state.QueriesAttempted = append(state.QueriesAttempted, attempt)
	}

	if state.RecallAttempts >= state.MaxRecallAttempts {
		state.RecallExhausted = true
	}
	return nil
}

// minValidPapersForSynthesis is Discovery Validation's routing threshold
// (spec §4.8): below this, the graph either recovers or halts rather than
// proceeding to synthesis.
const minValidPapersForSynthesis = 3

// ValidatePapers filters DiscoveredPapers down to ValidPapers (non-empty
// title and URL) and returns the valid count. Never fatal: malformed
// results are dropped silently, not treated as an error.
func ValidatePapers(state *State) int {
	valid := make([]Paper, 0, len(state.DiscoveredPapers))
	for _, p := range state.DiscoveredPapers {
		if strings.TrimSpace(p.Title) != "" && strings.TrimSpace(p.URL) != "" {
			valid = append(valid, p)
		}
	}
	state.ValidPapers = valid
	return len(valid)
}

// Recover spends any remaining recall budget on the broadened and
// academic_skill_direct reformulations, for when Discovery Validation
// routes back because paperCount fell short of minValidPapersForSynthesis.
func Recover(ctx context.Context, searcher Searcher, state *State) error {
	if state.RecallAttempts >= state.MaxRecallAttempts {
		state.RecallExhausted = true
		return nil
	}

	extra := []QueryAttempt{
		{Query: coreTerms(state.SearchQuery), Strategy: "broadened"},
		{Query: academicDirect(state.SearchQuery), Strategy: "academic_skill_direct"},
	}

	seen := make(map[string]bool, len(state.DiscoveredPapers))
	for _, p := range state.DiscoveredPapers {
		seen[strings.ToLower(p.URL)] = true
	}

	for _, q := range extra {
		if state.RecallAttempts >= state.MaxRecallAttempts {
			break
		}
		if q.Query == "" {
			continue
		}
		state.RecallAttempts++

		papers, err := searcher.Search(ctx, q.Query)
		attempt := DiscoveryAttempt{
			AttemptNumber: state.RecallAttempts,
			Query:         q.Query,
			Strategy:      q.Strategy,
			Timestamp:     time.Now(),
		}
		if err != nil {
			state.QueriesAttempted = append(state.QueriesAttempted, attempt)
			continue
		}
		attempt.ResultsFound = len(papers)
		for _, p := range papers {
			key := strings.ToLower(p.URL)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			state.DiscoveredPapers = append(state.DiscoveredPapers, p)
		}
		state.QueriesAttempted = append(state.QueriesAttempted, attempt)
	}

	if state.RecallAttempts >= state.MaxRecallAttempts {
		state.RecallExhausted = true
	}
	return nil
}
