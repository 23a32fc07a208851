package research

import (
	"errors"
	"fmt"
	"strings"
)

const summaryTruncateLen = 240

// Summarize produces one condensed summary per valid paper.
func Summarize(state *State) {
	state.PaperSummaries = state.PaperSummaries[:0]
	for _, p := range state.ValidPapers {
		summary := p.Snippet
		if len(summary) > summaryTruncateLen {
			summary = strings.TrimSpace(summary[:summaryTruncateLen]) + "..."
		}
		state.PaperSummaries = append(state.PaperSummaries, PaperSummary{
			PaperID: p.ID,
			Summary: summary,
		})
	}
}

// Compare builds a flat attribute matrix (paper id -> attribute -> value)
// over the valid papers, the raw material a final writer renders as a
// comparison table.
func Compare(state *State) {
	state.ComparisonMatrix = make(map[string]map[string]string, len(state.ValidPapers))
	for _, p := range state.ValidPapers {
		state.ComparisonMatrix[p.ID] = map[string]string{
			"title":  p.Title,
			"source": p.Source,
			"url":    p.URL,
		}
	}
}

// ErrNoValidPapers is returned by Synthesize when there is nothing to
// ground claims in.
var ErrNoValidPapers = errors.New("research: no valid papers to synthesize from")

// Synthesize derives claims from ValidPapers. Every claim cites at least
// one paper id drawn from ValidPapers; the Synthesis postcondition
// (spec §4.8, fatal) checks this invariant independently via
// ClaimsCiteValidPapers.
func Synthesize(state *State) error {
	if len(state.ValidPapers) == 0 {
		return ErrNoValidPapers
	}

	ids := make([]string, 0, len(state.ValidPapers))
	for _, p := range state.ValidPapers {
		ids = append(ids, p.ID)
	}

	state.SynthesizedClaims = append(state.SynthesizedClaims, Claim{
		Text:               fmt.Sprintf("Across %d source(s), the evidence converges on: %s", len(ids), state.SearchQuery),
		SupportingPaperIDs: ids,
	})

	for _, p := range state.ValidPapers {
		if p.Snippet == "" {
			continue
		}
		state.SynthesizedClaims = append(state.SynthesizedClaims, Claim{
			Text:               p.Snippet,
			SupportingPaperIDs: []string{p.ID},
		})
	}
	return nil
}

// ClaimsCiteValidPapers is the fatal Synthesis postcondition (spec §4.8):
// every claim must cite at least one paper id present in ValidPapers.
func ClaimsCiteValidPapers(claims []Claim, validPapers []Paper) error {
	valid := make(map[string]bool, len(validPapers))
	for _, p := range validPapers {
		valid[p.ID] = true
	}
	for i, c := range claims {
		if len(c.SupportingPaperIDs) == 0 {
			return fmt.Errorf("research: claim %d cites no papers", i)
		}
		ok := false
		for _, id := range c.SupportingPaperIDs {
			if valid[id] {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("research: claim %d cites no paper in the valid set", i)
		}
	}
	return nil
}

// FinalWriter renders SynthesizedClaims and ComparisonMatrix into the
// final markdown report.
func FinalWriter(state *State) {
	var b strings.Builder
	b.WriteString("# Research Synthesis\n\n")
	fmt.Fprintf(&b, "**Query:** %s\n\n", state.SearchQuery)

	if len(state.SynthesizedClaims) > 0 {
		b.WriteString("## Findings\n\n")
		for _, c := range state.SynthesizedClaims {
			fmt.Fprintf(&b, "- %s (sources: %s)\n", c.Text, strings.Join(c.SupportingPaperIDs, ", "))
		}
		b.WriteString("\n")
	}

	if len(state.ValidPapers) > 0 {
		b.WriteString("## Sources\n\n")
		for _, p := range state.ValidPapers {
			fmt.Fprintf(&b, "- [%s](%s)\n", p.Title, p.URL)
		}
	}

	state.FinalReport = b.String()
}

// BuildEvidenceGapReport renders the Halt node's markdown report (seed
// scenario 5): every attempted query, the shortfall against
// minValidPapersForSynthesis, and recommendations for the caller.
func BuildEvidenceGapReport(state *State) string {
	var b strings.Builder
	b.WriteString("# Research Process & Evidence Gap Report\n\n")
	fmt.Fprintf(&b, "**Original query:** %s\n\n", state.SearchQuery)

	b.WriteString("## Queries Attempted\n\n")
	for _, a := range state.QueriesAttempted {
		fmt.Fprintf(&b, "%d. (%s) %q — %d result(s)\n", a.AttemptNumber, a.Strategy, a.Query, a.ResultsFound)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Gaps\n\nOnly %d valid source(s) were found; at least %d are required to synthesize a grounded answer.\n\n",
		len(state.ValidPapers), minValidPapersForSynthesis)

	if len(state.DiscoveredPapers) > 0 {
		b.WriteString("## Partial Results\n\n")
		n := len(state.DiscoveredPapers)
		if n > 5 {
			n = 5
		}
		for _, p := range state.DiscoveredPapers[:n] {
			fmt.Fprintf(&b, "- %s (%s)\n", p.Title, p.URL)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n\n")
	b.WriteString("- Broaden or rephrase the query; consider a more general topic framing.\n")
	b.WriteString("- Try a domain-specific database directly rather than general web search.\n")
	b.WriteString("- Relax date or venue constraints if any were implied by the original request.\n")

	return b.String()
}
