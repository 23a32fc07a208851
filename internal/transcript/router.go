package transcript

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/turnctl/internal/datetime"
	"github.com/haasonsaas/turnctl/pkg/models"
)

// Intent is the kind of follow-up question asked about an already
// transcribed video.
type Intent string

const (
	IntentNone    Intent = "none"
	IntentContent Intent = "content"
	IntentSegment Intent = "segment"
	IntentSummary Intent = "summary"
)

// Cue regexes are intentionally loose and multilingual (spec §4.9): a
// false positive just means the router hands the model an already-fetched
// transcript it didn't strictly need, which is harmless; a false negative
// means an extra, avoidable video_transcript call.
var (
	contentCues = regexp.MustCompile(`(?i)\b(what does (it|he|she|they) say|what (is|was) said|transcript|captions?|full text|qué dice|de quoi (ça|cela) parle)\b`)
	segmentCues = regexp.MustCompile(`(?i)\b(at (the )?(timestamp|minute|second)|around \d{1,2}:\d{2}|between .* and .*|en el minuto)\b`)
	summaryCues = regexp.MustCompile(`(?i)\b(summarize|summary|tl;dr|in short|give me the gist|resume|résumé|résume)\b`)
)

// ClassifyHeuristic applies the regex cues, returning IntentNone if
// nothing matches. Checked in segment > summary > content priority since
// a timestamp reference is the most specific signal.
func ClassifyHeuristic(prompt string) Intent {
	switch {
	case segmentCues.MatchString(prompt):
		return IntentSegment
	case summaryCues.MatchString(prompt):
		return IntentSummary
	case contentCues.MatchString(prompt):
		return IntentContent
	default:
		return IntentNone
	}
}

const classifierSystemPrompt = `Classify whether the user's message is a follow-up
question about a video transcript already retrieved earlier in this
conversation. Respond with JSON only:
{"intent": "none" | "content" | "segment" | "summary"}`

// Completer runs one non-streamed completion and returns its full text.
// It is the narrow seam transcript uses to reach an LLM provider without
// importing internal/agent, which in turn imports this package for
// FindTranscript/BuildInjection — a direct import would cycle.
type Completer func(ctx context.Context, model, system, prompt string) (string, error)

// Classify runs the heuristic classifier first and only falls back to an
// LLM JSON-only classification when no cue matched, keeping the common
// case free of an extra model round trip.
func Classify(ctx context.Context, complete Completer, model, prompt string) Intent {
	if intent := ClassifyHeuristic(prompt); intent != IntentNone {
		return intent
	}
	if complete == nil {
		return IntentNone
	}

	text, err := complete(ctx, model, classifierSystemPrompt, prompt)
	if err != nil {
		return IntentNone
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return IntentNone
	}

	var parsed struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return IntentNone
	}

	switch Intent(parsed.Intent) {
	case IntentContent, IntentSegment, IntentSummary:
		return Intent(parsed.Intent)
	default:
		return IntentNone
	}
}

// FindTranscript scans history (oldest first) for the most recent
// completed video_transcript tool call whose url parameter matches url
// (per Normalize), returning its result content and the timestamp of the
// tool-result message that produced it.
func FindTranscript(history []*models.Message, videoURL string) (content string, fetchedAt time.Time, found bool) {
	target := Normalize(videoURL)

	results := make(map[string]models.ToolResult)
	resultTimestamps := make(map[string]time.Time)
	for _, msg := range history {
		if msg == nil || msg.Role != models.RoleTool {
			continue
		}
		for _, r := range msg.ToolResults {
			if r.ToolCallID != "" && !r.IsError {
				results[r.ToolCallID] = r
				resultTimestamps[r.ToolCallID] = msg.CreatedAt
			}
		}
	}

	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg == nil || msg.Role != models.RoleAssistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			if call.Name != "video_transcript" {
				continue
			}
			callURL, ok := extractURL(call.Input)
			if !ok || !SameVideo(callURL, target) {
				continue
			}
			if result, ok := results[call.ID]; ok {
				return result.Content, resultTimestamps[call.ID], true
			}
		}
	}
	return "", time.Time{}, false
}

// LastVideoURL scans history (most recent first) for the last
// video_transcript or video_probe call's url parameter, for turns where
// the follow-up message itself carries no URL to match against.
func LastVideoURL(history []*models.Message) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg == nil || msg.Role != models.RoleAssistant {
			continue
		}
		for j := len(msg.ToolCalls) - 1; j >= 0; j-- {
			call := msg.ToolCalls[j]
			if call.Name != "video_transcript" && call.Name != "video_probe" {
				continue
			}
			if url, ok := extractURL(call.Input); ok {
				return url, true
			}
		}
	}
	return "", false
}

func extractURL(input json.RawMessage) (string, bool) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", false
	}
	if params.URL == "" {
		return "", false
	}
	return params.URL, true
}

// BuildInjection synthesizes an assistant/tool message pair that hands
// the model the already-fetched transcript without a real tool round
// trip, in a shape transcript_repair.go's pending/pendingOrder pairing
// already accepts (a tool_call id matched by exactly one tool result). If
// fetchedAt is non-zero, the injected content is prefixed with a
// human-readable age ("fetched 5 minutes ago") so the model doesn't
// present stale data as if it had just been retrieved.
func BuildInjection(videoURL, transcriptContent string, fetchedAt time.Time) (*models.Message, *models.Message) {
	id := "followup-" + uuid.New().String()

	content := transcriptContent
	if !fetchedAt.IsZero() {
		content = "[fetched " + datetime.FormatRelativeTime(fetchedAt, time.Now()) + "]\n" + transcriptContent
	}

	input, _ := json.Marshal(map[string]string{"url": videoURL})
	assistantMsg := &models.Message{
		Role: models.RoleAssistant,
		ToolCalls: []models.ToolCall{
			{ID: id, Name: "video_transcript", Input: input},
		},
	}
	toolMsg := &models.Message{
		Role: models.RoleTool,
		ToolResults: []models.ToolResult{
			{ToolCallID: id, Content: content},
		},
	}
	return assistantMsg, toolMsg
}
