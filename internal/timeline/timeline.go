// Package timeline builds the Computer Timeline: an ordered record of
// browser-like activity (navigation, screenshots, searches) observed during
// a turn, reduced from the same outbound event stream the turn loop emits
// to callers.
package timeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/turnctl/internal/artifacts"
	"github.com/haasonsaas/turnctl/pkg/models"
	pb "github.com/haasonsaas/turnctl/pkg/proto"
)

// StepKind identifies the reduced event type a ComputerTimelineStep came
// from. These mirror the outbound event type names the spec's event
// stream uses for timeline-facing activity, not the tool registry's own
// ToolEventStage vocabulary.
type StepKind string

const (
	StepBrowserAction     StepKind = "browser.action"
	StepBrowserScreenshot StepKind = "browser.screenshot"
	StepBrowseActivity    StepKind = "browse.activity"
	StepBrowseScreenshot  StepKind = "browse.screenshot"
	StepBrowserClosed     StepKind = "browser.closed"
	StepToolComplete      StepKind = "tool.complete"
)

// ComputerTimelineStep is a derived, persisted record of one browser-like
// step taken during a turn. It is attached to the assistant message that
// produced it and is what the timeline renderer replays.
type ComputerTimelineStep struct {
	Kind       StepKind  `json:"kind"`
	Tool       string    `json:"tool"`
	Action     string    `json:"action,omitempty"`
	URL        string    `json:"url,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Screenshot string    `json:"screenshot,omitempty"`
	ArtifactID string    `json:"artifact_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Collector is a pass-through observer over a turn's outbound tool events.
// It never alters what it observes; it only accumulates a derived,
// ordered list of ComputerTimelineStep for later persistence and replay.
// Safe for concurrent use, though the turn loop emits events from a
// single goroutine per turn.
type Collector struct {
	mu                 sync.Mutex
	steps              []ComputerTimelineStep
	sawBrowserActivity bool
	now                func() time.Time
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{now: time.Now}
}

// ObserveToolEvent inspects one tool lifecycle event and, if it represents
// browser or search activity worth capturing, appends a step. Anything not
// recognized is silently ignored, matching the wrapper's pass-through
// contract: it must never block or alter tool dispatch.
func (c *Collector) ObserveToolEvent(ev *models.ToolEvent) {
	if ev == nil {
		return
	}

	switch ev.ToolName {
	case "browser":
		c.observeBrowserEvent(ev)
	case "web_search":
		c.observeWebSearchEvent(ev)
	}
}

func (c *Collector) observeBrowserEvent(ev *models.ToolEvent) {
	if ev.Stage != models.ToolEventSucceeded && ev.Stage != models.ToolEventFailed {
		return
	}

	var params struct {
		Action string `json:"action"`
		URL    string `json:"url"`
	}
	_ = json.Unmarshal(ev.Input, &params)

	step := ComputerTimelineStep{
		Tool:      "browser",
		Action:    params.Action,
		URL:       NormalizeURL(params.URL),
		Detail:    ev.Output,
		Timestamp: c.stamp(ev),
	}

	switch params.Action {
	case "screenshot":
		step.Kind = StepBrowserScreenshot
		step.Screenshot = extractScreenshotData(ev.Output)
	case "navigate", "click", "type", "execute_js", "wait_for_element", "wait_for_navigation":
		step.Kind = StepBrowserAction
	default:
		step.Kind = StepBrowseActivity
	}

	if ev.Stage == models.ToolEventFailed {
		step.Detail = ev.Error
	}

	c.mu.Lock()
	c.sawBrowserActivity = true
	c.steps = append(c.steps, step)
	c.mu.Unlock()
}

func (c *Collector) observeWebSearchEvent(ev *models.ToolEvent) {
	if ev.Stage != models.ToolEventSucceeded {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sawBrowserActivity {
		// A browser session already narrates this turn's activity; a
		// bare search result on top of it would be a duplicate entry.
		return
	}

	c.steps = append(c.steps, ComputerTimelineStep{
		Kind:      StepToolComplete,
		Tool:      "web_search",
		Detail:    ev.Output,
		Timestamp: c.stamp(ev),
	})
}

// ObserveClosed records that the browser session backing this turn ended,
// e.g. when the tool executor tears down its pooled instance.
func (c *Collector) ObserveClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sawBrowserActivity {
		return
	}
	c.steps = append(c.steps, ComputerTimelineStep{
		Kind:      StepBrowserClosed,
		Tool:      "browser",
		Timestamp: c.now(),
	})
}

// Steps returns a snapshot of the timeline captured so far, in emission
// order. The returned slice is safe to persist as assistant message
// metadata and to replay later.
func (c *Collector) Steps() []ComputerTimelineStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ComputerTimelineStep, len(c.steps))
	copy(out, c.steps)
	return out
}

// PersistScreenshots offloads every captured screenshot's inline base64
// payload to repo, replacing ComputerTimelineStep.Screenshot with an
// ArtifactID reference so the timeline kept on the assistant message
// stays small regardless of how many screenshots a turn captures. It is
// not called from ObserveToolEvent itself so a turn with no configured
// artifact repository keeps screenshots inline, matching
// internal/artifacts.MaxInlineDataBytes's own size threshold for "small
// enough to skip a backend round trip."
func (c *Collector) PersistScreenshots(ctx context.Context, repo artifacts.Repository) error {
	if repo == nil {
		return nil
	}

	c.mu.Lock()
	steps := c.steps
	c.mu.Unlock()

	for i := range steps {
		if steps[i].Screenshot == "" || steps[i].ArtifactID != "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(steps[i].Screenshot)
		if err != nil {
			continue
		}
		artifact := &pb.Artifact{
			Type:     "screenshot",
			MimeType: "image/png",
			Filename: "screenshot.png",
			Size:     int64(len(raw)),
		}
		if err := repo.StoreArtifact(ctx, artifact, bytes.NewReader(raw)); err != nil {
			return err
		}

		c.mu.Lock()
		steps[i].ArtifactID = artifact.Id
		steps[i].Screenshot = ""
		c.mu.Unlock()
	}

	return nil
}

func (c *Collector) stamp(ev *models.ToolEvent) time.Time {
	if !ev.FinishedAt.IsZero() {
		return ev.FinishedAt
	}
	if !ev.StartedAt.IsZero() {
		return ev.StartedAt
	}
	return c.now()
}

// extractScreenshotData pulls the base64 payload out of a browser tool's
// "Screenshot captured (base64): ..." result text.
func extractScreenshotData(output string) string {
	const marker = "base64): "
	idx := strings.Index(output, marker)
	if idx < 0 {
		return ""
	}
	return output[idx+len(marker):]
}

// trackingParams lists query parameters known to track a referral or
// campaign rather than identify a resource. Stripping them lets two
// timeline steps that land on the "same" page compare equal.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"msclkid":      {},
	"mc_cid":       {},
	"mc_eid":       {},
	"igshid":       {},
	"yclid":        {},
	"_ga":          {},
	"ocid":         {},
	"spm":          {},
	"ref_src":      {},
	"ref":          {},
}

// NormalizeURL strips known tracking query parameters from raw. Malformed
// URLs are returned unchanged rather than dropped, since a timeline step
// should never fail to record because of a cosmetic URL quirk.
func NormalizeURL(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	query := parsed.Query()
	changed := false
	for key := range query {
		if _, tracked := trackingParams[strings.ToLower(key)]; tracked {
			query.Del(key)
			changed = true
		}
	}
	if !changed {
		return raw
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
