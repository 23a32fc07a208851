package timeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/turnctl/internal/artifacts"
	"github.com/haasonsaas/turnctl/pkg/models"
)

func navigateEvent(url string, at time.Time) *models.ToolEvent {
	input, _ := json.Marshal(map[string]string{"action": "navigate", "url": url})
	return &models.ToolEvent{
		ToolCallID: "call-1",
		ToolName:   "browser",
		Stage:      models.ToolEventSucceeded,
		Input:      input,
		Output:     "Successfully navigated to " + url,
		FinishedAt: at,
	}
}

func screenshotEvent(at time.Time) *models.ToolEvent {
	input, _ := json.Marshal(map[string]string{"action": "screenshot"})
	return &models.ToolEvent{
		ToolCallID: "call-2",
		ToolName:   "browser",
		Stage:      models.ToolEventSucceeded,
		Input:      input,
		Output:     "Screenshot captured (base64): aGVsbG8=...",
		FinishedAt: at,
	}
}

func TestCollectorOrdersStepsByObservation(t *testing.T) {
	c := NewCollector()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	c.ObserveToolEvent(navigateEvent("https://example.com?utm_source=x", base))
	c.ObserveToolEvent(screenshotEvent(base.Add(time.Second)))
	c.ObserveClosed()

	steps := c.Steps()
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d: %+v", len(steps), steps)
	}
	if steps[0].Kind != StepBrowserAction || steps[0].URL != "https://example.com" {
		t.Fatalf("unexpected first step: %+v", steps[0])
	}
	if steps[1].Kind != StepBrowserScreenshot || steps[1].Screenshot != "aGVsbG8=..." {
		t.Fatalf("unexpected second step: %+v", steps[1])
	}
	if steps[2].Kind != StepBrowserClosed {
		t.Fatalf("unexpected third step: %+v", steps[2])
	}
}

func TestCollectorReplayRoundTrip(t *testing.T) {
	c := NewCollector()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	c.ObserveToolEvent(navigateEvent("https://example.com", base))
	c.ObserveToolEvent(screenshotEvent(base.Add(time.Second)))

	original := c.Steps()

	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var replayed []ComputerTimelineStep
	if err := json.Unmarshal(encoded, &replayed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(replayed) != len(original) {
		t.Fatalf("replayed length mismatch: got %d want %d", len(replayed), len(original))
	}
	for i := range original {
		if replayed[i] != original[i] {
			t.Fatalf("step %d mismatch: got %+v want %+v", i, replayed[i], original[i])
		}
	}
}

func TestCollectorIgnoresUnrelatedTools(t *testing.T) {
	c := NewCollector()
	c.ObserveToolEvent(&models.ToolEvent{
		ToolName: "calculator",
		Stage:    models.ToolEventSucceeded,
		Output:   "4",
	})
	if len(c.Steps()) != 0 {
		t.Fatalf("expected no steps for unrelated tool")
	}
}

func TestCollectorSkipsInFlightToolEvents(t *testing.T) {
	c := NewCollector()
	c.ObserveToolEvent(&models.ToolEvent{
		ToolName: "browser",
		Stage:    models.ToolEventStarted,
		Input:    json.RawMessage(`{"action":"navigate","url":"https://example.com"}`),
	})
	if len(c.Steps()) != 0 {
		t.Fatalf("expected no steps before the tool call finishes")
	}
}

func TestCollectorRecordsFailureDetail(t *testing.T) {
	c := NewCollector()
	c.ObserveToolEvent(&models.ToolEvent{
		ToolName: "browser",
		Stage:    models.ToolEventFailed,
		Input:    json.RawMessage(`{"action":"click","selector":"#missing"}`),
		Error:    "no such element",
	})
	steps := c.Steps()
	if len(steps) != 1 || steps[0].Detail != "no such element" {
		t.Fatalf("unexpected steps: %+v", steps)
	}
}

func TestCollectorSuppressesSearchAfterBrowserActivity(t *testing.T) {
	c := NewCollector()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	c.ObserveToolEvent(navigateEvent("https://example.com", base))
	c.ObserveToolEvent(&models.ToolEvent{
		ToolName:   "web_search",
		Stage:      models.ToolEventSucceeded,
		Output:     "search results",
		FinishedAt: base.Add(time.Second),
	})

	steps := c.Steps()
	if len(steps) != 1 {
		t.Fatalf("expected web_search step to be suppressed, got %+v", steps)
	}
}

func TestCollectorRecordsBareSearch(t *testing.T) {
	c := NewCollector()
	c.ObserveToolEvent(&models.ToolEvent{
		ToolName: "web_search",
		Stage:    models.ToolEventSucceeded,
		Output:   "search results",
	})

	steps := c.Steps()
	if len(steps) != 1 || steps[0].Kind != StepToolComplete {
		t.Fatalf("unexpected steps: %+v", steps)
	}
}

func TestNormalizeURLStripsTrackingParams(t *testing.T) {
	in := "https://example.com/path?utm_source=news&id=42&fbclid=abc"
	out := NormalizeURL(in)
	if out != "https://example.com/path?id=42" {
		t.Fatalf("unexpected normalized url: %s", out)
	}
}

func TestNormalizeURLLeavesCleanURLUnchanged(t *testing.T) {
	in := "https://example.com/path?id=42"
	if out := NormalizeURL(in); out != in {
		t.Fatalf("expected unchanged url, got %s", out)
	}
}

func TestNormalizeURLLeavesMalformedURLUnchanged(t *testing.T) {
	in := "://not a url"
	if out := NormalizeURL(in); out != in {
		t.Fatalf("expected malformed url to pass through unchanged, got %s", out)
	}
}

func TestPersistScreenshotsOffloadsInlineData(t *testing.T) {
	c := NewCollector()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	input, _ := json.Marshal(map[string]string{"action": "screenshot"})
	c.ObserveToolEvent(&models.ToolEvent{
		ToolCallID: "call-1",
		ToolName:   "browser",
		Stage:      models.ToolEventSucceeded,
		Input:      input,
		Output:     "Screenshot captured (base64): aGVsbG8gd29ybGQ=",
		FinishedAt: base,
	})

	store, err := artifacts.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	defer store.Close()
	repo := artifacts.NewMemoryRepository(store, nil)

	if err := c.PersistScreenshots(context.Background(), repo); err != nil {
		t.Fatalf("PersistScreenshots: %v", err)
	}

	steps := c.Steps()
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	if steps[0].Screenshot != "" {
		t.Fatalf("expected inline screenshot to be cleared, got %q", steps[0].Screenshot)
	}
	if steps[0].ArtifactID == "" {
		t.Fatalf("expected an artifact id to be assigned")
	}

	artifact, data, err := repo.GetArtifact(context.Background(), steps[0].ArtifactID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	defer data.Close()
	if artifact.Type != "screenshot" {
		t.Fatalf("expected screenshot artifact type, got %s", artifact.Type)
	}
}

func TestPersistScreenshotsNoopWithoutRepository(t *testing.T) {
	c := NewCollector()
	if err := c.PersistScreenshots(context.Background(), nil); err != nil {
		t.Fatalf("expected nil repo to be a no-op, got error: %v", err)
	}
}
