package context

import "testing"

func TestContextWindowForModelPrefersCatalog(t *testing.T) {
	if got := ContextWindowForModel("gpt-4o"); got != 128000 {
		t.Fatalf("expected catalog context window 128000, got %d", got)
	}
}

func TestContextWindowForModelFallsBackToStaticTable(t *testing.T) {
	if got := ContextWindowForModel("claude-3-opus"); got != 200000 {
		t.Fatalf("expected fallback-table context window 200000, got %d", got)
	}
}

func TestContextWindowForModelUnknownUsesDefault(t *testing.T) {
	if got := ContextWindowForModel("some-unknown-model"); got != DefaultModelContextWindow {
		t.Fatalf("expected default context window, got %d", got)
	}
}
