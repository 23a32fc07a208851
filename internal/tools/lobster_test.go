package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLobsterExecuteRejectsMissingAction(t *testing.T) {
	tool := NewLobsterTool(LobsterConfig{})
	_, err := tool.Execute(context.Background(), "call-1", json.RawMessage(`{}`))
	if err == nil {
		t.Fatalf("expected error for missing action")
	}
}

func TestLobsterExecuteRejectsUnsafePipelineName(t *testing.T) {
	tool := NewLobsterTool(LobsterConfig{})
	params, err := json.Marshal(LobsterParams{Action: "run", Pipeline: "build; rm -rf /"})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}

	_, err = tool.Execute(context.Background(), "call-1", params)
	if err == nil {
		t.Fatalf("expected error for pipeline containing shell metacharacters")
	}
	if !strings.Contains(err.Error(), "unsafe pipeline") {
		t.Fatalf("expected unsafe pipeline error, got: %v", err)
	}
}

func TestLobsterExecuteRejectsNonAbsoluteLobsterPath(t *testing.T) {
	tool := NewLobsterTool(LobsterConfig{})
	params, err := json.Marshal(LobsterParams{Action: "run", Pipeline: "build", LobsterPath: "relative/lobster"})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}

	_, err = tool.Execute(context.Background(), "call-1", params)
	if err == nil {
		t.Fatalf("expected error for non-absolute lobsterPath")
	}
}

func TestLobsterExecuteRejectsResumeWithoutApprove(t *testing.T) {
	tool := NewLobsterTool(LobsterConfig{})
	params, err := json.Marshal(LobsterParams{Action: "resume", Token: "tok-123"})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}

	_, err = tool.Execute(context.Background(), "call-1", params)
	if err == nil {
		t.Fatalf("expected error when approve is missing")
	}
}

func TestLobsterName(t *testing.T) {
	tool := NewLobsterTool(LobsterConfig{})
	if tool.Name() != "lobster" {
		t.Fatalf("expected lobster, got %s", tool.Name())
	}
}
