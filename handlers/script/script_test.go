package script_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/agenthook/config"
	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
	"github.com/dshills/agenthook/handlers/script"
)

func writeScript(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hook.lua")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func commandEnv(cmd string) event.Envelope {
	payload, _ := json.Marshal(map[string]string{"command": cmd})
	return event.New(event.BeforeCommandExecution, "conv-1", payload)
}

func TestScriptDeny(t *testing.T) {
	path := writeScript(t, `
function evaluate(env)
  local cmd = env.payload.command or ""
  if string.find(cmd, "rm -rf /", 1, true) then
    return {
      decision = "deny",
      reason_for_user = "Dangerous command blocked: " .. cmd,
      reason_for_agent = "matched destructive pattern",
    }
  end
  return nil
end
`)

	h, err := script.New("danger", []event.Kind{event.BeforeCommandExecution}, path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Close()

	v := h.Evaluate(context.Background(), commandEnv("rm -rf /"))
	if v.Decision != handler.DecisionDeny {
		t.Errorf("decision = %v, want deny", v.Decision)
	}
	if v.ReasonForUser != "Dangerous command blocked: rm -rf /" {
		t.Errorf("reason = %q", v.ReasonForUser)
	}
	if v.ReasonForAgent != "matched destructive pattern" {
		t.Errorf("agent reason = %q", v.ReasonForAgent)
	}

	v = h.Evaluate(context.Background(), commandEnv("ls"))
	if !v.IsAbstain() || v.Failed {
		t.Errorf("expected clean abstain, got %+v", v)
	}
}

func TestScriptSeesEnvelopeFields(t *testing.T) {
	path := writeScript(t, `
function evaluate(env)
  if env.kind == "BeforeCommandExecution" and env.conversation_id == "conv-1" and env.id ~= "" then
    return { decision = "allow" }
  end
  return { decision = "deny", reason_for_user = "unexpected envelope shape" }
end
`)

	h, err := script.New("shape", []event.Kind{event.BeforeCommandExecution}, path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Close()

	v := h.Evaluate(context.Background(), commandEnv("ls"))
	if v.Decision != handler.DecisionAllow {
		t.Errorf("verdict = %+v", v)
	}
}

func TestScriptMutatedPayload(t *testing.T) {
	path := writeScript(t, `
function evaluate(env)
  return {
    decision = "allow",
    mutated_payload = { prompt = "enriched: " .. (env.payload.prompt or "") },
  }
end
`)

	h, err := script.New("enrich", []event.Kind{event.BeforeRequestSubmit}, path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Close()

	env := event.New(event.BeforeRequestSubmit, "", json.RawMessage(`{"prompt":"hello"}`))
	v := h.Evaluate(context.Background(), env)
	if v.Decision != handler.DecisionAllow {
		t.Fatalf("decision = %v", v.Decision)
	}

	var mutated map[string]string
	if err := json.Unmarshal(v.MutatedPayload, &mutated); err != nil {
		t.Fatalf("mutated payload: %v", err)
	}
	if mutated["prompt"] != "enriched: hello" {
		t.Errorf("prompt = %q", mutated["prompt"])
	}
}

func TestScriptContinueSession(t *testing.T) {
	path := writeScript(t, `
function evaluate(env)
  return { decision = "allow", continue_session = false }
end
`)

	h, err := script.New("halt", []event.Kind{event.BeforeRequestSubmit}, path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Close()

	v := h.Evaluate(context.Background(), event.New(event.BeforeRequestSubmit, "", nil))
	if v.ContinueSession == nil || *v.ContinueSession {
		t.Errorf("ContinueSession = %v, want false", v.ContinueSession)
	}
}

func TestScriptRuntimeErrorContained(t *testing.T) {
	path := writeScript(t, `
function evaluate(env)
  error("deliberate failure")
end
`)

	h, err := script.New("broken", []event.Kind{event.SessionEnd}, path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Close()

	v := h.Evaluate(context.Background(), event.New(event.SessionEnd, "", nil))
	if !v.Failed || !v.IsAbstain() {
		t.Errorf("expected failed abstain, got %+v", v)
	}
}

func TestScriptBadReturnContained(t *testing.T) {
	path := writeScript(t, `
function evaluate(env)
  return "deny"
end
`)

	h, err := script.New("stringy", []event.Kind{event.SessionEnd}, path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Close()

	v := h.Evaluate(context.Background(), event.New(event.SessionEnd, "", nil))
	if !v.Failed {
		t.Errorf("expected failure for non-table return, got %+v", v)
	}
}

func TestScriptUnknownDecisionContained(t *testing.T) {
	path := writeScript(t, `
function evaluate(env)
  return { decision = "approve" }
end
`)

	h, err := script.New("typo", []event.Kind{event.SessionEnd}, path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Close()

	v := h.Evaluate(context.Background(), event.New(event.SessionEnd, "", nil))
	if !v.Failed {
		t.Errorf("expected failure for unknown decision, got %+v", v)
	}
}

func TestScriptMissingEvaluate(t *testing.T) {
	path := writeScript(t, `local x = 1`)

	_, err := script.New("empty", []event.Kind{event.SessionEnd}, path)
	if !errors.Is(err, script.ErrNoEvaluate) {
		t.Errorf("expected ErrNoEvaluate, got %v", err)
	}
}

func TestScriptSyntaxError(t *testing.T) {
	path := writeScript(t, `function evaluate( -- unterminated`)

	if _, err := script.New("bad", []event.Kind{event.SessionEnd}, path); err == nil {
		t.Error("expected load error")
	}
}

func TestScriptMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.lua")
	if _, err := script.New("missing", []event.Kind{event.SessionEnd}, missing); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestScriptClosed(t *testing.T) {
	path := writeScript(t, `
function evaluate(env)
  return { decision = "allow" }
end
`)

	h, err := script.New("closer", []event.Kind{event.SessionEnd}, path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	h.Close()
	h.Close() // idempotent

	v := h.Evaluate(context.Background(), event.New(event.SessionEnd, "", nil))
	if !v.Failed {
		t.Errorf("expected failure after close, got %+v", v)
	}
}

func TestFromDef(t *testing.T) {
	path := writeScript(t, `
function evaluate(env)
  return { decision = "ask", reason_for_user = "confirm" }
end
`)

	h, err := script.FromDef(config.ScriptDef{
		Name:   "from-config",
		Events: []string{"AfterFileEdit"},
		Path:   path,
	})
	if err != nil {
		t.Fatalf("from def: %v", err)
	}
	defer h.Close()

	if h.Name() != "from-config" {
		t.Errorf("name = %q", h.Name())
	}
	kinds := h.AppliesTo()
	if len(kinds) != 1 || kinds[0] != event.AfterFileEdit {
		t.Errorf("kinds = %v", kinds)
	}

	v := h.Evaluate(context.Background(), event.New(event.AfterFileEdit, "", nil))
	if v.Decision != handler.DecisionAsk {
		t.Errorf("decision = %v, want ask", v.Decision)
	}
}
