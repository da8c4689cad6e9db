package event_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dshills/agenthook/event"
)

func TestKindValid(t *testing.T) {
	for _, k := range event.Kinds() {
		if !k.Valid() {
			t.Errorf("expected %s to be valid", k)
		}
	}

	invalid := []event.Kind{"", "beforeCommandExecution", "Bogus"}
	for _, k := range invalid {
		if k.Valid() {
			t.Errorf("expected %q to be invalid", k)
		}
	}
}

func TestKindPre(t *testing.T) {
	tests := []struct {
		kind event.Kind
		pre  bool
	}{
		{event.BeforeCommandExecution, true},
		{event.BeforeFileRead, true},
		{event.BeforeRequestSubmit, true},
		{event.SessionStart, true},
		{event.AfterCommandExecution, false},
		{event.AfterFileEdit, false},
		{event.AfterResponseReceived, false},
		{event.SessionEnd, false},
	}

	for _, tt := range tests {
		if got := tt.kind.Pre(); got != tt.pre {
			t.Errorf("%s.Pre() = %v, want %v", tt.kind, got, tt.pre)
		}
	}
}

func TestKindSupportsMutation(t *testing.T) {
	if !event.BeforeRequestSubmit.SupportsMutation() {
		t.Error("expected BeforeRequestSubmit to support mutation")
	}
	if event.AfterFileEdit.SupportsMutation() {
		t.Error("expected AfterFileEdit to not support mutation")
	}
}

func TestKindHonorsContinue(t *testing.T) {
	if !event.BeforeRequestSubmit.HonorsContinue() {
		t.Error("expected BeforeRequestSubmit to honor continue")
	}
	if event.BeforeCommandExecution.HonorsContinue() {
		t.Error("expected BeforeCommandExecution to not honor continue")
	}
}

func TestNewStampsMetadata(t *testing.T) {
	env := event.New(event.BeforeCommandExecution, "conv-1", nil)

	if env.Meta.ID == "" {
		t.Error("expected non-empty envelope ID")
	}
	if env.Meta.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}
	if env.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want %q", env.ConversationID, "conv-1")
	}
}

func TestNewUniqueIDs(t *testing.T) {
	a := event.New(event.SessionStart, "", nil)
	b := event.New(event.SessionStart, "", nil)
	if a.Meta.ID == b.Meta.ID {
		t.Error("expected distinct envelope IDs")
	}
}

func TestValidate(t *testing.T) {
	env := event.New(event.BeforeCommandExecution, "", nil)
	if err := env.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := event.New(event.Kind("Bogus"), "", nil)
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, event.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}

	var malformed *event.MalformedEventError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedEventError, got %T", err)
	}
	if malformed.Kind != event.Kind("Bogus") {
		t.Errorf("Kind = %q, want %q", malformed.Kind, "Bogus")
	}
}

func TestValidateMissingKind(t *testing.T) {
	var env event.Envelope
	if err := env.Validate(); err == nil {
		t.Fatal("expected validation error for missing kind")
	}
}

func TestGet(t *testing.T) {
	payload := json.RawMessage(`{"command":"ls -la","edits":[{"path":"a.go"}]}`)
	env := event.New(event.BeforeCommandExecution, "", payload)

	if got := env.Get("command").String(); got != "ls -la" {
		t.Errorf("Get(command) = %q, want %q", got, "ls -la")
	}
	if got := env.Get("edits.0.path").String(); got != "a.go" {
		t.Errorf("Get(edits.0.path) = %q, want %q", got, "a.go")
	}
	if env.Get("missing").Exists() {
		t.Error("expected missing path to not exist")
	}
}

func TestGetEmptyPayload(t *testing.T) {
	env := event.New(event.SessionEnd, "", nil)
	if env.Get("anything").Exists() {
		t.Error("expected empty payload lookup to not exist")
	}
}

func TestPayloadMap(t *testing.T) {
	payload := json.RawMessage(`{"command":"ls","count":2}`)
	env := event.New(event.BeforeCommandExecution, "", payload)

	m := env.PayloadMap()
	if m["command"] != "ls" {
		t.Errorf("command = %v, want ls", m["command"])
	}

	// Mutating the returned map must not affect the envelope.
	m["command"] = "rm -rf /"
	if got := env.Get("command").String(); got != "ls" {
		t.Errorf("envelope payload changed: %q", got)
	}
}

func TestPayloadMapEmpty(t *testing.T) {
	env := event.New(event.SessionEnd, "", nil)
	m := env.PayloadMap()
	if len(m) != 0 {
		t.Errorf("expected empty map, got %v", m)
	}
}

func TestEnvelopeJSONRoundTrip(t *testing.T) {
	env := event.New(event.AfterFileEdit, "conv-9", json.RawMessage(`{"path":"main.go"}`))

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded event.Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Kind != event.AfterFileEdit {
		t.Errorf("Kind = %s, want AfterFileEdit", decoded.Kind)
	}
	if decoded.ConversationID != "conv-9" {
		t.Errorf("ConversationID = %q", decoded.ConversationID)
	}
	if decoded.Get("path").String() != "main.go" {
		t.Errorf("payload path = %q", decoded.Get("path").String())
	}
}
