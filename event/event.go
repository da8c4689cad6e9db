package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Kind identifies a host lifecycle event.
type Kind string

// Recognized event kinds.
const (
	BeforeCommandExecution Kind = "BeforeCommandExecution"
	AfterCommandExecution  Kind = "AfterCommandExecution"
	BeforeFileRead         Kind = "BeforeFileRead"
	AfterFileEdit          Kind = "AfterFileEdit"
	BeforeRequestSubmit    Kind = "BeforeRequestSubmit"
	AfterResponseReceived  Kind = "AfterResponseReceived"
	SessionStart           Kind = "SessionStart"
	SessionEnd             Kind = "SessionEnd"
)

// Kinds returns all recognized kinds in a stable order.
func Kinds() []Kind {
	return []Kind{
		BeforeCommandExecution,
		AfterCommandExecution,
		BeforeFileRead,
		AfterFileEdit,
		BeforeRequestSubmit,
		AfterResponseReceived,
		SessionStart,
		SessionEnd,
	}
}

// Valid reports whether k is a recognized event kind.
func (k Kind) Valid() bool {
	switch k {
	case BeforeCommandExecution, AfterCommandExecution,
		BeforeFileRead, AfterFileEdit,
		BeforeRequestSubmit, AfterResponseReceived,
		SessionStart, SessionEnd:
		return true
	default:
		return false
	}
}

// Pre reports whether k is a pre-action kind: one whose final verdict gates
// whether the host proceeds with the action.
func (k Kind) Pre() bool {
	switch k {
	case BeforeCommandExecution, BeforeFileRead, BeforeRequestSubmit, SessionStart:
		return true
	default:
		return false
	}
}

// SupportsMutation reports whether verdicts for k may carry a payload
// rewrite. Only pre-action kinds honor mutation; rewriting something that
// already happened has no meaning.
func (k Kind) SupportsMutation() bool {
	return k.Pre()
}

// HonorsContinue reports whether verdicts for k may carry a continue-session
// flag.
func (k Kind) HonorsContinue() bool {
	switch k {
	case BeforeRequestSubmit, AfterResponseReceived:
		return true
	default:
		return false
	}
}

// String returns the kind's wire name.
func (k Kind) String() string {
	return string(k)
}

// Metadata contains standard information stamped on every envelope.
type Metadata struct {
	// ID is a unique identifier for this event instance.
	ID string `json:"id"`

	// Timestamp is when the envelope was constructed.
	Timestamp time.Time `json:"timestamp"`
}

// Envelope is the immutable record describing one lifecycle event.
type Envelope struct {
	// Kind is the event's enumerated tag.
	Kind Kind `json:"kind"`

	// ConversationID correlates events within one session.
	// Empty means the event is unscoped.
	ConversationID string `json:"conversationId,omitempty"`

	// Payload is the event-specific data as an opaque JSON object.
	// Its schema varies per Kind and is not validated by the core.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Meta is the standard envelope metadata.
	Meta Metadata `json:"meta"`
}

// New creates an envelope for the given kind, stamping a unique ID and the
// current time. The payload should be a JSON object; nil is treated as empty.
func New(kind Kind, conversationID string, payload json.RawMessage) Envelope {
	return Envelope{
		Kind:           kind,
		ConversationID: conversationID,
		Payload:        payload,
		Meta: Metadata{
			ID:        uuid.New().String(),
			Timestamp: time.Now(),
		},
	}
}

// Validate checks that the envelope carries a recognized kind.
func (e Envelope) Validate() error {
	if e.Kind == "" || !e.Kind.Valid() {
		return &MalformedEventError{Kind: e.Kind}
	}
	return nil
}

// Get retrieves a payload value by gjson path (e.g. "command",
// "edits.0.path"). The zero Result is returned when the payload is empty or
// the path does not exist.
func (e Envelope) Get(path string) gjson.Result {
	if len(e.Payload) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(e.Payload, path)
}

// PayloadMap decodes the payload into a fresh map. It returns an empty map
// for an empty or non-object payload; the result never aliases the
// envelope's bytes.
func (e Envelope) PayloadMap() map[string]any {
	m := make(map[string]any)
	if len(e.Payload) == 0 {
		return m
	}
	// Decode errors leave the map empty; the payload is host-supplied and
	// handlers must tolerate arbitrary shapes.
	_ = json.Unmarshal(e.Payload, &m)
	return m
}
