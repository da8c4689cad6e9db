package audit

import (
	"time"

	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
)

// HandlerVerdict pairs a handler's name with the verdict it produced.
type HandlerVerdict struct {
	// Name is the handler's registered name.
	Name string `json:"name"`

	// Verdict is the handler's individual verdict.
	Verdict handler.Verdict `json:"verdict"`
}

// Record describes one completed dispatch. Records are append-only; the core
// never mutates or deletes them after they reach a sink.
type Record struct {
	// ID is the dispatched envelope's unique identifier.
	ID string `json:"id"`

	// Timestamp is when the dispatch completed.
	Timestamp time.Time `json:"timestamp"`

	// Kind is the dispatched envelope's event kind.
	Kind event.Kind `json:"kind"`

	// ConversationID is the envelope's session correlation id, if any.
	ConversationID string `json:"conversationId,omitempty"`

	// ValidationFailed marks a dispatch rejected before any handler ran.
	ValidationFailed bool `json:"validationFailed,omitempty"`

	// Handlers holds each handler's verdict in evaluation order.
	Handlers []HandlerVerdict `json:"handlers"`

	// Final is the reduced verdict returned to the caller.
	Final handler.Verdict `json:"final"`
}
