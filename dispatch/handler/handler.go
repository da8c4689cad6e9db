package handler

import (
	"context"
	"errors"

	"github.com/dshills/agenthook/event"
)

// Sentinel errors for handler construction and decision parsing.
var (
	// ErrUnknownDecision is returned when parsing an unrecognized decision name.
	ErrUnknownDecision = errors.New("handler: unknown decision")

	// ErrNilEvaluate is returned when a Func is built without a function.
	ErrNilEvaluate = errors.New("handler: evaluate function cannot be nil")
)

// Handler is a named policy unit evaluated during dispatch.
//
// Evaluate must treat the envelope as read-only and should return promptly;
// the dispatcher enforces a timeout regardless and downgrades failures to
// Abstain.
type Handler interface {
	// Name returns a unique identifier, used in audit records and ordering.
	Name() string

	// AppliesTo returns the event kinds this handler wants to observe.
	AppliesTo() []event.Kind

	// Evaluate inspects an envelope and produces a verdict.
	// The context carries the dispatcher's per-handler deadline.
	Evaluate(ctx context.Context, env event.Envelope) Verdict
}

// Func adapts a function to the Handler interface.
type Func struct {
	name  string
	kinds []event.Kind
	fn    func(ctx context.Context, env event.Envelope) Verdict
}

// NewFunc creates a Func handler for the given kinds.
func NewFunc(name string, kinds []event.Kind, fn func(ctx context.Context, env event.Envelope) Verdict) *Func {
	return &Func{name: name, kinds: kinds, fn: fn}
}

// Name implements Handler.
func (f *Func) Name() string { return f.name }

// AppliesTo implements Handler.
func (f *Func) AppliesTo() []event.Kind {
	kinds := make([]event.Kind, len(f.kinds))
	copy(kinds, f.kinds)
	return kinds
}

// Evaluate implements Handler.
func (f *Func) Evaluate(ctx context.Context, env event.Envelope) Verdict {
	if f.fn == nil {
		return Failure(ErrNilEvaluate.Error())
	}
	return f.fn(ctx, env)
}
