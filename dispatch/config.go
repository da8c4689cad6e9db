package dispatch

import (
	"time"

	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
)

// DefaultHandlerTimeout bounds a single handler evaluation unless
// overridden.
const DefaultHandlerTimeout = 5 * time.Second

// Config holds dispatcher configuration options.
type Config struct {
	// HandlerTimeout bounds each handler evaluation.
	// Zero or negative uses DefaultHandlerTimeout.
	HandlerTimeout time.Duration

	// RecoverFromPanic wraps handler evaluation in panic recovery.
	RecoverFromPanic bool

	// MalformedDecision is the decision returned for envelopes whose kind
	// is missing or unrecognized. Defaults to Deny: an event that cannot be
	// classified fails closed.
	MalformedDecision handler.Decision

	// Defaults maps event kinds to the decision used when no handler is
	// registered or every handler abstains. Kinds absent from the map
	// default to Allow; "no opinion registered" never surprises the caller
	// with a Deny.
	Defaults map[event.Kind]handler.Decision

	// EnableMetrics enables dispatch timing and statistics collection.
	EnableMetrics bool

	// AsyncAudit moves audit writes onto a background writer so sink
	// latency stays off the dispatch path.
	AsyncAudit bool

	// AuditBufferSize is the buffer size for the async audit writer.
	// Only used when AsyncAudit is true; zero or less uses the audit
	// package default.
	AuditBufferSize int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandlerTimeout:    DefaultHandlerTimeout,
		RecoverFromPanic:  true,
		MalformedDecision: handler.DecisionDeny,
	}
}

// WithHandlerTimeout returns a copy of the config with the per-handler
// timeout set.
func (c Config) WithHandlerTimeout(timeout time.Duration) Config {
	c.HandlerTimeout = timeout
	return c
}

// WithPanicRecovery returns a copy of the config with panic recovery set.
func (c Config) WithPanicRecovery(recover bool) Config {
	c.RecoverFromPanic = recover
	return c
}

// WithMalformedDecision returns a copy of the config with the decision for
// malformed envelopes set.
func (c Config) WithMalformedDecision(d handler.Decision) Config {
	c.MalformedDecision = d
	return c
}

// WithDefault returns a copy of the config with the all-abstain default for
// one event kind set.
func (c Config) WithDefault(kind event.Kind, d handler.Decision) Config {
	defaults := make(map[event.Kind]handler.Decision, len(c.Defaults)+1)
	for k, v := range c.Defaults {
		defaults[k] = v
	}
	defaults[kind] = d
	c.Defaults = defaults
	return c
}

// WithMetrics returns a copy of the config with metrics enabled.
func (c Config) WithMetrics() Config {
	c.EnableMetrics = true
	return c
}

// WithAsyncAudit returns a copy of the config with asynchronous audit
// writes enabled.
func (c Config) WithAsyncAudit(bufferSize int) Config {
	c.AsyncAudit = true
	if bufferSize > 0 {
		c.AuditBufferSize = bufferSize
	}
	return c
}

// handlerTimeout returns the effective per-handler timeout.
func (c Config) handlerTimeout() time.Duration {
	if c.HandlerTimeout <= 0 {
		return DefaultHandlerTimeout
	}
	return c.HandlerTimeout
}

// defaultFor returns the all-abstain decision for a kind.
func (c Config) defaultFor(kind event.Kind) handler.Decision {
	if d, ok := c.Defaults[kind]; ok {
		return d
	}
	return handler.DecisionAllow
}
