// Package event defines the lifecycle event model for hook dispatch.
//
// An Envelope describes one host lifecycle event: its Kind (a fixed,
// enumerated tag such as BeforeCommandExecution), an optional conversation
// identifier correlating events within a session, and an opaque JSON payload
// whose schema varies per kind. The core never validates payload contents;
// individual handlers interpret them.
//
// # Kinds
//
// Kinds split into pre-action kinds, whose final verdict gates whether the
// host proceeds, and post-action/informational kinds, which observe something
// that already happened. The split drives default-safe behavior: when an
// event cannot be evaluated, pre-action kinds fail closed and informational
// kinds fail open.
//
// # Immutability
//
// Envelopes are immutable once constructed. Handlers observe payload data
// through Get and PayloadMap, both of which never alias the underlying
// bytes, and express rewrites through their verdicts rather than by mutating
// the envelope.
package event
