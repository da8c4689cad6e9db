// Package dispatch routes lifecycle events to policy handlers and reduces
// their verdicts to one decision.
//
// # Architecture
//
// The package has two parts:
//
//  1. Registry: maps event kind to an ordered sequence of handlers. Handlers
//     are registered once at initialization, optionally with a priority
//     (higher evaluates earlier; ties break by insertion order), and the
//     registry can be sealed to forbid further registration.
//
//  2. Dispatcher: evaluates the handlers for an event in order, each under
//     its own bounded timeout with panic recovery, and folds the individual
//     verdicts into a final one.
//
// # Dispatch
//
// When an envelope is dispatched:
//
//  1. The envelope's kind is validated; unrecognized kinds short-circuit to
//     the configured default-safe verdict without invoking any handler.
//  2. Handlers for the kind are evaluated in order. A handler that panics,
//     times out, or observes a cancelled context contributes a failed
//     Abstain instead of aborting the dispatch.
//  3. The verdicts are reduced: Deny dominates, then Ask, then Allow; when
//     every handler abstains the kind's configured default applies. Payload
//     rewrites and continue-session flags are folded separately, last
//     non-abstaining writer wins, and only for kinds that honor them.
//  4. An audit record covering the whole dispatch is written to the sink.
//  5. The final verdict is returned. Dispatch never fails for handler-level
//     problems; only a malformed envelope surfaces an error, and even then a
//     usable default-safe verdict accompanies it.
//
// Concurrent dispatches are independent: once the registry is sealed there
// is no shared mutable state between them beyond the audit sink and metrics,
// both of which serialize internally.
package dispatch
