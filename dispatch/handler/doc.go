// Package handler provides the policy handler interface and verdict types
// for hook dispatch.
//
// A Handler is a named policy unit. It declares the event kinds it wants to
// observe and evaluates envelopes into Verdicts. Handlers are registered once
// at initialization and evaluated by the dispatcher in priority order.
//
// A Verdict expresses one handler's decision about an event: Allow, Deny,
// Ask, or Abstain. Abstain means "no opinion, defer to others" and is also
// the downgrade target for handlers that fail or time out. Builders such as
// Allow, Deny, and Ask construct verdicts in the common shapes; the With*
// methods attach optional fields.
package handler
