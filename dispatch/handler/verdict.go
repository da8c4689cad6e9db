package handler

import (
	"encoding/json"
	"fmt"
)

// Decision is the permission axis of a verdict.
type Decision uint8

const (
	// Abstain expresses no opinion; reduction defers to other handlers.
	Abstain Decision = iota
	// DecisionAllow permits the action.
	DecisionAllow
	// DecisionDeny blocks the action. Deny always wins reduction.
	DecisionDeny
	// DecisionAsk defers the action to the user for confirmation.
	DecisionAsk
)

// String returns the decision's wire name.
func (d Decision) String() string {
	switch d {
	case Abstain:
		return "abstain"
	case DecisionAllow:
		return "allow"
	case DecisionDeny:
		return "deny"
	case DecisionAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// ParseDecision converts a wire name to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "abstain":
		return Abstain, nil
	case "allow":
		return DecisionAllow, nil
	case "deny":
		return DecisionDeny, nil
	case "ask":
		return DecisionAsk, nil
	default:
		return Abstain, fmt.Errorf("%w: %q", ErrUnknownDecision, s)
	}
}

// MarshalJSON encodes the decision as its wire name.
func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes the decision from its wire name.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDecision(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Verdict is one handler's decision about an event.
type Verdict struct {
	// Decision is the permission axis.
	Decision Decision `json:"decision"`

	// ReasonForUser is an optional explanation surfaced to the end user.
	ReasonForUser string `json:"reasonForUser,omitempty"`

	// ReasonForAgent is an optional explanation surfaced to the calling
	// agent or process, a distinct audience from the user-facing reason.
	ReasonForAgent string `json:"reasonForAgent,omitempty"`

	// ContinueSession indicates whether the session should continue.
	// Nil means unset; only some event kinds honor it.
	ContinueSession *bool `json:"continueSession,omitempty"`

	// MutatedPayload optionally replaces the triggering envelope's payload.
	// Only some event kinds honor it.
	MutatedPayload json.RawMessage `json:"mutatedPayload,omitempty"`

	// Failed marks a verdict synthesized from a handler failure or timeout.
	Failed bool `json:"failed,omitempty"`
}

// AbstainVerdict returns a verdict expressing no opinion.
func AbstainVerdict() Verdict {
	return Verdict{Decision: Abstain}
}

// Allow returns an allowing verdict.
func Allow() Verdict {
	return Verdict{Decision: DecisionAllow}
}

// Deny returns a denying verdict with a user-facing reason.
func Deny(userReason string) Verdict {
	return Verdict{Decision: DecisionDeny, ReasonForUser: userReason}
}

// Denyf returns a denying verdict with a formatted user-facing reason.
func Denyf(format string, args ...any) Verdict {
	return Deny(fmt.Sprintf(format, args...))
}

// Ask returns a verdict deferring the action to the user.
func Ask(userReason string) Verdict {
	return Verdict{Decision: DecisionAsk, ReasonForUser: userReason}
}

// Failure returns an abstaining verdict marked as a handler failure.
// The reason is surfaced to the agent, not the user.
func Failure(agentReason string) Verdict {
	return Verdict{Decision: Abstain, ReasonForAgent: agentReason, Failed: true}
}

// Failuref returns a Failure verdict with a formatted agent-facing reason.
func Failuref(format string, args ...any) Verdict {
	return Failure(fmt.Sprintf(format, args...))
}

// WithAgentReason returns a copy of the verdict with the agent-facing reason set.
func (v Verdict) WithAgentReason(reason string) Verdict {
	v.ReasonForAgent = reason
	return v
}

// WithContinue returns a copy of the verdict with the continue-session flag set.
func (v Verdict) WithContinue(cont bool) Verdict {
	v.ContinueSession = &cont
	return v
}

// WithMutatedPayload returns a copy of the verdict carrying a payload rewrite.
func (v Verdict) WithMutatedPayload(payload json.RawMessage) Verdict {
	v.MutatedPayload = payload
	return v
}

// IsAbstain reports whether the verdict expresses no opinion.
func (v Verdict) IsAbstain() bool {
	return v.Decision == Abstain
}

// Denies reports whether the verdict blocks the action.
func (v Verdict) Denies() bool {
	return v.Decision == DecisionDeny
}
