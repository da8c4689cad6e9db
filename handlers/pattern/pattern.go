package pattern

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/agenthook/config"
	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
)

// Rule errors.
var (
	// ErrNoMatcher indicates a rule with neither literals nor a pattern.
	ErrNoMatcher = errors.New("pattern: rule has neither contains nor pattern")

	// ErrNoKinds indicates a rule that observes no event kinds.
	ErrNoKinds = errors.New("pattern: rule observes no event kinds")
)

// MatchToken in a reason string is replaced with the matched text.
const MatchToken = "{match}"

// Rule declares a pattern-based policy check.
type Rule struct {
	// Name is the handler's unique name.
	Name string

	// Kinds are the event kinds the rule observes.
	Kinds []event.Kind

	// Field is the payload path matched against (gjson syntax).
	// Empty matches the whole payload text.
	Field string

	// Contains lists literal substrings; any occurrence matches.
	Contains []string

	// Pattern is an optional regular expression; a match triggers the rule.
	Pattern string

	// Decision is emitted on match. The zero value (Abstain) means Deny,
	// so the common blocklist rule needs no explicit decision.
	Decision handler.Decision

	// ReasonForUser is the user-facing explanation; the {match} token is
	// replaced with the matched text.
	ReasonForUser string

	// ReasonForAgent is the agent-facing explanation; supports {match}.
	ReasonForAgent string
}

// Handler is a compiled pattern rule.
type Handler struct {
	rule  Rule
	regex *regexp.Regexp // nil when the rule has no pattern
}

// New compiles a rule into a handler.
func New(rule Rule) (*Handler, error) {
	if rule.Name == "" {
		return nil, errors.New("pattern: rule has no name")
	}
	if len(rule.Kinds) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoKinds, rule.Name)
	}
	if len(rule.Contains) == 0 && rule.Pattern == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoMatcher, rule.Name)
	}
	if rule.Decision == handler.Abstain {
		rule.Decision = handler.DecisionDeny
	}

	h := &Handler{rule: rule}
	if rule.Pattern != "" {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern: rule %s: %w", rule.Name, err)
		}
		h.regex = re
	}
	return h, nil
}

// FromDef builds a handler from a validated configuration definition.
func FromDef(def config.RuleDef) (*Handler, error) {
	decision := handler.Abstain
	if def.Decision != "" {
		d, err := handler.ParseDecision(def.Decision)
		if err != nil {
			return nil, fmt.Errorf("pattern: rule %s: %w", def.Name, err)
		}
		decision = d
	}

	return New(Rule{
		Name:           def.Name,
		Kinds:          config.EventKinds(def.Events),
		Field:          def.Field,
		Contains:       def.Contains,
		Pattern:        def.Pattern,
		Decision:       decision,
		ReasonForUser:  def.ReasonForUser,
		ReasonForAgent: def.ReasonForAgent,
	})
}

// Name implements handler.Handler.
func (h *Handler) Name() string { return h.rule.Name }

// AppliesTo implements handler.Handler.
func (h *Handler) AppliesTo() []event.Kind {
	kinds := make([]event.Kind, len(h.rule.Kinds))
	copy(kinds, h.rule.Kinds)
	return kinds
}

// Evaluate implements handler.Handler. It abstains unless a pattern matches.
func (h *Handler) Evaluate(_ context.Context, env event.Envelope) handler.Verdict {
	text := h.text(env)
	if text == "" {
		return handler.AbstainVerdict()
	}

	match, ok := h.match(text)
	if !ok {
		return handler.AbstainVerdict()
	}

	v := handler.Verdict{
		Decision:       h.rule.Decision,
		ReasonForUser:  expand(h.rule.ReasonForUser, match),
		ReasonForAgent: expand(h.rule.ReasonForAgent, match),
	}
	if v.ReasonForUser == "" && v.Decision != handler.DecisionAllow {
		v.ReasonForUser = fmt.Sprintf("Blocked by rule %s: %s", h.rule.Name, match)
	}
	return v
}

// text extracts the matched-against text from the envelope.
func (h *Handler) text(env event.Envelope) string {
	if h.rule.Field == "" {
		return string(env.Payload)
	}
	return env.Get(h.rule.Field).String()
}

// match returns the matched fragment and whether anything matched.
// Literals are checked before the regex, in declaration order.
func (h *Handler) match(text string) (string, bool) {
	for _, lit := range h.rule.Contains {
		if strings.Contains(text, lit) {
			return lit, true
		}
	}
	if h.regex != nil {
		if m := h.regex.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}

func expand(reason, match string) string {
	return strings.ReplaceAll(reason, MatchToken, match)
}

// DangerousCommands returns the stock rule denying destructive shell
// commands on BeforeCommandExecution.
func DangerousCommands() Rule {
	return Rule{
		Name:  "dangerous-commands",
		Kinds: []event.Kind{event.BeforeCommandExecution},
		Field: "command",
		Contains: []string{
			"rm -rf /",
			"rm -rf ~",
			"dd if=/dev/zero",
			"dd of=/dev/sd",
			"mkfs",
			":(){ :|:& };:",
			"chmod -R 777 /",
		},
		Decision:      handler.DecisionDeny,
		ReasonForUser: "Dangerous command blocked: " + MatchToken,
	}
}
