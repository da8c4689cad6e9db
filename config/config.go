package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/agenthook/dispatch"
	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
)

// Configuration errors.
var (
	// ErrInvalidConfig indicates a configuration that failed validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Duration wraps time.Duration for TOML decoding from strings like "5s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DispatchSection holds dispatcher settings.
type DispatchSection struct {
	// HandlerTimeout bounds each handler evaluation (e.g. "5s").
	HandlerTimeout Duration `toml:"handler_timeout"`

	// RecoverFromPanic wraps handler evaluation in panic recovery.
	// Nil means true.
	RecoverFromPanic *bool `toml:"recover_from_panic"`

	// MalformedDecision is the decision for unrecognized event kinds.
	// Empty means "deny".
	MalformedDecision string `toml:"malformed_decision"`

	// EnableMetrics enables dispatch statistics collection.
	EnableMetrics bool `toml:"enable_metrics"`

	// AsyncAudit moves audit writes off the dispatch path.
	AsyncAudit bool `toml:"async_audit"`

	// AuditBufferSize is the async audit buffer size.
	AuditBufferSize int `toml:"audit_buffer_size"`
}

// AuditSection holds audit sink settings.
type AuditSection struct {
	// Path is the audit log file; empty disables file auditing.
	Path string `toml:"path"`
}

// RuleDef declares one pattern-rule handler.
type RuleDef struct {
	// Name is the handler's unique name.
	Name string `toml:"name"`

	// Events are the kinds the rule observes.
	Events []string `toml:"events"`

	// Field is the payload path the rule matches against (gjson syntax).
	// Empty matches against the whole payload text.
	Field string `toml:"field"`

	// Contains lists literal substrings; any occurrence matches.
	Contains []string `toml:"contains"`

	// Pattern is an optional regular expression; a match triggers the rule.
	Pattern string `toml:"pattern"`

	// Decision is emitted when the rule matches: "deny", "ask", or "allow".
	Decision string `toml:"decision"`

	// ReasonForUser is the user-facing explanation on match.
	ReasonForUser string `toml:"reason_for_user"`

	// ReasonForAgent is the agent-facing explanation on match.
	ReasonForAgent string `toml:"reason_for_agent"`

	// Priority orders the handler within its kinds.
	Priority int `toml:"priority"`
}

// ScriptDef declares one Lua script handler.
type ScriptDef struct {
	// Name is the handler's unique name.
	Name string `toml:"name"`

	// Events are the kinds the script observes.
	Events []string `toml:"events"`

	// Path is the Lua script file.
	Path string `toml:"path"`

	// Priority orders the handler within its kinds.
	Priority int `toml:"priority"`
}

// CommandDef declares one external command handler.
type CommandDef struct {
	// Name is the handler's unique name.
	Name string `toml:"name"`

	// Events are the kinds the command observes.
	Events []string `toml:"events"`

	// Command is the shell command to run per event.
	Command string `toml:"command"`

	// Timeout bounds one invocation; empty uses the handler default.
	Timeout Duration `toml:"timeout"`

	// Priority orders the handler within its kinds.
	Priority int `toml:"priority"`
}

// File is the root of a hook policy configuration.
type File struct {
	Dispatch DispatchSection   `toml:"dispatch"`
	Defaults map[string]string `toml:"defaults"`
	Audit    AuditSection      `toml:"audit"`
	Rules    []RuleDef         `toml:"rules"`
	Scripts  []ScriptDef       `toml:"scripts"`
	Commands []CommandDef      `toml:"commands"`
}

// Load reads, parses, and validates the configuration at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates TOML configuration data.
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks event kinds, decisions, and patterns. It fails loudly so
// misconfiguration surfaces at startup rather than on the hot path.
func (f *File) Validate() error {
	if f.Dispatch.MalformedDecision != "" {
		if err := validateDecision(f.Dispatch.MalformedDecision); err != nil {
			return fmt.Errorf("%w: dispatch.malformed_decision: %v", ErrInvalidConfig, err)
		}
	}

	for kindName, decisionName := range f.Defaults {
		if !event.Kind(kindName).Valid() {
			return fmt.Errorf("%w: defaults: unknown event kind %q", ErrInvalidConfig, kindName)
		}
		if err := validateDecision(decisionName); err != nil {
			return fmt.Errorf("%w: defaults.%s: %v", ErrInvalidConfig, kindName, err)
		}
	}

	seen := make(map[string]bool)
	for i, rule := range f.Rules {
		if err := validateName("rules", i, rule.Name, seen); err != nil {
			return err
		}
		if err := validateEvents("rules", rule.Name, rule.Events); err != nil {
			return err
		}
		if len(rule.Contains) == 0 && rule.Pattern == "" {
			return fmt.Errorf("%w: rule %q has neither contains nor pattern", ErrInvalidConfig, rule.Name)
		}
		if rule.Pattern != "" {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				return fmt.Errorf("%w: rule %q pattern: %v", ErrInvalidConfig, rule.Name, err)
			}
		}
		if rule.Decision != "" {
			if err := validateDecision(rule.Decision); err != nil {
				return fmt.Errorf("%w: rule %q: %v", ErrInvalidConfig, rule.Name, err)
			}
		}
	}

	for i, script := range f.Scripts {
		if err := validateName("scripts", i, script.Name, seen); err != nil {
			return err
		}
		if err := validateEvents("scripts", script.Name, script.Events); err != nil {
			return err
		}
		if script.Path == "" {
			return fmt.Errorf("%w: script %q has no path", ErrInvalidConfig, script.Name)
		}
	}

	for i, command := range f.Commands {
		if err := validateName("commands", i, command.Name, seen); err != nil {
			return err
		}
		if err := validateEvents("commands", command.Name, command.Events); err != nil {
			return err
		}
		if command.Command == "" {
			return fmt.Errorf("%w: command %q has no command line", ErrInvalidConfig, command.Name)
		}
	}

	return nil
}

// DispatchConfig converts the file's settings into a dispatch.Config.
func (f *File) DispatchConfig() dispatch.Config {
	cfg := dispatch.DefaultConfig()

	if f.Dispatch.HandlerTimeout > 0 {
		cfg.HandlerTimeout = f.Dispatch.HandlerTimeout.Std()
	}
	if f.Dispatch.RecoverFromPanic != nil {
		cfg.RecoverFromPanic = *f.Dispatch.RecoverFromPanic
	}
	if f.Dispatch.MalformedDecision != "" {
		// Validated already; parse cannot fail here.
		d, _ := handler.ParseDecision(f.Dispatch.MalformedDecision)
		cfg.MalformedDecision = d
	}
	if f.Dispatch.EnableMetrics {
		cfg = cfg.WithMetrics()
	}
	if f.Dispatch.AsyncAudit {
		cfg = cfg.WithAsyncAudit(f.Dispatch.AuditBufferSize)
	}

	for kindName, decisionName := range f.Defaults {
		d, _ := handler.ParseDecision(decisionName)
		cfg = cfg.WithDefault(event.Kind(kindName), d)
	}

	return cfg
}

// EventKinds converts validated event names to kinds.
func EventKinds(names []string) []event.Kind {
	kinds := make([]event.Kind, len(names))
	for i, name := range names {
		kinds[i] = event.Kind(name)
	}
	return kinds
}

func validateName(section string, index int, name string, seen map[string]bool) error {
	if name == "" {
		return fmt.Errorf("%w: %s[%d] has no name", ErrInvalidConfig, section, index)
	}
	if seen[name] {
		return fmt.Errorf("%w: duplicate handler name %q", ErrInvalidConfig, name)
	}
	seen[name] = true
	return nil
}

func validateEvents(section, name string, events []string) error {
	if len(events) == 0 {
		return fmt.Errorf("%w: %s %q observes no events", ErrInvalidConfig, section, name)
	}
	for _, e := range events {
		if !event.Kind(e).Valid() {
			return fmt.Errorf("%w: %s %q: unknown event kind %q", ErrInvalidConfig, section, name, e)
		}
	}
	return nil
}

func validateDecision(name string) error {
	d, err := handler.ParseDecision(name)
	if err != nil {
		return err
	}
	if d == handler.Abstain {
		return fmt.Errorf("decision %q: a configured decision cannot abstain", name)
	}
	return nil
}
