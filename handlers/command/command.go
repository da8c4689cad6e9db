package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dshills/agenthook/config"
	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
)

// DefaultTimeout bounds one command invocation when the definition does
// not set its own.
const DefaultTimeout = 10 * time.Second

// Handler runs a shell command per event. The envelope is written to the
// command's stdin as JSON; the command may print a verdict object to
// stdout. Commands that exit non-zero deny the event.
type Handler struct {
	name    string
	kinds   []event.Kind
	command string
	timeout time.Duration
}

// New builds a command handler. The command runs through "sh -c".
func New(name string, kinds []event.Kind, command string) (*Handler, error) {
	if name == "" {
		return nil, errors.New("command: handler has no name")
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("command: handler %s observes no event kinds", name)
	}
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("command: handler %s has no command", name)
	}
	return &Handler{name: name, kinds: kinds, command: command, timeout: DefaultTimeout}, nil
}

// FromDef builds a handler from a validated configuration definition.
func FromDef(def config.CommandDef) (*Handler, error) {
	h, err := New(def.Name, config.EventKinds(def.Events), def.Command)
	if err != nil {
		return nil, err
	}
	if d := time.Duration(def.Timeout); d > 0 {
		h.timeout = d
	}
	return h, nil
}

// WithTimeout sets the per-invocation deadline.
func (h *Handler) WithTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

// Name implements handler.Handler.
func (h *Handler) Name() string { return h.name }

// AppliesTo implements handler.Handler.
func (h *Handler) AppliesTo() []event.Kind {
	kinds := make([]event.Kind, len(h.kinds))
	copy(kinds, h.kinds)
	return kinds
}

// Evaluate implements handler.Handler. The command's own timeout applies
// on top of the dispatcher's deadline, whichever fires first.
func (h *Handler) Evaluate(ctx context.Context, env event.Envelope) handler.Verdict {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	input, err := json.Marshal(env)
	if err != nil {
		return handler.Failuref("command %s: encoding envelope: %v", h.name, err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", h.command)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return handler.Failuref("command %s: timed out after %v", h.name, h.timeout)
	}

	var v handler.Verdict
	if stdout.Len() > 0 {
		if err := json.Unmarshal(stdout.Bytes(), &v); err != nil {
			return handler.Failuref("command %s: parsing output %q: %v", h.name, stdout.String(), err)
		}
	}
	// Only the dispatcher marks verdicts failed.
	v.Failed = false

	if runErr != nil {
		v.Decision = handler.DecisionDeny
		if v.ReasonForUser == "" {
			v.ReasonForUser = fmt.Sprintf("command %s rejected the event", h.name)
		}
		if v.ReasonForAgent == "" {
			v.ReasonForAgent = strings.TrimSpace(stderr.String())
			if v.ReasonForAgent == "" {
				v.ReasonForAgent = runErr.Error()
			}
		}
	}
	return v
}
