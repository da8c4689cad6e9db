package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/agenthook/config"
	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
)

// Script errors.
var (
	// ErrNoEvaluate indicates a script that does not define a global
	// evaluate function.
	ErrNoEvaluate = errors.New("script: no evaluate function defined")

	// ErrHandlerClosed is returned when evaluating a closed handler.
	ErrHandlerClosed = errors.New("script: handler is closed")
)

// Handler evaluates events through a Lua script.
type Handler struct {
	name  string
	kinds []event.Kind

	mu     sync.Mutex
	state  *lua.LState
	closed bool
}

// New loads the script at path and binds it as a handler for the given
// kinds. The script must define a global evaluate function; loading and
// validation failures surface here, at registration time.
func New(name string, kinds []event.Kind, path string) (*Handler, error) {
	if name == "" {
		return nil, errors.New("script: handler has no name")
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("script: handler %s observes no event kinds", name)
	}

	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("script: loading %s: %w", path, err)
	}
	if _, ok := L.GetGlobal("evaluate").(*lua.LFunction); !ok {
		L.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoEvaluate, path)
	}

	return &Handler{name: name, kinds: kinds, state: L}, nil
}

// FromDef builds a handler from a validated configuration definition.
func FromDef(def config.ScriptDef) (*Handler, error) {
	return New(def.Name, config.EventKinds(def.Events), def.Path)
}

// Close releases the Lua state. Safe to call more than once.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.state.Close()
}

// Name implements handler.Handler.
func (h *Handler) Name() string { return h.name }

// AppliesTo implements handler.Handler.
func (h *Handler) AppliesTo() []event.Kind {
	kinds := make([]event.Kind, len(h.kinds))
	copy(kinds, h.kinds)
	return kinds
}

// Evaluate implements handler.Handler. The Lua state is not goroutine-safe;
// concurrent dispatches serialize here.
func (h *Handler) Evaluate(ctx context.Context, env event.Envelope) handler.Verdict {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return handler.Failure(ErrHandlerClosed.Error())
	}

	L := h.state
	L.SetContext(ctx)
	defer L.RemoveContext()

	L.Push(L.GetGlobal("evaluate"))
	L.Push(h.envelopeTable(L, env))
	if err := L.PCall(1, 1, nil); err != nil {
		return handler.Failuref("script %s: %v", h.name, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	return h.verdictFromLua(ret)
}

// envelopeTable builds the Lua view of an envelope.
func (h *Handler) envelopeTable(L *lua.LState, env event.Envelope) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("kind", lua.LString(env.Kind))
	t.RawSetString("conversation_id", lua.LString(env.ConversationID))
	t.RawSetString("id", lua.LString(env.Meta.ID))
	t.RawSetString("payload", goToLua(L, env.PayloadMap()))
	return t
}

// verdictFromLua maps a script's return value onto a verdict.
// nil abstains; anything other than a table is a contained failure.
func (h *Handler) verdictFromLua(ret lua.LValue) handler.Verdict {
	if ret == lua.LNil {
		return handler.AbstainVerdict()
	}

	t, ok := ret.(*lua.LTable)
	if !ok {
		return handler.Failuref("script %s: evaluate returned %s, want table", h.name, ret.Type())
	}

	decisionName := "abstain"
	if s, ok := t.RawGetString("decision").(lua.LString); ok {
		decisionName = string(s)
	}
	decision, err := handler.ParseDecision(decisionName)
	if err != nil {
		return handler.Failuref("script %s: %v", h.name, err)
	}

	v := handler.Verdict{Decision: decision}
	if s, ok := t.RawGetString("reason_for_user").(lua.LString); ok {
		v.ReasonForUser = string(s)
	}
	if s, ok := t.RawGetString("reason_for_agent").(lua.LString); ok {
		v.ReasonForAgent = string(s)
	}
	if b, ok := t.RawGetString("continue_session").(lua.LBool); ok {
		v = v.WithContinue(bool(b))
	}
	if mt, ok := t.RawGetString("mutated_payload").(*lua.LTable); ok {
		data, err := json.Marshal(luaToGo(mt))
		if err != nil {
			return handler.Failuref("script %s: encoding mutated payload: %v", h.name, err)
		}
		v.MutatedPayload = data
	}
	return v
}
