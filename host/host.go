package host

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/agenthook/dispatch"
	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
	"github.com/dshills/agenthook/internal/log"
)

// MaxLineSize bounds one request line on the wire.
const MaxLineSize = 4 * 1024 * 1024

// Response is the wire shape of a final decision.
type Response struct {
	Decision       string          `json:"decision"`
	ReasonForUser  string          `json:"reasonForUser,omitempty"`
	ReasonForAgent string          `json:"reasonForAgent,omitempty"`
	Continue       *bool           `json:"continue,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Host bridges wire requests onto a dispatcher. The dispatcher can be
// swapped while serving, which is how configuration reloads take effect.
type Host struct {
	dispatcher atomic.Pointer[dispatch.Dispatcher]
}

// New wraps a dispatcher for wire access.
func New(d *dispatch.Dispatcher) *Host {
	h := &Host{}
	h.dispatcher.Store(d)
	return h
}

// Dispatcher returns the dispatcher currently in use.
func (h *Host) Dispatcher() *dispatch.Dispatcher {
	return h.dispatcher.Load()
}

// Swap replaces the dispatcher and returns the previous one. In-flight
// requests finish on the dispatcher they started with.
func (h *Host) Swap(d *dispatch.Dispatcher) *dispatch.Dispatcher {
	return h.dispatcher.Swap(d)
}

// Submit handles one raw request and returns the encoded response.
// Malformed requests produce a deny response, not an error; the error
// return is reserved for response encoding problems.
func (h *Host) Submit(ctx context.Context, raw []byte) ([]byte, error) {
	if !gjson.ValidBytes(raw) {
		return encode(Response{
			Decision:      handler.DecisionDeny.String(),
			ReasonForUser: "request is not valid JSON",
		})
	}

	kind := gjson.GetBytes(raw, "kind").String()
	convID := gjson.GetBytes(raw, "conversationId").String()
	var payload json.RawMessage
	if p := gjson.GetBytes(raw, "payload"); p.Exists() {
		payload = json.RawMessage(p.Raw)
	}

	env := event.New(event.Kind(kind), convID, payload)
	verdict, err := h.dispatcher.Load().Dispatch(ctx, env)
	if err != nil {
		log.Warn("host: dispatch %q: %v", kind, err)
	}

	resp := Response{
		Decision:       wireDecision(verdict),
		ReasonForUser:  verdict.ReasonForUser,
		ReasonForAgent: verdict.ReasonForAgent,
		Continue:       verdict.ContinueSession,
	}
	if len(verdict.MutatedPayload) > 0 {
		merged, err := mergePayload(payload, verdict.MutatedPayload)
		if err != nil {
			// The decision stands; only the rewrite is unusable.
			log.Warn("host: dropping payload mutation for %q: %v", kind, err)
		} else {
			resp.Payload = merged
		}
	}
	return encode(resp)
}

// Serve processes newline-delimited requests from r, writing one response
// line per request, in order. It returns when r drains, the context ends,
// or the writer fails. A read blocked on an idle r does not delay
// cancellation; that read's goroutine is abandoned.
func (h *Host) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			buf := make([]byte, len(line))
			copy(buf, line)
			select {
			case lines <- buf:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	bw := bufio.NewWriter(w)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			resp, err := h.Submit(ctx, line)
			if err != nil {
				// One bad request must not take the host down; answer
				// default-safe and keep serving.
				log.Error("host: %v", err)
				resp = []byte(`{"decision":"deny","reasonForUser":"internal error"}`)
			}
			if _, err := bw.Write(resp); err != nil {
				return err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return err
			}
		}
	}
}

// wireDecision maps a final verdict onto the wire vocabulary. Abstention
// is internal; on the wire it reads as allow.
func wireDecision(v handler.Verdict) string {
	if v.IsAbstain() {
		return handler.DecisionAllow.String()
	}
	return v.Decision.String()
}

// mergePayload overlays the mutation's top-level keys onto the original
// payload, preserving untouched fields. The mutation must be a JSON object.
func mergePayload(original, mutated json.RawMessage) (json.RawMessage, error) {
	if !gjson.ValidBytes(mutated) || !gjson.ParseBytes(mutated).IsObject() {
		return nil, errors.New("mutated payload is not a JSON object")
	}
	out := []byte(original)
	if len(bytes.TrimSpace(out)) == 0 {
		out = []byte("{}")
	}
	var mergeErr error
	gjson.ParseBytes(mutated).ForEach(func(key, value gjson.Result) bool {
		out, mergeErr = sjson.SetRawBytes(out, escapePath(key.String()), []byte(value.Raw))
		return mergeErr == nil
	})
	if mergeErr != nil {
		return nil, mergeErr
	}
	return out, nil
}

// escapePath quotes gjson path metacharacters in a literal key.
func escapePath(key string) string {
	r := strings.NewReplacer("\\", "\\\\", ".", "\\.", "*", "\\*", "?", "\\?")
	return r.Replace(key)
}

func encode(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("host: encoding response: %w", err)
	}
	return data, nil
}
