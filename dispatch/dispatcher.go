package dispatch

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dshills/agenthook/audit"
	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
	"github.com/dshills/agenthook/internal/log"
)

// Dispatcher evaluates policy handlers against lifecycle events and reduces
// their verdicts to one final decision.
type Dispatcher struct {
	registry *Registry
	sink     audit.Sink
	config   Config
	metrics  *Metrics

	// asyncSink is set when the dispatcher owns an async audit wrapper.
	asyncSink *audit.AsyncSink

	closed atomic.Bool
}

// New creates a dispatcher over a registry and an audit sink.
// A nil sink records nothing.
func New(registry *Registry, sink audit.Sink, config Config) *Dispatcher {
	if sink == nil {
		sink = audit.NopSink{}
	}

	d := &Dispatcher{
		registry: registry,
		sink:     sink,
		config:   config,
	}

	if config.AsyncAudit {
		d.asyncSink = audit.NewAsyncSink(sink, config.AuditBufferSize, func(err error) {
			log.Error("audit sink: %v", err)
		})
		d.sink = d.asyncSink
	}

	if config.EnableMetrics {
		d.metrics = NewMetrics()
	}

	return d
}

// NewWithDefaults creates a dispatcher with default configuration.
func NewWithDefaults(registry *Registry, sink audit.Sink) *Dispatcher {
	return New(registry, sink, DefaultConfig())
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Metrics returns the metrics collector (nil if disabled).
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() Config {
	return d.config
}

// Close stops the dispatcher and flushes the async audit writer, if any.
// Safe to call more than once; Dispatch calls after Close return
// ErrDispatcherClosed.
func (d *Dispatcher) Close() error {
	d.closed.Store(true)
	if d.asyncSink != nil {
		return d.asyncSink.Close()
	}
	return nil
}

// Dispatch evaluates all handlers registered for the envelope's kind and
// returns the reduced verdict.
//
// Handler-level problems (panics, timeouts, evaluation failures) never
// surface as errors; the affected handler contributes a failed Abstain and
// the dispatch completes. The returned error is a MalformedEventError for a
// missing or unrecognized kind, or ErrDispatcherClosed after Close; in both
// cases the accompanying verdict is the configured default-safe decision and
// is valid to act on.
func (d *Dispatcher) Dispatch(ctx context.Context, env event.Envelope) (handler.Verdict, error) {
	start := time.Now()

	if d.closed.Load() {
		return handler.Verdict{
			Decision:       d.config.MalformedDecision,
			ReasonForAgent: ErrDispatcherClosed.Error(),
		}, ErrDispatcherClosed
	}

	if err := env.Validate(); err != nil {
		final := handler.Verdict{
			Decision:       d.config.MalformedDecision,
			ReasonForAgent: err.Error(),
		}
		d.record(audit.Record{
			ID:               env.Meta.ID,
			Timestamp:        time.Now(),
			Kind:             env.Kind,
			ConversationID:   env.ConversationID,
			ValidationFailed: true,
			Handlers:         []audit.HandlerVerdict{},
			Final:            final,
		})
		if d.metrics != nil {
			d.metrics.RecordDispatch(env.Kind, time.Since(start), final.Decision, true)
		}
		return final, err
	}

	handlers := d.registry.HandlersFor(env.Kind)
	verdicts := make([]audit.HandlerVerdict, 0, len(handlers))
	failed := false

	for _, h := range handlers {
		var v handler.Verdict
		if ctx.Err() != nil {
			// Host cancelled the dispatch; remaining handlers are not run.
			v = handler.Failuref("handler %s: %v", h.Name(), ctx.Err())
		} else {
			v = d.evaluate(ctx, h, env)
		}
		if v.Failed {
			failed = true
			log.Debug("handler %s failed for %s: %s", h.Name(), env.Kind, v.ReasonForAgent)
		}
		verdicts = append(verdicts, audit.HandlerVerdict{Name: h.Name(), Verdict: v})
	}

	final := reduce(env.Kind, verdicts, d.config.defaultFor(env.Kind))

	d.record(audit.Record{
		ID:             env.Meta.ID,
		Timestamp:      time.Now(),
		Kind:           env.Kind,
		ConversationID: env.ConversationID,
		Handlers:       verdicts,
		Final:          final,
	})

	if d.metrics != nil {
		d.metrics.RecordDispatch(env.Kind, time.Since(start), final.Decision, failed)
	}

	return final, nil
}

// evaluate runs a single handler under its own bounded timeout.
//
// The handler runs in its own goroutine so a blocked evaluation cannot stall
// the dispatch past the timeout. An abandoned evaluation is allowed to
// finish; its verdict lands in the buffered channel and is discarded.
func (d *Dispatcher) evaluate(ctx context.Context, h handler.Handler, env event.Envelope) handler.Verdict {
	hctx, cancel := context.WithTimeout(ctx, d.config.handlerTimeout())
	defer cancel()

	result := make(chan handler.Verdict, 1)

	go func() {
		if d.config.RecoverFromPanic {
			defer func() {
				if r := recover(); r != nil {
					stack := make([]byte, 4096)
					n := runtime.Stack(stack, false)
					log.Error("handler %s panic: %v\n%s", h.Name(), r, stack[:n])
					result <- handler.Failuref("handler %s panic: %v", h.Name(), r)
				}
			}()
		}
		result <- h.Evaluate(hctx, env)
	}()

	select {
	case v := <-result:
		return sanitizeMutation(h.Name(), v)
	case <-hctx.Done():
		return handler.Failuref("handler %s: %v", h.Name(), hctx.Err())
	}
}

// sanitizeMutation downgrades a verdict whose payload rewrite is not a JSON
// object. Command handlers decode untrusted process output into verdicts, so
// the shape cannot be assumed.
func sanitizeMutation(name string, v handler.Verdict) handler.Verdict {
	if len(v.MutatedPayload) == 0 {
		return v
	}
	if !gjson.ValidBytes(v.MutatedPayload) || !gjson.ParseBytes(v.MutatedPayload).IsObject() {
		return handler.Failuref("handler %s: mutated payload is not a JSON object", name)
	}
	return v
}

// record writes one audit record. A sink failure is logged and swallowed;
// the decision must still reach the caller.
func (d *Dispatcher) record(rec audit.Record) {
	if err := d.sink.Record(context.Background(), rec); err != nil {
		log.Error("audit sink: %v", err)
	}
}
