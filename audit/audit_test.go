package audit_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dshills/agenthook/audit"
	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
)

func sampleRecord(id string) audit.Record {
	return audit.Record{
		ID:             id,
		Timestamp:      time.Now(),
		Kind:           event.BeforeCommandExecution,
		ConversationID: "conv-1",
		Handlers: []audit.HandlerVerdict{
			{Name: "danger-check", Verdict: handler.Deny("blocked")},
		},
		Final: handler.Deny("blocked"),
	}
}

func TestMemorySink(t *testing.T) {
	sink := audit.NewMemorySink()

	if err := sink.Record(context.Background(), sampleRecord("a")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.Record(context.Background(), sampleRecord("b")); err != nil {
		t.Fatalf("record: %v", err)
	}

	recs := sink.Records()
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].ID != "a" || recs[1].ID != "b" {
		t.Errorf("order = %s, %s", recs[0].ID, recs[1].ID)
	}
	if sink.Len() != 2 {
		t.Errorf("Len = %d, want 2", sink.Len())
	}
}

func TestMemorySinkSnapshot(t *testing.T) {
	sink := audit.NewMemorySink()
	_ = sink.Record(context.Background(), sampleRecord("a"))

	recs := sink.Records()
	recs[0].ID = "mutated"

	if sink.Records()[0].ID != "a" {
		t.Error("Records must return a snapshot")
	}
}

func TestNopSink(t *testing.T) {
	if err := (audit.NopSink{}).Record(context.Background(), sampleRecord("x")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFileSinkAppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	sink, err := audit.NewFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := sink.Record(context.Background(), sampleRecord(id)); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line not independently parseable: %v", err)
		}
		ids = append(ids, rec.ID)
	}
	if len(ids) != 3 {
		t.Fatalf("lines = %d, want 3", len(ids))
	}
	if ids[0] != "r1" || ids[2] != "r3" {
		t.Errorf("ids = %v", ids)
	}
}

func TestFileSinkConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	sink, err := audit.NewFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rec := sampleRecord("concurrent")
			rec.ID = rec.ID + "-" + string(rune('a'+id%26))
			_ = sink.Record(context.Background(), rec)
		}(i)
	}
	wg.Wait()
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("interleaved write corrupted a record: %v", err)
		}
		count++
	}
	if count != n {
		t.Errorf("records = %d, want %d", count, n)
	}
}

func TestFileSinkClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := audit.NewFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}

	if err := sink.Record(context.Background(), sampleRecord("late")); !errors.Is(err, audit.ErrSinkClosed) {
		t.Errorf("expected ErrSinkClosed, got %v", err)
	}
}

func TestAsyncSinkDeliversAll(t *testing.T) {
	inner := audit.NewMemorySink()
	sink := audit.NewAsyncSink(inner, 8, nil)

	const n = 100
	for i := 0; i < n; i++ {
		if err := sink.Record(context.Background(), sampleRecord("async")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if inner.Len() != n {
		t.Errorf("delivered = %d, want %d", inner.Len(), n)
	}
}

func TestAsyncSinkClosed(t *testing.T) {
	sink := audit.NewAsyncSink(audit.NewMemorySink(), 1, nil)
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Record(context.Background(), sampleRecord("late")); !errors.Is(err, audit.ErrSinkClosed) {
		t.Errorf("expected ErrSinkClosed, got %v", err)
	}
}

func TestAsyncSinkCloseRaceLosesNothing(t *testing.T) {
	// An accepted record must reach the inner sink even when Close runs
	// concurrently; a rejected one must report ErrSinkClosed and leave no
	// trace. Repeat to shake out interleavings.
	for i := 0; i < 200; i++ {
		inner := audit.NewMemorySink()
		sink := audit.NewAsyncSink(inner, 2, nil)

		accepted := make(chan error, 1)
		go func() {
			accepted <- sink.Record(context.Background(), sampleRecord("raced"))
		}()
		if err := sink.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}

		switch err := <-accepted; {
		case err == nil:
			if inner.Len() != 1 {
				t.Fatalf("iteration %d: accepted record was dropped", i)
			}
		case errors.Is(err, audit.ErrSinkClosed):
			if inner.Len() != 0 {
				t.Fatalf("iteration %d: rejected record was written", i)
			}
		default:
			t.Fatalf("iteration %d: record: %v", i, err)
		}
	}
}

type failingSink struct{}

func (failingSink) Record(context.Context, audit.Record) error {
	return errors.New("disk full")
}

func TestAsyncSinkReportsErrors(t *testing.T) {
	var mu sync.Mutex
	var got []error

	sink := audit.NewAsyncSink(failingSink{}, 4, func(err error) {
		mu.Lock()
		got = append(got, err)
		mu.Unlock()
	})

	_ = sink.Record(context.Background(), sampleRecord("x"))
	_ = sink.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Errorf("errors reported = %d, want 1", len(got))
	}
}

func TestRecordJSONRoundTrip(t *testing.T) {
	rec := sampleRecord("round")
	rec.ValidationFailed = true

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded audit.Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != "round" || !decoded.ValidationFailed {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Handlers) != 1 || decoded.Handlers[0].Name != "danger-check" {
		t.Errorf("handlers = %+v", decoded.Handlers)
	}
	if decoded.Final.Decision != handler.DecisionDeny {
		t.Errorf("final decision = %v", decoded.Final.Decision)
	}
}
