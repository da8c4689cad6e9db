package audit

import (
	"context"
	"sync"
)

// Sink receives audit records. Implementations must be safe for concurrent
// use; Record may be called from multiple dispatches at once.
type Sink interface {
	// Record appends one audit record.
	Record(ctx context.Context, rec Record) error
}

// NopSink discards all records.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, Record) error { return nil }

// MemorySink retains records in memory. Intended for tests and
// introspection, not production audit trails.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record implements Sink.
func (s *MemorySink) Record(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a snapshot of all recorded entries in completion order.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of recorded entries.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
