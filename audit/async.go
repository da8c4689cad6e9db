package audit

import (
	"context"
	"sync"
)

// AsyncSink wraps another sink with a buffered channel and a single writer
// goroutine, moving sink latency off the dispatch path. Records are never
// dropped: when the buffer is full, Record applies back-pressure until the
// writer catches up, and every record accepted before Close is written.
type AsyncSink struct {
	inner   Sink
	queue   chan Record
	wg      sync.WaitGroup
	onError func(error)

	mu     sync.Mutex
	closed bool
}

// NewAsyncSink wraps inner with a buffer of the given size. A size of zero
// or less uses a default of 64. onError, if non-nil, receives write failures
// from the background writer.
func NewAsyncSink(inner Sink, bufferSize int, onError func(error)) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	s := &AsyncSink{
		inner:   inner,
		queue:   make(chan Record, bufferSize),
		onError: onError,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Record implements Sink. It enqueues the record for the background writer.
// The mutex orders enqueues against Close: once Record accepts a record,
// Close cannot run until it is in the queue, so the writer always drains it.
func (s *AsyncSink) Record(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.queue <- rec
	return nil
}

// Close stops accepting records, drains the queue, and waits for the writer
// to finish.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for rec := range s.queue {
		s.write(rec)
	}
}

func (s *AsyncSink) write(rec Record) {
	if err := s.inner.Record(context.Background(), rec); err != nil && s.onError != nil {
		s.onError(err)
	}
}
