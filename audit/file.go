package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrSinkClosed is returned when recording to a closed sink.
var ErrSinkClosed = errors.New("audit: sink is closed")

// FileSink appends records to a file, one JSON record per line. Writes are
// serialized under a mutex so each record's bytes stay contiguous even when
// multiple dispatches complete at once.
type FileSink struct {
	mu     sync.Mutex
	f      *os.File
	closed bool
}

// NewFileSink opens (creating if needed) the file at path for appending.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", path, err)
	}
	return &FileSink{f: f}, nil
}

// Record implements Sink.
func (s *FileSink) Record(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: encoding record %s: %w", rec.ID, err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("audit: appending record %s: %w", rec.ID, err)
	}
	return nil
}

// Close closes the underlying file. Further Record calls fail with
// ErrSinkClosed.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
