package event

import "errors"

// ErrUnknownKind is returned when an envelope carries a missing or
// unrecognized kind.
var ErrUnknownKind = errors.New("event: unknown kind")

// MalformedEventError describes an envelope that failed validation.
type MalformedEventError struct {
	// Kind is the offending kind value; empty when the kind was missing.
	Kind Kind
}

// Error implements the error interface.
func (e *MalformedEventError) Error() string {
	if e.Kind == "" {
		return "malformed event: missing kind"
	}
	return "malformed event: unrecognized kind " + string(e.Kind)
}

// Is allows errors.Is to match MalformedEventError with ErrUnknownKind.
func (e *MalformedEventError) Is(target error) bool {
	return target == ErrUnknownKind
}
