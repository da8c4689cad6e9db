package dispatch

import "errors"

// Registry and dispatcher errors.
var (
	// ErrDuplicateHandler indicates a handler name collision within an event kind.
	ErrDuplicateHandler = errors.New("dispatch: duplicate handler name for event kind")

	// ErrRegistrySealed indicates registration was attempted after Seal.
	ErrRegistrySealed = errors.New("dispatch: registry is sealed")

	// ErrInvalidHandler indicates a handler with no name or no event kinds.
	ErrInvalidHandler = errors.New("dispatch: invalid handler")

	// ErrDispatcherClosed indicates the dispatcher has been closed.
	ErrDispatcherClosed = errors.New("dispatch: dispatcher is closed")
)
