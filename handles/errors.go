package handles

import "errors"

// Recoverable errors all originate from mutator-side allocation paths; GC
// phase callbacks never return errors. A fatal inconsistency discovered
// during a scan (for example a dependent handle with a null primary but a
// live secondary) is a precondition violation and panics.
var (
	// ErrOutOfResources is returned when directory growth, bucket
	// creation, or slot-arena growth fails. Partially allocated
	// structures are rolled back before it is returned.
	ErrOutOfResources = errors.New("handles: out of resources")

	// ErrInvalidArgument is returned for an unknown or disabled handle
	// type, an invalid variable-strength bitmask, or a nil mandatory
	// parameter.
	ErrInvalidArgument = errors.New("handles: invalid argument")

	// ErrShutdown is returned when an operation reaches a store that has
	// already been shut down.
	ErrShutdown = errors.New("handles: store is shut down")
)
