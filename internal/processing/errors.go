package processing

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAborted marks a run stopped by cancellation. It is never logged and
	// swallowed; every layer returns it to its caller.
	ErrAborted = errors.New("processing aborted")

	// ErrLookupUnavailable means the taxon or vocabulary snapshot could not be
	// loaded. Nothing is processed without it.
	ErrLookupUnavailable = errors.New("lookup tables unavailable")
)

// aborted wraps a context error so that both errors.Is(err, ErrAborted) and
// errors.Is(err, context.Canceled) hold.
func aborted(cause error) error {
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}

// IsAborted reports whether err stems from cancellation.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
