package types

import (
	"errors"
	"fmt"
)

// Error taxonomy. Classify with errors.Is.
var (
	// ErrInput is a per-request client fault
	ErrInput = errors.New("invalid input")
	// ErrTransform is malformed or unreadable image data; it also matches ErrInput
	ErrTransform = fmt.Errorf("%w: unreadable image", ErrInput)
	// ErrUnknownPlugin is a request for a plugin name that was never configured; it also matches ErrInput
	ErrUnknownPlugin = fmt.Errorf("%w: unknown plugin", ErrInput)
	// ErrServiceUnavailable is a request for a configured plugin that failed to load
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrModelUnavailable means the backing model or label files are missing
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrConfiguration is fatal at startup
	ErrConfiguration = errors.New("configuration error")
)

// InputErrorf formats an ErrInput
func InputErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}
