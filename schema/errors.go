package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidURL indicates a URL that cannot be parsed or has no scheme.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidMode indicates an unknown visit mode.
	ErrInvalidMode = errors.New("invalid visit mode")
	// ErrInvalidWindow indicates an invalid window identifier.
	ErrInvalidWindow = errors.New("invalid window")
	// ErrWindowNotFound indicates a requested window does not exist.
	ErrWindowNotFound = errors.New("window not found")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrIndexOutOfRange indicates a history index outside the tab's stack.
	ErrIndexOutOfRange = errors.New("history index out of range")
	// ErrUnknownCommand indicates an action name outside the command set.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUnhandledScheme indicates no capability is registered for a scheme.
	ErrUnhandledScheme = errors.New("unhandled scheme")
	// ErrInvalidPath indicates an edit path that does not address State.
	ErrInvalidPath = errors.New("invalid edit path")
)

// IsNavigationError reports whether err is a rejected navigation request:
// a stale tab/window reference or an out-of-range index. These are not faults.
func IsNavigationError(err error) bool {
	return errors.Is(err, ErrTabNotFound) ||
		errors.Is(err, ErrWindowNotFound) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrInvalidURL)
}
