package dispatch

import "errors"

var (
	// ErrCycleDetected reports message handlers that can never run because
	// their after-dependencies form a cycle or name an unknown handler.
	ErrCycleDetected = errors.New("dispatch: handler dependency cycle")
	// ErrHandlerFailed is returned by Dispatch when a plugin handler failed
	// and the dispatcher is configured to die on handler errors.
	ErrHandlerFailed = errors.New("dispatch: handler failed")
	ErrDuplicate     = errors.New("dispatch: duplicate name")
)
