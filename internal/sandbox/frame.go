package sandbox

import (
	"context"
	"errors"
)

var (
	// ErrNoRestartHook means the hosted document defines no restart entry
	// point, or calling it threw.
	ErrNoRestartHook = errors.New("sandbox: no restart entry point")
	// ErrNoFrame means nothing is attached to display the document.
	ErrNoFrame = errors.New("sandbox: no frame attached")
)

// Frame is the host surface that displays the active document.
type Frame interface {
	// Navigate points the frame at url. The frame reports load completion
	// back through Runtime.NotifyLoaded with the same handle.
	Navigate(handle, url string) error
	// Restart runs the restart entry point inside the hosted document.
	Restart(ctx context.Context) error
}
