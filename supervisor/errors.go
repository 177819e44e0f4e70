package supervisor

import "errors"

// Error kinds per SPEC_FULL.md §7. ErrProcessGone/ErrPermissionDenied are
// swallowed by the signaling and shutdown paths; RestartProcess does return
// ErrProcessGone for a pid it does not track. They're exported so tests
// (and errors.Is callers) can assert on the classification.
var (
	ErrProcessGone      = errors.New("supervisor: process already gone")
	ErrPermissionDenied = errors.New("supervisor: permission denied signaling process")
	ErrSpawnFailed      = errors.New("supervisor: failed to spawn child")
	ErrUnknownEntry     = errors.New("supervisor: no entry registered under that name")
)
