package session

// State playback state as locally known. Local state is optimistic relative
// to the real remote player, surface events always win over stale intent.
type State int

const (
	// StateUninitialized no surface attached yet
	StateUninitialized State = iota
	// StateLoading surface mounted, nothing heard from it yet
	StateLoading
	// StateReady loaded and paused
	StateReady
	// StatePlaying media advancing, possibly only optimistically
	StatePlaying
	// StateEnded terminal, reached only through an explicit ended event
	StateEnded
	// StateError terminal for the current attachment, requires a fresh attach
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	}
	return "unknown"
}
