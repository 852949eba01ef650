// Package playback provides the transition engine that drives the queue, the
// buffer window and the transport from a single event loop.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // Nothing loaded (queue empty, cleared or finished)
	StateLoading              // Head item is being resolved or loaded
	StatePlaying              // Head item is playing
	StatePaused               // Head item is paused
	StateFailed               // Head item failed; waiting for retry or user
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
