// Package nowplaying provides the now-playing sinks fed by the playback engine.
package nowplaying

import "time"

// Snapshot is the externally visible playback state.
type Snapshot struct {
	EntryID       string        `json:"entry_id"`
	TrackID       string        `json:"track_id"`
	Title         string        `json:"title"`
	Artist        string        `json:"artist"`
	Album         string        `json:"album"`
	Position      time.Duration `json:"position"`
	Duration      time.Duration `json:"duration"`
	IsPlaying     bool          `json:"is_playing"`
	IsBuffering   bool          `json:"is_buffering"`
	State         string        `json:"state"`
	QueuePosition int           `json:"queue_position"`
	QueueLength   int           `json:"queue_length"`
	Repeat        string        `json:"repeat"`
	Shuffle       bool          `json:"shuffle"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Kind represents a notification kind.
type Kind int

const (
	KindUpdate Kind = iota // Snapshot changed
	KindError              // Playback error reported
	KindClear              // Nothing is playing any more
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindError:
		return "error"
	case KindClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Notification is one message delivered to subscribers.
type Notification struct {
	SequenceNo uint64    `json:"sequence_no"`
	Kind       Kind      `json:"kind"`
	Snapshot   *Snapshot `json:"snapshot,omitempty"`
	Error      string    `json:"error,omitempty"`
}
