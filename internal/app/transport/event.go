package transport

import (
	"fmt"
	"time"
)

// Status represents the load status of an item.
type Status int

const (
	StatusLoading Status = iota // Source is being opened
	StatusReady                 // Item can play
	StatusFailed                // Item cannot play; see Event.Err
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventKind represents a transport event kind.
type EventKind int

const (
	EventStatus               EventKind = iota // Item status changed
	EventBufferEmpty                           // Item stalled waiting for data
	EventBufferLikelyToKeepUp                  // Item has enough data to play through
	EventTime                                  // Periodic elapsed time of the head item
	EventEndOfItem                             // Item reached its end
	EventSeekComplete                          // A seek finished
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventBufferEmpty:
		return "buffer_empty"
	case EventBufferLikelyToKeepUp:
		return "buffer_likely_to_keep_up"
	case EventTime:
		return "time"
	case EventEndOfItem:
		return "end_of_item"
	case EventSeekComplete:
		return "seek_complete"
	default:
		return "unknown"
	}
}

// Event represents a transport event.
type Event struct {
	Kind     EventKind
	Item     ItemID
	Status   Status        // EventStatus
	Err      error         // EventStatus with StatusFailed
	Position time.Duration // EventTime, EventSeekComplete
}

// String returns a compact description for logs.
func (e Event) String() string {
	switch e.Kind {
	case EventStatus:
		if e.Err != nil {
			return fmt.Sprintf("%s(%s, %s: %v)", e.Kind, e.Item, e.Status, e.Err)
		}
		return fmt.Sprintf("%s(%s, %s)", e.Kind, e.Item, e.Status)
	case EventTime, EventSeekComplete:
		return fmt.Sprintf("%s(%s, %v)", e.Kind, e.Item, e.Position)
	default:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Item)
	}
}

// StatusEvent creates a status event.
func StatusEvent(item ItemID, status Status, err error) Event {
	return Event{Kind: EventStatus, Item: item, Status: status, Err: err}
}

// TimeEvent creates a time event.
func TimeEvent(item ItemID, position time.Duration) Event {
	return Event{Kind: EventTime, Item: item, Position: position}
}

// EndOfItemEvent creates an end-of-item event.
func EndOfItemEvent(item ItemID) Event {
	return Event{Kind: EventEndOfItem, Item: item}
}

// SeekCompleteEvent creates a seek completion event.
func SeekCompleteEvent(item ItemID, position time.Duration) Event {
	return Event{Kind: EventSeekComplete, Item: item, Position: position}
}
