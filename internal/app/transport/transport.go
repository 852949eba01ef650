// Package transport defines the contract between the playback engine and a
// multi-item media transport.
package transport

import (
	"time"

	"github.com/osa030/segue/internal/app/stream"
)

// ItemID identifies a loaded item on the transport.
type ItemID string

// Listener receives transport events. Implementations must not block.
type Listener func(Event)

// Transport is a multi-item playback primitive.
//
// Items are played in load order; the first loaded item is the head. At the
// end of the head item the transport emits EventEndOfItem. A transport may
// start the next ready item right away so no gap is heard; the ended item
// stays the head until the owner calls Advance. Otherwise it holds at the end
// until Advance or Seek. A Seek on an ended head resumes the head and puts
// the next item back at its start.
type Transport interface {
	// SetListener sets the event listener. Must be called before Load.
	SetListener(l Listener)

	// Load appends an item. Status events follow asynchronously.
	Load(item ItemID, src stream.Source)

	// Release removes an item and frees its resources.
	Release(item ItemID)

	// Play starts or resumes the head item.
	Play()

	// Pause pauses the head item.
	Pause()

	// Advance drops the head item and makes the next loaded item the head.
	Advance()

	// Seek moves the head item to position. EventSeekComplete follows.
	Seek(to time.Duration, tolerance time.Duration)

	// Close releases every item and stops event delivery.
	Close() error
}
