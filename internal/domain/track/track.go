// Package track provides the Track domain entity.
package track

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrInvalidTrack is returned when a track descriptor cannot be played.
var ErrInvalidTrack = errors.New("invalid track")

// Track represents a playable item as described by server metadata.
// Duration is authoritative; stream containers are never asked for it.
type Track struct {
	ID          string        // Server-scoped track ID
	Title       string        // Track title
	Artist      string        // Display artist
	Album       string        // Album name
	AlbumID     string        // Album ID
	ArtistID    string        // Artist ID
	ReleaseYear int           // Release year (0 if unknown)
	DiscNumber  int           // Disc number hint
	TrackNumber int           // Track number hint
	Duration    time.Duration // Track duration from metadata
}

// Validate checks that the track can be queued.
func (t Track) Validate() error {
	if t.ID == "" {
		return errors.Wrap(ErrInvalidTrack, "track id is required")
	}
	if t.Duration <= 0 {
		return errors.Wrapf(ErrInvalidTrack, "track %s has no duration", t.ID)
	}
	return nil
}

// Remaining returns how much of the track is left after position.
func (t Track) Remaining(position time.Duration) time.Duration {
	remaining := t.Duration - position
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clamp bounds a position to [0, Duration].
func (t Track) Clamp(position time.Duration) time.Duration {
	if position < 0 {
		return 0
	}
	if position > t.Duration {
		return t.Duration
	}
	return position
}

// Entry represents one insertion of a track into a queue.
// The same track may be queued more than once; entries keep them apart.
type Entry struct {
	ID    string // Entry UUID
	Track Track  // Track info
}

// NewEntry wraps a track with a fresh entry ID.
func NewEntry(t Track) Entry {
	return Entry{
		ID:    uuid.New().String(),
		Track: t,
	}
}

// NewEntries wraps each track with a fresh entry ID.
func NewEntries(tracks []Track) []Entry {
	entries := make([]Entry, len(tracks))
	for i, t := range tracks {
		entries[i] = NewEntry(t)
	}
	return entries
}
