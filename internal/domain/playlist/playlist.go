// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/segue/internal/domain/track"
)

// Playlist represents a remote playlist loaded as a whole into the queue.
type Playlist struct {
	ID     string        // Playlist ID
	Name   string        // Playlist name
	Tracks []track.Track // Tracks in playlist order
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	ids := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration returns the summed metadata duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}

// Playable returns the tracks that pass validation, preserving order.
// Tracks without a duration cannot be arbitrated and are skipped.
func (p *Playlist) Playable() []track.Track {
	result := make([]track.Track, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if t.Validate() == nil {
			result = append(result, t)
		}
	}
	return result
}
