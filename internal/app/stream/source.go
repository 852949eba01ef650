// Package stream resolves tracks to playable sources.
package stream

import (
	"time"
)

// Kind identifies where a source's bytes come from.
type Kind int

const (
	KindRemote Kind = iota // HTTP(S) stream
	KindLocal              // File on local disk
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindRemote:
		return "remote"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Source is a playable location for a track.
type Source struct {
	Kind     Kind
	TrackID  string
	URL      string        // Set for KindRemote
	Path     string        // Set for KindLocal
	Quality  string        // Quality the source was resolved for; empty for offline
	MimeType string        // Container hint, e.g. "audio/mpeg"
	Length   time.Duration // Playable length if the resolver knows it, 0 otherwise
}

// Location returns the URL or path of the source.
func (s Source) Location() string {
	if s.Kind == KindLocal {
		return s.Path
	}
	return s.URL
}

// IsOffline reports whether the source is served from local storage.
func (s Source) IsOffline() bool {
	return s.Kind == KindLocal
}
