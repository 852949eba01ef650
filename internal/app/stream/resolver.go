package stream

import (
	"context"

	"github.com/osa030/segue/internal/domain/playlist"
	"github.com/osa030/segue/internal/domain/track"
)

// Resolver maps a track ID and quality preference to a playable source.
type Resolver interface {
	// Resolve returns a source for the track. Implementations must honor ctx
	// cancellation; callers drop results for cancelled requests.
	Resolve(ctx context.Context, trackID string, quality string) (Source, error)

	// Name returns the resolver name (used in config and logs).
	Name() string
}

// OfflineResolver looks up locally stored copies of tracks.
// Offline sources skip quality selection.
type OfflineResolver interface {
	ResolveOffline(ctx context.Context, trackID string) (Source, bool)
}

// Catalog returns track metadata by ID.
type Catalog interface {
	Track(ctx context.Context, trackID string) (track.Track, error)
	Name() string
}

// PlaylistCatalog returns whole playlists by ID or URL.
type PlaylistCatalog interface {
	Playlist(ctx context.Context, playlistID string) (playlist.Playlist, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, trackID string, quality string) (Source, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, trackID string, quality string) (Source, error) {
	return f(ctx, trackID, quality)
}

// Name returns "func".
func (f ResolverFunc) Name() string {
	return "func"
}
