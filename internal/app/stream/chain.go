package stream

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/segue/internal/domain/playlist"
	"github.com/osa030/segue/internal/domain/track"
)

// Chain resolves through offline resolvers first, then remote resolvers in order.
type Chain struct {
	offline []OfflineResolver
	remote  []Resolver
}

// NewChain creates a new resolver chain.
func NewChain(offline []OfflineResolver, remote []Resolver) *Chain {
	return &Chain{
		offline: offline,
		remote:  remote,
	}
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "resolver_chain"
}

// ResolveOffline checks every offline resolver in order.
func (c *Chain) ResolveOffline(ctx context.Context, trackID string) (Source, bool) {
	for _, r := range c.offline {
		if src, ok := r.ResolveOffline(ctx, trackID); ok {
			return src, true
		}
	}
	return Source{}, false
}

// Resolve returns an offline source if one exists, otherwise the first remote
// source. When every remote resolver fails the result is ErrSourceUnavailable,
// also marked transient if any attempt failed transiently.
func (c *Chain) Resolve(ctx context.Context, trackID string, quality string) (Source, error) {
	if src, ok := c.ResolveOffline(ctx, trackID); ok {
		zlog.Debug().Msgf("stream: resolved offline: track=%s path=%s", trackID, src.Path)
		return src, nil
	}

	if len(c.remote) == 0 {
		return Source{}, errors.Wrapf(ErrSourceUnavailable, "no resolver for track %s", trackID)
	}

	var lastErr error
	transient := false
	for i, r := range c.remote {
		if err := ctx.Err(); err != nil {
			return Source{}, err
		}

		src, err := r.Resolve(ctx, trackID, quality)
		if err == nil {
			zlog.Debug().Msgf("stream: resolved remote: track=%s resolver=%s", trackID, r.Name())
			return src, nil
		}
		if errors.Is(err, context.Canceled) {
			return Source{}, err
		}

		zlog.Warn().Msgf("stream: resolver failed, trying next: index=%d total=%d resolver=%s track=%s error=%v",
			i+1, len(c.remote), r.Name(), trackID, err)
		transient = transient || IsTransient(err)
		lastErr = err
	}

	err := errors.Mark(errors.Wrapf(lastErr, "all resolvers failed for track %s", trackID), ErrSourceUnavailable)
	if transient {
		err = MarkTransient(err)
	}
	return Source{}, err
}

// CatalogChain looks up metadata across catalogs in order.
type CatalogChain struct {
	catalogs []Catalog
}

// NewCatalogChain creates a new catalog chain.
func NewCatalogChain(catalogs []Catalog) *CatalogChain {
	return &CatalogChain{catalogs: catalogs}
}

// Name returns the chain name.
func (c *CatalogChain) Name() string {
	return "catalog_chain"
}

// Track returns metadata from the first catalog that knows the track.
func (c *CatalogChain) Track(ctx context.Context, trackID string) (track.Track, error) {
	for _, cat := range c.catalogs {
		t, err := cat.Track(ctx, trackID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrNotFound) {
			zlog.Warn().Msgf("stream: catalog lookup failed, trying next: catalog=%s track=%s error=%v", cat.Name(), trackID, err)
		}
	}
	return track.Track{}, errors.Wrapf(ErrNotFound, "track %s", trackID)
}

// Tracks looks up every ID, preserving order.
func (c *CatalogChain) Tracks(ctx context.Context, trackIDs []string) ([]track.Track, error) {
	tracks := make([]track.Track, 0, len(trackIDs))
	for _, id := range trackIDs {
		t, err := c.Track(ctx, id)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// Playlist returns a playlist from the first catalog that supports playlists.
func (c *CatalogChain) Playlist(ctx context.Context, playlistID string) (playlist.Playlist, error) {
	var lastErr error
	for _, cat := range c.catalogs {
		pc, ok := cat.(PlaylistCatalog)
		if !ok {
			continue
		}
		p, err := pc.Playlist(ctx, playlistID)
		if err == nil {
			return p, nil
		}
		zlog.Warn().Msgf("stream: playlist lookup failed, trying next: catalog=%s playlist=%s error=%v", cat.Name(), playlistID, err)
		lastErr = err
	}
	if lastErr != nil {
		return playlist.Playlist{}, errors.Wrapf(lastErr, "playlist %s", playlistID)
	}
	return playlist.Playlist{}, errors.Wrapf(ErrNotFound, "no playlist catalog for %s", playlistID)
}
