// Package spotify provides track and playlist metadata from the Spotify Web API,
// and preview clips as a fallback stream source.
package spotify

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/segue/internal/app/stream"
	"github.com/osa030/segue/internal/domain/playlist"
	"github.com/osa030/segue/internal/domain/track"
)

// previewLength is the length of a Spotify preview clip.
const previewLength = 30 * time.Second

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	previews   bool
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// Settings represents per-resolver settings.
type Settings struct {
	Market   string `mapstructure:"market" validate:"omitempty,len=2"`
	Previews bool   `mapstructure:"previews"` // Resolve preview clips as stream sources
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopePlaylistReadPrivate),
	)

	// Create token from refresh token
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	// Get HTTP client with auto-refresh capability
	httpClient := auth.Client(ctx, token)
	return newClient(spotify.New(httpClient), cfg.Market), nil
}

func newClient(client *spotify.Client, market string) *Client {
	if market == "" {
		market = "JP"
	}
	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// NewConstructor returns a resolver constructor bound to the account credentials.
func NewConstructor(ctx context.Context, cfg Config) stream.Constructor {
	return func(settings map[string]any) (any, error) {
		var s Settings
		if err := stream.DecodeSettings(settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid spotify settings")
		}
		if s.Market != "" {
			cfg.Market = s.Market
		}
		c, err := New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c.previews = s.Previews
		if !s.Previews {
			// Catalog only
			return catalogOnly{c}, nil
		}
		return c, nil
	}
}

// catalogOnly hides Resolve so the client registers as a catalog alone.
type catalogOnly struct {
	c *Client
}

func (o catalogOnly) Name() string { return o.c.Name() }

func (o catalogOnly) Track(ctx context.Context, trackID string) (track.Track, error) {
	return o.c.Track(ctx, trackID)
}

func (o catalogOnly) Playlist(ctx context.Context, playlistID string) (playlist.Playlist, error) {
	return o.c.Playlist(ctx, playlistID)
}

// Name returns the resolver name.
func (c *Client) Name() string {
	return "spotify"
}

// Track retrieves track information by ID, URL, or URI.
func (c *Client) Track(ctx context.Context, trackID string) (track.Track, error) {
	t, err := c.getTrack(ctx, trackID)
	if err != nil {
		return track.Track{}, err
	}
	return convertTrack(t), nil
}

// Resolve returns the track's preview clip.
func (c *Client) Resolve(ctx context.Context, trackID string, quality string) (stream.Source, error) {
	t, err := c.getTrack(ctx, trackID)
	if err != nil {
		return stream.Source{}, err
	}
	if t.PreviewURL == "" {
		return stream.Source{}, errors.Wrapf(stream.ErrNotFound, "no preview for track %s", trackID)
	}

	zlog.Debug().Msgf("spotify: using preview clip: track=%s", trackID)
	return stream.Source{
		Kind:     stream.KindRemote,
		TrackID:  trackID,
		URL:      t.PreviewURL,
		Quality:  "preview",
		MimeType: "audio/mpeg",
		Length:   previewLength,
	}, nil
}

// Playlist retrieves a playlist with all its tracks.
func (c *Client) Playlist(ctx context.Context, playlistURL string) (playlist.Playlist, error) {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return playlist.Playlist{}, errors.New("invalid playlist URL")
	}

	var full *spotify.FullPlaylist
	err := c.retry(func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		full = p
		return nil
	})
	if err != nil {
		return playlist.Playlist{}, wrapAPIError(err, "failed to get playlist")
	}

	tracks, err := c.playlistTracks(ctx, playlistID)
	if err != nil {
		return playlist.Playlist{}, err
	}
	return playlist.Playlist{
		ID:     playlistID,
		Name:   full.Name,
		Tracks: tracks,
	}, nil
}

// playlistTracks retrieves all tracks from a playlist.
func (c *Client) playlistTracks(ctx context.Context, playlistID string) ([]track.Track, error) {
	var tracks []track.Track
	offset := 0
	limit := 100

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, wrapAPIError(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Only process tracks (exclude episodes)
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				tracks = append(tracks, convertTrack(item.Track.Track))
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return tracks, nil
}

func (c *Client) getTrack(ctx context.Context, trackID string) (*spotify.FullTrack, error) {
	id := extractTrackID(trackID)
	if id == "" {
		return nil, errors.New("track id is required")
	}

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, wrapAPIError(err, "failed to get track")
	}
	return result, nil
}

// convertTrack converts a Spotify FullTrack to domain Track.
func convertTrack(t *spotify.FullTrack) track.Track {
	names := lo.Map(t.Artists, func(a spotify.SimpleArtist, _ int) string { return a.Name })

	var artistID string
	if len(t.Artists) > 0 {
		artistID = string(t.Artists[0].ID)
	}

	return track.Track{
		ID:          string(t.ID),
		Title:       t.Name,
		Artist:      strings.Join(names, ", "),
		Album:       t.Album.Name,
		AlbumID:     string(t.Album.ID),
		ArtistID:    artistID,
		ReleaseYear: releaseYear(t.Album.ReleaseDate),
		DiscNumber:  int(t.DiscNumber),
		TrackNumber: int(t.TrackNumber),
		Duration:    time.Duration(t.Duration) * time.Millisecond,
	}
}

// releaseYear parses the year from "YYYY", "YYYY-MM" or "YYYY-MM-DD".
func releaseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return stream.MarkTransient(errors.Wrap(lastErr, "max retries exceeded"))
}

// wrapAPIError marks API errors for the resolver chain.
func wrapAPIError(err error, msg string) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status == 404 {
		return errors.Mark(errors.Wrap(err, msg), stream.ErrNotFound)
	}
	return errors.Wrap(err, msg)
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:<kind>:ID
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// Handle URL format: https://open.spotify.com/<kind>/ID or https://open.spotify.com/intl-XX/<kind>/ID
	sep := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, sep) {
		parts := strings.Split(input, sep)
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already an ID
	return input
}
