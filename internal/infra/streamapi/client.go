// Package streamapi provides a catalog and stream resolver backed by an HTTP
// streaming API.
package streamapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/segue/internal/app/stream"
	"github.com/osa030/segue/internal/domain/track"
)

// Settings represents streamapi resolver settings.
type Settings struct {
	BaseURL   string `mapstructure:"base_url" validate:"required,url"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMs int    `mapstructure:"timeout_ms" default:"10000" validate:"min=1"`
}

// Client is a streaming API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// Cache for track metadata
	trackCache map[string]track.Track
	cacheMu    sync.RWMutex
}

// TrackResponse represents the response from GET /tracks/{id}.
type TrackResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	AlbumID     string `json:"album_id"`
	ArtistID    string `json:"artist_id"`
	ReleaseYear int    `json:"release_year"`
	DiscNumber  int    `json:"disc_number"`
	TrackNumber int    `json:"track_number"`
	DurationMs  int64  `json:"duration_ms"`
}

// StreamResponse represents the response from GET /tracks/{id}/stream.
type StreamResponse struct {
	URL        string `json:"url"`
	MimeType   string `json:"mime_type"`
	Quality    string `json:"quality"`
	DurationMs int64  `json:"duration_ms"`
}

// APIError represents an error response body.
type APIError struct {
	Message string `json:"error"`
}

// New creates a new streaming API client.
func New(s Settings) (*Client, error) {
	if s.BaseURL == "" {
		return nil, errors.New("streamapi base URL is required")
	}
	timeout := time.Duration(s.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		apiKey:     s.APIKey,
		baseURL:    strings.TrimRight(s.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		trackCache: make(map[string]track.Track),
	}, nil
}

// NewFromSettings creates a client from resolver config settings.
func NewFromSettings(settings map[string]any) (any, error) {
	var s Settings
	if err := stream.DecodeSettings(settings, &s); err != nil {
		return nil, errors.Wrap(err, "invalid streamapi settings")
	}
	return New(s)
}

// Name returns the resolver name.
func (c *Client) Name() string {
	return "streamapi"
}

// Track retrieves track metadata by ID.
func (c *Client) Track(ctx context.Context, trackID string) (track.Track, error) {
	if trackID == "" {
		return track.Track{}, errors.New("track id is required")
	}

	c.cacheMu.RLock()
	if t, ok := c.trackCache[trackID]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("streamapi: using cached track: %s", trackID)
		return t, nil
	}
	c.cacheMu.RUnlock()

	var response TrackResponse
	if err := c.get(ctx, "/tracks/"+url.PathEscape(trackID), nil, &response); err != nil {
		return track.Track{}, errors.Wrapf(err, "failed to get track %s", trackID)
	}

	t := track.Track{
		ID:          response.ID,
		Title:       response.Title,
		Artist:      response.Artist,
		Album:       response.Album,
		AlbumID:     response.AlbumID,
		ArtistID:    response.ArtistID,
		ReleaseYear: response.ReleaseYear,
		DiscNumber:  response.DiscNumber,
		TrackNumber: response.TrackNumber,
		Duration:    time.Duration(response.DurationMs) * time.Millisecond,
	}
	if t.ID == "" {
		t.ID = trackID
	}

	c.cacheMu.Lock()
	c.trackCache[trackID] = t
	c.cacheMu.Unlock()
	return t, nil
}

// Resolve returns a remote stream URL for the track at the given quality.
func (c *Client) Resolve(ctx context.Context, trackID string, quality string) (stream.Source, error) {
	params := url.Values{}
	if quality != "" {
		params.Set("quality", quality)
	}

	var response StreamResponse
	if err := c.get(ctx, "/tracks/"+url.PathEscape(trackID)+"/stream", params, &response); err != nil {
		return stream.Source{}, errors.Wrapf(err, "failed to resolve stream for track %s", trackID)
	}
	if response.URL == "" {
		return stream.Source{}, errors.Newf("empty stream url for track %s", trackID)
	}

	q := response.Quality
	if q == "" {
		q = quality
	}
	return stream.Source{
		Kind:     stream.KindRemote,
		TrackID:  trackID,
		URL:      response.URL,
		Quality:  q,
		MimeType: response.MimeType,
		Length:   time.Duration(response.DurationMs) * time.Millisecond,
	}, nil
}

// get sends a GET request and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return stream.MarkTransient(errors.Wrap(err, "failed to read response body"))
	}

	if resp.StatusCode != http.StatusOK {
		var apiError APIError
		_ = json.Unmarshal(body, &apiError)
		statusErr := &stream.StatusError{StatusCode: resp.StatusCode, URL: path}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return errors.Mark(errors.Wrap(statusErr, apiError.Message), stream.ErrNotFound)
		case statusErr.Retryable():
			return stream.MarkTransient(errors.Wrap(statusErr, apiError.Message))
		default:
			return errors.Wrap(statusErr, apiError.Message)
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
