package connect

import (
	"time"

	"github.com/samber/lo"

	"github.com/osa030/segue/internal/app/playback"
	"github.com/osa030/segue/internal/domain/track"
)

// Empty is the request or response of calls that carry no data.
type Empty struct{}

// PlayRequest replaces the queue with tracks looked up by ID.
type PlayRequest struct {
	TrackIDs []string `json:"track_ids"`
	Start    int      `json:"start"`
}

// PlayPlaylistRequest replaces the queue with a catalog playlist.
type PlayPlaylistRequest struct {
	PlaylistID string `json:"playlist_id"`
	Start      int    `json:"start"`
}

// PlayPlaylistResponse reports how many tracks were queued.
type PlayPlaylistResponse struct {
	Name    string `json:"name"`
	Queued  int    `json:"queued"`
	Skipped int    `json:"skipped"`
}

// TrackRequest names a single track.
type TrackRequest struct {
	TrackID string `json:"track_id"`
}

// SeekRequest moves the current track.
type SeekRequest struct {
	PositionMs int64 `json:"position_ms"`
}

// PositionRequest names a play-order position.
type PositionRequest struct {
	Position int `json:"position"`
}

// MoveRequest moves an entry between play-order positions.
type MoveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// RepeatRequest sets the repeat mode.
type RepeatRequest struct {
	Mode string `json:"mode"`
}

// RepeatResponse reports the repeat mode.
type RepeatResponse struct {
	Mode string `json:"mode"`
}

// ShuffleResponse reports the shuffle setting.
type ShuffleResponse struct {
	Shuffle bool `json:"shuffle"`
}

// TrackInfo describes a track.
type TrackInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	ReleaseYear int    `json:"release_year,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

// EntryInfo describes a queue entry.
type EntryInfo struct {
	EntryID string    `json:"entry_id"`
	Track   TrackInfo `json:"track"`
}

// StatusResponse is the engine status.
type StatusResponse struct {
	State         string                `json:"state"`
	Current       *EntryInfo            `json:"current,omitempty"`
	PositionMs    int64                 `json:"position_ms"`
	DurationMs    int64                 `json:"duration_ms"`
	IsBuffering   bool                  `json:"is_buffering"`
	IsSeeking     bool                  `json:"is_seeking"`
	QueuePosition int                   `json:"queue_position"`
	QueueLength   int                   `json:"queue_length"`
	Repeat        string                `json:"repeat"`
	Shuffle       bool                  `json:"shuffle"`
	Window        []playback.WindowSlot `json:"window"`
	LastError     string                `json:"last_error,omitempty"`
	Stats         playback.Stats        `json:"stats"`
}

// QueueResponse is the queue in play order.
type QueueResponse struct {
	Entries  []EntryInfo `json:"entries"`
	Position int         `json:"position"`
	Repeat   string      `json:"repeat"`
	Shuffle  bool        `json:"shuffle"`
}

func toTrackInfo(t track.Track) TrackInfo {
	return TrackInfo{
		ID:          t.ID,
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		ReleaseYear: t.ReleaseYear,
		DurationMs:  t.Duration.Milliseconds(),
	}
}

func toEntryInfo(e track.Entry) EntryInfo {
	return EntryInfo{EntryID: e.ID, Track: toTrackInfo(e.Track)}
}

func toStatusResponse(st playback.Status) *StatusResponse {
	resp := &StatusResponse{
		State:         st.State.String(),
		PositionMs:    st.Position.Milliseconds(),
		DurationMs:    st.Duration.Milliseconds(),
		IsBuffering:   st.IsBuffering,
		IsSeeking:     st.IsSeeking,
		QueuePosition: st.QueuePosition,
		QueueLength:   st.QueueLength,
		Repeat:        st.Repeat.String(),
		Shuffle:       st.Shuffle,
		Window:        st.Window,
		LastError:     st.LastError,
		Stats:         st.Stats,
	}
	if st.Current != nil {
		entry := toEntryInfo(*st.Current)
		resp.Current = &entry
	}
	return resp
}

func toQueueResponse(v playback.QueueView) *QueueResponse {
	return &QueueResponse{
		Entries:  lo.Map(v.Entries, func(e track.Entry, _ int) EntryInfo { return toEntryInfo(e) }),
		Position: v.Position,
		Repeat:   v.Repeat.String(),
		Shuffle:  v.Shuffle,
	}
}

// Position returns the position as a duration.
func (r *StatusResponse) Position() time.Duration {
	return time.Duration(r.PositionMs) * time.Millisecond
}

// Duration returns the track duration.
func (r *StatusResponse) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}
