// Package connect provides the Connect RPC control service and client.
package connect

import (
	"context"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/segue/internal/app/nowplaying"
	"github.com/osa030/segue/internal/app/playback"
	"github.com/osa030/segue/internal/app/stream"
	"github.com/osa030/segue/internal/domain/playlist"
	"github.com/osa030/segue/internal/domain/queue"
	"github.com/osa030/segue/internal/domain/track"
)

// Engine is the playback engine as seen by the control service.
type Engine interface {
	Play(ctx context.Context, tracks []track.Track, start int) error
	TogglePlayPause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	InsertNext(ctx context.Context, t track.Track) (track.Entry, error)
	Append(ctx context.Context, t track.Track) (track.Entry, error)
	Remove(ctx context.Context, at int) (track.Entry, error)
	Move(ctx context.Context, from, to int) error
	JumpTo(ctx context.Context, pos int) error
	ToggleShuffle(ctx context.Context) (bool, error)
	CycleRepeatMode(ctx context.Context) (queue.RepeatMode, error)
	SetRepeatMode(ctx context.Context, mode queue.RepeatMode) error
	Clear(ctx context.Context) error
	Status(ctx context.Context) (playback.Status, error)
	Queue(ctx context.Context) (playback.QueueView, error)
	Stats(ctx context.Context) (playback.Stats, error)
}

// Catalog looks up tracks and playlists for remote commands.
type Catalog interface {
	Track(ctx context.Context, trackID string) (track.Track, error)
	Tracks(ctx context.Context, trackIDs []string) ([]track.Track, error)
	Playlist(ctx context.Context, playlistID string) (playlist.Playlist, error)
}

// ControlService implements the ControlService RPC.
type ControlService struct {
	engine  Engine
	catalog Catalog
	hub     *nowplaying.Hub
}

// NewControlService creates a new ControlService.
func NewControlService(engine Engine, catalog Catalog, hub *nowplaying.Hub) *ControlService {
	return &ControlService{
		engine:  engine,
		catalog: catalog,
		hub:     hub,
	}
}

// Play replaces the queue with the requested tracks.
func (s *ControlService) Play(
	ctx context.Context,
	req *connect.Request[PlayRequest],
) (*connect.Response[Empty], error) {
	if len(req.Msg.TrackIDs) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("track_ids must not be empty"))
	}
	tracks, err := s.catalog.Tracks(ctx, req.Msg.TrackIDs)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.engine.Play(ctx, tracks, req.Msg.Start); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// PlayPlaylist replaces the queue with a playlist. Tracks without metadata
// duration are skipped.
func (s *ControlService) PlayPlaylist(
	ctx context.Context,
	req *connect.Request[PlayPlaylistRequest],
) (*connect.Response[PlayPlaylistResponse], error) {
	p, err := s.catalog.Playlist(ctx, req.Msg.PlaylistID)
	if err != nil {
		return nil, toConnectError(err)
	}
	tracks := p.Playable()
	if len(tracks) == 0 {
		return nil, connect.NewError(connect.CodeFailedPrecondition,
			errors.Newf("playlist %s has no playable tracks", req.Msg.PlaylistID))
	}
	if err := s.engine.Play(ctx, tracks, req.Msg.Start); err != nil {
		return nil, toConnectError(err)
	}
	zlog.Info().Msgf("api: playlist queued: playlist=%s name=%q tracks=%d", p.ID, p.Name, len(tracks))
	return connect.NewResponse(&PlayPlaylistResponse{
		Name:    p.Name,
		Queued:  len(tracks),
		Skipped: len(p.Tracks) - len(tracks),
	}), nil
}

// TogglePlayPause flips between playing and paused.
func (s *ControlService) TogglePlayPause(
	ctx context.Context,
	_ *connect.Request[Empty],
) (*connect.Response[StatusResponse], error) {
	if err := s.engine.TogglePlayPause(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return s.status(ctx)
}

// Next skips to the next entry.
func (s *ControlService) Next(
	ctx context.Context,
	_ *connect.Request[Empty],
) (*connect.Response[StatusResponse], error) {
	if err := s.engine.Next(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return s.status(ctx)
}

// Previous restarts the track or goes to the previous entry.
func (s *ControlService) Previous(
	ctx context.Context,
	_ *connect.Request[Empty],
) (*connect.Response[StatusResponse], error) {
	if err := s.engine.Previous(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return s.status(ctx)
}

// Seek moves the current track.
func (s *ControlService) Seek(
	ctx context.Context,
	req *connect.Request[SeekRequest],
) (*connect.Response[StatusResponse], error) {
	if req.Msg.PositionMs < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("position_ms must not be negative"))
	}
	if err := s.engine.Seek(ctx, time.Duration(req.Msg.PositionMs)*time.Millisecond); err != nil {
		return nil, toConnectError(err)
	}
	return s.status(ctx)
}

// InsertNext queues a track after the current entry.
func (s *ControlService) InsertNext(
	ctx context.Context,
	req *connect.Request[TrackRequest],
) (*connect.Response[EntryInfo], error) {
	return s.enqueue(ctx, req.Msg.TrackID, s.engine.InsertNext)
}

// Append queues a track at the end.
func (s *ControlService) Append(
	ctx context.Context,
	req *connect.Request[TrackRequest],
) (*connect.Response[EntryInfo], error) {
	return s.enqueue(ctx, req.Msg.TrackID, s.engine.Append)
}

func (s *ControlService) enqueue(
	ctx context.Context,
	trackID string,
	add func(context.Context, track.Track) (track.Entry, error),
) (*connect.Response[EntryInfo], error) {
	if trackID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("track_id is required"))
	}
	t, err := s.catalog.Track(ctx, trackID)
	if err != nil {
		return nil, toConnectError(err)
	}
	entry, err := add(ctx, t)
	if err != nil {
		return nil, toConnectError(err)
	}
	info := toEntryInfo(entry)
	return connect.NewResponse(&info), nil
}

// Remove deletes the entry at a play-order position.
func (s *ControlService) Remove(
	ctx context.Context,
	req *connect.Request[PositionRequest],
) (*connect.Response[EntryInfo], error) {
	entry, err := s.engine.Remove(ctx, req.Msg.Position)
	if err != nil {
		return nil, toConnectError(err)
	}
	info := toEntryInfo(entry)
	return connect.NewResponse(&info), nil
}

// Move relocates an entry.
func (s *ControlService) Move(
	ctx context.Context,
	req *connect.Request[MoveRequest],
) (*connect.Response[QueueResponse], error) {
	if err := s.engine.Move(ctx, req.Msg.From, req.Msg.To); err != nil {
		return nil, toConnectError(err)
	}
	return s.queue(ctx)
}

// JumpTo plays the entry at a play-order position.
func (s *ControlService) JumpTo(
	ctx context.Context,
	req *connect.Request[PositionRequest],
) (*connect.Response[StatusResponse], error) {
	if err := s.engine.JumpTo(ctx, req.Msg.Position); err != nil {
		return nil, toConnectError(err)
	}
	return s.status(ctx)
}

// ToggleShuffle flips shuffle.
func (s *ControlService) ToggleShuffle(
	ctx context.Context,
	_ *connect.Request[Empty],
) (*connect.Response[ShuffleResponse], error) {
	on, err := s.engine.ToggleShuffle(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ShuffleResponse{Shuffle: on}), nil
}

// CycleRepeat moves to the next repeat mode.
func (s *ControlService) CycleRepeat(
	ctx context.Context,
	_ *connect.Request[Empty],
) (*connect.Response[RepeatResponse], error) {
	mode, err := s.engine.CycleRepeatMode(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RepeatResponse{Mode: mode.String()}), nil
}

// SetRepeat sets the repeat mode.
func (s *ControlService) SetRepeat(
	ctx context.Context,
	req *connect.Request[RepeatRequest],
) (*connect.Response[RepeatResponse], error) {
	mode, err := queue.ParseRepeatMode(req.Msg.Mode)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.engine.SetRepeatMode(ctx, mode); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RepeatResponse{Mode: mode.String()}), nil
}

// Clear empties the queue.
func (s *ControlService) Clear(
	ctx context.Context,
	_ *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	if err := s.engine.Clear(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// GetStatus returns the engine status.
func (s *ControlService) GetStatus(
	ctx context.Context,
	_ *connect.Request[Empty],
) (*connect.Response[StatusResponse], error) {
	return s.status(ctx)
}

// GetQueue returns the queue in play order.
func (s *ControlService) GetQueue(
	ctx context.Context,
	_ *connect.Request[Empty],
) (*connect.Response[QueueResponse], error) {
	return s.queue(ctx)
}

// GetStats returns the engine counters.
func (s *ControlService) GetStats(
	ctx context.Context,
	_ *connect.Request[Empty],
) (*connect.Response[playback.Stats], error) {
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&stats), nil
}

// SubscribeNowPlaying streams now-playing notifications, starting with the
// latest one.
func (s *ControlService) SubscribeNowPlaying(
	ctx context.Context,
	_ *connect.Request[Empty],
	srv *connect.ServerStream[nowplaying.Notification],
) error {
	adapter := &notificationStreamAdapter{stream: srv}
	subscriptionID := s.hub.Subscribe(adapter)
	zlog.Debug().Msgf("api: now-playing subscriber joined: subscription=%s", subscriptionID)

	select {
	case <-ctx.Done():
	case <-s.hub.Done():
	}

	s.hub.Unsubscribe(subscriptionID)
	zlog.Debug().Msgf("api: now-playing subscriber left: subscription=%s", subscriptionID)
	return nil
}

func (s *ControlService) status(ctx context.Context) (*connect.Response[StatusResponse], error) {
	st, err := s.engine.Status(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toStatusResponse(st)), nil
}

func (s *ControlService) queue(ctx context.Context) (*connect.Response[QueueResponse], error) {
	v, err := s.engine.Queue(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toQueueResponse(v)), nil
}

// notificationStreamAdapter adapts connect.ServerStream to nowplaying.Stream.
// Sends are serialized because the hub may overlap a timed-out send with the
// next broadcast.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[nowplaying.Notification]
}

func (a *notificationStreamAdapter) Send(n *nowplaying.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(n)
}

// toConnectError maps engine and catalog errors to connect codes.
func toConnectError(err error) error {
	var cerr *connect.Error
	switch {
	case errors.As(err, &cerr):
		return err
	case errors.Is(err, queue.ErrInvalidArgument), errors.Is(err, track.ErrInvalidTrack):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, stream.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, playback.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case stream.IsTransient(err):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
