package connect

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/osa030/segue/internal/app/nowplaying"
	"github.com/osa030/segue/internal/app/playback"
)

// Client is a control service client.
type Client struct {
	play                *connect.Client[PlayRequest, Empty]
	playPlaylist        *connect.Client[PlayPlaylistRequest, PlayPlaylistResponse]
	togglePlayPause     *connect.Client[Empty, StatusResponse]
	next                *connect.Client[Empty, StatusResponse]
	previous            *connect.Client[Empty, StatusResponse]
	seek                *connect.Client[SeekRequest, StatusResponse]
	insertNext          *connect.Client[TrackRequest, EntryInfo]
	append              *connect.Client[TrackRequest, EntryInfo]
	remove              *connect.Client[PositionRequest, EntryInfo]
	move                *connect.Client[MoveRequest, QueueResponse]
	jumpTo              *connect.Client[PositionRequest, StatusResponse]
	toggleShuffle       *connect.Client[Empty, ShuffleResponse]
	cycleRepeat         *connect.Client[Empty, RepeatResponse]
	setRepeat           *connect.Client[RepeatRequest, RepeatResponse]
	clear               *connect.Client[Empty, Empty]
	getStatus           *connect.Client[Empty, StatusResponse]
	getQueue            *connect.Client[Empty, QueueResponse]
	getStats            *connect.Client[Empty, playback.Stats]
	subscribeNowPlaying *connect.Client[Empty, nowplaying.Notification]
}

// NewClient creates a control client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(newClientTokenInterceptor(token)),
	}, opts...)

	return &Client{
		play:                connect.NewClient[PlayRequest, Empty](httpClient, baseURL+ProcedurePlay, opts...),
		playPlaylist:        connect.NewClient[PlayPlaylistRequest, PlayPlaylistResponse](httpClient, baseURL+ProcedurePlayPlaylist, opts...),
		togglePlayPause:     connect.NewClient[Empty, StatusResponse](httpClient, baseURL+ProcedureTogglePlayPause, opts...),
		next:                connect.NewClient[Empty, StatusResponse](httpClient, baseURL+ProcedureNext, opts...),
		previous:            connect.NewClient[Empty, StatusResponse](httpClient, baseURL+ProcedurePrevious, opts...),
		seek:                connect.NewClient[SeekRequest, StatusResponse](httpClient, baseURL+ProcedureSeek, opts...),
		insertNext:          connect.NewClient[TrackRequest, EntryInfo](httpClient, baseURL+ProcedureInsertNext, opts...),
		append:              connect.NewClient[TrackRequest, EntryInfo](httpClient, baseURL+ProcedureAppend, opts...),
		remove:              connect.NewClient[PositionRequest, EntryInfo](httpClient, baseURL+ProcedureRemove, opts...),
		move:                connect.NewClient[MoveRequest, QueueResponse](httpClient, baseURL+ProcedureMove, opts...),
		jumpTo:              connect.NewClient[PositionRequest, StatusResponse](httpClient, baseURL+ProcedureJumpTo, opts...),
		toggleShuffle:       connect.NewClient[Empty, ShuffleResponse](httpClient, baseURL+ProcedureToggleShuffle, opts...),
		cycleRepeat:         connect.NewClient[Empty, RepeatResponse](httpClient, baseURL+ProcedureCycleRepeat, opts...),
		setRepeat:           connect.NewClient[RepeatRequest, RepeatResponse](httpClient, baseURL+ProcedureSetRepeat, opts...),
		clear:               connect.NewClient[Empty, Empty](httpClient, baseURL+ProcedureClear, opts...),
		getStatus:           connect.NewClient[Empty, StatusResponse](httpClient, baseURL+ProcedureGetStatus, opts...),
		getQueue:            connect.NewClient[Empty, QueueResponse](httpClient, baseURL+ProcedureGetQueue, opts...),
		getStats:            connect.NewClient[Empty, playback.Stats](httpClient, baseURL+ProcedureGetStats, opts...),
		subscribeNowPlaying: connect.NewClient[Empty, nowplaying.Notification](httpClient, baseURL+ProcedureSubscribeNowPlaying, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Play replaces the queue with the given tracks.
func (c *Client) Play(ctx context.Context, trackIDs []string, start int) error {
	_, err := call(ctx, c.play, &PlayRequest{TrackIDs: trackIDs, Start: start})
	return err
}

// PlayPlaylist replaces the queue with a playlist.
func (c *Client) PlayPlaylist(ctx context.Context, playlistID string, start int) (*PlayPlaylistResponse, error) {
	return call(ctx, c.playPlaylist, &PlayPlaylistRequest{PlaylistID: playlistID, Start: start})
}

// TogglePlayPause flips between playing and paused.
func (c *Client) TogglePlayPause(ctx context.Context) (*StatusResponse, error) {
	return call(ctx, c.togglePlayPause, &Empty{})
}

// Next skips to the next entry.
func (c *Client) Next(ctx context.Context) (*StatusResponse, error) {
	return call(ctx, c.next, &Empty{})
}

// Previous restarts the track or goes back one entry.
func (c *Client) Previous(ctx context.Context) (*StatusResponse, error) {
	return call(ctx, c.previous, &Empty{})
}

// Seek moves the current track.
func (c *Client) Seek(ctx context.Context, position time.Duration) (*StatusResponse, error) {
	return call(ctx, c.seek, &SeekRequest{PositionMs: position.Milliseconds()})
}

// InsertNext queues a track after the current entry.
func (c *Client) InsertNext(ctx context.Context, trackID string) (*EntryInfo, error) {
	return call(ctx, c.insertNext, &TrackRequest{TrackID: trackID})
}

// Append queues a track at the end.
func (c *Client) Append(ctx context.Context, trackID string) (*EntryInfo, error) {
	return call(ctx, c.append, &TrackRequest{TrackID: trackID})
}

// Remove deletes the entry at a play-order position.
func (c *Client) Remove(ctx context.Context, position int) (*EntryInfo, error) {
	return call(ctx, c.remove, &PositionRequest{Position: position})
}

// Move relocates an entry.
func (c *Client) Move(ctx context.Context, from, to int) (*QueueResponse, error) {
	return call(ctx, c.move, &MoveRequest{From: from, To: to})
}

// JumpTo plays the entry at a play-order position.
func (c *Client) JumpTo(ctx context.Context, position int) (*StatusResponse, error) {
	return call(ctx, c.jumpTo, &PositionRequest{Position: position})
}

// ToggleShuffle flips shuffle and returns the new setting.
func (c *Client) ToggleShuffle(ctx context.Context) (bool, error) {
	resp, err := call(ctx, c.toggleShuffle, &Empty{})
	if err != nil {
		return false, err
	}
	return resp.Shuffle, nil
}

// CycleRepeat moves to the next repeat mode and returns it.
func (c *Client) CycleRepeat(ctx context.Context) (string, error) {
	resp, err := call(ctx, c.cycleRepeat, &Empty{})
	if err != nil {
		return "", err
	}
	return resp.Mode, nil
}

// SetRepeat sets the repeat mode.
func (c *Client) SetRepeat(ctx context.Context, mode string) (string, error) {
	resp, err := call(ctx, c.setRepeat, &RepeatRequest{Mode: mode})
	if err != nil {
		return "", err
	}
	return resp.Mode, nil
}

// Clear empties the queue.
func (c *Client) Clear(ctx context.Context) error {
	_, err := call(ctx, c.clear, &Empty{})
	return err
}

// Status returns the engine status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return call(ctx, c.getStatus, &Empty{})
}

// Queue returns the queue in play order.
func (c *Client) Queue(ctx context.Context) (*QueueResponse, error) {
	return call(ctx, c.getQueue, &Empty{})
}

// Stats returns the engine counters.
func (c *Client) Stats(ctx context.Context) (*playback.Stats, error) {
	return call(ctx, c.getStats, &Empty{})
}

// SubscribeNowPlaying calls fn for every notification until ctx is done or
// the server ends the stream.
func (c *Client) SubscribeNowPlaying(ctx context.Context, fn func(*nowplaying.Notification)) error {
	stream, err := c.subscribeNowPlaying.CallServerStream(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		fn(stream.Msg())
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
