package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/segue/internal/app/nowplaying"
	"github.com/osa030/segue/internal/app/playback"
	"github.com/osa030/segue/internal/app/stream"
	"github.com/osa030/segue/internal/domain/playlist"
	"github.com/osa030/segue/internal/domain/queue"
	"github.com/osa030/segue/internal/domain/track"
)

const testToken = "secret"

type fakeEngine struct {
	mu      sync.Mutex
	played  []track.Track
	start   int
	seekTo  time.Duration
	repeat  queue.RepeatMode
	status  playback.Status
	err     error
	entries []track.Entry
}

func (f *fakeEngine) Play(_ context.Context, tracks []track.Track, start int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.played = tracks
	f.start = start
	return nil
}

func (f *fakeEngine) TogglePlayPause(context.Context) error { return f.err }
func (f *fakeEngine) Next(context.Context) error            { return f.err }
func (f *fakeEngine) Previous(context.Context) error        { return f.err }

func (f *fakeEngine) Seek(_ context.Context, position time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seekTo = position
	return f.err
}

func (f *fakeEngine) add(t track.Track) (track.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return track.Entry{}, f.err
	}
	e := track.NewEntry(t)
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeEngine) InsertNext(_ context.Context, t track.Track) (track.Entry, error) { return f.add(t) }
func (f *fakeEngine) Append(_ context.Context, t track.Track) (track.Entry, error)     { return f.add(t) }

func (f *fakeEngine) Remove(_ context.Context, at int) (track.Entry, error) {
	if at < 0 || at >= len(f.entries) {
		return track.Entry{}, errors.Wrapf(queue.ErrInvalidArgument, "position %d out of range", at)
	}
	return f.entries[at], nil
}

func (f *fakeEngine) Move(context.Context, int, int) error { return f.err }
func (f *fakeEngine) JumpTo(context.Context, int) error    { return f.err }
func (f *fakeEngine) ToggleShuffle(context.Context) (bool, error) {
	return true, f.err
}

func (f *fakeEngine) CycleRepeatMode(context.Context) (queue.RepeatMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repeat = f.repeat.Next()
	return f.repeat, nil
}

func (f *fakeEngine) SetRepeatMode(_ context.Context, mode queue.RepeatMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repeat = mode
	return nil
}

func (f *fakeEngine) Clear(context.Context) error { return f.err }

func (f *fakeEngine) Status(context.Context) (playback.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeEngine) Queue(context.Context) (playback.QueueView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return playback.QueueView{Entries: f.entries, Repeat: f.repeat}, nil
}

func (f *fakeEngine) Stats(context.Context) (playback.Stats, error) {
	return playback.Stats{Rebuilds: 2, WindowAdvances: 5}, nil
}

type fakeCatalog struct {
	tracks    map[string]track.Track
	playlists map[string]playlist.Playlist
}

func (c *fakeCatalog) Track(_ context.Context, id string) (track.Track, error) {
	t, ok := c.tracks[id]
	if !ok {
		return track.Track{}, errors.Wrapf(stream.ErrNotFound, "track %s", id)
	}
	return t, nil
}

func (c *fakeCatalog) Tracks(ctx context.Context, ids []string) ([]track.Track, error) {
	result := make([]track.Track, 0, len(ids))
	for _, id := range ids {
		t, err := c.Track(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

func (c *fakeCatalog) Playlist(_ context.Context, id string) (playlist.Playlist, error) {
	p, ok := c.playlists[id]
	if !ok {
		return playlist.Playlist{}, errors.Wrapf(stream.ErrNotFound, "playlist %s", id)
	}
	return p, nil
}

type harness struct {
	engine *fakeEngine
	hub    *nowplaying.Hub
	client *Client
	server *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	a := track.Track{ID: "a", Title: "A", Duration: 3 * time.Minute}
	b := track.Track{ID: "b", Title: "B", Duration: 4 * time.Minute}
	catalog := &fakeCatalog{
		tracks: map[string]track.Track{"a": a, "b": b},
		playlists: map[string]playlist.Playlist{
			"mix": {ID: "mix", Name: "Mix", Tracks: []track.Track{a, {ID: "broken"}, b}},
		},
	}
	engine := &fakeEngine{}
	hub := nowplaying.NewHub()

	svc := NewControlService(engine, catalog, hub)
	path, handler := NewControlServiceHandler(svc, connect.WithInterceptors(NewAuthInterceptor(testToken)))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return &harness{
		engine: engine,
		hub:    hub,
		client: NewClient(server.Client(), server.URL, testToken),
		server: server,
	}
}

func TestControlService_Play(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.client.Play(context.Background(), []string{"a", "b"}, 1))
	require.Len(t, h.engine.played, 2)
	assert.Equal(t, "b", h.engine.played[1].ID)
	assert.Equal(t, 1, h.engine.start)
}

func TestControlService_PlayPlaylistSkipsUnplayable(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.PlayPlaylist(context.Background(), "mix", 0)
	require.NoError(t, err)
	assert.Equal(t, "Mix", resp.Name)
	assert.Equal(t, 2, resp.Queued)
	assert.Equal(t, 1, resp.Skipped)
}

func TestControlService_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		call func(c *Client) error
		want connect.Code
	}{
		{
			name: "unknown track",
			call: func(c *Client) error { return c.Play(context.Background(), []string{"zzz"}, 0) },
			want: connect.CodeNotFound,
		},
		{
			name: "empty play",
			call: func(c *Client) error { return c.Play(context.Background(), nil, 0) },
			want: connect.CodeInvalidArgument,
		},
		{
			name: "bad position",
			call: func(c *Client) error { _, err := c.Remove(context.Background(), 7); return err },
			want: connect.CodeInvalidArgument,
		},
		{
			name: "bad repeat mode",
			call: func(c *Client) error { _, err := c.SetRepeat(context.Background(), "twice"); return err },
			want: connect.CodeInvalidArgument,
		},
		{
			name: "negative seek",
			call: func(c *Client) error { _, err := c.Seek(context.Background(), -time.Second); return err },
			want: connect.CodeInvalidArgument,
		},
		{
			name: "missing track id",
			call: func(c *Client) error { _, err := c.Append(context.Background(), ""); return err },
			want: connect.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			err := tt.call(h.client)
			require.Error(t, err)
			assert.Equal(t, tt.want, connect.CodeOf(err))
		})
	}
}

func TestControlService_EngineClosed(t *testing.T) {
	h := newHarness(t)
	h.engine.err = playback.ErrClosed

	_, err := h.client.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestControlService_RejectsBadToken(t *testing.T) {
	h := newHarness(t)
	c := NewClient(h.server.Client(), h.server.URL, "wrong")

	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	err = c.SubscribeNowPlaying(context.Background(), func(*nowplaying.Notification) {})
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestControlService_QueueEdits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entry, err := h.client.Append(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", entry.Track.ID)
	assert.Equal(t, int64(180000), entry.Track.DurationMs)

	_, err = h.client.InsertNext(ctx, "b")
	require.NoError(t, err)

	q, err := h.client.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, q.Entries, 2)
	assert.Equal(t, entry.EntryID, q.Entries[0].EntryID)

	mode, err := h.client.CycleRepeat(ctx)
	require.NoError(t, err)
	assert.Equal(t, "all", mode)

	mode, err = h.client.SetRepeat(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, "one", mode)

	on, err := h.client.ToggleShuffle(ctx)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestControlService_Status(t *testing.T) {
	h := newHarness(t)
	entry := track.NewEntry(track.Track{ID: "a", Title: "A", Duration: time.Minute})
	h.engine.status = playback.Status{
		State:       playback.StatePlaying,
		Current:     &entry,
		Position:    15 * time.Second,
		Duration:    time.Minute,
		QueueLength: 1,
		Repeat:      queue.RepeatAll,
		Window:      []playback.WindowSlot{{EntryID: entry.ID, TrackID: "a", Status: "ready"}},
	}

	st, err := h.client.Seek(context.Background(), 15*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, h.engine.seekTo)
	assert.Equal(t, "playing", st.State)
	require.NotNil(t, st.Current)
	assert.Equal(t, "a", st.Current.Track.ID)
	assert.Equal(t, 15*time.Second, st.Position())
	assert.Equal(t, time.Minute, st.Duration())
	assert.Equal(t, "all", st.Repeat)
	require.Len(t, st.Window, 1)
	assert.Equal(t, "ready", st.Window[0].Status)

	stats, err := h.client.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.WindowAdvances)
}

func TestControlService_SubscribeNowPlaying(t *testing.T) {
	h := newHarness(t)
	h.hub.Update(nowplaying.Snapshot{TrackID: "a", Title: "A", State: "playing"})
	require.Eventually(t, func() bool {
		_, ok := h.hub.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *nowplaying.Notification, 8)
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.client.SubscribeNowPlaying(ctx, func(n *nowplaying.Notification) {
			received <- n
		})
	}()

	select {
	case n := <-received:
		require.NotNil(t, n.Snapshot)
		assert.Equal(t, "a", n.Snapshot.TrackID)
		assert.Equal(t, nowplaying.KindUpdate, n.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial notification")
	}

	require.Eventually(t, func() bool { return h.hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	h.hub.Clear()

	select {
	case n := <-received:
		assert.Equal(t, nowplaying.KindClear, n.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast notification")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
}
