package clock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/segue/internal/app/stream"
	"github.com/osa030/segue/internal/app/transport"
)

type recorder struct {
	mu     sync.Mutex
	events []transport.Event
}

func (r *recorder) listen(e transport.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) find(kind transport.EventKind, item transport.ItemID) (transport.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == kind && e.Item == item {
			return e, true
		}
	}
	return transport.Event{}, false
}

func (r *recorder) has(kind transport.EventKind, item transport.ItemID) bool {
	_, ok := r.find(kind, item)
	return ok
}

func (r *recorder) count(kind transport.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func newTestTransport(t *testing.T) (*Transport, *recorder) {
	t.Helper()
	tr := New(Config{
		TimeInterval: 20 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
	})
	rec := &recorder{}
	tr.SetListener(rec.listen)
	t.Cleanup(func() { _ = tr.Close() })
	return tr, rec
}

func remote(length time.Duration) stream.Source {
	return stream.Source{Kind: stream.KindRemote, URL: "https://example.com/a", Length: length}
}

func TestTransport_LoadReportsReady(t *testing.T) {
	tr, rec := newTestTransport(t)

	tr.Load("a", remote(time.Second))

	require.Eventually(t, func() bool {
		e, ok := rec.find(transport.EventStatus, "a")
		return ok && (e.Status == transport.StatusLoading || e.Status == transport.StatusReady)
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return rec.has(transport.EventBufferLikelyToKeepUp, "a")
	}, time.Second, 5*time.Millisecond)
}

func TestTransport_LoadFailures(t *testing.T) {
	tests := []struct {
		name string
		src  stream.Source
		is   error
	}{
		{name: "unknown length", src: remote(0), is: ErrUnknownLength},
		{name: "missing local file", src: stream.Source{Kind: stream.KindLocal, Path: "/nonexistent/file.mp3", Length: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, rec := newTestTransport(t)

			tr.Load("a", tt.src)

			require.Eventually(t, func() bool {
				rec.mu.Lock()
				defer rec.mu.Unlock()
				for _, e := range rec.events {
					if e.Kind == transport.EventStatus && e.Status == transport.StatusFailed {
						return e.Err != nil && (tt.is == nil || errors.Is(e.Err, tt.is))
					}
				}
				return false
			}, time.Second, 5*time.Millisecond)
		})
	}
}

func TestTransport_LocalFileReady(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3"), 0o644))
	tr, rec := newTestTransport(t)

	tr.Load("a", stream.Source{Kind: stream.KindLocal, Path: path, Length: time.Second})

	require.Eventually(t, func() bool {
		return rec.has(transport.EventBufferLikelyToKeepUp, "a")
	}, time.Second, 5*time.Millisecond)
}

func TestTransport_PlaysToEndAndHolds(t *testing.T) {
	tr, rec := newTestTransport(t)

	tr.Load("a", remote(150*time.Millisecond))
	tr.Load("b", remote(time.Second))
	tr.Play()

	require.Eventually(t, func() bool {
		return rec.has(transport.EventEndOfItem, "a")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Greater(t, rec.count(transport.EventTime), 0)

	// Holding at the end: no further end signals, head unchanged
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count(transport.EventEndOfItem))
	head, pos, ok := tr.Position()
	require.True(t, ok)
	assert.Equal(t, transport.ItemID("a"), head)
	assert.Equal(t, 150*time.Millisecond, pos)

	tr.Advance()

	head, _, ok = tr.Position()
	require.True(t, ok)
	assert.Equal(t, transport.ItemID("b"), head)
	require.Eventually(t, func() bool {
		return rec.has(transport.EventTime, "b")
	}, time.Second, 5*time.Millisecond)
}

func TestTransport_PauseStopsClock(t *testing.T) {
	tr, _ := newTestTransport(t)

	tr.Load("a", remote(10*time.Second))
	tr.Play()
	time.Sleep(50 * time.Millisecond)
	tr.Pause()

	_, paused, _ := tr.Position()
	time.Sleep(50 * time.Millisecond)
	_, later, _ := tr.Position()

	assert.Equal(t, paused, later)
	assert.Greater(t, paused, time.Duration(0))
}

func TestTransport_Seek(t *testing.T) {
	tr, rec := newTestTransport(t)

	tr.Load("a", remote(10*time.Second))
	tr.Seek(4*time.Second, 500*time.Millisecond)

	require.Eventually(t, func() bool {
		return rec.has(transport.EventSeekComplete, "a")
	}, time.Second, 5*time.Millisecond)
	e, _ := rec.find(transport.EventSeekComplete, "a")
	assert.Equal(t, 4*time.Second, e.Position)

	tr.Seek(time.Hour, 0)
	_, pos, _ := tr.Position()
	assert.Equal(t, 10*time.Second, pos)
}

func TestTransport_ReleaseHead(t *testing.T) {
	tr, _ := newTestTransport(t)

	tr.Load("a", remote(time.Second))
	tr.Load("b", remote(time.Second))
	tr.Release("a")
	tr.Release("missing")

	head, pos, ok := tr.Position()
	require.True(t, ok)
	assert.Equal(t, transport.ItemID("b"), head)
	assert.Equal(t, time.Duration(0), pos)

	tr.Release("b")
	_, _, ok = tr.Position()
	assert.False(t, ok)
}
