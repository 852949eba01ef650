package nowplaying

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu   sync.Mutex
	got  []*Notification
	fail bool
}

func (r *recordingStream) Send(n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("stream closed")
	}
	r.got = append(r.got, n)
	return nil
}

func (r *recordingStream) received() []*Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Notification, len(r.got))
	copy(out, r.got)
	return out
}

func TestHub_BroadcastsInOrder(t *testing.T) {
	h := NewHub()
	defer h.Close()
	s := &recordingStream{}
	h.Subscribe(s)

	h.Update(Snapshot{TrackID: "a", State: "playing"})
	h.ReportError(errors.New("boom"))
	h.Clear()

	require.Eventually(t, func() bool { return len(s.received()) == 3 }, time.Second, 5*time.Millisecond)
	got := s.received()
	assert.Equal(t, KindUpdate, got[0].Kind)
	assert.Equal(t, "a", got[0].Snapshot.TrackID)
	assert.Equal(t, KindError, got[1].Kind)
	assert.Equal(t, "boom", got[1].Error)
	assert.Equal(t, KindClear, got[2].Kind)
	assert.Less(t, got[0].SequenceNo, got[1].SequenceNo)
	assert.Less(t, got[1].SequenceNo, got[2].SequenceNo)
}

func TestHub_NewSubscriberGetsLatest(t *testing.T) {
	h := NewHub()
	defer h.Close()

	h.Update(Snapshot{TrackID: "a"})
	h.Update(Snapshot{TrackID: "b"})

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, "b", latest.Snapshot.TrackID)

	s := &recordingStream{}
	h.Subscribe(s)
	got := s.received()
	require.NotEmpty(t, got)
	assert.Equal(t, "b", got[0].Snapshot.TrackID)
}

func TestHub_SubscriberNeverGoesBackwards(t *testing.T) {
	h := NewHub()
	defer h.Close()

	h.Update(Snapshot{TrackID: "a"})
	h.Update(Snapshot{TrackID: "b"})
	latest, ok := h.Latest()
	require.True(t, ok)

	s := &recordingStream{}
	h.Subscribe(s)

	// Broadcasts still in flight from before the subscription are stale.
	h.Broadcast(&Notification{Kind: KindUpdate, Snapshot: &Snapshot{TrackID: "a"}, SequenceNo: latest.SequenceNo - 1})
	h.Broadcast(latest)
	h.Update(Snapshot{TrackID: "c"})

	require.Eventually(t, func() bool { return len(s.received()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	got := s.received()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Snapshot.TrackID)
	assert.Equal(t, "c", got[1].Snapshot.TrackID)
}

func TestHub_FailingSubscriberIsRemoved(t *testing.T) {
	h := NewHub()
	defer h.Close()
	h.Subscribe(&recordingStream{fail: true})
	ok := &recordingStream{}
	h.Subscribe(ok)
	require.Equal(t, 2, h.SubscriberCount())

	h.Update(Snapshot{TrackID: "a"})

	require.Eventually(t, func() bool { return h.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(ok.received()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()
	defer h.Close()
	id := h.Subscribe(&recordingStream{})

	h.Unsubscribe(id)

	assert.Zero(t, h.SubscriberCount())
}

type countingReporter struct {
	updates, errs, clears int
}

func (c *countingReporter) Update(Snapshot)   { c.updates++ }
func (c *countingReporter) ReportError(error) { c.errs++ }
func (c *countingReporter) Clear()            { c.clears++ }

func TestMulti(t *testing.T) {
	a, b := &countingReporter{}, &countingReporter{}
	m := Multi{a, b, NewLogReporter(), Nop{}}

	m.Update(Snapshot{TrackID: "a"})
	m.ReportError(errors.New("x"))
	m.Clear()

	for _, r := range []*countingReporter{a, b} {
		assert.Equal(t, 1, r.updates)
		assert.Equal(t, 1, r.errs)
		assert.Equal(t, 1, r.clears)
	}
}
