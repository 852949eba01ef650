package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/segue/internal/app/nowplaying"
)

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu     sync.Mutex
	msgs   []published
	gate   chan struct{}
	closed bool
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload []byte) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, retained: retained, payload: payload})
	return nil
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeClient) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func TestPublisher_Update(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "segue/nowplaying", 1)
	defer p.Close()

	p.Update(nowplaying.Snapshot{TrackID: "t1", Title: "Song", State: "playing", IsPlaying: true})

	require.Eventually(t, func() bool { return len(client.messages()) == 1 }, time.Second, 5*time.Millisecond)
	msg := client.messages()[0]
	assert.Equal(t, "segue/nowplaying", msg.topic)
	assert.True(t, msg.retained)

	var got nowplaying.Snapshot
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "Song", got.Title)
	assert.True(t, got.IsPlaying)
}

func TestPublisher_KeepsOnlyLatestState(t *testing.T) {
	client := &fakeClient{gate: make(chan struct{})}
	p := NewPublisher(client, "np", 0)

	p.Update(nowplaying.Snapshot{TrackID: "a"})
	// The first publish is blocked; these pile up behind it.
	time.Sleep(20 * time.Millisecond)
	p.Update(nowplaying.Snapshot{TrackID: "b"})
	p.Update(nowplaying.Snapshot{TrackID: "c"})
	p.ReportError(errors.New("boom"))
	close(client.gate)
	p.Close()

	msgs := client.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "np/error", msgs[1].topic)
	assert.False(t, msgs[1].retained)
	var last nowplaying.Snapshot
	require.NoError(t, json.Unmarshal(msgs[2].payload, &last))
	assert.Equal(t, "c", last.TrackID)
	assert.True(t, client.closed)
}

func TestPublisher_ClearRemovesRetained(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "np", 0)

	p.Clear()
	p.Close()

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].retained)
	assert.Empty(t, msgs[0].payload)
}

func TestDial_RequiresBroker(t *testing.T) {
	_, err := Dial(Config{Topic: "np"})
	assert.Error(t, err)
}
