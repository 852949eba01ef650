// Package clock provides a transport that plays items against the wall clock
// without producing audio.
package clock

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/segue/internal/app/stream"
	"github.com/osa030/segue/internal/app/transport"
)

// ErrUnknownLength is reported for sources that carry no playable length.
var ErrUnknownLength = errors.New("source length unknown")

// Config holds clock transport configuration.
type Config struct {
	TimeInterval time.Duration // Interval of time events for the head item
	LoadDelay    time.Duration // Simulated time to open a source
	TickInterval time.Duration // Wall clock polling interval (default 100ms)
}

type item struct {
	id     transport.ItemID
	src    stream.Source
	length time.Duration
	status transport.Status
}

// Transport is a wall-clock simulated transport.
type Transport struct {
	mu sync.Mutex

	items    []*item // Load order; items[0] is the head
	playing  bool
	ended    bool          // Head is holding at its end
	base     time.Duration // Head position at anchor
	anchor   time.Time     // Wall time the head started counting from base
	lastTime time.Time     // Last time event emission

	timerCancels map[transport.ItemID]func()

	config   Config
	listener transport.Listener
	eventCh  chan transport.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new clock transport.
func New(config Config) *Transport {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 500 * time.Millisecond
	}
	if config.TickInterval <= 0 {
		config.TickInterval = 100 * time.Millisecond
	}
	if config.TickInterval > config.TimeInterval {
		config.TickInterval = config.TimeInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		items:        make([]*item, 0),
		timerCancels: make(map[transport.ItemID]func()),
		config:       config,
		eventCh:      make(chan transport.Event, 256),
		ctx:          ctx,
		cancel:       cancel,
	}

	t.wg.Add(2)
	go t.dispatch()
	go t.run()
	return t
}

// SetListener sets the event listener.
func (t *Transport) SetListener(l transport.Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = l
}

// Load appends an item and schedules its ready status after LoadDelay.
func (t *Transport) Load(id transport.ItemID, src stream.Source) {
	t.mu.Lock()
	defer t.mu.Unlock()

	it := &item{id: id, src: src, length: src.Length, status: transport.StatusLoading}
	t.items = append(t.items, it)
	if len(t.items) == 1 {
		t.resetHeadLocked()
	}
	t.sendEventLocked(transport.StatusEvent(id, transport.StatusLoading, nil))

	t.timerCancels[id] = t.startWallClockTimer(t.config.LoadDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.timerCancels, id)
		t.finishLoadLocked(it)
	})
}

func (t *Transport) finishLoadLocked(it *item) {
	if t.indexLocked(it.id) < 0 {
		return
	}

	if err := checkSource(it); err != nil {
		it.status = transport.StatusFailed
		zlog.Debug().Msgf("clock: load failed: item=%s error=%v", it.id, err)
		t.sendEventLocked(transport.StatusEvent(it.id, transport.StatusFailed, err))
		return
	}

	it.status = transport.StatusReady
	t.sendEventLocked(transport.StatusEvent(it.id, transport.StatusReady, nil))
	t.sendEventLocked(transport.Event{Kind: transport.EventBufferLikelyToKeepUp, Item: it.id})
	if t.isHeadLocked(it.id) {
		t.anchor = toWallTime(time.Now())
	}
}

func checkSource(it *item) error {
	if it.length <= 0 {
		return errors.Wrapf(ErrUnknownLength, "item %s", it.id)
	}
	if it.src.Kind == stream.KindLocal {
		if _, err := os.Stat(it.src.Path); err != nil {
			return errors.Wrapf(err, "failed to open %s", it.src.Path)
		}
	}
	return nil
}

// Release removes an item.
func (t *Transport) Release(id transport.ItemID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexLocked(id)
	if idx < 0 {
		return
	}
	if cancel, ok := t.timerCancels[id]; ok {
		cancel()
		delete(t.timerCancels, id)
	}
	t.items = append(t.items[:idx], t.items[idx+1:]...)
	if idx == 0 {
		t.resetHeadLocked()
	}
}

// Play starts or resumes the head item.
func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.playing {
		return
	}
	t.playing = true
	t.anchor = toWallTime(time.Now())
}

// Pause pauses the head item.
func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.playing {
		return
	}
	t.base = t.positionLocked()
	t.playing = false
}

// Advance drops the head item; the next item starts from zero.
func (t *Transport) Advance() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.items) == 0 {
		return
	}
	head := t.items[0]
	if cancel, ok := t.timerCancels[head.id]; ok {
		cancel()
		delete(t.timerCancels, head.id)
	}
	t.items = t.items[1:]
	t.resetHeadLocked()
}

// Seek moves the head item to position and reports completion.
func (t *Transport) Seek(to time.Duration, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.items) == 0 {
		return
	}
	head := t.items[0]
	if to < 0 {
		to = 0
	}
	if head.length > 0 && to > head.length {
		to = head.length
	}
	t.base = to
	t.anchor = toWallTime(time.Now())
	t.ended = false
	t.sendEventLocked(transport.SeekCompleteEvent(head.id, to))
}

// Position returns the head item and its position.
func (t *Transport) Position() (transport.ItemID, time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.items) == 0 {
		return "", 0, false
	}
	return t.items[0].id, t.positionLocked(), true
}

// Close stops the transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	for id, cancel := range t.timerCancels {
		cancel()
		delete(t.timerCancels, id)
	}
	t.items = nil
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	return nil
}

// run emits time events and detects the end of the head item.
func (t *Transport) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *Transport) tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.items) == 0 || !t.playing || t.ended {
		return
	}
	head := t.items[0]
	if head.status != transport.StatusReady {
		return
	}

	now := toWallTime(time.Now())
	pos := t.positionLocked()
	if pos >= head.length {
		t.base = head.length
		t.anchor = now
		t.ended = true
		zlog.Debug().Msgf("clock: end of item: item=%s length=%v", head.id, head.length)
		t.sendEventLocked(transport.TimeEvent(head.id, head.length))
		t.sendEventLocked(transport.EndOfItemEvent(head.id))
		return
	}

	if now.Sub(t.lastTime) >= t.config.TimeInterval {
		t.lastTime = now
		t.sendEventLocked(transport.TimeEvent(head.id, pos))
	}
}

// dispatch delivers events to the listener in emission order.
func (t *Transport) dispatch() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case e := <-t.eventCh:
			t.mu.Lock()
			l := t.listener
			t.mu.Unlock()
			if l != nil {
				l(e)
			}
		}
	}
}

// positionLocked returns the head position.
// Must be called with lock held.
func (t *Transport) positionLocked() time.Duration {
	if len(t.items) == 0 {
		return 0
	}
	head := t.items[0]
	if !t.playing || t.ended || head.status != transport.StatusReady {
		return t.base
	}
	pos := t.base + toWallTime(time.Now()).Sub(t.anchor)
	if pos > head.length {
		return head.length
	}
	return pos
}

// resetHeadLocked restarts position tracking for a new head.
// Must be called with lock held.
func (t *Transport) resetHeadLocked() {
	t.base = 0
	t.ended = false
	t.anchor = toWallTime(time.Now())
	t.lastTime = time.Time{}
}

func (t *Transport) indexLocked(id transport.ItemID) int {
	for i, it := range t.items {
		if it.id == id {
			return i
		}
	}
	return -1
}

func (t *Transport) isHeadLocked(id transport.ItemID) bool {
	return len(t.items) > 0 && t.items[0].id == id
}

// sendEventLocked queues an event without blocking.
// Must be called with lock held.
func (t *Transport) sendEventLocked(e transport.Event) {
	select {
	case t.eventCh <- e:
	case <-t.ctx.Done():
	default:
		zlog.Warn().Msgf("clock: event dropped: %s", e)
	}
}

// startWallClockTimer starts a timer that triggers callback after duration, using wall clock.
// Returns a cancel function.
func (t *Transport) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(t.ctx)

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		if duration <= 0 {
			select {
			case <-ctx.Done():
			default:
				callback()
			}
			return
		}

		ticker := time.NewTicker(min(t.config.TickInterval, duration))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}

var _ transport.Transport = (*Transport)(nil)
