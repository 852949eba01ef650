// Package audio provides a transport that decodes sources and plays them
// back to back through a single output stream.
package audio

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/segue/internal/app/stream"
	"github.com/osa030/segue/internal/app/transport"
)

// ErrUnavailable is returned when the build has no audio output.
var ErrUnavailable = errors.New("audio output not available in this build")

// Output plays a single streamer until closed.
type Output interface {
	Start(s beep.Streamer) error
	Close() error
}

// Opener opens and decodes a source.
type Opener func(ctx context.Context, src stream.Source) (beep.StreamSeekCloser, beep.Format, error)

// Config holds audio transport configuration.
type Config struct {
	SampleRate   int           // Output sample rate (default 44100)
	Buffer       time.Duration // Output buffer (default 100ms)
	TimeInterval time.Duration // Interval of time events for the head item
	Opener       Opener        // Defaults to Open
}

type item struct {
	id       transport.ItemID
	src      stream.Source
	status   transport.Status
	streamer beep.StreamSeekCloser
	format   beep.Format
	out      beep.Streamer // streamer resampled to the output rate
	cancel   context.CancelFunc
	done     bool // Reached its end
	started  bool // Produced samples
}

// Transport plays loaded items in order from one continuous output stream.
// The next item is decoded while the head plays. When the head ends, the
// same output buffer continues with the next item if it is ready, and
// Advance only drops the finished head.
type Transport struct {
	mu sync.Mutex

	items   []*item // Load order; items[0] is the head
	playing bool
	stalled bool // Head is playing but not decoded yet
	closed  bool

	rate     beep.SampleRate
	config   Config
	output   Output
	listener transport.Listener
	eventCh  chan transport.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an audio transport on the system speaker.
func New(config Config) (*Transport, error) {
	config = withDefaults(config)
	out, err := newSpeaker(beep.SampleRate(config.SampleRate), config.Buffer)
	if err != nil {
		return nil, err
	}
	return NewWithOutput(config, out)
}

// NewWithOutput creates an audio transport on the given output.
func NewWithOutput(config Config, out Output) (*Transport, error) {
	config = withDefaults(config)

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		rate:    beep.SampleRate(config.SampleRate),
		config:  config,
		output:  out,
		eventCh: make(chan transport.Event, 256),
		ctx:     ctx,
		cancel:  cancel,
	}
	if err := out.Start(t); err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to start audio output")
	}

	t.wg.Add(2)
	go t.dispatch()
	go t.run()
	return t, nil
}

func withDefaults(c Config) Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.Buffer <= 0 {
		c.Buffer = 100 * time.Millisecond
	}
	if c.TimeInterval <= 0 {
		c.TimeInterval = 500 * time.Millisecond
	}
	if c.Opener == nil {
		c.Opener = Open
	}
	return c
}

// SetListener sets the event listener.
func (t *Transport) SetListener(l transport.Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = l
}

// Load appends an item and starts decoding it.
func (t *Transport) Load(id transport.ItemID, src stream.Source) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	ctx, cancel := context.WithCancel(t.ctx)
	it := &item{id: id, src: src, status: transport.StatusLoading, cancel: cancel}
	t.items = append(t.items, it)
	t.sendEventLocked(transport.StatusEvent(id, transport.StatusLoading, nil))

	go func() {
		s, format, err := t.config.Opener(ctx, src)
		t.finishLoad(it, s, format, err)
	}()
}

func (t *Transport) finishLoad(it *item, s beep.StreamSeekCloser, format beep.Format, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if idx := t.indexLocked(it.id); idx < 0 || t.items[idx] != it {
		if s != nil {
			_ = s.Close()
		}
		return
	}
	if err != nil {
		it.status = transport.StatusFailed
		err = errors.Mark(errors.Wrapf(err, "failed to open %s", it.src.Location()), stream.ErrPlaybackFailure)
		zlog.Debug().Msgf("audio: load failed: item=%s error=%v", it.id, err)
		t.sendEventLocked(transport.StatusEvent(it.id, transport.StatusFailed, err))
		return
	}

	it.streamer = s
	it.format = format
	it.out = t.resample(it)
	it.status = transport.StatusReady
	zlog.Debug().Msgf("audio: loaded: item=%s rate=%d length=%v", it.id, format.SampleRate, format.SampleRate.D(s.Len()))
	t.sendEventLocked(transport.StatusEvent(it.id, transport.StatusReady, nil))
	if t.isHeadLocked(it.id) && t.stalled {
		t.stalled = false
		t.sendEventLocked(transport.Event{Kind: transport.EventBufferLikelyToKeepUp, Item: it.id})
	}
}

func (t *Transport) resample(it *item) beep.Streamer {
	if it.format.SampleRate == t.rate {
		return it.streamer
	}
	return beep.Resample(4, it.format.SampleRate, t.rate, it.streamer)
}

// Release removes an item and closes its decoder.
func (t *Transport) Release(id transport.ItemID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexLocked(id)
	if idx < 0 {
		return
	}
	closeItem(t.items[idx])
	t.items = append(t.items[:idx], t.items[idx+1:]...)
	if idx == 0 {
		t.promoteLocked()
	}
}

// Play starts or resumes the head item.
func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = true
}

// Pause pauses the head item.
func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
}

// Advance drops the head item. The next item is usually playing already.
func (t *Transport) Advance() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.items) == 0 {
		return
	}
	closeItem(t.items[0])
	t.items = t.items[1:]
	t.promoteLocked()
}

// Seek moves the head item to position and reports completion.
func (t *Transport) Seek(to time.Duration, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.items) == 0 {
		return
	}
	head := t.items[0]
	if head.status != transport.StatusReady {
		zlog.Debug().Msgf("audio: seek on unloaded item ignored: item=%s", head.id)
		return
	}

	if head.done && len(t.items) > 1 {
		t.rewindLocked(t.items[1])
	}
	t.seekLocked(head, head.format.SampleRate.N(to))
	head.done = false
	t.sendEventLocked(transport.SeekCompleteEvent(head.id, t.positionLocked()))
}

// Must be called with lock held.
func (t *Transport) seekLocked(it *item, n int) {
	n = max(0, min(n, it.streamer.Len()))
	if err := it.streamer.Seek(n); err != nil {
		zlog.Warn().Msgf("audio: seek failed: item=%s error=%v", it.id, err)
	}
	// The resampler buffers ahead, so it restarts from the new position.
	it.out = t.resample(it)
}

// rewindLocked puts an item that started early back at its start.
func (t *Transport) rewindLocked(it *item) {
	if !it.started || it.streamer == nil {
		return
	}
	t.seekLocked(it, 0)
	it.started = false
	it.done = false
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

// Close stops the output and closes every decoder.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	for _, it := range t.items {
		closeItem(it)
	}
	t.items = nil
	t.mu.Unlock()

	err := t.output.Close()
	t.cancel()
	t.wg.Wait()
	return err
}

// Stream fills samples from the head item and, once it ends, from the next
// ready item. It is pulled by the output and never drains: silence is
// produced while paused, stalled or holding.
func (t *Transport) Stream(samples [][2]float64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, false
	}
	n := t.streamHeadLocked(samples)
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (t *Transport) streamHeadLocked(samples [][2]float64) int {
	if !t.playing || len(t.items) == 0 {
		return 0
	}

	filled := 0
	for i := 0; i < min(2, len(t.items)) && filled < len(samples); i++ {
		it := t.items[i]
		if it.done {
			continue
		}
		if i == 1 && it.status != transport.StatusReady {
			break
		}
		n, ok := t.streamItemLocked(it, samples[filled:])
		filled += n
		if !ok {
			break
		}
	}
	return filled
}

// streamItemLocked fills samples from one item. It reports true only when
// the item ended, so the next item may continue the buffer.
func (t *Transport) streamItemLocked(it *item, samples [][2]float64) (int, bool) {
	switch it.status {
	case transport.StatusLoading:
		if !t.stalled {
			t.stalled = true
			t.sendEventLocked(transport.Event{Kind: transport.EventBufferEmpty, Item: it.id})
		}
		return 0, false
	case transport.StatusFailed:
		return 0, false
	}

	n, ok := it.out.Stream(samples)
	if n > 0 {
		it.started = true
	}
	if err := it.streamer.Err(); err != nil {
		it.status = transport.StatusFailed
		t.sendEventLocked(transport.StatusEvent(it.id, transport.StatusFailed,
			errors.Mark(errors.Wrap(err, "decode failed"), stream.ErrPlaybackFailure)))
		return n, false
	}
	if ok && n == len(samples) {
		return n, false
	}

	it.done = true
	if t.isHeadLocked(it.id) {
		t.endLocked(it)
	}
	return n, true
}

// endLocked reports the end of the head item.
func (t *Transport) endLocked(it *item) {
	length := it.format.SampleRate.D(it.streamer.Len())
	zlog.Debug().Msgf("audio: end of item: item=%s length=%v", it.id, length)
	t.sendEventLocked(transport.TimeEvent(it.id, length))
	t.sendEventLocked(transport.EndOfItemEvent(it.id))
}

// Err always returns nil; decode errors are reported per item.
func (t *Transport) Err() error {
	return nil
}

func (t *Transport) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.TimeInterval)
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

	if len(t.items) == 0 || !t.playing || t.items[0].done || t.items[0].status != transport.StatusReady {
		return
	}
	t.sendEventLocked(transport.TimeEvent(t.items[0].id, t.positionLocked()))
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

// Must be called with lock held.
func (t *Transport) positionLocked() time.Duration {
	if len(t.items) == 0 || t.items[0].streamer == nil {
		return 0
	}
	head := t.items[0]
	return head.format.SampleRate.D(head.streamer.Position())
}

// promoteLocked settles a new head. A head that already played to its end
// while the previous one was finishing reports that end now.
func (t *Transport) promoteLocked() {
	t.stalled = false
	if len(t.items) > 0 && t.items[0].done {
		t.endLocked(t.items[0])
	}
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

// sendEventLocked queues an event without blocking. It runs on the output's
// goroutine too, so it must never wait.
func (t *Transport) sendEventLocked(e transport.Event) {
	select {
	case t.eventCh <- e:
	case <-t.ctx.Done():
	default:
		zlog.Warn().Msgf("audio: event dropped: %s", e)
	}
}

func closeItem(it *item) {
	it.cancel()
	if it.streamer != nil {
		_ = it.streamer.Close()
		it.streamer = nil
	}
}

var (
	_ transport.Transport = (*Transport)(nil)
	_ beep.Streamer       = (*Transport)(nil)
)
