package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/segue/internal/app/buffer"
	"github.com/osa030/segue/internal/app/nowplaying"
	"github.com/osa030/segue/internal/app/stream"
	"github.com/osa030/segue/internal/app/transport"
	"github.com/osa030/segue/internal/domain/queue"
)

// Errors
var (
	ErrInvalidArgument = queue.ErrInvalidArgument
	ErrClosed          = errors.New("engine closed")
	ErrNoTrack         = errors.Mark(errors.New("no track loaded"), queue.ErrInvalidArgument)
)

type pendingSeek struct {
	item     transport.ItemID
	target   time.Duration
	deferred bool // Waiting for the head item to load before reaching the transport
	done     chan error
}

// Engine owns the queue position, the buffer window and the playback session.
//
// All state is mutated on one goroutine. Commands, transport events, resolver
// completions and retry timers are messages in a single FIFO inbox, so they
// are applied in the order they arrive.
type Engine struct {
	queue     *queue.Queue
	window    *buffer.Window
	transport transport.Transport
	reporter  nowplaying.Reporter
	config    Config

	// Loop-owned state
	state        State
	session      *Session
	wantPlaying  bool
	seeks        []pendingSeek
	retryAttempt int
	retryGen     uint64
	retryTimer   *time.Timer
	lastErr      error
	stats        Stats

	inbox     *inbox
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an engine and starts its loop. The engine takes over the
// transport listener.
func New(q *queue.Queue, t transport.Transport, r stream.Resolver, reporter nowplaying.Reporter, config Config) *Engine {
	if q == nil {
		q = queue.New(nil)
	}
	if reporter == nil {
		reporter = nowplaying.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		queue:     q,
		transport: t,
		reporter:  reporter,
		config:    config,
		state:     StateIdle,
		inbox:     newInbox(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	e.window = buffer.New(t, r, func(res buffer.Resolved) {
		e.inbox.push(resolvedMsg{result: res})
	}, buffer.Config{Quality: config.Quality})

	t.SetListener(func(ev transport.Event) {
		e.inbox.push(transportMsg{event: ev})
	})

	go e.run()
	return e
}

// Close stops the loop and releases every loaded item.
// The transport itself is not closed.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		<-e.done
	})
}

func (e *Engine) run() {
	defer close(e.done)

	for {
		select {
		case <-e.ctx.Done():
			e.shutdown()
			return
		case <-e.inbox.notify:
			for _, m := range e.inbox.drain() {
				e.handle(m)
			}
		}
	}
}

func (e *Engine) handle(m message) {
	switch m := m.(type) {
	case transportMsg:
		e.handleTransportEvent(m.event)
	case resolvedMsg:
		e.handleResolved(m.result)
	case commandMsg:
		m.done <- m.fn()
	case retryMsg:
		e.handleRetry(m.generation)
	}
}

// do runs fn on the engine loop and waits for its result.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	done := make(chan error, 1)
	e.inbox.push(commandMsg{fn: fn, done: done})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
}

func (e *Engine) shutdown() {
	e.cancelRetry()
	e.abortSeeks(ErrClosed)
	e.window.Clear()
	for _, m := range e.inbox.drain() {
		if cmd, ok := m.(commandMsg); ok {
			cmd.done <- ErrClosed
		}
	}
	zlog.Debug().Msg("engine: stopped")
}

// loadCurrent makes the queue's current entry the window head and starts a
// new session for it. With shift, an entry already buffered in slot 1 is
// promoted without reloading anything.
func (e *Engine) loadCurrent(shift bool) {
	cur, ok := e.queue.Current()
	if !ok {
		e.teardown()
		return
	}

	if next, ok := e.window.At(1); shift && ok && next.Entry.ID == cur.ID {
		e.window.AdvanceWindow(e.queue)
		e.stats.WindowAdvances++
		zlog.Debug().Msgf("engine: window advanced: track=%s", cur.Track.ID)
	} else {
		e.window.Rebuild(e.queue)
		e.stats.Rebuilds++
		zlog.Debug().Msgf("engine: window rebuilt: track=%s", cur.Track.ID)
	}

	e.abortSeeks(nil)
	e.cancelRetry()
	e.retryAttempt = 0
	e.lastErr = nil
	e.session = newSession(cur)

	head, _ := e.window.Head()
	if e.wantPlaying && head.Status != buffer.SlotFailed {
		e.transport.Play()
	} else {
		e.transport.Pause()
	}

	switch head.Status {
	case buffer.SlotReady:
		e.setReadyState()
	case buffer.SlotFailed:
		e.fail(head.Err)
		return
	default:
		e.state = StateLoading
		e.session.IsPlaying = false
	}
	e.publish()
}

// setReadyState enters Playing or Paused according to the user's intent.
func (e *Engine) setReadyState() {
	if e.wantPlaying {
		e.state = StatePlaying
	} else {
		e.state = StatePaused
	}
	if e.session != nil {
		e.session.IsPlaying = e.state == StatePlaying
	}
}

// finish stops at the end of the queue. The queue stays on its last entry.
func (e *Engine) finish() {
	zlog.Info().Msg("engine: end of queue")
	e.cancelRetry()
	e.abortSeeks(nil)
	e.window.Clear()
	e.transport.Pause()
	e.wantPlaying = false
	e.state = StateIdle
	if e.session != nil {
		e.session.Position = e.session.Duration
		e.session.IsPlaying = false
		e.session.IsBuffering = false
		e.session.IsSeeking = false
	}
	e.publish()
}

// teardown drops the session when the queue is empty or cleared.
func (e *Engine) teardown() {
	e.cancelRetry()
	e.abortSeeks(nil)
	e.window.Clear()
	e.transport.Pause()
	e.wantPlaying = false
	e.state = StateIdle
	e.lastErr = nil
	if e.session != nil {
		e.session = nil
		e.reporter.Clear()
	}
}

// fail enters Failed for the head item and schedules a retry for transient errors.
func (e *Engine) fail(err error) {
	if err == nil {
		err = errors.New("unknown playback failure")
	}
	e.stats.Failures++
	e.state = StateFailed
	e.lastErr = err
	if e.session != nil {
		e.session.IsPlaying = false
	}
	e.transport.Pause()
	e.reporter.ReportError(err)

	if stream.IsTransient(err) && e.retryAttempt < e.config.Retry.MaxAttempts {
		delay := e.config.Retry.Backoff(e.retryAttempt)
		e.retryAttempt++
		e.scheduleRetry(delay)
		zlog.Warn().Msgf("engine: transient playback failure, retrying: attempt=%d delay=%v error=%v",
			e.retryAttempt, delay, err)
	} else {
		zlog.Error().Msgf("engine: playback failure: error=%v", err)
	}
	e.publish()
}

func (e *Engine) scheduleRetry(delay time.Duration) {
	e.cancelRetry()
	gen := e.retryGen
	e.retryTimer = time.AfterFunc(delay, func() {
		e.inbox.push(retryMsg{generation: gen})
	})
}

// cancelRetry stops a pending retry. A timer that already fired is ignored
// by its stale generation.
func (e *Engine) cancelRetry() {
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	e.retryGen++
}

// retry reloads the current entry and resumes at the last known position.
func (e *Engine) retry() {
	if e.session == nil {
		return
	}
	resume := e.session.Position

	e.abortSeeks(nil)
	e.window.Rebuild(e.queue)
	e.stats.Rebuilds++
	e.state = StateLoading
	e.lastErr = nil
	if e.wantPlaying {
		e.transport.Play()
	}
	if resume > 0 {
		_ = e.seekTo(resume, nil)
	}
	e.publish()
}

func (e *Engine) handleRetry(gen uint64) {
	if gen != e.retryGen || e.state != StateFailed {
		return
	}
	e.retryTimer = nil
	e.stats.Retries++
	zlog.Info().Msgf("engine: retrying current track: attempt=%d", e.retryAttempt)
	e.retry()
}

// seekTo moves the head item to target, clamped to the track duration.
// done, if set, receives the result once the transport confirms.
func (e *Engine) seekTo(target time.Duration, done chan error) error {
	head, ok := e.window.Head()
	if e.session == nil || !ok || head.Status == buffer.SlotFailed || e.state == StateIdle {
		return ErrNoTrack
	}

	target = e.session.Entry.Track.Clamp(target)
	e.session.IsSeeking = true
	e.session.Position = target
	e.session.LastObserved = target

	if head.Status != buffer.SlotReady {
		// Seeks wait for Ready. Only the latest deferred seek matters.
		kept := e.seeks[:0]
		for _, s := range e.seeks {
			if s.deferred {
				if s.done != nil {
					s.done <- nil
				}
				continue
			}
			kept = append(kept, s)
		}
		e.seeks = append(kept, pendingSeek{item: head.ID, target: target, deferred: true, done: done})
	} else {
		e.seeks = append(e.seeks, pendingSeek{item: head.ID, target: target, done: done})
		e.transport.Seek(target, e.config.SeekTolerance)
	}

	zlog.Debug().Msgf("engine: seek: track=%s target=%v", e.session.Entry.Track.ID, target)
	e.publish()
	return nil
}

// issueDeferredSeeks sends seeks that waited for the head item to load.
func (e *Engine) issueDeferredSeeks(item transport.ItemID) {
	for i := range e.seeks {
		if e.seeks[i].deferred && e.seeks[i].item == item {
			e.seeks[i].deferred = false
			e.transport.Seek(e.seeks[i].target, e.config.SeekTolerance)
		}
	}
}

// abortSeeks completes every pending seek with err.
func (e *Engine) abortSeeks(err error) {
	for _, s := range e.seeks {
		if s.done != nil {
			s.done <- err
		}
	}
	e.seeks = nil
	if e.session != nil {
		e.session.IsSeeking = false
	}
}

func (e *Engine) publish() {
	if e.session == nil {
		return
	}
	e.reporter.Update(e.snapshot())
}

func (e *Engine) snapshot() nowplaying.Snapshot {
	s := nowplaying.Snapshot{
		State:         e.state.String(),
		QueuePosition: e.queue.Position(),
		QueueLength:   e.queue.Len(),
		Repeat:        e.queue.Repeat().String(),
		Shuffle:       e.queue.Shuffled(),
		UpdatedAt:     time.Now(),
	}
	if e.session != nil {
		t := e.session.Entry.Track
		s.EntryID = e.session.Entry.ID
		s.TrackID = t.ID
		s.Title = t.Title
		s.Artist = t.Artist
		s.Album = t.Album
		s.Position = e.session.Position
		s.Duration = e.session.Duration
		s.IsPlaying = e.state == StatePlaying
		s.IsBuffering = e.session.IsBuffering
	}
	return s
}
