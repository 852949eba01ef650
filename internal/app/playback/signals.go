package playback

import (
	"slices"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/segue/internal/app/buffer"
	"github.com/osa030/segue/internal/app/transport"
	"github.com/osa030/segue/internal/domain/queue"
)

func (e *Engine) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventStatus:
		e.handleStatus(ev)
	case transport.EventBufferEmpty, transport.EventBufferLikelyToKeepUp:
		e.handleBuffering(ev)
	case transport.EventTime:
		e.handleTime(ev)
	case transport.EventEndOfItem:
		e.handleEndOfItem(ev)
	case transport.EventSeekComplete:
		e.handleSeekComplete(ev)
	}
}

func (e *Engine) handleResolved(r buffer.Resolved) {
	idx := e.window.HandleResolved(r)
	if idx != 0 {
		return
	}
	head, _ := e.window.Head()
	if head.Status == buffer.SlotFailed {
		e.fail(head.Err)
	}
}

func (e *Engine) handleStatus(ev transport.Event) {
	idx := e.window.HandleStatus(ev.Item, ev.Status, ev.Err)
	switch {
	case idx < 0:
		zlog.Debug().Msgf("engine: status for unknown item ignored: %s", ev)
		return
	case idx > 0:
		if ev.Status == transport.StatusFailed {
			zlog.Warn().Msgf("engine: lookahead item failed: slot=%d error=%v", idx, ev.Err)
		}
		return
	}

	switch ev.Status {
	case transport.StatusReady:
		if e.state == StateLoading {
			e.setReadyState()
		}
		e.issueDeferredSeeks(ev.Item)
		e.publish()
	case transport.StatusFailed:
		if e.state == StateIdle {
			return
		}
		head, _ := e.window.Head()
		e.fail(head.Err)
	}
}

func (e *Engine) handleBuffering(ev transport.Event) {
	empty := ev.Kind == transport.EventBufferEmpty
	if e.window.SetBufferEmpty(ev.Item, empty) != 0 || e.session == nil {
		return
	}
	if e.session.IsBuffering != empty {
		e.session.IsBuffering = empty
		e.publish()
	}
}

// handleTime records position reports for the head item. A report far behind
// the last one means the transport restarted the stream on its own; the engine
// seeks back instead of following it.
func (e *Engine) handleTime(ev transport.Event) {
	if e.session == nil || !e.window.IsHead(ev.Item) || e.session.IsSeeking {
		return
	}
	if e.state == StateIdle || e.state == StateFailed {
		return
	}

	last := e.session.LastObserved
	// Both bounds are strict: a jump of exactly RestartBackJump is followed.
	if last > e.config.RestartFloor && last-ev.Position > e.config.RestartBackJump {
		e.stats.RestartCorrections++
		zlog.Warn().Msgf("engine: stream restart detected, restoring position: track=%s reported=%v last=%v",
			e.session.Entry.Track.ID, ev.Position, last)
		_ = e.seekTo(last, nil)
		return
	}

	e.session.Position = ev.Position
	e.session.LastObserved = ev.Position
	e.publish()
}

// handleEndOfItem accepts an end signal only for the head item near its
// expected end. Anything else is counted and ignored.
func (e *Engine) handleEndOfItem(ev transport.Event) {
	if e.session == nil || e.state == StateIdle || !e.window.IsHead(ev.Item) {
		e.falseEndSignal(ev, "not the current item")
		return
	}
	if remaining := e.session.Remaining(); remaining > e.config.EndThreshold {
		e.falseEndSignal(ev, "remaining="+remaining.Round(time.Millisecond).String())
		return
	}

	mode := e.queue.Repeat()
	if mode == queue.RepeatOne {
		e.stats.Replays++
		zlog.Debug().Msgf("engine: repeating track: track=%s", e.session.Entry.Track.ID)
		_ = e.seekTo(0, nil)
		return
	}

	result := e.queue.Advance(mode)
	zlog.Debug().Msgf("engine: track ended: outcome=%s position=%d", result.Outcome, result.Position)
	if result.Outcome == queue.EndOfQueue {
		e.finish()
		return
	}
	e.loadCurrent(true)
}

func (e *Engine) falseEndSignal(ev transport.Event, reason string) {
	e.stats.FalseEndSignals++
	zlog.Info().Msgf("engine: ignoring end signal: item=%s reason=%s", ev.Item, reason)
}

func (e *Engine) handleSeekComplete(ev transport.Event) {
	i := slices.IndexFunc(e.seeks, func(s pendingSeek) bool {
		return s.item == ev.Item && !s.deferred
	})
	if i < 0 {
		zlog.Debug().Msgf("engine: unexpected seek completion ignored: %s", ev)
		return
	}
	s := e.seeks[i]
	e.seeks = slices.Delete(e.seeks, i, i+1)

	if e.session != nil {
		pos := ev.Position
		if diff := pos - s.target; diff > e.config.SeekTolerance || -diff > e.config.SeekTolerance {
			pos = s.target
		}
		e.session.Position = pos
		e.session.LastObserved = pos
		if len(e.seeks) == 0 {
			e.session.IsSeeking = false
		}
	}
	if s.done != nil {
		s.done <- nil
	}
	e.publish()
}
