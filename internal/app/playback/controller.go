package playback

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/segue/internal/app/buffer"
	"github.com/osa030/segue/internal/domain/queue"
	"github.com/osa030/segue/internal/domain/track"
)

// WindowSlot describes one buffered entry.
type WindowSlot struct {
	EntryID string `json:"entry_id"`
	TrackID string `json:"track_id"`
	Status  string `json:"status"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	State         State
	Current       *track.Entry
	Position      time.Duration
	Duration      time.Duration
	IsBuffering   bool
	IsSeeking     bool
	QueuePosition int
	QueueLength   int
	Repeat        queue.RepeatMode
	Shuffle       bool
	Window        []WindowSlot
	LastError     string
	Stats         Stats
}

// QueueView is a copy of the queue in play order.
type QueueView struct {
	Entries  []track.Entry
	Position int
	Repeat   queue.RepeatMode
	Shuffle  bool
}

// Play replaces the queue with tracks and starts playing tracks[start].
func (e *Engine) Play(ctx context.Context, tracks []track.Track, start int) error {
	return e.do(ctx, func() error {
		for i, t := range tracks {
			if err := t.Validate(); err != nil {
				return errors.Mark(errors.Wrapf(err, "track %d", i), ErrInvalidArgument)
			}
		}
		if err := e.queue.Set(tracks, start); err != nil {
			return err
		}
		zlog.Info().Msgf("engine: play: tracks=%d start=%d", len(tracks), start)
		e.wantPlaying = true
		e.loadCurrent(false)
		return nil
	})
}

// PlaySingle replaces the queue with one track and plays it.
func (e *Engine) PlaySingle(ctx context.Context, t track.Track) error {
	return e.Play(ctx, []track.Track{t}, 0)
}

// TogglePlayPause flips between playing and paused. From Idle it restarts
// the current entry, and from Failed it retries it immediately.
func (e *Engine) TogglePlayPause(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.queue.IsEmpty() {
			return errors.Wrap(ErrInvalidArgument, "queue is empty")
		}

		switch e.state {
		case StateIdle:
			e.wantPlaying = true
			e.loadCurrent(false)
			return nil
		case StateFailed:
			e.wantPlaying = true
			e.cancelRetry()
			e.retry()
			return nil
		}

		e.wantPlaying = !e.wantPlaying
		if e.wantPlaying {
			e.transport.Play()
		} else {
			e.transport.Pause()
		}
		if e.state != StateLoading {
			e.setReadyState()
		}
		zlog.Debug().Msgf("engine: toggle: playing=%v state=%s", e.wantPlaying, e.state)
		e.publish()
		return nil
	})
}

// Next skips to the following entry. Repeat one is treated like repeat all
// so that an explicit skip always moves.
func (e *Engine) Next(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.queue.IsEmpty() {
			return errors.Wrap(ErrInvalidArgument, "queue is empty")
		}
		mode := e.queue.Repeat()
		if mode == queue.RepeatOne {
			mode = queue.RepeatAll
		}
		result := e.queue.Advance(mode)
		if result.Outcome == queue.EndOfQueue {
			e.finish()
			return nil
		}
		e.loadCurrent(true)
		return nil
	})
}

// Previous restarts the current track once it has played past the restart
// threshold, and moves to the previous entry otherwise.
func (e *Engine) Previous(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.queue.IsEmpty() {
			return errors.Wrap(ErrInvalidArgument, "queue is empty")
		}
		active := e.session != nil && e.state != StateIdle && e.state != StateFailed
		if active && e.session.Position > e.config.PreviousRestart {
			return e.seekTo(0, nil)
		}
		if _, moved := e.queue.Previous(e.queue.Repeat()); moved {
			e.loadCurrent(false)
			return nil
		}
		if active {
			return e.seekTo(0, nil)
		}
		e.loadCurrent(false)
		return nil
	})
}

// Seek moves the current track to position and waits until the transport
// confirms it. The position is clamped to the track duration.
func (e *Engine) Seek(ctx context.Context, position time.Duration) error {
	done := make(chan error, 1)
	if err := e.do(ctx, func() error {
		return e.seekTo(position, done)
	}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
}

// InsertNext queues a track right after the current entry.
func (e *Engine) InsertNext(ctx context.Context, t track.Track) (track.Entry, error) {
	var entry track.Entry
	err := e.do(ctx, func() error {
		if err := t.Validate(); err != nil {
			return errors.Mark(err, ErrInvalidArgument)
		}
		at := 0
		if !e.queue.IsEmpty() {
			at = e.queue.Position() + 1
		}
		return e.edit(func() (err error) {
			entry, err = e.queue.Insert(t, at)
			return err
		})
	})
	return entry, err
}

// Append queues a track at the end.
func (e *Engine) Append(ctx context.Context, t track.Track) (track.Entry, error) {
	var entry track.Entry
	err := e.do(ctx, func() error {
		if err := t.Validate(); err != nil {
			return errors.Mark(err, ErrInvalidArgument)
		}
		return e.edit(func() error {
			entry = e.queue.Append(t)
			return nil
		})
	})
	return entry, err
}

// Remove deletes the entry at a play-order position.
func (e *Engine) Remove(ctx context.Context, at int) (track.Entry, error) {
	var removed track.Entry
	err := e.do(ctx, func() error {
		return e.edit(func() error {
			result, err := e.queue.Remove(at)
			removed = result.Entry
			return err
		})
	})
	return removed, err
}

// Move relocates the entry at from to position to.
func (e *Engine) Move(ctx context.Context, from, to int) error {
	return e.do(ctx, func() error {
		return e.edit(func() error {
			return e.queue.Move(from, to)
		})
	})
}

// JumpTo plays the entry at a play-order position.
func (e *Engine) JumpTo(ctx context.Context, pos int) error {
	return e.do(ctx, func() error {
		if err := e.queue.Jump(pos); err != nil {
			return err
		}
		e.wantPlaying = true
		e.loadCurrent(false)
		return nil
	})
}

// ToggleShuffle flips shuffle and returns the new setting. The current entry
// keeps playing.
func (e *Engine) ToggleShuffle(ctx context.Context) (bool, error) {
	var on bool
	err := e.do(ctx, func() error {
		return e.edit(func() error {
			on = e.queue.ToggleShuffle()
			return nil
		})
	})
	return on, err
}

// CycleRepeatMode moves to the next repeat mode and returns it.
func (e *Engine) CycleRepeatMode(ctx context.Context) (queue.RepeatMode, error) {
	var mode queue.RepeatMode
	err := e.do(ctx, func() error {
		mode = e.queue.CycleRepeat()
		e.publish()
		return nil
	})
	return mode, err
}

// SetRepeatMode sets the repeat mode.
func (e *Engine) SetRepeatMode(ctx context.Context, mode queue.RepeatMode) error {
	return e.do(ctx, func() error {
		e.queue.SetRepeat(mode)
		e.publish()
		return nil
	})
}

// Clear empties the queue and stops playback.
func (e *Engine) Clear(ctx context.Context) error {
	return e.do(ctx, func() error {
		e.queue.Clear()
		e.teardown()
		zlog.Info().Msg("engine: queue cleared")
		return nil
	})
}

// Status returns the current engine status.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var st Status
	err := e.do(ctx, func() error {
		st = Status{
			State:         e.state,
			QueuePosition: e.queue.Position(),
			QueueLength:   e.queue.Len(),
			Repeat:        e.queue.Repeat(),
			Shuffle:       e.queue.Shuffled(),
			Stats:         e.stats,
			Window: lo.Map(e.window.Slots(), func(s buffer.Slot, _ int) WindowSlot {
				return WindowSlot{EntryID: s.Entry.ID, TrackID: s.Entry.Track.ID, Status: s.Status.String()}
			}),
		}
		if e.session != nil {
			entry := e.session.Entry
			st.Current = &entry
			st.Position = e.session.Position
			st.Duration = e.session.Duration
			st.IsBuffering = e.session.IsBuffering
			st.IsSeeking = e.session.IsSeeking
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		return nil
	})
	return st, err
}

// Queue returns a copy of the queue.
func (e *Engine) Queue(ctx context.Context) (QueueView, error) {
	var v QueueView
	err := e.do(ctx, func() error {
		v = QueueView{
			Entries:  e.queue.Entries(),
			Position: e.queue.Position(),
			Repeat:   e.queue.Repeat(),
			Shuffle:  e.queue.Shuffled(),
		}
		return nil
	})
	return v, err
}

// Stats returns the engine counters.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := e.do(ctx, func() error {
		s = e.stats
		return nil
	})
	return s, err
}

// edit applies a queue mutation and reconciles the window with it. A changed
// current entry starts a new session; otherwise only lookahead is patched.
func (e *Engine) edit(mutate func() error) error {
	prev, hadCurrent := e.queue.Current()
	if err := mutate(); err != nil {
		return err
	}

	cur, ok := e.queue.Current()
	switch {
	case !ok:
		e.teardown()
	case e.state == StateIdle:
		// Nothing is buffered while stopped.
		if e.session != nil && e.session.Entry.ID != cur.ID {
			e.session = newSession(cur)
		}
		e.publish()
	case !hadCurrent || cur.ID != prev.ID:
		zlog.Debug().Msgf("engine: current entry changed by edit: track=%s", cur.Track.ID)
		e.loadCurrent(false)
	default:
		e.window.Patch(e.queue)
		e.publish()
	}
	return nil
}
