// Package buffer maintains the rolling window of pre-loaded transport items.
package buffer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/segue/internal/app/stream"
	"github.com/osa030/segue/internal/app/transport"
	"github.com/osa030/segue/internal/domain/queue"
	"github.com/osa030/segue/internal/domain/track"
)

// Size is the maximum number of slots: the current item plus two lookahead.
const Size = 3

// SlotStatus represents the status of a window slot.
type SlotStatus int

const (
	SlotResolving SlotStatus = iota // Waiting for the resolver
	SlotLoading                     // Loaded on the transport, not ready yet
	SlotReady                       // Transport reported ready
	SlotFailed                      // Resolver or transport failed; see Slot.Err
)

// String returns the string representation of the slot status.
func (s SlotStatus) String() string {
	switch s {
	case SlotResolving:
		return "resolving"
	case SlotLoading:
		return "loading"
	case SlotReady:
		return "ready"
	case SlotFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Slot is one buffered queue entry.
type Slot struct {
	ID          transport.ItemID
	Entry       track.Entry
	Source      stream.Source
	Status      SlotStatus
	BufferEmpty bool
	Err         error

	resolved bool
	loaded   bool // Load was called on the transport
	cancel   context.CancelFunc
}

// Resolved is a resolver completion, posted back to the window owner.
type Resolved struct {
	Item   transport.ItemID
	Source stream.Source
	Err    error
}

// Config holds window configuration.
type Config struct {
	Quality string // Quality preference passed to the resolver
	Size    int    // Number of slots (1..Size, default Size)
}

// Window keeps up to Size slots aligned with the queue: slot 0 is always the
// queue's current entry.
//
// Window is not safe for concurrent use. Resolutions run on their own
// goroutines and report through post, which must hand the result back to the
// goroutine that owns the window.
type Window struct {
	slots     []*Slot
	transport transport.Transport
	resolver  stream.Resolver
	post      func(Resolved)
	config    Config
}

// New creates a new buffer window.
func New(t transport.Transport, r stream.Resolver, post func(Resolved), config Config) *Window {
	if config.Size <= 0 || config.Size > Size {
		config.Size = Size
	}
	return &Window{
		slots:     make([]*Slot, 0, config.Size),
		transport: t,
		resolver:  r,
		post:      post,
		config:    config,
	}
}

// Len returns the number of slots.
func (w *Window) Len() int {
	return len(w.slots)
}

// Head returns slot 0.
func (w *Window) Head() (*Slot, bool) {
	if len(w.slots) == 0 {
		return nil, false
	}
	return w.slots[0], true
}

// At returns the slot at index i.
func (w *Window) At(i int) (*Slot, bool) {
	if i < 0 || i >= len(w.slots) {
		return nil, false
	}
	return w.slots[i], true
}

// Find returns the index and slot for a transport item.
func (w *Window) Find(id transport.ItemID) (int, *Slot) {
	for i, s := range w.slots {
		if s.ID == id {
			return i, s
		}
	}
	return -1, nil
}

// IsHead reports whether id is slot 0.
func (w *Window) IsHead(id transport.ItemID) bool {
	return len(w.slots) > 0 && w.slots[0].ID == id
}

// Slots returns a copy of the slots.
func (w *Window) Slots() []Slot {
	result := make([]Slot, len(w.slots))
	for i, s := range w.slots {
		result[i] = *s
	}
	return result
}

// EntryIDs returns the queue entry IDs of all slots.
func (w *Window) EntryIDs() []string {
	ids := make([]string, len(w.slots))
	for i, s := range w.slots {
		ids[i] = s.Entry.ID
	}
	return ids
}

// Rebuild discards every slot and loads the queue window fresh.
func (w *Window) Rebuild(q *queue.Queue) {
	w.Clear()
	for _, e := range q.Window(w.config.Size) {
		w.appendSlot(e)
	}
	zlog.Debug().Msgf("buffer: rebuilt: slots=%d", len(w.slots))
}

// AdvanceWindow drops slot 0 after the queue moved to the entry in slot 1.
// Kept slots are never resolved again; missing lookahead is appended.
func (w *Window) AdvanceWindow(q *queue.Queue) {
	if len(w.slots) == 0 {
		w.Rebuild(q)
		return
	}

	head := w.slots[0]
	if head.cancel != nil {
		head.cancel()
	}
	if head.loaded {
		w.transport.Advance()
	}
	w.slots = w.slots[1:]

	w.Patch(q)
}

// Patch reconciles lookahead slots with the queue when the head is unchanged.
// Matching slots are kept in order; everything after the first entry that
// cannot be kept in order is released and loaded fresh.
func (w *Window) Patch(q *queue.Queue) {
	desired := q.Window(w.config.Size)
	if len(desired) == 0 {
		w.Clear()
		return
	}
	if len(w.slots) == 0 || w.slots[0].Entry.ID != desired[0].ID {
		w.Rebuild(q)
		return
	}

	kept := make([]*Slot, 0, w.config.Size)
	kept = append(kept, w.slots[0])
	rest := w.slots[1:]
	i := 1
	for ; i < len(desired); i++ {
		idx := indexOfEntry(rest, desired[i].ID)
		if idx < 0 {
			break
		}
		// Slots skipped over are no longer in the queue window.
		for _, s := range rest[:idx] {
			w.release(s)
		}
		kept = append(kept, rest[idx])
		rest = rest[idx+1:]
	}
	for _, s := range rest {
		w.release(s)
	}

	w.slots = kept
	for ; i < len(desired); i++ {
		w.appendSlot(desired[i])
	}
	w.flush()
}

// Clear releases every slot.
func (w *Window) Clear() {
	for _, s := range w.slots {
		w.release(s)
	}
	w.slots = w.slots[:0]
}

// HandleResolved applies a resolver completion. It returns the slot index, or
// -1 when the slot was released in the meantime.
func (w *Window) HandleResolved(r Resolved) int {
	idx, s := w.Find(r.Item)
	if s == nil || s.resolved || s.Status == SlotFailed {
		zlog.Debug().Msgf("buffer: dropping stale resolution: item=%s", r.Item)
		return -1
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if r.Err != nil {
		s.Status = SlotFailed
		s.Err = errors.Mark(
			errors.Wrapf(r.Err, "failed to resolve track %s", s.Entry.Track.ID),
			stream.ErrSourceUnavailable,
		)
		zlog.Warn().Msgf("buffer: resolve failed: slot=%d track=%s error=%v", idx, s.Entry.Track.ID, r.Err)
		w.flush()
		return idx
	}

	src := r.Source
	if src.Length <= 0 {
		src.Length = s.Entry.Track.Duration
	}
	s.Source = src
	s.resolved = true
	w.flush()
	return idx
}

// HandleStatus applies a transport status event. It returns the slot index,
// or -1 for items the window does not hold.
func (w *Window) HandleStatus(id transport.ItemID, status transport.Status, err error) int {
	idx, s := w.Find(id)
	if s == nil {
		return -1
	}
	switch status {
	case transport.StatusReady:
		s.Status = SlotReady
	case transport.StatusFailed:
		if err == nil {
			err = errors.New("transport reported failure")
		}
		s.Status = SlotFailed
		s.Err = errors.Mark(errors.Wrapf(err, "transport failed item %s", id), stream.ErrPlaybackFailure)
	case transport.StatusLoading:
		if s.Status != SlotReady {
			s.Status = SlotLoading
		}
	}
	return idx
}

// SetBufferEmpty records a buffering signal. It returns the slot index or -1.
func (w *Window) SetBufferEmpty(id transport.ItemID, empty bool) int {
	idx, s := w.Find(id)
	if s == nil {
		return -1
	}
	s.BufferEmpty = empty
	return idx
}

func (w *Window) appendSlot(e track.Entry) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Slot{
		ID:     transport.ItemID(uuid.New().String()),
		Entry:  e,
		Status: SlotResolving,
		cancel: cancel,
	}
	w.slots = append(w.slots, s)

	trackID := e.Track.ID
	quality := w.config.Quality
	go func() {
		src, err := w.resolver.Resolve(ctx, trackID, quality)
		if ctx.Err() != nil {
			return
		}
		w.post(Resolved{Item: s.ID, Source: src, Err: err})
	}()
}

// flush loads resolved slots onto the transport in slot order, stopping at
// the first slot still waiting for its resolver or failed before loading.
// The transport plays items in load order, so nothing may be loaded past a
// slot it never received.
func (w *Window) flush() {
	for _, s := range w.slots {
		switch {
		case s.loaded:
			continue
		case !s.resolved, s.Status == SlotFailed:
			return
		}
		s.loaded = true
		s.Status = SlotLoading
		w.transport.Load(s.ID, s.Source)
		zlog.Debug().Msgf("buffer: loaded: item=%s track=%s source=%s", s.ID, s.Entry.Track.ID, s.Source.Location())
	}
}

func (w *Window) release(s *Slot) {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.loaded {
		w.transport.Release(s.ID)
		s.loaded = false
	}
}

func indexOfEntry(slots []*Slot, entryID string) int {
	for i, s := range slots {
		if s.Entry.ID == entryID {
			return i
		}
	}
	return -1
}
