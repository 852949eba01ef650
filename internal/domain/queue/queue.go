// Package queue provides the playback queue with shuffle and repeat policy.
package queue

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/segue/internal/domain/track"
)

// ErrInvalidArgument is returned for bad indices or empty input.
// Queue state is left untouched when it is returned.
var ErrInvalidArgument = errors.New("invalid argument")

// Outcome describes the result of advancing the queue.
type Outcome int

const (
	Advanced   Outcome = iota // Moved to (or stayed on) a playable position
	Wrapped                   // Wrapped from the last position to the first
	EndOfQueue                // No further position; the queue did not move
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case Advanced:
		return "advanced"
	case Wrapped:
		return "wrapped"
	case EndOfQueue:
		return "end_of_queue"
	default:
		return "unknown"
	}
}

// AdvanceResult is returned by Advance.
type AdvanceResult struct {
	Outcome  Outcome
	Position int
}

// RemoveResult is returned by Remove.
type RemoveResult struct {
	Entry      track.Entry // The removed entry
	WasCurrent bool        // The removed entry was the current one
}

// Queue is an ordered sequence of entries plus a play order.
//
// items keeps insertion order. order is a permutation of item indices and is
// the identity while shuffle is off. position indexes into order. All public
// positions are play-order positions.
//
// Queue is not safe for concurrent use; the playback engine owns it.
type Queue struct {
	items    []track.Entry
	order    []int
	position int
	repeat   RepeatMode
	shuffle  bool
	rng      *rand.Rand
}

// New creates an empty queue. A nil rng is seeded from the clock.
func New(rng *rand.Rand) *Queue {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Queue{
		items: make([]track.Entry, 0),
		order: make([]int, 0),
		rng:   rng,
	}
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	return len(q.order)
}

// IsEmpty returns true if the queue has no entries.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Position returns the current play-order position (0 when empty).
func (q *Queue) Position() int {
	return q.position
}

// Repeat returns the repeat mode.
func (q *Queue) Repeat() RepeatMode {
	return q.repeat
}

// SetRepeat sets the repeat mode.
func (q *Queue) SetRepeat(m RepeatMode) {
	q.repeat = m
}

// CycleRepeat advances the repeat mode and returns the new one.
func (q *Queue) CycleRepeat() RepeatMode {
	q.repeat = q.repeat.Next()
	return q.repeat
}

// Shuffled reports whether shuffle is enabled.
func (q *Queue) Shuffled() bool {
	return q.shuffle
}

func (q *Queue) isValidPosition(pos int) bool {
	return 0 <= pos && pos < q.Len()
}

// Current returns the current entry.
func (q *Queue) Current() (track.Entry, bool) {
	return q.At(q.position)
}

// At returns the entry at a play-order position.
func (q *Queue) At(pos int) (track.Entry, bool) {
	if !q.isValidPosition(pos) {
		return track.Entry{}, false
	}
	return q.items[q.order[pos]], true
}

// Entries returns a copy of all entries in play order.
func (q *Queue) Entries() []track.Entry {
	return lo.Map(q.order, func(idx int, _ int) track.Entry {
		return q.items[idx]
	})
}

// Window returns the current entry followed by up to n-1 later entries,
// clamped to the end of the play order.
func (q *Queue) Window(n int) []track.Entry {
	if q.IsEmpty() || n <= 0 {
		return nil
	}
	end := min(q.position+n, q.Len())
	result := make([]track.Entry, 0, end-q.position)
	for pos := q.position; pos < end; pos++ {
		result = append(result, q.items[q.order[pos]])
	}
	return result
}

// IndexOf returns the play-order position of an entry, or -1.
func (q *Queue) IndexOf(entryID string) int {
	_, pos, ok := lo.FindIndexOf(q.order, func(idx int) bool {
		return q.items[idx].ID == entryID
	})
	if !ok {
		return -1
	}
	return pos
}

// Set replaces the queue. With shuffle on, the start track is pinned first.
func (q *Queue) Set(tracks []track.Track, start int) error {
	if len(tracks) == 0 {
		return errors.Wrap(ErrInvalidArgument, "tracks must not be empty")
	}
	if start < 0 || start >= len(tracks) {
		return errors.Wrapf(ErrInvalidArgument, "start index %d out of range [0,%d)", start, len(tracks))
	}

	q.items = track.NewEntries(tracks)
	if q.shuffle {
		q.order = q.shuffledOrder(start)
		q.position = 0
	} else {
		q.order = identity(len(q.items))
		q.position = start
	}
	return nil
}

// Advance moves to the next position according to mode.
//   - RepeatOff: EndOfQueue at the last position, queue does not move
//   - RepeatAll: wrap to position 0 after the last position
//   - RepeatOne: stay on the current position
func (q *Queue) Advance(mode RepeatMode) AdvanceResult {
	if q.IsEmpty() {
		return AdvanceResult{Outcome: EndOfQueue}
	}

	last := q.Len() - 1
	switch mode {
	case RepeatOne:
		return AdvanceResult{Outcome: Advanced, Position: q.position}
	case RepeatAll:
		if q.position >= last {
			q.position = 0
			return AdvanceResult{Outcome: Wrapped, Position: 0}
		}
	default:
		if q.position >= last {
			return AdvanceResult{Outcome: EndOfQueue, Position: q.position}
		}
	}

	q.position++
	return AdvanceResult{Outcome: Advanced, Position: q.position}
}

// Previous moves back one position. Under RepeatAll the first position wraps
// to the last; otherwise it stays put and false is returned.
func (q *Queue) Previous(mode RepeatMode) (int, bool) {
	if q.IsEmpty() {
		return 0, false
	}
	if q.position > 0 {
		q.position--
		return q.position, true
	}
	if mode == RepeatAll && q.Len() > 1 {
		q.position = q.Len() - 1
		return q.position, true
	}
	return q.position, false
}

// Jump makes the entry at pos current.
func (q *Queue) Jump(pos int) error {
	if !q.isValidPosition(pos) {
		return errors.Wrapf(ErrInvalidArgument, "position %d out of range [0,%d)", pos, q.Len())
	}
	q.position = pos
	return nil
}

// Insert adds a track at play-order position at (0..Len).
// The entry that was current stays current.
func (q *Queue) Insert(t track.Track, at int) (track.Entry, error) {
	if at < 0 || at > q.Len() {
		return track.Entry{}, errors.Wrapf(ErrInvalidArgument, "insert position %d out of range [0,%d]", at, q.Len())
	}

	wasEmpty := q.IsEmpty()
	entry := track.NewEntry(t)

	// Place the item right after its play-order predecessor in insertion
	// order, so disabling shuffle later keeps it near where it was queued.
	itemIdx := 0
	if at > 0 {
		itemIdx = q.order[at-1] + 1
	}
	for i, idx := range q.order {
		if idx >= itemIdx {
			q.order[i] = idx + 1
		}
	}
	q.items = slices.Insert(q.items, itemIdx, entry)
	q.order = slices.Insert(q.order, at, itemIdx)

	if wasEmpty {
		q.position = 0
	} else if at <= q.position {
		q.position++
	}
	return entry, nil
}

// Append adds a track at the end of the play order.
func (q *Queue) Append(t track.Track) track.Entry {
	entry, _ := q.Insert(t, q.Len())
	return entry
}

// Remove deletes the entry at play-order position at.
// Removing the current entry makes the next one current, or the previous
// one when the last entry was removed.
func (q *Queue) Remove(at int) (RemoveResult, error) {
	if !q.isValidPosition(at) {
		return RemoveResult{}, errors.Wrapf(ErrInvalidArgument, "position %d out of range [0,%d)", at, q.Len())
	}

	itemIdx := q.order[at]
	entry := q.items[itemIdx]

	q.items = slices.Delete(q.items, itemIdx, itemIdx+1)
	q.order = slices.Delete(q.order, at, at+1)
	for i, idx := range q.order {
		if idx > itemIdx {
			q.order[i] = idx - 1
		}
	}

	wasCurrent := at == q.position
	switch {
	case q.IsEmpty():
		q.position = 0
	case at < q.position:
		q.position--
	case wasCurrent && q.position >= q.Len():
		q.position = q.Len() - 1
	}

	return RemoveResult{Entry: entry, WasCurrent: wasCurrent}, nil
}

// Move relocates the entry at from to position to.
// The entry that was current stays current.
func (q *Queue) Move(from, to int) error {
	if !q.isValidPosition(from) {
		return errors.Wrapf(ErrInvalidArgument, "from position %d out of range [0,%d)", from, q.Len())
	}
	if !q.isValidPosition(to) {
		return errors.Wrapf(ErrInvalidArgument, "to position %d out of range [0,%d)", to, q.Len())
	}
	if from == to {
		return nil
	}

	if q.shuffle {
		idx := q.order[from]
		q.order = slices.Delete(q.order, from, from+1)
		q.order = slices.Insert(q.order, to, idx)
	} else {
		// Identity order: move the item itself so order stays identity.
		entry := q.items[from]
		q.items = slices.Delete(q.items, from, from+1)
		q.items = slices.Insert(q.items, to, entry)
	}

	switch {
	case from == q.position:
		q.position = to
	case from < q.position && to >= q.position:
		q.position--
	case from > q.position && to <= q.position:
		q.position++
	}
	return nil
}

// ToggleShuffle flips shuffle and returns the new state. Enabling pins the
// current entry at position 0; disabling restores insertion order with the
// current entry at its original index.
func (q *Queue) ToggleShuffle() bool {
	q.shuffle = !q.shuffle
	if q.IsEmpty() {
		return q.shuffle
	}

	current := q.order[q.position]
	if q.shuffle {
		q.order = q.shuffledOrder(current)
		q.position = 0
	} else {
		q.order = identity(len(q.items))
		q.position = current
	}
	return q.shuffle
}

// Clear removes every entry. Repeat and shuffle settings are kept.
func (q *Queue) Clear() {
	q.items = make([]track.Entry, 0)
	q.order = make([]int, 0)
	q.position = 0
}

// shuffledOrder returns a random permutation with pinned first.
func (q *Queue) shuffledOrder(pinned int) []int {
	order := make([]int, 0, len(q.items))
	order = append(order, pinned)
	for i := range q.items {
		if i != pinned {
			order = append(order, i)
		}
	}
	rest := order[1:]
	q.rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	return order
}

func identity(n int) []int {
	return lo.Range(n)
}
