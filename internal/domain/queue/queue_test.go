package queue

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/segue/internal/domain/track"
)

func testTracks(ids ...string) []track.Track {
	tracks := make([]track.Track, len(ids))
	for i, id := range ids {
		tracks[i] = track.Track{ID: id, Title: "Title " + id, Duration: 3 * time.Minute}
	}
	return tracks
}

func trackIDs(entries []track.Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Track.ID
	}
	return ids
}

func newTestQueue(t *testing.T, ids ...string) *Queue {
	t.Helper()
	q := New(rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, q.Set(testTracks(ids...), 0))
	return q
}

func currentID(t *testing.T, q *Queue) string {
	t.Helper()
	e, ok := q.Current()
	require.True(t, ok)
	return e.Track.ID
}

func TestQueue_Set(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		start   int
		wantErr bool
	}{
		{name: "start at first", ids: []string{"a", "b", "c"}, start: 0},
		{name: "start in middle", ids: []string{"a", "b", "c"}, start: 1},
		{name: "empty tracks", ids: []string{}, start: 0, wantErr: true},
		{name: "negative start", ids: []string{"a"}, start: -1, wantErr: true},
		{name: "start past end", ids: []string{"a", "b"}, start: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(nil)
			err := q.Set(testTracks(tt.ids...), tt.start)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidArgument))
				assert.True(t, q.IsEmpty())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, q.Position())
			assert.Equal(t, tt.ids, trackIDs(q.Entries()))
		})
	}
}

func TestQueue_SetWithShufflePinsStart(t *testing.T) {
	q := New(rand.New(rand.NewPCG(7, 7)))
	q.ToggleShuffle()

	require.NoError(t, q.Set(testTracks("a", "b", "c", "d", "e"), 3))

	assert.Equal(t, 0, q.Position())
	assert.Equal(t, "d", currentID(t, q))
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, trackIDs(q.Entries()))
}

func TestQueue_Advance(t *testing.T) {
	tests := []struct {
		name        string
		mode        RepeatMode
		start       int
		wantOutcome Outcome
		wantPos     int
	}{
		{name: "off middle", mode: RepeatOff, start: 0, wantOutcome: Advanced, wantPos: 1},
		{name: "off at end", mode: RepeatOff, start: 2, wantOutcome: EndOfQueue, wantPos: 2},
		{name: "all at end wraps", mode: RepeatAll, start: 2, wantOutcome: Wrapped, wantPos: 0},
		{name: "all middle", mode: RepeatAll, start: 1, wantOutcome: Advanced, wantPos: 2},
		{name: "one stays", mode: RepeatOne, start: 1, wantOutcome: Advanced, wantPos: 1},
		{name: "one at end stays", mode: RepeatOne, start: 2, wantOutcome: Advanced, wantPos: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(nil)
			require.NoError(t, q.Set(testTracks("a", "b", "c"), tt.start))

			result := q.Advance(tt.mode)

			assert.Equal(t, tt.wantOutcome, result.Outcome)
			assert.Equal(t, tt.wantPos, result.Position)
			assert.Equal(t, tt.wantPos, q.Position())
		})
	}
}

func TestQueue_AdvanceEmpty(t *testing.T) {
	q := New(nil)
	assert.Equal(t, EndOfQueue, q.Advance(RepeatAll).Outcome)
}

func TestQueue_RepeatOffStopsAfterLast(t *testing.T) {
	q := newTestQueue(t, "a", "b", "c")

	played := []string{currentID(t, q)}
	for {
		result := q.Advance(RepeatOff)
		if result.Outcome == EndOfQueue {
			break
		}
		played = append(played, currentID(t, q))
	}

	assert.Equal(t, []string{"a", "b", "c"}, played)
	assert.Equal(t, 2, q.Position())
}

func TestQueue_Previous(t *testing.T) {
	tests := []struct {
		name    string
		mode    RepeatMode
		start   int
		wantPos int
		wantOK  bool
	}{
		{name: "middle", mode: RepeatOff, start: 2, wantPos: 1, wantOK: true},
		{name: "first without repeat", mode: RepeatOff, start: 0, wantPos: 0, wantOK: false},
		{name: "first with repeat one", mode: RepeatOne, start: 0, wantPos: 0, wantOK: false},
		{name: "first with repeat all wraps", mode: RepeatAll, start: 0, wantPos: 2, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(nil)
			require.NoError(t, q.Set(testTracks("a", "b", "c"), tt.start))

			pos, ok := q.Previous(tt.mode)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPos, pos)
			assert.Equal(t, tt.wantPos, q.Position())
		})
	}
}

func TestQueue_Insert(t *testing.T) {
	tests := []struct {
		name    string
		start   int
		at      int
		wantIDs []string
		wantPos int
		wantErr bool
	}{
		{name: "before current", start: 1, at: 0, wantIDs: []string{"x", "a", "b", "c"}, wantPos: 2},
		{name: "at current", start: 1, at: 1, wantIDs: []string{"a", "x", "b", "c"}, wantPos: 2},
		{name: "after current", start: 1, at: 2, wantIDs: []string{"a", "b", "x", "c"}, wantPos: 1},
		{name: "append", start: 1, at: 3, wantIDs: []string{"a", "b", "c", "x"}, wantPos: 1},
		{name: "out of range", start: 1, at: 4, wantErr: true},
		{name: "negative", start: 1, at: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(nil)
			require.NoError(t, q.Set(testTracks("a", "b", "c"), tt.start))

			entry, err := q.Insert(track.Track{ID: "x", Duration: time.Minute}, tt.at)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidArgument))
				assert.Equal(t, []string{"a", "b", "c"}, trackIDs(q.Entries()))
				assert.Equal(t, tt.start, q.Position())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", entry.Track.ID)
			assert.Equal(t, tt.wantIDs, trackIDs(q.Entries()))
			assert.Equal(t, tt.wantPos, q.Position())
			assert.Equal(t, "b", currentID(t, q))
		})
	}
}

func TestQueue_InsertIntoEmpty(t *testing.T) {
	q := New(nil)

	_, err := q.Insert(track.Track{ID: "x", Duration: time.Minute}, 0)

	require.NoError(t, err)
	assert.Equal(t, 0, q.Position())
	assert.Equal(t, "x", currentID(t, q))
}

func TestQueue_Remove(t *testing.T) {
	tests := []struct {
		name        string
		start       int
		at          int
		wantIDs     []string
		wantPos     int
		wantCurrent string
		wasCurrent  bool
	}{
		{name: "before current", start: 2, at: 0, wantIDs: []string{"b", "c", "d"}, wantPos: 1, wantCurrent: "c"},
		{name: "after current", start: 1, at: 3, wantIDs: []string{"a", "b", "c"}, wantPos: 1, wantCurrent: "b"},
		{name: "current becomes next", start: 1, at: 1, wantIDs: []string{"a", "c", "d"}, wantPos: 1, wantCurrent: "c", wasCurrent: true},
		{name: "current last becomes previous", start: 3, at: 3, wantIDs: []string{"a", "b", "c"}, wantPos: 2, wantCurrent: "c", wasCurrent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(nil)
			require.NoError(t, q.Set(testTracks("a", "b", "c", "d"), tt.start))

			result, err := q.Remove(tt.at)

			require.NoError(t, err)
			assert.Equal(t, tt.wasCurrent, result.WasCurrent)
			assert.Equal(t, tt.wantIDs, trackIDs(q.Entries()))
			assert.Equal(t, tt.wantPos, q.Position())
			assert.Equal(t, tt.wantCurrent, currentID(t, q))
		})
	}
}

func TestQueue_RemoveLastEntry(t *testing.T) {
	q := newTestQueue(t, "a")

	result, err := q.Remove(0)

	require.NoError(t, err)
	assert.True(t, result.WasCurrent)
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Position())
	_, ok := q.Current()
	assert.False(t, ok)
}

func TestQueue_RemoveInvalid(t *testing.T) {
	q := newTestQueue(t, "a", "b")

	_, err := q.Remove(2)

	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Equal(t, 2, q.Len())
}

func TestQueue_Move(t *testing.T) {
	tests := []struct {
		name    string
		start   int
		from    int
		to      int
		wantIDs []string
		wantPos int
	}{
		{name: "move current forward", start: 1, from: 1, to: 3, wantIDs: []string{"a", "c", "d", "b"}, wantPos: 3},
		{name: "move from before to after current", start: 1, from: 0, to: 2, wantIDs: []string{"b", "c", "a", "d"}, wantPos: 0},
		{name: "move from after to before current", start: 1, from: 3, to: 0, wantIDs: []string{"d", "a", "b", "c"}, wantPos: 2},
		{name: "move unrelated", start: 0, from: 2, to: 3, wantIDs: []string{"a", "b", "d", "c"}, wantPos: 0},
		{name: "same position", start: 0, from: 2, to: 2, wantIDs: []string{"a", "b", "c", "d"}, wantPos: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(nil)
			require.NoError(t, q.Set(testTracks("a", "b", "c", "d"), tt.start))
			before := currentID(t, q)

			require.NoError(t, q.Move(tt.from, tt.to))

			assert.Equal(t, tt.wantIDs, trackIDs(q.Entries()))
			assert.Equal(t, tt.wantPos, q.Position())
			assert.Equal(t, before, currentID(t, q))
		})
	}
}

func TestQueue_MoveInvalid(t *testing.T) {
	q := newTestQueue(t, "a", "b")

	assert.True(t, errors.Is(q.Move(-1, 0), ErrInvalidArgument))
	assert.True(t, errors.Is(q.Move(0, 2), ErrInvalidArgument))
	assert.Equal(t, []string{"a", "b"}, trackIDs(q.Entries()))
}

func TestQueue_Jump(t *testing.T) {
	q := newTestQueue(t, "a", "b", "c")

	require.NoError(t, q.Jump(2))
	assert.Equal(t, "c", currentID(t, q))

	assert.True(t, errors.Is(q.Jump(3), ErrInvalidArgument))
	assert.Equal(t, 2, q.Position())
}

func TestQueue_Window(t *testing.T) {
	q := newTestQueue(t, "a", "b", "c", "d")

	assert.Equal(t, []string{"a", "b", "c"}, trackIDs(q.Window(3)))

	require.NoError(t, q.Jump(2))
	assert.Equal(t, []string{"c", "d"}, trackIDs(q.Window(3)))

	require.NoError(t, q.Jump(3))
	assert.Equal(t, []string{"d"}, trackIDs(q.Window(3)))

	assert.Nil(t, New(nil).Window(3))
}

func TestQueue_ShuffleToggle(t *testing.T) {
	t.Run("enable pins current at front", func(t *testing.T) {
		q := newTestQueue(t, "a", "b", "c", "d", "e", "f")
		require.NoError(t, q.Jump(3))

		assert.True(t, q.ToggleShuffle())

		assert.Equal(t, 0, q.Position())
		assert.Equal(t, "d", currentID(t, q))
		assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f"}, trackIDs(q.Entries()))
	})

	t.Run("disable restores original order", func(t *testing.T) {
		q := newTestQueue(t, "a", "b", "c", "d", "e", "f")
		require.NoError(t, q.Jump(3))

		q.ToggleShuffle()
		require.NoError(t, q.Jump(4))
		current := currentID(t, q)
		assert.False(t, q.ToggleShuffle())

		assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, trackIDs(q.Entries()))
		assert.Equal(t, current, currentID(t, q))
	})

	t.Run("insert while shuffled survives disable", func(t *testing.T) {
		q := newTestQueue(t, "a", "b", "c", "d")
		q.ToggleShuffle()

		_, err := q.Insert(track.Track{ID: "x", Duration: time.Minute}, 1)
		require.NoError(t, err)
		next, _ := q.At(1)
		assert.Equal(t, "x", next.Track.ID)

		q.ToggleShuffle()
		ids := trackIDs(q.Entries())
		assert.Len(t, ids, 5)
		assert.Contains(t, ids, "x")
		assert.Equal(t, "a", currentID(t, q))
		// x follows the entry that was current when it was queued.
		assert.Equal(t, "x", ids[1])
	})

	t.Run("empty queue only flips flag", func(t *testing.T) {
		q := New(nil)
		assert.True(t, q.ToggleShuffle())
		assert.True(t, q.Shuffled())
		assert.True(t, q.IsEmpty())
	})
}

func TestQueue_IndexOf(t *testing.T) {
	q := newTestQueue(t, "a", "b", "c")
	entries := q.Entries()

	assert.Equal(t, 2, q.IndexOf(entries[2].ID))
	assert.Equal(t, -1, q.IndexOf("missing"))
}

func TestQueue_Clear(t *testing.T) {
	q := newTestQueue(t, "a", "b")
	q.SetRepeat(RepeatAll)
	q.ToggleShuffle()

	q.Clear()

	assert.True(t, q.IsEmpty())
	assert.Equal(t, RepeatAll, q.Repeat())
	assert.True(t, q.Shuffled())
}

// TestQueue_RandomEditsKeepPositionInRange applies random edits and checks that the
// position always stays inside the play order and order is a permutation.
func TestQueue_RandomEditsKeepPositionInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 99))
	q := New(rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, q.Set(testTracks("a", "b", "c", "d", "e"), 2))

	for i := 0; i < 2000; i++ {
		n := q.Len()
		switch rng.IntN(7) {
		case 0:
			_, _ = q.Insert(track.Track{ID: "n", Duration: time.Minute}, rng.IntN(n+1))
		case 1:
			if n > 0 {
				_, _ = q.Remove(rng.IntN(n))
			}
		case 2:
			if n > 0 {
				_ = q.Move(rng.IntN(n), rng.IntN(n))
			}
		case 3:
			q.ToggleShuffle()
		case 4:
			q.Advance(RepeatMode(rng.IntN(3)))
		case 5:
			q.Previous(RepeatMode(rng.IntN(3)))
		case 6:
			if n > 0 {
				_ = q.Jump(rng.IntN(n))
			}
		}

		if q.IsEmpty() {
			require.Equal(t, 0, q.Position())
			continue
		}
		require.GreaterOrEqual(t, q.Position(), 0)
		require.Less(t, q.Position(), q.Len())
		require.Len(t, q.items, len(q.order))

		seen := make([]bool, len(q.order))
		for _, idx := range q.order {
			require.False(t, seen[idx])
			seen[idx] = true
		}
		if !q.Shuffled() {
			for j, idx := range q.order {
				require.Equal(t, j, idx)
			}
		}
	}
}

func TestRepeatMode(t *testing.T) {
	assert.Equal(t, RepeatAll, RepeatOff.Next())
	assert.Equal(t, RepeatOne, RepeatAll.Next())
	assert.Equal(t, RepeatOff, RepeatOne.Next())

	for _, m := range []RepeatMode{RepeatOff, RepeatAll, RepeatOne} {
		parsed, err := ParseRepeatMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	_, err := ParseRepeatMode("sometimes")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestQueue_CycleRepeat(t *testing.T) {
	q := New(nil)
	assert.Equal(t, RepeatAll, q.CycleRepeat())
	assert.Equal(t, RepeatOne, q.CycleRepeat())
	assert.Equal(t, RepeatOff, q.CycleRepeat())
}
