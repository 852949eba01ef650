package playback

import (
	"sync"

	"github.com/osa030/segue/internal/app/buffer"
	"github.com/osa030/segue/internal/app/transport"
)

// message is an item in the engine inbox.
type message interface {
	isMessage()
}

// transportMsg carries a transport event.
type transportMsg struct {
	event transport.Event
}

// resolvedMsg carries a resolver completion for a window slot.
type resolvedMsg struct {
	result buffer.Resolved
}

// commandMsg runs fn on the engine loop and reports its error on done.
type commandMsg struct {
	fn   func() error
	done chan error
}

// retryMsg fires a scheduled retry; stale generations are ignored.
type retryMsg struct {
	generation uint64
}

func (transportMsg) isMessage() {}
func (resolvedMsg) isMessage()  {}
func (commandMsg) isMessage()   {}
func (retryMsg) isMessage()     {}

// inbox is an unbounded FIFO. push never blocks, so transport and resolver
// goroutines can always hand off.
type inbox struct {
	mu     sync.Mutex
	items  []message
	notify chan struct{}
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (b *inbox) push(m message) {
	b.mu.Lock()
	b.items = append(b.items, m)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// drain returns and removes all queued messages.
func (b *inbox) drain() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}
