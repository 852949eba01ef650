package nowplaying

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream

	mu      sync.Mutex // Serializes sends
	lastSeq uint64
}

// deliver sends n unless a notification at least as new was already sent.
// The replay on subscribe and the broadcaster race; sequence numbers keep
// the subscriber's view monotonic.
func (s *subscription) deliver(n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.SequenceNo <= s.lastSeq {
		return nil
	}
	s.lastSeq = n.SequenceNo
	return s.stream.Send(n)
}

// Hub manages now-playing subscriptions and broadcasting.
// It implements Reporter; notifications are queued and broadcast from a
// single goroutine so the engine loop never waits on subscribers.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	latest        *Notification

	sequenceNo  uint64
	sendTimeout time.Duration

	queue     chan *Notification
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a new hub and starts its broadcaster.
func NewHub() *Hub {
	h := &Hub{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   500 * time.Millisecond,
		queue:         make(chan *Notification, 64),
		done:          make(chan struct{}),
	}
	go h.run()
	return h
}

// Subscribe adds a new subscription and returns the subscription ID.
// The latest notification, if any, is sent to the new subscriber first.
func (h *Hub) Subscribe(stream Stream) string {
	h.mu.Lock()
	id := uuid.New().String()
	sub := &subscription{
		id:     id,
		stream: stream,
	}
	h.subscriptions[id] = sub
	latest := h.latest
	h.mu.Unlock()

	if latest != nil {
		if err := sub.deliver(latest); err != nil {
			zlog.Debug().Msgf("nowplaying: initial send failed: subscription=%s error=%v", id, err)
		}
	}
	return id
}

// Unsubscribe removes a subscription.
func (h *Hub) Unsubscribe(subscriptionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscriptions, subscriptionID)
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// Latest returns the most recent notification.
func (h *Hub) Latest() (*Notification, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.latest != nil
}

// Update queues a snapshot notification.
func (h *Hub) Update(s Snapshot) {
	h.enqueue(&Notification{Kind: KindUpdate, Snapshot: &s})
}

// ReportError queues an error notification.
func (h *Hub) ReportError(err error) {
	h.enqueue(&Notification{Kind: KindError, Error: err.Error()})
}

// Clear queues a clear notification.
func (h *Hub) Clear() {
	h.enqueue(&Notification{Kind: KindClear})
}

func (h *Hub) enqueue(n *Notification) {
	h.mu.Lock()
	h.sequenceNo++
	n.SequenceNo = h.sequenceNo
	h.latest = n
	h.mu.Unlock()

	select {
	case h.queue <- n:
	case <-h.done:
	default:
		zlog.Warn().Msgf("nowplaying: queue full, dropping notification: seq=%d kind=%s", n.SequenceNo, n.Kind)
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case n := <-h.queue:
			h.Broadcast(n)
		}
	}
}

// Broadcast sends a notification to all subscribers.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
func (h *Hub) Broadcast(n *Notification) {
	h.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.deliver(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("nowplaying: send failed, unsubscribing: subscription=%s error=%v", s.id, err)
					h.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("nowplaying: send timed out: subscription=%s", s.id)
			}
		}(sub)
	}

	// Wait for all sends to complete or timeout
	wg.Wait()
}

// Done is closed when the hub is closed.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Close stops broadcasting and removes all subscriptions.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscriptions = make(map[string]*subscription)
}
