// Package events provides the per-session ordered, bounded, replayable
// stream of outbound events.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/pkg/models"
)

// DefaultCapacity is the per-session ring size when none is configured.
const DefaultCapacity = 100

// subscriberBuffer is the per-connection channel depth. A connection that
// falls this far behind is detached rather than allowed to stall the
// session's loop.
const subscriberBuffer = 256

// Bus fans session events out to attached connections and retains a bounded
// ring per session for replay after reconnect.
type Bus struct {
	mu       sync.Mutex
	capacity int
	sessions map[string]*stream
	logger   *slog.Logger
}

type stream struct {
	mu   sync.Mutex
	seq  uint64
	ring []*models.Event
	subs map[string]*Subscriber
}

// Subscriber is one attached connection's view of a session stream.
type Subscriber struct {
	ID     string
	ch     chan *models.Event
	closed bool
	mu     sync.Mutex
}

// Events returns the subscriber's delivery channel. The channel is closed
// when the subscriber is detached.
func (s *Subscriber) Events() <-chan *models.Event { return s.ch }

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// deliver enqueues without blocking; reports false when the subscriber is
// too far behind and should be detached.
func (s *Subscriber) deliver(ev *models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// NewBus creates a bus with the given per-session ring capacity.
func NewBus(capacity int, logger *slog.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		capacity: capacity,
		sessions: make(map[string]*stream),
		logger:   logger,
	}
}

func (b *Bus) stream(sessionID string) *stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		st = &stream{subs: make(map[string]*Subscriber)}
		b.sessions[sessionID] = st
	}
	return st
}

// Stamp assigns the envelope fields (monotonic message id, session id,
// timestamp) without buffering or broadcasting. Used for per-connection
// events such as connection_established and liveness replies.
func (b *Bus) Stamp(sessionID string, ev *models.Event) *models.Event {
	st := b.stream(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stampLocked(sessionID, ev)
	return ev
}

func (st *stream) stampLocked(sessionID string, ev *models.Event) {
	st.seq++
	ev.MessageID = fmt.Sprintf("m%d", st.seq)
	ev.SessionID = sessionID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
}

// Publish stamps the event, appends it to the session ring, and delivers it
// to every attached subscriber in order. Subscribers that cannot keep up
// are detached. Returns the stamped event.
func (b *Bus) Publish(sessionID string, ev *models.Event) *models.Event {
	st := b.stream(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.stampLocked(sessionID, ev)

	if len(st.ring) >= b.capacity {
		// Oldest events are dropped; they can no longer be replayed.
		st.ring = st.ring[1:]
	}
	st.ring = append(st.ring, ev)

	for id, sub := range st.subs {
		if !sub.deliver(ev) {
			b.logger.Warn("detaching slow subscriber", "session_id", sessionID, "subscriber_id", id)
			delete(st.subs, id)
			sub.close()
		}
	}
	return ev
}

// Subscribe attaches a new subscriber and returns it along with the replay
// slice implied by lastSeenID: events newer than lastSeenID if that id is
// still buffered, everything buffered if it is not, and nothing when
// lastSeenID is empty.
func (b *Bus) Subscribe(sessionID, lastSeenID string) (*Subscriber, []*models.Event) {
	st := b.stream(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	sub := &Subscriber{
		ID: uuid.NewString(),
		ch: make(chan *models.Event, subscriberBuffer),
	}
	st.subs[sub.ID] = sub

	var replay []*models.Event
	if lastSeenID != "" {
		idx := -1
		for i, ev := range st.ring {
			if ev.MessageID == lastSeenID {
				idx = i
				break
			}
		}
		if idx >= 0 {
			replay = append(replay, st.ring[idx+1:]...)
		} else {
			// The id fell out of the ring; replay everything still held
			// and let the client reconcile.
			replay = append(replay, st.ring...)
		}
	}
	return sub, replay
}

// Unsubscribe detaches a subscriber from a session stream.
func (b *Bus) Unsubscribe(sessionID, subscriberID string) {
	b.mu.Lock()
	st, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if sub, ok := st.subs[subscriberID]; ok {
		delete(st.subs, subscriberID)
		sub.close()
	}
}

// Buffered returns a copy of the session's retained events, oldest first.
func (b *Bus) Buffered(sessionID string) []*models.Event {
	st := b.stream(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*models.Event, len(st.ring))
	copy(out, st.ring)
	return out
}

// RemoveSession drops a session's ring and detaches its subscribers.
func (b *Bus) RemoveSession(sessionID string) {
	b.mu.Lock()
	st, ok := b.sessions[sessionID]
	if ok {
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, sub := range st.subs {
		delete(st.subs, id)
		sub.close()
	}
	st.ring = nil
}
