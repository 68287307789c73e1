/*
notify.go - Per-session publish/subscribe for live statistics

PURPOSE:
  After every accepted write the engine publishes a Notification for the
  session. Subscribers (WebSocket connections, dashboards) wake up and re-pull
  the authoritative Snapshot from Stats. The notification payload is a hint,
  never data.

COALESCING:
  Every subscription has a one-slot mailbox. Publishing never blocks:
  if the slot is full, the stale notification is replaced by the newer one.
  A burst of 500 scans may therefore wake a slow consumer only a few times,
  but the last notification it sees is always the most recent.

SEE ALSO:
  - stats.go: Snapshot, what consumers re-pull
  - api/live.go: WebSocket consumer
*/
package attendance

import (
	"sync"
	"sync/atomic"
	"time"
)

// Notification tells subscribers that a session's aggregates changed.
type Notification struct {
	SessionID SessionID
	Seq       uint64
	Reason    string
	At        time.Time
}

const (
	ReasonRecorded       = "recorded"
	ReasonSessionStarted = "session_started"
	ReasonSessionEnded   = "session_ended"
	ReasonRefresh        = "refresh"
)

// Publisher is the live-update collaborator.
type Publisher interface {
	Publish(sessionID SessionID, reason string)
}

// Broadcaster is the in-process Publisher.
type Broadcaster struct {
	mu    sync.RWMutex
	subs  map[SessionID]map[*Subscription]struct{}
	seq   atomic.Uint64
	Clock Clock
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:  make(map[SessionID]map[*Subscription]struct{}),
		Clock: systemClock,
	}
}

// Subscription receives notifications for one session until closed.
type Subscription struct {
	SessionID SessionID

	b      *Broadcaster
	ch     chan Notification
	mu     sync.Mutex
	closed bool
}

// Subscribe registers interest in a session. Callers must Close the subscription.
func (b *Broadcaster) Subscribe(sessionID SessionID) *Subscription {
	sub := &Subscription{
		SessionID: sessionID,
		b:         b,
		ch:        make(chan Notification, 1),
	}
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*Subscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish notifies every subscriber of the session. Never blocks.
func (b *Broadcaster) Publish(sessionID SessionID, reason string) {
	n := Notification{
		SessionID: sessionID,
		Seq:       b.seq.Add(1),
		Reason:    reason,
		At:        b.Clock(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[sessionID] {
		sub.offer(n)
	}
}

// SubscriberCount returns the number of open subscriptions for a session.
func (b *Broadcaster) SubscriberCount(sessionID SessionID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// C returns the notification channel. It is closed when the subscription is.
func (s *Subscription) C() <-chan Notification { return s.ch }

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	if m, ok := s.b.subs[s.SessionID]; ok {
		delete(m, s)
		if len(m) == 0 {
			delete(s.b.subs, s.SessionID)
		}
	}
	s.b.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) offer(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- n:
	default:
		// Replace the unread notification with the newer one.
		select {
		case <-s.ch:
		default:
		}
		s.ch <- n
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(SessionID, string) {}
