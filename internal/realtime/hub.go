package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
)

// Session is one connected client's subscription context. Outbound carries
// pre-marshaled frames (command responses and change events) so the
// transport has a single writer.
type Session struct {
	ID       uuid.UUID
	Outbound chan []byte

	done      chan struct{}
	closeOnce sync.Once
	lists     map[string]bool
	log       *logger.Logger
}

// Done is closed when the session is evicted or disconnects.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send queues a frame without blocking. It reports false when the session is
// closed or its buffer is full; the caller decides whether that evicts.
func (s *Session) Send(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.Outbound <- payload:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Hub maps list identifiers to the sessions currently subscribed to them and
// delivers change notifications. A session that cannot keep up is removed
// from every subscription set rather than stalling the fan-out.
type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*Session]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:           log.With("component", "Hub"),
		subscriptions: make(map[string]map[*Session]bool),
	}
}

func (h *Hub) NewSession() *Session {
	id := uuid.New()
	return &Session{
		ID:       id,
		Outbound: make(chan []byte, 32),
		done:     make(chan struct{}),
		lists:    make(map[string]bool),
		log:      h.log.With("session_id", id),
	}
}

func (h *Hub) Subscribe(sess *Session, listID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if listID == "" {
		return
	}
	sess.lists[listID] = true

	sessions, exists := h.subscriptions[listID]
	if !exists {
		sessions = make(map[*Session]bool)
		h.subscriptions[listID] = sessions
	}
	sessions[sess] = true

	h.log.Debug("Session subscribed", "session_id", sess.ID, "list_id", listID)
}

// Unsubscribe reports whether the session was subscribed to listID.
func (h *Hub) Unsubscribe(sess *Session, listID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	was := sess.lists[listID]
	delete(sess.lists, listID)
	if sessions, ok := h.subscriptions[listID]; ok {
		delete(sessions, sess)
		if len(sessions) == 0 {
			delete(h.subscriptions, listID)
		}
	}
	h.log.Debug("Session unsubscribed", "session_id", sess.ID, "list_id", listID)
	return was
}

// RemoveSession drops the session from every subscription set. Called on
// disconnect and on delivery failure.
func (h *Hub) RemoveSession(sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sess)
}

func (h *Hub) removeLocked(sess *Session) {
	for listID := range sess.lists {
		if sessions, ok := h.subscriptions[listID]; ok {
			delete(sessions, sess)
			if len(sessions) == 0 {
				delete(h.subscriptions, listID)
			}
		}
	}
	sess.lists = make(map[string]bool)
}

// CloseSession signals the session's transport loop to exit and removes all
// its subscriptions. Safe to call more than once.
func (h *Hub) CloseSession(sess *Session) {
	sess.closeOnce.Do(func() {
		close(sess.done)
	})
	h.RemoveSession(sess)
}

// Broadcast delivers ev to every current subscriber of its list. Callers
// serialize per-list invocations (the store broadcasts inside the list's
// critical section), so per-session delivery order equals commit order. A
// session whose buffer is full is evicted instead of blocking the rest.
func (h *Hub) Broadcast(ev Event) {
	if ev.ListID == "" {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("Failed to marshal event", "error", err, "list_id", ev.ListID)
		return
	}

	var stalled []*Session
	h.mu.RLock()
	for sess := range h.subscriptions[ev.ListID] {
		if !sess.Send(payload) {
			stalled = append(stalled, sess)
		}
	}
	h.mu.RUnlock()

	for _, sess := range stalled {
		h.log.Warn("Evicting slow session", "session_id", sess.ID, "list_id", ev.ListID)
		h.CloseSession(sess)
	}
}

// SubscriberCount reports how many sessions are subscribed to listID.
func (h *Hub) SubscriberCount(listID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[listID])
}
