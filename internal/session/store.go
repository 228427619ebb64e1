package session

import (
	"sync"
	"time"
)

// Store keeps sessions in memory, keyed by user id. Access to one user's
// session is exclusive between Acquire and Release; different users do not
// contend beyond the short map lookup.
type Store struct {
	mu      sync.Mutex
	entries map[int64]*entry
	ttl     time.Duration
	now     func() time.Time
}

type entry struct {
	mu      sync.Mutex
	sess    Session
	touched time.Time
	refs    int
}

// NewStore returns a store whose non-idle sessions are reset to Idle when
// not acquired for longer than ttl. A zero ttl disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{entries: make(map[int64]*entry), ttl: ttl, now: time.Now}
}

// Handle is exclusive access to one user's session.
type Handle struct {
	store    *Store
	userID   int64
	e        *entry
	expired  bool
	released bool
}

// Acquire blocks until no other holder has the user's session.
func (s *Store) Acquire(userID int64) *Handle {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{touched: s.now()}
		s.entries[userID] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	h := &Handle{store: s, userID: userID, e: e}
	now := s.now()
	if s.ttl > 0 && e.sess.State != Idle && now.Sub(e.touched) > s.ttl {
		e.sess = Session{}
		h.expired = true
	}
	// any activity keeps the dialogue alive, not only state changes
	e.touched = now
	return h
}

// Release gives the session back. Idle sessions nobody waits for are dropped.
func (h *Handle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.e.mu.Unlock()

	s := h.store
	s.mu.Lock()
	h.e.refs--
	if h.e.refs == 0 && h.e.sess.State == Idle {
		delete(s.entries, h.userID)
	}
	s.mu.Unlock()
}

// Session returns the current snapshot.
func (h *Handle) Session() Session { return h.e.sess }

// Expired reports whether Acquire found a stale session and reset it.
func (h *Handle) Expired() bool { return h.expired }

// Set moves the session to state with the given payload.
func (h *Handle) Set(state State, p Payload) {
	h.e.sess = Session{State: state, Payload: p}
	h.e.touched = h.store.now()
}
