package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/homevisit-booking/internal/booking"
	"github.com/wolfman30/homevisit-booking/internal/payments"
)

const defaultIdleTimeout = 2 * time.Hour

// Session holds one browser's flows. The handoff record lives outside the
// session so it survives a restart when backed by Redis.
type Session struct {
	ID string

	mu         sync.Mutex
	booking    *booking.Flow
	payment    *payments.Flow
	paymentRef string
	navigateTo string
	lastSeen   time.Time
}

// ToPayment implements booking.Navigator by remembering where the next
// response should redirect.
func (s *Session) ToPayment(reference string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigateTo = paymentURL(reference)
}

// takeNavigation returns and clears a pending navigation target.
func (s *Session) takeNavigation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.navigateTo
	s.navigateTo = ""
	return target
}

// close abandons the session's flows so late upstream responses are dropped.
func (s *Session) close() {
	s.mu.Lock()
	bookingFlow, paymentFlow := s.booking, s.payment
	s.mu.Unlock()
	if bookingFlow != nil {
		bookingFlow.Close()
	}
	if paymentFlow != nil {
		paymentFlow.Close()
	}
}

// Registry keeps sessions in memory and evicts idle ones.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
	now      func() time.Time
	onEvict  func(*Session)
}

func NewRegistry(idle time.Duration) *Registry {
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	return &Registry{
		sessions: make(map[string]*Session),
		idle:     idle,
		now:      time.Now,
	}
}

// OnEvict sets the function called, outside the registry lock, for every
// session dropped for idleness.
func (r *Registry) OnEvict(fn func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = fn
}

// Get returns the live session for id and marks it as seen.
func (r *Registry) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	s, ok, expired := r.lookupLocked(id)
	onEvict := r.onEvict
	r.mu.Unlock()
	if expired != nil {
		r.evicted(onEvict, expired)
	}
	return s, ok
}

// Adopt returns the live session under id, registering a new one when there
// is none, e.g. for a cookie that outlived a restart. A new id is generated
// when id is empty. Concurrent calls with the same id share one session.
func (r *Registry) Adopt(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	r.mu.Lock()
	s, ok, expired := r.lookupLocked(id)
	if !ok {
		s = &Session{ID: id, lastSeen: r.now()}
		r.sessions[id] = s
	}
	onEvict := r.onEvict
	r.mu.Unlock()
	if expired != nil {
		r.evicted(onEvict, expired)
	}
	return s
}

// lookupLocked finds id and refreshes it. An idle entry is removed and
// returned as expired.
func (r *Registry) lookupLocked(id string) (s *Session, ok bool, expired *Session) {
	s, ok = r.sessions[id]
	if !ok {
		return nil, false, nil
	}
	now := r.now()
	if now.Sub(s.lastSeen) > r.idle {
		delete(r.sessions, id)
		return nil, false, s
	}
	s.lastSeen = now
	return s, true, nil
}

// Len reports the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict drops sessions idle for longer than the idle timeout.
func (r *Registry) Evict() int {
	r.mu.Lock()
	cutoff := r.now().Add(-r.idle)
	var dropped []*Session
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			dropped = append(dropped, s)
		}
	}
	onEvict := r.onEvict
	r.mu.Unlock()

	for _, s := range dropped {
		r.evicted(onEvict, s)
	}
	return len(dropped)
}

func (r *Registry) evicted(onEvict func(*Session), s *Session) {
	s.close()
	if onEvict != nil {
		onEvict(s)
	}
}

// Run evicts idle sessions every interval until stop is closed.
func (r *Registry) Run(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.Evict()
		}
	}
}
