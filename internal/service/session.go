package service

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-patch/internal/patch"
)

// Session is one viewer's state. Filter application waits for the map
// style to report ready through a one-shot channel; a newer application
// supersedes one still waiting, so stale filters are never committed.
type Session struct {
	ID string

	mu       sync.Mutex
	state    patch.UIState
	active   patch.Predicate
	ready    chan struct{}
	once     *sync.Once
	gen      uint64
	lastSeen time.Time
}

func newSession(id string, universe []string) *Session {
	return &Session{
		ID:       id,
		state:    patch.NewUIState(universe),
		ready:    make(chan struct{}),
		once:     new(sync.Once),
		lastSeen: time.Now(),
	}
}

// State returns a copy of the UI state.
func (s *Session) State() patch.UIState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Filter.Tiers = append([]string(nil), s.state.Filter.Tiers...)
	return st
}

// Active returns the committed predicate.
func (s *Session) Active() patch.Predicate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Ready reports whether the style has loaded.
func (s *Session) Ready() bool {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	select {
	case <-ready:
		return true
	default:
		return false
	}
}

// MarkStyleReady releases everything waiting in WhenStyleReady. Repeated
// calls are no-ops until ResetStyle arms a new one-shot.
func (s *Session) MarkStyleReady() {
	s.mu.Lock()
	once, ready := s.once, s.ready
	s.mu.Unlock()
	once.Do(func() { close(ready) })
}

// ResetStyle arms a fresh one-shot, e.g. after a basemap switch.
func (s *Session) ResetStyle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ready:
		s.ready = make(chan struct{})
		s.once = new(sync.Once)
	default:
		// Still waiting on the previous load; keep its waiters.
	}
}

// WhenStyleReady blocks until the style is ready or ctx ends.
func (s *Session) WhenStyleReady(ctx context.Context) error {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyFilter records state as the filter to apply, waits for the style,
// then commits pred. It returns false without committing when a later
// ApplyFilter started in the meantime.
func (s *Session) ApplyFilter(ctx context.Context, state patch.FilterState, pred patch.Predicate) (bool, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	if err := s.WhenStyleReady(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false, nil
	}
	s.state.Filter = state
	s.active = pred
	return true, nil
}

// Select updates the highlighted patch and returns the one to un-highlight.
func (s *Session) Select(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Select(id)
}

// SetViewport records the last viewport the map reported as idle.
func (s *Session) SetViewport(b orb.Bound, zoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SetViewport(b, zoom)
}

// SetZoom records the zoom without touching the viewport.
func (s *Session) SetZoom(zoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Zoom = zoom
}

// SetBasemap records the basemap choice.
func (s *Session) SetBasemap(b patch.Basemap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Basemap = b
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// SessionService keeps viewer sessions by client id.
type SessionService struct {
	universe []string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionService creates a session store for a tier universe.
func NewSessionService(universe []string) *SessionService {
	return &SessionService{
		universe: universe,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating it on first use.
func (s *SessionService) Get(id string) *Session {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = newSession(id, s.universe)
		s.sessions[id] = sess
	}
	s.mu.Unlock()
	sess.touch(time.Now())
	return sess
}

// Len returns the number of live sessions.
func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than maxIdle and returns how many.
func (s *SessionService) Sweep(maxIdle time.Duration) int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.idleSince(now) > maxIdle {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps idle sessions every interval until ctx ends.
func (s *SessionService) Run(ctx context.Context, interval, maxIdle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(maxIdle)
		}
	}
}
