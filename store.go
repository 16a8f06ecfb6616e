package guard

import "sync"

// Ticket identifies one authentication check opened with Store.Begin
type Ticket uint64

// Store holds the auth state of a single session. The provider is the only
// writer; guards and pages read through Snapshot.
type Store struct {
	mu        sync.RWMutex
	state     State
	latest    Ticket
	listeners []func(State)
}

var _ Source = (*Store)(nil)

// NewStore returns a store in the loading state
func NewStore() *Store {
	return &Store{state: Loading()}
}

// NewSettledStore returns a store already holding state, used when a
// session is restored from a backend. A loading state becomes
// unauthenticated since the check that produced it is gone.
func NewSettledStore(state State) *Store {
	s := &Store{state: state.Normalize()}
	if s.state.IsLoading() {
		s.state = Unauthenticated()
	}
	return s
}

// Snapshot returns the current state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Begin opens a new check and moves the state back to loading. Any check
// opened earlier can no longer settle the store.
func (s *Store) Begin() Ticket {
	s.mu.Lock()
	s.latest++
	t := s.latest
	next := s.set(Loading())
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, next)
	return t
}

// Resolve settles the check as authenticated. A nil user settles it as
// unauthenticated. It reports false when t was superseded.
func (s *Store) Resolve(t Ticket, user *User) bool {
	if user == nil {
		return s.Reject(t)
	}
	return s.settle(t, Authenticated(user))
}

// Reject settles the check as unauthenticated
func (s *Store) Reject(t Ticket) bool {
	return s.settle(t, Unauthenticated())
}

// Pending reports whether t is the newest check and still unsettled
func (s *Store) Pending(t Ticket) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return t == s.latest && s.state.IsLoading()
}

// Subscribe registers fn to run after every transition. Listeners run on
// the writer's goroutine, outside the lock.
func (s *Store) Subscribe(fn func(State)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) settle(t Ticket, state State) bool {
	s.mu.Lock()
	if t != s.latest {
		s.mu.Unlock()
		return false
	}
	next := s.set(state)
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, next)
	return true
}

// set must be called with mu held
func (s *Store) set(state State) State {
	state = state.Normalize()
	state.Version = s.state.Version + 1
	s.state = state
	return state
}

func notify(listeners []func(State), state State) {
	for _, fn := range listeners {
		fn(state)
	}
}
