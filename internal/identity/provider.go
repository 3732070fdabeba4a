package identity

import "sync"

// Provider exposes the currently signed-in identity and notifies on changes.
type Provider interface {
	// Current returns the signed-in identity ID, or "" for a guest.
	Current() string

	// Subscribe registers fn to be called with the new identity ID whenever it changes.
	// The returned function removes the subscription.
	Subscribe(fn func(id string)) (unsubscribe func())
}

// Session is an in-process Provider driven by explicit sign-in and sign-out calls.
type Session struct {
	// delivery serializes notifications so subscribers see changes in order.
	delivery sync.Mutex

	mu      sync.Mutex
	current string
	nextID  int
	subs    map[int]func(string)
	order   []int
}

// NewSession creates a session starting with the given identity ("" for guest).
func NewSession(initial string) *Session {
	return &Session{
		current: initial,
		subs:    make(map[int]func(string)),
	}
}

// Current returns the signed-in identity ID.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers fn for identity changes.
func (s *Session) Subscribe(fn func(id string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.order = append(s.order, id)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
		for i, o := range s.order {
			if o == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

// SignIn switches the session to the given identity. Signing in with "" is a sign-out.
func (s *Session) SignIn(id string) {
	s.set(id)
}

// SignOut switches the session back to guest.
func (s *Session) SignOut() {
	s.set("")
}

// set updates the identity and notifies subscribers outside the state lock, in subscription
// order. Subscribers must not call SignIn or SignOut from the callback.
func (s *Session) set(id string) {
	s.delivery.Lock()
	defer s.delivery.Unlock()

	s.mu.Lock()
	if s.current == id {
		s.mu.Unlock()
		return
	}
	s.current = id
	fns := make([]func(string), 0, len(s.order))
	for _, o := range s.order {
		fns = append(fns, s.subs[o])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}
