package call

import "sync"

// Registry scopes one Session to one console lifecycle. Acquire rebinds the
// observer on the live session without disturbing in-flight call state;
// Reset tears the session down at the end of the lifecycle.
type Registry struct {
	newSession func() *Session

	mu      sync.Mutex
	session *Session
}

func NewRegistry(newSession func() *Session) *Registry {
	return &Registry{newSession: newSession}
}

func (r *Registry) Acquire(obs Observer) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		r.session = r.newSession()
	}
	r.session.SetObserver(obs)
	return r.session
}

func (r *Registry) Reset() {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()
	if s != nil {
		s.Cleanup()
		s.SetObserver(nil)
	}
}
