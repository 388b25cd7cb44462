package detail

import (
	"context"
	"sync"
	"time"

	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
)

const defaultIdleTTL = 30 * time.Minute

type sessionKey struct {
	ownerID  id.OwnerID
	entityID string
}

type session struct {
	controller *Controller
	lastUsed   time.Time
}

// Sessions keeps one controller per owner and parent so refresh keys and
// memoized queries survive across requests. Idle controllers are dropped.
type Sessions struct {
	registry Registry
	parents  ParentLookup
	opts     []Option
	idleTTL  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*session
}

type SessionsOption func(*Sessions)

func WithIdleTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

// WithControllerOptions applies opts to every controller created.
func WithControllerOptions(opts ...Option) SessionsOption {
	return func(s *Sessions) {
		s.opts = append(s.opts, opts...)
	}
}

func NewSessions(registry Registry, parents ParentLookup, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		registry: registry,
		parents:  parents,
		idleTTL:  defaultIdleTTL,
		now:      time.Now,
		sessions: make(map[sessionKey]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns the controller for the parent with its parent reloaded. A
// controller is only created once the parent resolves, and one whose parent
// has gone is dropped.
func (s *Sessions) Open(ctx context.Context, ownerID id.OwnerID, entityID string) (*Controller, error) {
	if c, ok := s.Lookup(ownerID, entityID); ok {
		if err := c.Load(ctx); err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				s.Forget(ownerID, entityID)
			}
			return nil, err
		}
		return c, nil
	}

	c := NewController(s.registry, s.parents, ownerID, entityID, s.opts...)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey{ownerID: ownerID, entityID: entityID}
	if sess, ok := s.sessions[key]; ok {
		sess.lastUsed = s.now()
		return sess.controller, nil
	}
	s.sessions[key] = &session{controller: c, lastUsed: s.now()}
	return c, nil
}

// Lookup returns the live controller for the parent without creating one.
func (s *Sessions) Lookup(ownerID id.OwnerID, entityID string) (*Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)

	sess, ok := s.sessions[sessionKey{ownerID: ownerID, entityID: entityID}]
	if !ok {
		return nil, false
	}
	sess.lastUsed = now
	return sess.controller, true
}

// RegistryChanged advances the refresh key of a live controller after a
// write that did not go through it.
func (s *Sessions) RegistryChanged(ctx context.Context, ownerID id.OwnerID, registry, parentID string) {
	if registry != s.registry.Name() {
		return
	}
	s.mu.Lock()
	sess, ok := s.sessions[sessionKey{ownerID: ownerID, entityID: parentID}]
	s.mu.Unlock()
	if ok {
		sess.controller.Refresh(ctx)
	}
}

// Forget drops the controller, e.g. after the parent was deleted.
func (s *Sessions) Forget(ownerID id.OwnerID, entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey{ownerID: ownerID, entityID: entityID})
}

// AccidentDeleted drops the controller of a deleted accident.
func (s *Sessions) AccidentDeleted(_ context.Context, ownerID id.OwnerID, accidentID id.AccidentID) {
	s.Forget(ownerID, accidentID.String())
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Sessions) pruneLocked(now time.Time) {
	for key, sess := range s.sessions {
		if now.Sub(sess.lastUsed) > s.idleTTL {
			delete(s.sessions, key)
		}
	}
}
