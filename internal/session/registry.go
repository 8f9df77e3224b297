package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-cart/internal/cart"
)

// ErrNotFound indicates the session is unknown or has expired.
var ErrNotFound = errors.New("session not found")

// Session is a shopper's cart session.
type Session struct {
	ID        string
	Store     *cart.Store
	CreatedAt time.Time
	ExpiresAt time.Time
}

type entry struct {
	session  Session
	lastSeen time.Time
}

// Registry holds one cart per shopper session. Sessions expire after TTL without activity.
type Registry struct {
	TTL time.Duration
	Now func() time.Time
	// Listen, when set, builds the change listener attached to each new session's cart.
	Listen   func(sessionID string) cart.Listener
	OnCreate func(Session)
	OnEvict  func(Session)

	mu       sync.Mutex
	sessions map[string]*entry
}

func (r *Registry) ttl() time.Duration {
	if r == nil || r.TTL <= 0 {
		return 24 * time.Hour
	}
	return r.TTL
}

func (r *Registry) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Create starts a new session holding an empty cart.
func (r *Registry) Create() Session {
	now := r.now()
	id := uuid.NewString()
	var opts []cart.Option
	if r.Listen != nil {
		opts = append(opts, cart.WithListener(r.Listen(id)))
	}
	s := Session{
		ID:        id,
		Store:     cart.NewStore(opts...),
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl()),
	}
	r.mu.Lock()
	if r.sessions == nil {
		r.sessions = make(map[string]*entry)
	}
	r.sessions[s.ID] = &entry{session: s, lastSeen: now}
	r.mu.Unlock()
	if r.OnCreate != nil {
		r.OnCreate(s)
	}
	return s
}

// Get returns the live session and extends its lifetime.
func (r *Registry) Get(id string) (Session, error) {
	now := r.now()
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return Session{}, ErrNotFound
	}
	if !now.Before(e.session.ExpiresAt) {
		delete(r.sessions, id)
		r.mu.Unlock()
		r.evicted(e.session)
		return Session{}, ErrNotFound
	}
	e.lastSeen = now
	e.session.ExpiresAt = now.Add(r.ttl())
	s := e.session
	r.mu.Unlock()
	return s, nil
}

// Delete ends a session.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if ok {
		r.evicted(e.session)
	}
	return ok
}

// Len reports the number of tracked sessions, expired ones included until swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops expired sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()
	var expired []Session
	r.mu.Lock()
	for id, e := range r.sessions {
		if !now.Before(e.session.ExpiresAt) {
			expired = append(expired, e.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range expired {
		r.evicted(s)
	}
	return len(expired)
}

// Run sweeps expired sessions every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration, onSweep func(removed, remaining int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := r.Sweep()
			if onSweep != nil {
				onSweep(removed, r.Len())
			}
		}
	}
}

func (r *Registry) evicted(s Session) {
	if r.OnEvict != nil {
		r.OnEvict(s)
	}
}
