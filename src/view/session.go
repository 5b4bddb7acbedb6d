// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

package view

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/iliafrenkel/snippetvault/src/metrics"
	"github.com/iliafrenkel/snippetvault/src/paste"
	"github.com/iliafrenkel/snippetvault/src/service"
	"github.com/iliafrenkel/snippetvault/src/store"
)

// Backend is what a Session needs from the service.
type Backend interface {
	List(ctx context.Context, owner string) ([]store.Paste, error)
	Create(ctx context.Context, d paste.Draft, owner string) (store.Paste, error)
	Update(ctx context.Context, id, owner string, patch service.Patch) (store.Paste, error)
	Delete(ctx context.Context, id, owner string) error
}

// Session holds the pastes of one owner, newest first. It is loaded from the
// backend once and then kept in sync by the mutating methods. A failed call
// leaves the collection as it was.
type Session struct {
	mu      sync.RWMutex
	owner   string
	backend Backend
	pastes  []store.Paste
	loaded  bool
}

// NewSession returns an empty session for the owner. Nothing is loaded until
// the first call that needs the pastes.
func NewSession(owner string, b Backend) *Session {
	return &Session{owner: owner, backend: b}
}

// Owner returns the ID of the session owner.
func (s *Session) Owner() string {
	return s.owner
}

// Load loads the pastes from the backend unless they are already loaded.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Reload drops the cached pastes and loads them again.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	return s.load(ctx)
}

func (s *Session) load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	pastes, err := s.backend.List(ctx, s.owner)
	if err != nil {
		return fmt.Errorf("Session.Load: %w", err)
	}
	s.pastes = pastes
	s.loaded = true
	return nil
}

// Pastes returns a copy of the whole collection.
func (s *Session) Pastes(ctx context.Context) ([]store.Paste, error) {
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]store.Paste, len(s.pastes))
	copy(res, s.pastes)
	return res, nil
}

// Browse filters the collection by the query and returns the requested page.
func (s *Session) Browse(ctx context.Context, query string, size, page int) (Page, error) {
	if err := s.Load(ctx); err != nil {
		return Page{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Paginate(Filter(s.pastes, query), size, page), nil
}

// Create stores a new paste and inserts it into the collection.
func (s *Session) Create(ctx context.Context, d paste.Draft) (store.Paste, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return store.Paste{}, err
	}
	p, err := s.backend.Create(ctx, d, s.owner)
	if err != nil {
		return store.Paste{}, fmt.Errorf("Session.Create: %w", err)
	}
	s.insert(p)
	return p, nil
}

// Update patches a paste and replaces it in the collection.
func (s *Session) Update(ctx context.Context, id string, patch service.Patch) (store.Paste, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return store.Paste{}, err
	}
	p, err := s.backend.Update(ctx, id, s.owner, patch)
	if err != nil {
		return store.Paste{}, fmt.Errorf("Session.Update: %w", err)
	}
	if i := s.index(id); i >= 0 {
		s.pastes[i] = p
	} else {
		s.insert(p)
	}
	return p, nil
}

// Delete removes a paste from the store and from the collection.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, id, s.owner); err != nil {
		return fmt.Errorf("Session.Delete: %w", err)
	}
	if i := s.index(id); i >= 0 {
		s.pastes = append(s.pastes[:i], s.pastes[i+1:]...)
	}
	return nil
}

// insert puts p before the first paste that isn't newer than p.
func (s *Session) insert(p store.Paste) {
	i := 0
	for i < len(s.pastes) && s.pastes[i].CreatedAt.After(p.CreatedAt) {
		i++
	}
	s.pastes = append(s.pastes, store.Paste{})
	copy(s.pastes[i+1:], s.pastes[i:])
	s.pastes[i] = p
}

func (s *Session) index(id string) int {
	for i, p := range s.pastes {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Registry keeps the sessions of the most recently active owners.
type Registry struct {
	backend  Backend
	sessions *lru.Cache[string, *Session]
}

// NewRegistry returns a registry that holds up to size sessions.
func NewRegistry(b Backend, size int) (*Registry, error) {
	cache, err := lru.New[string, *Session](size)
	if err != nil {
		return nil, fmt.Errorf("NewRegistry: %w", err)
	}
	return &Registry{backend: b, sessions: cache}, nil
}

// Session returns the session of the owner, creating it if needed.
func (r *Registry) Session(owner string) (*Session, error) {
	if owner == "" {
		return nil, fmt.Errorf("Registry.Session: %w", service.ErrAccess)
	}
	if s, ok := r.sessions.Get(owner); ok {
		return s, nil
	}
	s := NewSession(owner, r.backend)
	if prev, ok, _ := r.sessions.PeekOrAdd(owner, s); ok {
		return prev, nil
	}
	metrics.Sessions.Set(float64(r.sessions.Len()))
	return s, nil
}

// Forget drops the session of the owner.
func (r *Registry) Forget(owner string) {
	r.sessions.Remove(owner)
	metrics.Sessions.Set(float64(r.sessions.Len()))
}

// Len returns the number of sessions in the registry.
func (r *Registry) Len() int {
	return r.sessions.Len()
}
