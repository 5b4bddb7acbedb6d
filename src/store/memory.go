// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

package store

import (
	"context"
	"fmt"
	"sync"
)

// MemDB is a memory storage that implements the store.Interface.
// Because it's a transient storage you will loose all the data once the
// process exits. It's not completely useless though. You can use it for
// a quick demo or in tests.
type MemDB struct {
	pastes map[string]Paste
	users  map[string]User
	sync.RWMutex
}

// Fail if the struct does not match the Interface.
var _ = Interface(&MemDB{})

// NewMemDB initialises and returns an instance of MemDB.
func NewMemDB() *MemDB {
	var s MemDB
	s.pastes = make(map[string]Paste)
	s.users = make(map[string]User)

	return &s
}

// Totals returns total count of pastes and users.
func (m *MemDB) Totals(_ context.Context) (pastes, users int64, err error) {
	m.RLock()
	defer m.RUnlock()

	return int64(len(m.pastes)), int64(len(m.users)), nil
}

// Create stores a new paste.
func (m *MemDB) Create(_ context.Context, p Paste) (Paste, error) {
	if p.ID == "" || p.UserID == "" {
		return Paste{}, fmt.Errorf("MemDB.Create: %w", ErrNoID)
	}
	m.Lock()
	defer m.Unlock()

	if _, ok := m.pastes[p.ID]; ok {
		return Paste{}, fmt.Errorf("MemDB.Create: paste [%s] already exists", p.ID)
	}
	m.pastes[p.ID] = p

	return p, nil
}

// Get returns a paste by ID if it belongs to the owner.
func (m *MemDB) Get(_ context.Context, id, owner string) (Paste, error) {
	m.RLock()
	defer m.RUnlock()

	p, ok := m.pastes[id]
	if !ok || !owns(p, owner) {
		return Paste{}, fmt.Errorf("MemDB.Get: %w", ErrNotFound)
	}

	return p, nil
}

// Update replaces an existing paste. The paste is matched by both ID and
// UserID.
func (m *MemDB) Update(_ context.Context, p Paste) (Paste, error) {
	m.Lock()
	defer m.Unlock()

	old, ok := m.pastes[p.ID]
	if !ok || !owns(old, p.UserID) {
		return Paste{}, fmt.Errorf("MemDB.Update: %w", ErrNotFound)
	}
	m.pastes[p.ID] = p

	return p, nil
}

// Delete deletes a paste by ID if it belongs to the owner.
func (m *MemDB) Delete(_ context.Context, id, owner string) error {
	m.Lock()
	defer m.Unlock()

	p, ok := m.pastes[id]
	if !ok || !owns(p, owner) {
		return fmt.Errorf("MemDB.Delete: %w", ErrNotFound)
	}
	delete(m.pastes, id)

	return nil
}

// Find return a sorted list of pastes for a given request.
func (m *MemDB) Find(_ context.Context, req FindRequest) ([]Paste, error) {
	pastes := []Paste{}

	m.RLock()
	for _, p := range m.pastes {
		if owns(p, req.UserID) {
			pastes = append(pastes, p)
		}
	}
	m.RUnlock()

	sortPastes(req, pastes)

	return limitPastes(req, pastes), nil
}

// Count returns the number of pastes that belong to req.UserID.
func (m *MemDB) Count(_ context.Context, req FindRequest) (int64, error) {
	m.RLock()
	defer m.RUnlock()

	var cnt int64
	for _, p := range m.pastes {
		if owns(p, req.UserID) {
			cnt++
		}
	}
	return cnt, nil
}

// SaveUser creates a new or updates an existing user.
func (m *MemDB) SaveUser(_ context.Context, usr User) (id string, err error) {
	if usr.ID == "" {
		return "", fmt.Errorf("MemDB.SaveUser: %w", ErrNoUserID)
	}
	m.Lock()
	defer m.Unlock()

	m.users[usr.ID] = usr

	return usr.ID, nil
}

// CreateUser stores a new user, it fails with ErrUserExists if the ID is
// already taken.
func (m *MemDB) CreateUser(_ context.Context, usr User) error {
	if usr.ID == "" {
		return fmt.Errorf("MemDB.CreateUser: %w", ErrNoUserID)
	}
	m.Lock()
	defer m.Unlock()

	if _, ok := m.users[usr.ID]; ok {
		return fmt.Errorf("MemDB.CreateUser: %w", ErrUserExists)
	}
	m.users[usr.ID] = usr

	return nil
}

// User returns a user by ID.
func (m *MemDB) User(_ context.Context, id string) (User, error) {
	m.RLock()
	defer m.RUnlock()

	usr, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("MemDB.User: %w", ErrUserNotFound)
	}
	return usr, nil
}

// Close is a no-op for the memory storage.
func (m *MemDB) Close() error {
	return nil
}
