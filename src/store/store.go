// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

// Package store defines a common interface that any concrete storage
// implementation must implement. Along with some supporting types.
// It provides several implementations of store.Interface - MemDB, DiskStore,
// PostgresDB, SQLiteDB and RedisStore.
//
// Every paste operation is scoped by the owner: a paste that exists but
// belongs to somebody else is reported exactly like a paste that doesn't
// exist at all.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrNotFound and other common errors.
var (
	ErrNotFound     = errors.New("paste not found")
	ErrUserNotFound = errors.New("user not found")
	ErrNoID         = errors.New("paste must have an id and an owner")
	ErrNoUserID     = errors.New("user must have an id")
	ErrUserExists   = errors.New("user already exists")
)

// Interface defines methods that an implementation of a concrete storage
// must provide.
type Interface interface {
	Totals(ctx context.Context) (pastes, users int64, err error)   // return total counts for pastes and users
	Create(ctx context.Context, paste Paste) (Paste, error)        // store new paste, ID is assigned by the caller
	Get(ctx context.Context, id, owner string) (Paste, error)      // get paste by id and owner
	Update(ctx context.Context, paste Paste) (Paste, error)        // replace paste matched by ID and UserID
	Delete(ctx context.Context, id, owner string) error            // delete paste by id and owner
	Find(ctx context.Context, req FindRequest) ([]Paste, error)    // find pastes of a user
	Count(ctx context.Context, req FindRequest) (int64, error)     // count pastes of a user
	CreateUser(ctx context.Context, usr User) error                // store a new user, ErrUserExists if the id is taken
	SaveUser(ctx context.Context, usr User) (id string, err error) // creates or updates a user
	User(ctx context.Context, id string) (User, error)             // get user by id
	Close() error
}

// User represents a single user.
type User struct {
	ID           string `json:"id" gorm:"primaryKey" db:"id"`
	Name         string `json:"name" gorm:"index" db:"name"`
	Email        string `json:"email" gorm:"index" db:"email"`
	Picture      string `json:"picture,omitempty" db:"picture"`
	IP           string `json:"ip,omitempty" db:"ip"`
	Admin        bool   `json:"admin" db:"admin"`
	PasswordHash string `json:"-" db:"password_hash"`
}

// Paste represents a single paste row. ContentType and Language are kept as
// plain strings here, interpretation belongs to the paste package.
type Paste struct {
	ID          string    `json:"id" gorm:"primaryKey" db:"id"`
	UserID      string    `json:"user_id" gorm:"index;not null" db:"user_id"`
	Title       string    `json:"title" db:"title"`
	Content     string    `json:"content" db:"content"`
	Tag         string    `json:"tag" gorm:"index" db:"tag"`
	ContentType string    `json:"content_type" db:"content_type"`
	Language    string    `json:"language,omitempty" db:"language"`
	CreatedAt   time.Time `json:"created_at" gorm:"index;autoCreateTime:false" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime:false" db:"updated_at"`
}

// FindRequest is an input to the Find and Count methods.
// Sort is one of "-created" (default), "+created", "-updated", "+updated",
// "+title" or "-title". Limit of 0 means no limit.
type FindRequest struct {
	UserID string
	Sort   string
	Limit  int
	Skip   int
}

// orderBy translates FindRequest.Sort into a column name and a direction.
func orderBy(sort string) (column string, desc bool) {
	desc = strings.HasPrefix(sort, "-")
	switch strings.TrimLeft(sort, "+-") {
	case "updated":
		return "updated_at", desc
	case "title":
		return "title", desc
	case "created":
		return "created_at", desc
	default:
		return "created_at", true
	}
}

// sortPastes sorts pastes in place according to req.Sort. Ties are broken by
// ID to keep the order stable between calls.
func sortPastes(req FindRequest, pastes []Paste) {
	column, desc := orderBy(req.Sort)
	sort.SliceStable(pastes, func(i, j int) bool {
		a, b := pastes[i], pastes[j]
		if desc {
			a, b = b, a
		}
		switch column {
		case "updated_at":
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
		case "title":
			if a.Title != b.Title {
				return a.Title < b.Title
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	})
}

// limitPastes applies req.Skip and req.Limit to an already sorted slice.
func limitPastes(req FindRequest, pastes []Paste) []Paste {
	skip := req.Skip
	if skip < 0 {
		skip = 0
	}
	if skip > len(pastes) {
		skip = len(pastes)
	}
	end := len(pastes)
	if req.Limit > 0 && skip+req.Limit < end {
		end = skip + req.Limit
	}

	return pastes[skip:end]
}

// owns reports whether the paste belongs to the user.
func owns(p Paste, owner string) bool {
	return owner != "" && p.UserID == owner
}
