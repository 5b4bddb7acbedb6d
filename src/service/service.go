// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

// Package service provides methods to work with pastes and users.
// Methods of this package do not log or print out anything, they return
// errors instead. It is up to the user of the Service to handle the errors
// and provide useful information to the end user.
//
// Every paste operation is scoped by the owner. A paste of another user is
// reported as ErrNotFound, an empty owner as ErrAccess.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iliafrenkel/snippetvault/src/metrics"
	"github.com/iliafrenkel/snippetvault/src/paste"
	"github.com/iliafrenkel/snippetvault/src/store"
)

// Service type provides method to work with pastes and users.
type Service struct {
	store  store.Interface
	editor *paste.Editor
	now    func() time.Time
}

// ErrValidation and other common errors.
var (
	ErrValidation   = paste.ErrValidation
	ErrAccess       = errors.New("not authenticated")
	ErrNotFound     = errors.New("paste not found")
	ErrUserNotFound = errors.New("user not found")
	ErrBackend      = errors.New("store operation failed")
)

// Option changes the defaults of a new Service.
type Option func(*Service)

// WithClock sets the function used to get the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEditor sets the editor used to validate drafts.
func WithEditor(e *paste.Editor) Option {
	return func(s *Service) { s.editor = e }
}

// New returns new Service with provided store as a back-end storage.
func New(st store.Interface, opts ...Option) *Service {
	s := &Service{
		store:  st,
		editor: paste.NewEditor(nil),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewWithMemDB returns new Service with memory as a store.
func NewWithMemDB(opts ...Option) *Service {
	return New(store.NewMemDB(), opts...)
}

// Patch is an input to the Update method. Nil fields are left unchanged.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Tag         *string `json:"tag,omitempty"`
	ContentType *string `json:"content_type,omitempty"`
	Content     *string `json:"content,omitempty"`
	Language    *string `json:"language,omitempty"`
}

// PatchFromDraft returns a patch that overwrites every field with the values
// of the draft. Edit forms send the whole paste back.
func PatchFromDraft(d paste.Draft) Patch {
	return Patch{
		Title:       &d.Title,
		Tag:         &d.Tag,
		ContentType: &d.ContentType,
		Content:     &d.Content,
		Language:    &d.Language,
	}
}

// List returns all the pastes of the owner, newest first.
func (s *Service) List(ctx context.Context, owner string) ([]store.Paste, error) {
	if owner == "" {
		return nil, s.fail("Service.List", ErrAccess)
	}
	pastes, err := s.store.Find(ctx, store.FindRequest{UserID: owner, Sort: "-created"})
	if err != nil {
		return nil, s.storeErr("Service.List", err)
	}
	return pastes, nil
}

// Create validates the draft and stores it as a new paste of the owner.
// Invalid drafts never reach the store.
func (s *Service) Create(ctx context.Context, d paste.Draft, owner string) (store.Paste, error) {
	if owner == "" {
		return store.Paste{}, s.fail("Service.Create", ErrAccess)
	}
	entry, err := s.editor.Normalize(d)
	if err != nil {
		return store.Paste{}, s.fail("Service.Create", err)
	}

	now := s.timestamp()
	ct, content, lang := entry.Fields()
	p := store.Paste{
		ID:          uuid.NewString(),
		UserID:      owner,
		Title:       entry.Title,
		Content:     content,
		Tag:         entry.Tag,
		ContentType: ct,
		Language:    lang,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p, err = s.store.Create(ctx, p)
	if err != nil {
		return store.Paste{}, s.storeErr("Service.Create", err)
	}
	metrics.Pastes.WithLabelValues("create").Inc()

	return p, nil
}

// Get returns a single paste of the owner.
func (s *Service) Get(ctx context.Context, id, owner string) (store.Paste, error) {
	if owner == "" {
		return store.Paste{}, s.fail("Service.Get", ErrAccess)
	}
	p, err := s.store.Get(ctx, id, owner)
	if err != nil {
		return store.Paste{}, s.storeErr("Service.Get", err)
	}
	return p, nil
}

// Update applies the patch to the paste of the owner and refreshes its
// UpdatedAt. The patched paste is validated as a whole. When the content or
// the content type of a code paste changes and the language isn't part of
// the patch, the language is detected again. Concurrent updates are last
// write wins.
func (s *Service) Update(ctx context.Context, id, owner string, patch Patch) (store.Paste, error) {
	if owner == "" {
		return store.Paste{}, s.fail("Service.Update", ErrAccess)
	}
	cur, err := s.store.Get(ctx, id, owner)
	if err != nil {
		return store.Paste{}, s.storeErr("Service.Update", err)
	}

	d := paste.Draft{
		Title:       cur.Title,
		Tag:         cur.Tag,
		ContentType: cur.ContentType,
		Content:     cur.Content,
		Language:    cur.Language,
	}
	redetect := false
	if patch.Title != nil {
		d.Title = *patch.Title
	}
	if patch.Tag != nil {
		d.Tag = *patch.Tag
	}
	if patch.ContentType != nil && *patch.ContentType != d.ContentType {
		d.ContentType = *patch.ContentType
		redetect = true
	}
	if patch.Content != nil && *patch.Content != d.Content {
		d.Content = *patch.Content
		redetect = true
	}
	if patch.Language != nil {
		d.Language = *patch.Language
	} else if redetect {
		d.Language = ""
	}

	entry, err := s.editor.Normalize(d)
	if err != nil {
		return store.Paste{}, s.fail("Service.Update", err)
	}
	ct, content, lang := entry.Fields()
	if ct == cur.ContentType && patch.Language == nil && !redetect {
		// keep whatever was stored, even if the highlighter doesn't know it
		lang = cur.Language
	}

	upd := cur
	upd.Title = entry.Title
	upd.Tag = entry.Tag
	upd.ContentType = ct
	upd.Content = content
	upd.Language = lang
	upd.UpdatedAt = s.timestamp()

	upd, err = s.store.Update(ctx, upd)
	if err != nil {
		return store.Paste{}, s.storeErr("Service.Update", err)
	}
	metrics.Pastes.WithLabelValues("update").Inc()

	return upd, nil
}

// Delete removes a paste of the owner.
func (s *Service) Delete(ctx context.Context, id, owner string) error {
	if owner == "" {
		return s.fail("Service.Delete", ErrAccess)
	}
	if err := s.store.Delete(ctx, id, owner); err != nil {
		return s.storeErr("Service.Delete", err)
	}
	metrics.Pastes.WithLabelValues("delete").Inc()
	return nil
}

// Totals returns total count of pastes and users.
func (s *Service) Totals(ctx context.Context) (pastes, users int64, err error) {
	pastes, users, err = s.store.Totals(ctx)
	if err != nil {
		return 0, 0, s.storeErr("Service.Totals", err)
	}
	return pastes, users, nil
}

// timestamp is the current time with a precision every store keeps.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// storeErr translates store errors into service errors.
func (s *Service) storeErr(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.fail(op, ErrNotFound)
	case errors.Is(err, store.ErrUserNotFound):
		return s.fail(op, ErrUserNotFound)
	}
	metrics.Failures.WithLabelValues(Class(ErrBackend)).Inc()
	return fmt.Errorf("%s: %w: (%v)", op, ErrBackend, err)
}

func (s *Service) fail(op string, err error) error {
	metrics.Failures.WithLabelValues(Class(err)).Inc()
	return fmt.Errorf("%s: %w", op, err)
}

// Class returns a short name of the error class, used in metrics and API
// responses.
func Class(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAccess):
		return "access"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUserNotFound):
		return "not_found"
	case errors.Is(err, ErrEmailInUse):
		return "conflict"
	case errors.Is(err, ErrWrongCredentials):
		return "access"
	default:
		return "backend"
	}
}
