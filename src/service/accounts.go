// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

package service

import (
	"context"
	"crypto/sha1" // #nosec G505 same hash the auth library uses for user IDs
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/go-pkgz/auth/token"
	"github.com/iliafrenkel/snippetvault/src/store"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 6

// LocalProvider is the name of the email/password auth provider.
const LocalProvider = "local"

// Account errors.
var (
	ErrInvalidEmail     = fmt.Errorf("%w: invalid email address", ErrValidation)
	ErrWeakPassword     = fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	ErrPasswordMismatch = fmt.Errorf("%w: passwords don't match", ErrValidation)
	ErrMissingName      = fmt.Errorf("%w: name is required", ErrValidation)
	ErrEmailInUse       = errors.New("email already in use")
	ErrWrongCredentials = errors.New("invalid email or password")
)

// Registration is an input to the Register method, normally comes from the
// sign-up form.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
	Name     string `json:"name"`
}

// LocalUserID returns the ID of a local account with the given email.
func LocalUserID(email string) string {
	return LocalProvider + "_" + token.HashID(sha1.New(), normalizeEmail(email))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new local account.
func (s *Service) Register(ctx context.Context, r Registration) (store.User, error) {
	email := normalizeEmail(r.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return store.User{}, s.fail("Service.Register", ErrInvalidEmail)
	}
	if len(r.Password) < MinPasswordLength {
		return store.User{}, s.fail("Service.Register", ErrWeakPassword)
	}
	if r.Password != r.Confirm {
		return store.User{}, s.fail("Service.Register", ErrPasswordMismatch)
	}

	id := LocalUserID(email)
	_, err := s.store.User(ctx, id)
	if err == nil {
		return store.User{}, s.fail("Service.Register", ErrEmailInUse)
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return store.User{}, s.storeErr("Service.Register", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("Service.Register: %w", err)
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = email
	}
	usr := store.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	err = s.store.CreateUser(ctx, usr)
	if errors.Is(err, store.ErrUserExists) {
		return store.User{}, s.fail("Service.Register", ErrEmailInUse)
	}
	if err != nil {
		return store.User{}, s.storeErr("Service.Register", err)
	}

	return usr, nil
}

// CheckCredentials reports whether the password matches the local account
// with the given email. It has the signature of the auth library credentials
// checker, unknown emails are not an error.
func (s *Service) CheckCredentials(email, password string) (bool, error) {
	usr, err := s.store.User(context.Background(), LocalUserID(email))
	if errors.Is(err, store.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.storeErr("Service.CheckCredentials", err)
	}
	if usr.PasswordHash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(usr.PasswordHash), []byte(password)) == nil, nil
}

// SaveUser saves the user in the store and returns it. Fields that the auth
// provider doesn't know about (password hash, display name chosen in the
// profile) are kept from the stored copy.
func (s *Service) SaveUser(ctx context.Context, usr store.User) (store.User, error) {
	if usr.ID == "" {
		return store.User{}, s.fail("Service.SaveUser", ErrAccess)
	}
	old, err := s.store.User(ctx, usr.ID)
	switch {
	case err == nil:
		usr.PasswordHash = old.PasswordHash
		if old.Name != "" {
			usr.Name = old.Name
		}
		if usr.Email == "" {
			usr.Email = old.Email
		}
	case !errors.Is(err, store.ErrUserNotFound):
		return store.User{}, s.storeErr("Service.SaveUser", err)
	}

	if _, err := s.store.SaveUser(ctx, usr); err != nil {
		return store.User{}, s.storeErr("Service.SaveUser", err)
	}
	return usr, nil
}

// User returns a user by ID.
func (s *Service) User(ctx context.Context, id string) (store.User, error) {
	if id == "" {
		return store.User{}, s.fail("Service.User", ErrAccess)
	}
	usr, err := s.store.User(ctx, id)
	if err != nil {
		return store.User{}, s.storeErr("Service.User", err)
	}
	return usr, nil
}

// UpdateProfile changes the display name of a user.
func (s *Service) UpdateProfile(ctx context.Context, id, name string) (store.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.User{}, s.fail("Service.UpdateProfile", ErrMissingName)
	}
	usr, err := s.User(ctx, id)
	if err != nil {
		return store.User{}, fmt.Errorf("Service.UpdateProfile: %w", err)
	}
	usr.Name = name
	if _, err := s.store.SaveUser(ctx, usr); err != nil {
		return store.User{}, s.storeErr("Service.UpdateProfile", err)
	}
	return usr, nil
}
