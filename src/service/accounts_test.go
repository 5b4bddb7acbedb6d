package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/iliafrenkel/snippetvault/src/store"
)

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewWithMemDB()

	tests := []struct {
		name string
		reg  Registration
		err  error
	}{
		{"bad email", Registration{Email: "nope", Password: "secret", Confirm: "secret"}, ErrInvalidEmail},
		{"email with name", Registration{Email: "Bob <bob@example.com>", Password: "secret", Confirm: "secret"}, ErrInvalidEmail},
		{"short password", Registration{Email: "bob@example.com", Password: "12345", Confirm: "12345"}, ErrWeakPassword},
		{"mismatch", Registration{Email: "bob@example.com", Password: "secret", Confirm: "secreT"}, ErrPasswordMismatch},
		{"ok", Registration{Email: " Bob@Example.com ", Password: "secret", Confirm: "secret", Name: "Bob"}, nil},
		{"same email", Registration{Email: "bob@example.com", Password: "another", Confirm: "another"}, ErrEmailInUse},
	}

	for _, tc := range tests {
		usr, err := s.Register(ctx, tc.reg)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Errorf("%s: expected [%v], got [%v]", tc.name, tc.err, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if usr.ID != LocalUserID("bob@example.com") {
			t.Errorf("%s: unexpected user id [%s]", tc.name, usr.ID)
		}
		if usr.Email != "bob@example.com" || usr.Name != "Bob" {
			t.Errorf("%s: unexpected user %+v", tc.name, usr)
		}
		if usr.PasswordHash == "" || usr.PasswordHash == "secret" {
			t.Errorf("%s: expected password to be hashed, got [%s]", tc.name, usr.PasswordHash)
		}
	}
}

func TestRegisterSameEmailConcurrently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewWithMemDB()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		winner string
		wins   int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pwd := fmt.Sprintf("password-%d", i)
			_, err := s.Register(ctx, Registration{Email: "race@example.com", Password: pwd, Confirm: pwd})
			if err != nil {
				if !errors.Is(err, ErrEmailInUse) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			mu.Lock()
			winner = pwd
			wins++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one registration to succeed, got %d", wins)
	}
	for i := 0; i < 10; i++ {
		pwd := fmt.Sprintf("password-%d", i)
		ok, err := s.CheckCredentials("race@example.com", pwd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok != (pwd == winner) {
			t.Errorf("%s: expected %v, got %v", pwd, pwd == winner, ok)
		}
	}
}

func TestCheckCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewWithMemDB()

	if _, err := s.Register(ctx, Registration{Email: "alice@example.com", Password: "wonderland", Confirm: "wonderland"}); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	tests := []struct {
		email, password string
		ok              bool
	}{
		{"alice@example.com", "wonderland", true},
		{"ALICE@example.com", "wonderland", true},
		{"alice@example.com", "Wonderland", false},
		{"mad.hatter@example.com", "wonderland", false},
	}
	for _, tc := range tests {
		ok, err := s.CheckCredentials(tc.email, tc.password)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.email, err)
		}
		if ok != tc.ok {
			t.Errorf("%s/%s: expected %v, got %v", tc.email, tc.password, tc.ok, ok)
		}
	}
}

func TestLocalUserID(t *testing.T) {
	t.Parallel()

	id := LocalUserID("someone@example.com")
	if !strings.HasPrefix(id, LocalProvider+"_") {
		t.Errorf("expected id to start with the provider name, got [%s]", id)
	}
	if id != LocalUserID("  SomeOne@Example.com") {
		t.Error("expected id to ignore case and spaces")
	}
	if id == LocalUserID("someone.else@example.com") {
		t.Error("expected different emails to have different ids")
	}
}

func TestSaveUserKeepsProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewWithMemDB()

	usr, err := s.Register(ctx, Registration{Email: "carol@example.com", Password: "123456", Confirm: "123456", Name: "Carol"})
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	saved, err := s.SaveUser(ctx, store.User{ID: usr.ID, Name: "carol@example.com", IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	if saved.Name != "Carol" || saved.Email != "carol@example.com" || saved.PasswordHash != usr.PasswordHash {
		t.Errorf("expected profile to be kept, got %+v", saved)
	}
	if saved.IP != "127.0.0.1" {
		t.Errorf("expected ip to be updated, got [%s]", saved.IP)
	}

	if _, err := s.SaveUser(ctx, store.User{}); !errors.Is(err, ErrAccess) {
		t.Errorf("expected [%v], got [%v]", ErrAccess, err)
	}

	fresh, err := s.SaveUser(ctx, store.User{ID: "github_123", Name: "Dave"})
	if err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	if fresh.Name != "Dave" {
		t.Errorf("expected name [Dave], got [%s]", fresh.Name)
	}
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewWithMemDB()

	if _, err := s.SaveUser(ctx, store.User{ID: "github_42", Name: "Old"}); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	usr, err := s.UpdateProfile(ctx, "github_42", "  New Name ")
	if err != nil {
		t.Fatalf("failed to update profile: %v", err)
	}
	if usr.Name != "New Name" {
		t.Errorf("expected name [New Name], got [%s]", usr.Name)
	}
	got, err := s.User(ctx, "github_42")
	if err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	if got.Name != "New Name" {
		t.Errorf("expected stored name [New Name], got [%s]", got.Name)
	}

	if _, err := s.UpdateProfile(ctx, "github_42", " "); !errors.Is(err, ErrValidation) {
		t.Errorf("expected [%v], got [%v]", ErrValidation, err)
	}
	if _, err := s.UpdateProfile(ctx, "nobody", "Name"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected [%v], got [%v]", ErrUserNotFound, err)
	}
}
