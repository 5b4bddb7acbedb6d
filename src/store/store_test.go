package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"
)

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

func randSeq(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))] // #nosec
	}
	return string(b)
}

func randomUser() User {
	return User{
		ID:    "test_" + randSeq(12),
		Name:  randSeq(8),
		Email: randSeq(6) + "@example.com",
	}
}

func randomPaste(usr User) Paste {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return Paste{
		ID:          fmt.Sprintf("%s-%d", randSeq(10), rand.Int63()), // #nosec
		UserID:      usr.ID,
		Title:       randSeq(12),
		Content:     randSeq(64),
		Tag:         "Code",
		ContentType: "code",
		Language:    "go",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func samePaste(a, b Paste) bool {
	return a.ID == b.ID && a.UserID == b.UserID && a.Title == b.Title &&
		a.Content == b.Content && a.Tag == b.Tag && a.ContentType == b.ContentType &&
		a.Language == b.Language && a.CreatedAt.Equal(b.CreatedAt) && a.UpdatedAt.Equal(b.UpdatedAt)
}

// testStore runs the same set of checks against any store.Interface.
func testStore(t *testing.T, s Interface) {
	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		usr := randomUser()
		paste := randomPaste(usr)
		if _, err := s.Create(ctx, paste); err != nil {
			t.Fatalf("failed to create paste: %v", err)
		}
		got, err := s.Get(ctx, paste.ID, usr.ID)
		if err != nil {
			t.Fatalf("failed to get paste: %v", err)
		}
		if !samePaste(paste, got) {
			t.Errorf("expected paste to be [%+v], got [%+v]", paste, got)
		}
	})

	t.Run("create without id", func(t *testing.T) {
		paste := randomPaste(randomUser())
		paste.ID = ""
		if _, err := s.Create(context.Background(), paste); !errors.Is(err, ErrNoID) {
			t.Errorf("expected error to be [%v], got [%v]", ErrNoID, err)
		}
	})

	t.Run("get someone else's paste", func(t *testing.T) {
		ctx := context.Background()
		paste := randomPaste(randomUser())
		if _, err := s.Create(ctx, paste); err != nil {
			t.Fatalf("failed to create paste: %v", err)
		}
		if _, err := s.Get(ctx, paste.ID, randomUser().ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected error to be [%v], got [%v]", ErrNotFound, err)
		}
		if _, err := s.Get(ctx, "does-not-exist", paste.UserID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected error to be [%v], got [%v]", ErrNotFound, err)
		}
	})

	t.Run("update", func(t *testing.T) {
		ctx := context.Background()
		usr := randomUser()
		paste := randomPaste(usr)
		if _, err := s.Create(ctx, paste); err != nil {
			t.Fatalf("failed to create paste: %v", err)
		}
		paste.Title = "Updated title"
		paste.UpdatedAt = paste.UpdatedAt.Add(time.Minute)
		p, err := s.Update(ctx, paste)
		if err != nil {
			t.Fatalf("failed to update paste: %v", err)
		}
		if !samePaste(paste, p) {
			t.Errorf("expected paste to be [%+v], got [%+v]", paste, p)
		}
		got, _ := s.Get(ctx, paste.ID, usr.ID)
		if !samePaste(paste, got) {
			t.Errorf("expected stored paste to be [%+v], got [%+v]", paste, got)
		}
	})

	t.Run("update with wrong owner", func(t *testing.T) {
		ctx := context.Background()
		usr := randomUser()
		paste := randomPaste(usr)
		if _, err := s.Create(ctx, paste); err != nil {
			t.Fatalf("failed to create paste: %v", err)
		}
		stolen := paste
		stolen.UserID = randomUser().ID
		stolen.Title = "Mine now"
		if _, err := s.Update(ctx, stolen); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected error to be [%v], got [%v]", ErrNotFound, err)
		}
		got, _ := s.Get(ctx, paste.ID, usr.ID)
		if !samePaste(paste, got) {
			t.Errorf("expected paste to stay [%+v], got [%+v]", paste, got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		usr := randomUser()
		paste := randomPaste(usr)
		if _, err := s.Create(ctx, paste); err != nil {
			t.Fatalf("failed to create paste: %v", err)
		}
		if err := s.Delete(ctx, paste.ID, randomUser().ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected delete by another user to fail with [%v], got [%v]", ErrNotFound, err)
		}
		if err := s.Delete(ctx, paste.ID, usr.ID); err != nil {
			t.Fatalf("failed to delete paste: %v", err)
		}
		if _, err := s.Get(ctx, paste.ID, usr.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected paste to be deleted, got [%v]", err)
		}
		if err := s.Delete(ctx, paste.ID, usr.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected second delete to fail with [%v], got [%v]", ErrNotFound, err)
		}
	})

	t.Run("find", func(t *testing.T) {
		ctx := context.Background()
		usr1, usr2 := randomUser(), randomUser()
		base := time.Now().UTC().Truncate(time.Microsecond)
		for i := 0; i < 10; i++ {
			p1 := randomPaste(usr1)
			p1.Title = fmt.Sprintf("title %02d", (i*7)%10)
			p1.CreatedAt = base.Add(-time.Duration(i) * time.Hour)
			p1.UpdatedAt = base.Add(time.Duration(i) * time.Hour)
			if _, err := s.Create(ctx, p1); err != nil {
				t.Fatalf("failed to create paste: %v", err)
			}
			p2 := randomPaste(usr2)
			if _, err := s.Create(ctx, p2); err != nil {
				t.Fatalf("failed to create paste: %v", err)
			}
		}

		tests := []struct {
			name  string
			req   FindRequest
			exp   int
			order func(a, b Paste) bool
		}{
			{"all user pastes", FindRequest{UserID: usr1.ID}, 10, func(a, b Paste) bool { return a.CreatedAt.After(b.CreatedAt) }},
			{"limit", FindRequest{UserID: usr1.ID, Limit: 5}, 5, nil},
			{"skip", FindRequest{UserID: usr1.ID, Limit: 5, Skip: 6}, 4, nil},
			{"skip over limit", FindRequest{UserID: usr1.ID, Limit: 5, Skip: 12}, 0, nil},
			{"+created", FindRequest{UserID: usr1.ID, Sort: "+created"}, 10, func(a, b Paste) bool { return a.CreatedAt.Before(b.CreatedAt) }},
			{"-updated", FindRequest{UserID: usr1.ID, Sort: "-updated"}, 10, func(a, b Paste) bool { return a.UpdatedAt.After(b.UpdatedAt) }},
			{"+title", FindRequest{UserID: usr1.ID, Sort: "+title"}, 10, func(a, b Paste) bool { return a.Title < b.Title }},
			{"unknown user", FindRequest{UserID: randomUser().ID}, 0, nil},
			{"no user", FindRequest{}, 0, nil},
		}
		for _, tc := range tests {
			pastes, err := s.Find(ctx, tc.req)
			if err != nil {
				t.Fatalf("%s: failed to find pastes: %v", tc.name, err)
			}
			if len(pastes) != tc.exp {
				t.Errorf("%s: expected to find %d pastes, got %d", tc.name, tc.exp, len(pastes))
			}
			for _, p := range pastes {
				if p.UserID != tc.req.UserID {
					t.Errorf("%s: found paste of another user: %+v", tc.name, p)
				}
			}
			if tc.order != nil && !sort.SliceIsSorted(pastes, func(i, j int) bool { return tc.order(pastes[i], pastes[j]) }) {
				t.Errorf("%s: pastes are not sorted", tc.name)
			}
		}

		cnt, err := s.Count(ctx, FindRequest{UserID: usr1.ID})
		if err != nil {
			t.Fatalf("failed to count pastes: %v", err)
		}
		if cnt != 10 {
			t.Errorf("expected count to be 10, got %d", cnt)
		}
	})

	t.Run("users", func(t *testing.T) {
		ctx := context.Background()
		usr := randomUser()
		usr.PasswordHash = "hash"
		id, err := s.SaveUser(ctx, usr)
		if err != nil {
			t.Fatalf("failed to save user: %v", err)
		}
		got, err := s.User(ctx, id)
		if err != nil {
			t.Fatalf("user not found: %v", err)
		}
		if got != usr {
			t.Errorf("expected user to be saved as [%+v], got [%+v]", usr, got)
		}
		usr.Name = "Renamed"
		if _, err := s.SaveUser(ctx, usr); err != nil {
			t.Fatalf("failed to update user: %v", err)
		}
		got, _ = s.User(ctx, id)
		if got.Name != "Renamed" {
			t.Errorf("expected user name to be updated, got [%s]", got.Name)
		}
		if _, err := s.User(ctx, randomUser().ID); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("expected error to be [%v], got [%v]", ErrUserNotFound, err)
		}
		if _, err := s.SaveUser(ctx, User{}); !errors.Is(err, ErrNoUserID) {
			t.Errorf("expected error to be [%v], got [%v]", ErrNoUserID, err)
		}
	})

	t.Run("create users", func(t *testing.T) {
		ctx := context.Background()
		usr := randomUser()
		usr.PasswordHash = "first"
		if err := s.CreateUser(ctx, usr); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
		second := usr
		second.PasswordHash = "second"
		if err := s.CreateUser(ctx, second); !errors.Is(err, ErrUserExists) {
			t.Errorf("expected error to be [%v], got [%v]", ErrUserExists, err)
		}
		got, err := s.User(ctx, usr.ID)
		if err != nil {
			t.Fatalf("user not found: %v", err)
		}
		if got.PasswordHash != "first" {
			t.Errorf("expected the first password hash to stay, got [%s]", got.PasswordHash)
		}
		if err := s.CreateUser(ctx, User{}); !errors.Is(err, ErrNoUserID) {
			t.Errorf("expected error to be [%v], got [%v]", ErrNoUserID, err)
		}
	})

	t.Run("create users concurrently", func(t *testing.T) {
		ctx := context.Background()
		usr := randomUser()
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				u := usr
				u.PasswordHash = fmt.Sprintf("hash-%d", i)
				err := s.CreateUser(ctx, u)
				if err != nil && !errors.Is(err, ErrUserExists) {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		if created != 1 {
			t.Errorf("expected exactly one user to be created, got %d", created)
		}
	})
}

func TestMemDB(t *testing.T) {
	t.Parallel()
	testStore(t, NewMemDB())
}

func TestDiskStore(t *testing.T) {
	t.Parallel()
	s, err := NewDiskStorage(DiskConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create disk store: %v", err)
	}
	testStore(t, s)
}

func TestDiskStoreMissingDir(t *testing.T) {
	t.Parallel()
	if _, err := NewDiskStorage(DiskConfig{DataDir: filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Error("expected disk store creation to fail for a missing directory")
	}
}

func TestSQLiteDB(t *testing.T) {
	t.Parallel()
	s, err := NewSQLiteDB(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	defer s.Close()
	testStore(t, s)
}

// TestPostgresDB requires a running database, for example:
// SV_TEST_POSTGRES="host=localhost user=test password=test dbname=test port=5432 sslmode=disable"
func TestPostgresDB(t *testing.T) {
	conn := os.Getenv("SV_TEST_POSTGRES")
	if conn == "" {
		t.Skip("SV_TEST_POSTGRES is not set")
	}
	s, err := NewPostgresDB(conn, true)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	defer s.Close()
	testStore(t, s)
}

// TestRedisStore requires a running redis, for example:
// SV_TEST_REDIS="redis://localhost:6379/15"
func TestRedisStore(t *testing.T) {
	url := os.Getenv("SV_TEST_REDIS")
	if url == "" {
		t.Skip("SV_TEST_REDIS is not set")
	}
	s, err := NewRedisStore(context.Background(), url, "sv_test_"+randSeq(6))
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestLimitPastes(t *testing.T) {
	t.Parallel()
	pastes := make([]Paste, 7)
	tests := []struct {
		req FindRequest
		exp int
	}{
		{FindRequest{}, 7},
		{FindRequest{Limit: 3}, 3},
		{FindRequest{Limit: 3, Skip: 6}, 1},
		{FindRequest{Skip: 10}, 0},
		{FindRequest{Skip: -1, Limit: 2}, 2},
	}
	for _, tc := range tests {
		if got := len(limitPastes(tc.req, pastes)); got != tc.exp {
			t.Errorf("limitPastes(%+v): expected %d pastes, got %d", tc.req, tc.exp, got)
		}
	}
}
