package view

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/iliafrenkel/snippetvault/src/paste"
	"github.com/iliafrenkel/snippetvault/src/service"
	"github.com/iliafrenkel/snippetvault/src/store"
)

var letters = []rune("abcdefghijklmnopqrstuvwxyz")

func randSeq(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

func randomPastes(n int) []store.Paste {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res := make([]store.Paste, n)
	for i := range res {
		res[i] = store.Paste{
			ID:        fmt.Sprintf("%03d", i),
			UserID:    "owner",
			Title:     randSeq(8),
			Content:   randSeq(20),
			Tag:       "Note",
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return res
}

func ids(pastes []store.Paste) []string {
	res := make([]string, len(pastes))
	for i, p := range pastes {
		res[i] = p.ID
	}
	return res
}

func sameIDs(a, b []store.Paste) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func TestFilterEmptyQuery(t *testing.T) {
	pastes := randomPastes(7)
	got := Filter(pastes, "")
	if !sameIDs(got, pastes) {
		t.Errorf("expected empty query to return everything in order, got %v", ids(got))
	}
}

func TestFilterKeepsWhitespace(t *testing.T) {
	pastes := []store.Paste{
		{ID: "1", Title: "Hello World", Content: "x", Tag: "Note"},
		{ID: "2", Title: "a b", Content: "y", Tag: "Note"},
		{ID: "3", Title: "nospace", Content: "z", Tag: "Other Tag"},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"world ", []string{}},
		{" world", []string{"1"}},
		{" ", []string{"1", "2", "3"}},
		{"a b", []string{"2"}},
		{"   ", []string{}},
	}
	for _, tc := range tests {
		got := ids(Filter(pastes, tc.query))
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Errorf("Filter(%q): expected %v, got %v", tc.query, tc.want, got)
		}
	}
}

func TestFilter(t *testing.T) {
	pastes := []store.Paste{
		{ID: "1", Title: "Hello World", Content: "x", Tag: "Note"},
		{ID: "2", Title: "Goodbye", Content: "y", Tag: "Note"},
		{ID: "3", Title: "Other", Content: "say HELLO", Tag: "Note"},
		{ID: "4", Title: "Tagged", Content: "z", Tag: "Reference"},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"hello", []string{"1", "3"}},
		{"HELLO", []string{"1", "3"}},
		{"goodbye", []string{"2"}},
		{"refer", []string{"4"}},
		{"note", []string{"1", "2", "3"}},
		{"nothing like this", []string{}},
	}
	for _, tc := range tests {
		got := ids(Filter(pastes, tc.query))
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Errorf("Filter(%q): expected %v, got %v", tc.query, tc.want, got)
		}
	}

	two := []store.Paste{pastes[0], pastes[1]}
	if got := ids(Filter(two, "hello")); len(got) != 1 || got[0] != "1" {
		t.Errorf("expected only [1], got %v", got)
	}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		count, size, page int
		wantItems         int
		wantTotalPages    int
	}{
		{0, 10, 1, 0, 0},
		{5, 10, 1, 5, 1},
		{10, 10, 1, 10, 1},
		{11, 10, 2, 1, 2},
		{25, 10, 3, 5, 3},
		{25, 10, 4, 0, 3},
		{25, 10, 0, 0, 3},
		{25, 10, -1, 0, 3},
		{25, 0, 1, 10, 3},
		{25, -5, 3, 5, 3},
		{7, 3, 3, 1, 3},
	}
	for _, tc := range tests {
		pg := Paginate(randomPastes(tc.count), tc.size, tc.page)
		if len(pg.Items) != tc.wantItems {
			t.Errorf("%+v: expected %d items, got %d", tc, tc.wantItems, len(pg.Items))
		}
		if pg.TotalPages != tc.wantTotalPages {
			t.Errorf("%+v: expected %d pages, got %d", tc, tc.wantTotalPages, pg.TotalPages)
		}
		if pg.Items == nil {
			t.Errorf("%+v: expected an empty slice, got nil", tc)
		}
	}
}

func TestPaginateConcatenation(t *testing.T) {
	for _, size := range []int{1, 3, 4, 10, 50} {
		pastes := Filter(randomPastes(23), "")
		first := Paginate(pastes, size, 1)
		var all []store.Paste
		for n := 1; n <= first.TotalPages; n++ {
			all = append(all, Paginate(pastes, size, n).Items...)
		}
		if !sameIDs(all, pastes) {
			t.Errorf("size %d: pages don't add up to the list: %v", size, ids(all))
		}
		again := Paginate(pastes, size, 1)
		if !sameIDs(again.Items, first.Items) {
			t.Errorf("size %d: expected the same page twice", size)
		}
	}
}

func TestPageNavigation(t *testing.T) {
	pg := Paginate(randomPastes(25), 10, 2)
	if !pg.HasPrev() || !pg.HasNext() || pg.Prev() != 1 || pg.Next() != 3 {
		t.Errorf("unexpected navigation for %+v", pg)
	}
	if got := pg.Numbers(); fmt.Sprint(got) != "[1 2 3]" {
		t.Errorf("expected [1 2 3], got %v", got)
	}
	last := Paginate(randomPastes(25), 10, 3)
	if last.HasNext() {
		t.Error("expected no next page on the last page")
	}
	if Paginate(randomPastes(25), 10, 1).HasPrev() {
		t.Error("expected no previous page on the first page")
	}
}

// fakeBackend records calls and can be told to fail.
type fakeBackend struct {
	mu    sync.Mutex
	svc   *service.Service
	lists int
	fail  error
}

func (f *fakeBackend) List(ctx context.Context, owner string) ([]store.Paste, error) {
	f.mu.Lock()
	f.lists++
	f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	return f.svc.List(ctx, owner)
}

func (f *fakeBackend) Create(ctx context.Context, d paste.Draft, owner string) (store.Paste, error) {
	if f.fail != nil {
		return store.Paste{}, f.fail
	}
	return f.svc.Create(ctx, d, owner)
}

func (f *fakeBackend) Update(ctx context.Context, id, owner string, patch service.Patch) (store.Paste, error) {
	if f.fail != nil {
		return store.Paste{}, f.fail
	}
	return f.svc.Update(ctx, id, owner, patch)
}

func (f *fakeBackend) Delete(ctx context.Context, id, owner string) error {
	if f.fail != nil {
		return f.fail
	}
	return f.svc.Delete(ctx, id, owner)
}

func newBackend() *fakeBackend {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	return &fakeBackend{svc: service.NewWithMemDB(service.WithClock(clock))}
}

func note(title string) paste.Draft {
	return paste.Draft{Title: title, Tag: "Note", ContentType: "note", Content: randSeq(10)}
}

func TestSessionSplice(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	s := NewSession("owner", b)

	var created []store.Paste
	for i := 0; i < 4; i++ {
		p, err := s.Create(ctx, note(fmt.Sprintf("paste %d", i)))
		if err != nil {
			t.Fatalf("failed to create a paste: %v", err)
		}
		created = append(created, p)
	}

	got, err := s.Pastes(ctx)
	if err != nil {
		t.Fatalf("failed to get pastes: %v", err)
	}
	fresh, err := b.svc.List(ctx, "owner")
	if err != nil {
		t.Fatalf("failed to list pastes: %v", err)
	}
	if !sameIDs(got, fresh) {
		t.Errorf("expected session to match the store:\nsession %v\nstore   %v", ids(got), ids(fresh))
	}
	if got[0].ID != created[3].ID {
		t.Errorf("expected the newest paste first, got %v", ids(got))
	}

	title := "renamed"
	if _, err := s.Update(ctx, created[1].ID, service.Patch{Title: &title}); err != nil {
		t.Fatalf("failed to update a paste: %v", err)
	}
	if err := s.Delete(ctx, created[2].ID); err != nil {
		t.Fatalf("failed to delete a paste: %v", err)
	}

	got, _ = s.Pastes(ctx)
	fresh, _ = b.svc.List(ctx, "owner")
	if !sameIDs(got, fresh) {
		t.Errorf("expected session to match the store:\nsession %v\nstore   %v", ids(got), ids(fresh))
	}
	for _, p := range got {
		if p.ID == created[1].ID && p.Title != "renamed" {
			t.Errorf("expected the updated title, got %q", p.Title)
		}
	}
	if b.lists != 1 {
		t.Errorf("expected the list to be loaded once, got %d", b.lists)
	}
}

func TestSessionInsertOrder(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSession("owner", newBackend())
	s.loaded = true
	for _, h := range []int{5, 1, 3, 4, 2} {
		s.insert(store.Paste{ID: fmt.Sprint(h), CreatedAt: base.Add(time.Duration(h) * time.Hour)})
	}
	if got := fmt.Sprint(ids(s.pastes)); got != "[5 4 3 2 1]" {
		t.Errorf("expected newest first, got %s", got)
	}
}

func TestSessionFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	s := NewSession("owner", b)
	p, err := s.Create(ctx, note("keep me"))
	if err != nil {
		t.Fatalf("failed to create a paste: %v", err)
	}

	boom := errors.New("boom")
	b.fail = boom
	if _, err := s.Create(ctx, note("nope")); !errors.Is(err, boom) {
		t.Errorf("expected [%v], got [%v]", boom, err)
	}
	title := "nope"
	if _, err := s.Update(ctx, p.ID, service.Patch{Title: &title}); !errors.Is(err, boom) {
		t.Errorf("expected [%v], got [%v]", boom, err)
	}
	if err := s.Delete(ctx, p.ID); !errors.Is(err, boom) {
		t.Errorf("expected [%v], got [%v]", boom, err)
	}
	b.fail = nil

	got, err := s.Pastes(ctx)
	if err != nil {
		t.Fatalf("failed to get pastes: %v", err)
	}
	if len(got) != 1 || got[0] != p {
		t.Errorf("expected the session to stay unchanged, got %+v", got)
	}

	if _, err := s.Create(ctx, paste.Draft{Title: "no tag", Content: "x"}); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected [%v], got [%v]", service.ErrValidation, err)
	}
	if got, _ := s.Pastes(ctx); len(got) != 1 {
		t.Errorf("expected 1 paste, got %d", len(got))
	}
}

func TestSessionBrowse(t *testing.T) {
	ctx := context.Background()
	s := NewSession("owner", newBackend())
	for i := 0; i < 12; i++ {
		title := fmt.Sprintf("item %02d", i)
		if i%3 == 0 {
			title = fmt.Sprintf("Hello %02d", i)
		}
		if _, err := s.Create(ctx, note(title)); err != nil {
			t.Fatalf("failed to create a paste: %v", err)
		}
	}

	pg, err := s.Browse(ctx, "", 5, 3)
	if err != nil {
		t.Fatalf("failed to browse: %v", err)
	}
	if pg.TotalPages != 3 || len(pg.Items) != 2 || pg.Total != 12 {
		t.Errorf("unexpected page %+v", pg)
	}

	pg, err = s.Browse(ctx, "hello", 0, 1)
	if err != nil {
		t.Fatalf("failed to browse: %v", err)
	}
	if pg.Total != 4 || pg.Items[0].Title != "Hello 09" {
		t.Errorf("unexpected filtered page %+v", pg)
	}
}

func TestSessionLoadError(t *testing.T) {
	b := newBackend()
	b.fail = errors.New("down")
	s := NewSession("owner", b)
	if _, err := s.Browse(context.Background(), "", 10, 1); !errors.Is(err, b.fail) {
		t.Errorf("expected [%v], got [%v]", b.fail, err)
	}
	b.fail = nil
	if _, err := s.Browse(context.Background(), "", 10, 1); err != nil {
		t.Errorf("expected the next load to succeed, got %v", err)
	}
	if b.lists != 2 {
		t.Errorf("expected 2 loads, got %d", b.lists)
	}
}

func TestSessionReload(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	s := NewSession("owner", b)
	if err := s.Load(ctx); err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if _, err := b.svc.Create(ctx, note("outside"), "owner"); err != nil {
		t.Fatalf("failed to create a paste: %v", err)
	}

	pg, _ := s.Browse(ctx, "", 10, 1)
	if pg.Total != 0 {
		t.Errorf("expected the loaded list to stay as is, got %d pastes", pg.Total)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	pg, _ = s.Browse(ctx, "", 10, 1)
	if pg.Total != 1 || pg.Items[0].Title != "outside" {
		t.Errorf("expected the reloaded list to have the new paste, got %+v", pg)
	}
	if b.lists != 2 {
		t.Errorf("expected 2 loads, got %d", b.lists)
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(newBackend(), 2)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	a1, err := r.Session("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a2, _ := r.Session("a")
	if a1 != a2 {
		t.Error("expected the same session for the same owner")
	}
	if a1.Owner() != "a" {
		t.Errorf("expected owner [a], got [%s]", a1.Owner())
	}
	_, _ = r.Session("b")
	_, _ = r.Session("c")
	if r.Len() != 2 {
		t.Errorf("expected 2 sessions, got %d", r.Len())
	}
	r.Forget("c")
	if r.Len() != 1 {
		t.Errorf("expected 1 session, got %d", r.Len())
	}
	if _, err := r.Session(""); !errors.Is(err, service.ErrAccess) {
		t.Errorf("expected [%v], got [%v]", service.ErrAccess, err)
	}
	if _, err := NewRegistry(newBackend(), 0); err == nil {
		t.Error("expected an error for a zero size")
	}
}
