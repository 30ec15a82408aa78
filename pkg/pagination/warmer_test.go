package pagination

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/serabi/organized-glitter-sub001/pkg/cachekey"
	"github.com/serabi/organized-glitter-sub001/pkg/cachestore"
	"github.com/serabi/organized-glitter-sub001/pkg/remote"
)

// pagedBackend serves a fixed collection page by page.
type pagedBackend struct {
	mu        sync.Mutex
	items     []remote.Entity
	failPages map[int]error
	calls     int
}

func (b *pagedBackend) FetchList(ctx context.Context, kind string, params remote.ListParams) (remote.ListResult, error) {
	b.mu.Lock()
	b.calls++
	failErr := b.failPages[params.Page]
	b.mu.Unlock()

	if failErr != nil {
		return remote.ListResult{}, failErr
	}

	start := (params.Page - 1) * params.PageSize
	end := start + params.PageSize
	if start > len(b.items) {
		start = len(b.items)
	}
	if end > len(b.items) {
		end = len(b.items)
	}
	return remote.ListResult{Items: b.items[start:end], TotalCount: len(b.items)}, nil
}

func (b *pagedBackend) FetchEntity(ctx context.Context, kind, id string) (remote.Entity, error) {
	return nil, remote.ErrNotFound
}

func (b *pagedBackend) MutateEntity(ctx context.Context, kind, id string, patch remote.Patch) (remote.Entity, error) {
	return nil, remote.ErrNotFound
}

func (b *pagedBackend) DeleteEntity(ctx context.Context, kind, id string) error {
	return remote.ErrNotFound
}

func makeItems(n int) []remote.Entity {
	items := make([]remote.Entity, n)
	for i := range items {
		items[i] = remote.Entity{"id": fmt.Sprintf("p-%d", i)}
	}
	return items
}

func testPolicy() cachestore.Policy {
	return cachestore.Policy{StaleAfter: time.Hour, EvictAfter: 2 * time.Hour}
}

func TestWarmLists_CachesEveryPageUnderItsExactKey(t *testing.T) {
	store := cachestore.New(cachestore.Config{JanitorInterval: -1})
	defer store.Close()
	backend := &pagedBackend{items: makeItems(95)}

	warmer := NewWarmer(store, backend, DefaultConfig(), testPolicy())
	base := remote.ListParams{SortField: "title", PageSize: 25}

	warmed, err := warmer.WarmLists(context.Background(), "project", "user-42", base)
	if err != nil {
		t.Fatalf("WarmLists: %v", err)
	}
	if warmed != 4 {
		t.Errorf("warmed = %d pages, want 4 for 95 items at 25 per page", warmed)
	}

	// Every page must be retrievable under the key its own params encode to.
	for page := 1; page <= 4; page++ {
		params := base
		params.Page = page
		key := cachekey.List("project", "user-42", cachekey.Digest(params))
		entry, ok := store.Get(key)
		if !ok {
			t.Fatalf("page %d not cached under its exact key", page)
		}
		list := entry.Value.(remote.ListResult)
		if list.TotalCount != 95 {
			t.Errorf("page %d total = %d, want 95", page, list.TotalCount)
		}
	}

	// The last page holds the remainder.
	last := base
	last.Page = 4
	entry, _ := store.Get(cachekey.List("project", "user-42", cachekey.Digest(last)))
	if n := len(entry.Value.(remote.ListResult).Items); n != 20 {
		t.Errorf("last page items = %d, want 20", n)
	}
}

func TestWarmLists_SinglePage(t *testing.T) {
	store := cachestore.New(cachestore.Config{JanitorInterval: -1})
	defer store.Close()
	backend := &pagedBackend{items: makeItems(10)}

	warmer := NewWarmer(store, backend, DefaultConfig(), testPolicy())
	warmed, err := warmer.WarmLists(context.Background(), "project", "user-42", remote.ListParams{PageSize: 25})
	if err != nil {
		t.Fatalf("WarmLists: %v", err)
	}
	if warmed != 1 {
		t.Errorf("warmed = %d, want 1", warmed)
	}
	if backend.calls != 1 {
		t.Errorf("backend calls = %d, want 1 for a single-page collection", backend.calls)
	}
}

func TestWarmLists_FirstPageFailureAborts(t *testing.T) {
	store := cachestore.New(cachestore.Config{JanitorInterval: -1})
	defer store.Close()
	backend := &pagedBackend{
		items:     makeItems(50),
		failPages: map[int]error{1: &remote.RemoteError{StatusCode: 503, Class: remote.FaultServer}},
	}

	warmer := NewWarmer(store, backend, DefaultConfig(), testPolicy())
	warmed, err := warmer.WarmLists(context.Background(), "project", "user-42", remote.ListParams{PageSize: 25})
	if err == nil {
		t.Fatal("expected error when the first page fails")
	}
	if warmed != 0 {
		t.Errorf("warmed = %d, want 0", warmed)
	}
}

func TestWarmLists_PartialWarmOnLaterFailure(t *testing.T) {
	store := cachestore.New(cachestore.Config{JanitorInterval: -1})
	defer store.Close()
	backend := &pagedBackend{
		items:     makeItems(75),
		failPages: map[int]error{2: &remote.RemoteError{StatusCode: 503, Class: remote.FaultServer}},
	}

	warmer := NewWarmer(store, backend, DefaultConfig(), testPolicy())
	warmed, err := warmer.WarmLists(context.Background(), "project", "user-42", remote.ListParams{PageSize: 25})
	if err != nil {
		t.Fatalf("WarmLists: %v", err)
	}
	if warmed != 2 {
		t.Errorf("warmed = %d pages, want 2 of 3 when one page fails", warmed)
	}
}

func TestWarmLists_DefaultsPageSize(t *testing.T) {
	store := cachestore.New(cachestore.Config{JanitorInterval: -1})
	defer store.Close()
	backend := &pagedBackend{items: makeItems(30)}

	warmer := NewWarmer(store, backend, DefaultConfig(), testPolicy())
	warmed, err := warmer.WarmLists(context.Background(), "project", "user-42", remote.ListParams{})
	if err != nil {
		t.Fatalf("WarmLists: %v", err)
	}
	if warmed != 2 {
		t.Errorf("warmed = %d, want 2 pages at the default page size of 25", warmed)
	}
}
