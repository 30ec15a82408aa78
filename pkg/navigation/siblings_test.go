package navigation

import (
	"testing"
	"time"

	"github.com/serabi/organized-glitter-sub001/pkg/cachekey"
	"github.com/serabi/organized-glitter-sub001/pkg/cachestore"
	"github.com/serabi/organized-glitter-sub001/pkg/remote"
)

func newSiblingFixture(t *testing.T) (*SiblingResolver, *cachestore.Store) {
	t.Helper()
	store := cachestore.New(cachestore.Config{JanitorInterval: -1})
	t.Cleanup(store.Close)
	return NewSiblingResolver(store), store
}

func seedList(t *testing.T, store *cachestore.Store, nav Context, list remote.ListResult) {
	t.Helper()
	key := cachekey.List("project", "user-42", cachekey.Digest(nav.ListParams()))
	policy := cachestore.Policy{StaleAfter: time.Hour, EvictAfter: 2 * time.Hour}
	if err := store.Set(key, cachestore.KindList, list, policy); err != nil {
		t.Fatalf("seed list: %v", err)
	}
}

func TestSiblings_MiddleOfList(t *testing.T) {
	resolver, store := newSiblingFixture(t)
	nav := Context{SortField: "title", Page: 1, PageSize: 25}
	seedList(t, store, nav, remote.ListResult{
		Items:      []remote.Entity{{"id": "a"}, {"id": "b"}, {"id": "c"}},
		TotalCount: 3,
	})

	got := resolver.Siblings("project", "user-42", "b", nav)
	if got.IsLoading {
		t.Fatal("unexpected loading state")
	}
	if got.Previous.ID() != "a" || got.Next.ID() != "c" {
		t.Errorf("siblings = prev %q next %q, want a and c", got.Previous.ID(), got.Next.ID())
	}
	if !got.HasPrevious || !got.HasNext {
		t.Error("middle item must have both siblings")
	}
}

func TestSiblings_ListEdges(t *testing.T) {
	resolver, store := newSiblingFixture(t)
	nav := Context{SortField: "title", Page: 1, PageSize: 25}
	seedList(t, store, nav, remote.ListResult{
		Items:      []remote.Entity{{"id": "a"}, {"id": "b"}, {"id": "c"}},
		TotalCount: 3,
	})

	first := resolver.Siblings("project", "user-42", "a", nav)
	if first.HasPrevious {
		t.Error("first item of first page must not have a previous sibling")
	}
	if first.Next.ID() != "b" {
		t.Errorf("first.Next = %q, want b", first.Next.ID())
	}

	last := resolver.Siblings("project", "user-42", "c", nav)
	if last.HasNext {
		t.Error("last item of an exhausted list must not have a next sibling")
	}
	if last.Previous.ID() != "b" {
		t.Errorf("last.Previous = %q, want b", last.Previous.ID())
	}
}

func TestSiblings_PageBoundaries(t *testing.T) {
	resolver, store := newSiblingFixture(t)
	// Page 2 of 3: items beyond this page exist in both directions.
	nav := Context{SortField: "title", Page: 2, PageSize: 3}
	seedList(t, store, nav, remote.ListResult{
		Items:      []remote.Entity{{"id": "d"}, {"id": "e"}, {"id": "f"}},
		TotalCount: 9,
	})

	first := resolver.Siblings("project", "user-42", "d", nav)
	if !first.HasPrevious {
		t.Error("first item of page 2 has a previous sibling on page 1")
	}
	if first.Previous != nil {
		t.Error("the previous sibling itself is on an uncached page, must be nil")
	}

	last := resolver.Siblings("project", "user-42", "f", nav)
	if !last.HasNext {
		t.Error("last item of page 2 of 3 has a next sibling on page 3")
	}
	if last.Next != nil {
		t.Error("the next sibling itself is on an uncached page, must be nil")
	}
}

func TestSiblings_UncachedContextIsLoading(t *testing.T) {
	resolver, store := newSiblingFixture(t)
	cached := Context{SortField: "title", Page: 1, PageSize: 25}
	seedList(t, store, cached, remote.ListResult{
		Items:      []remote.Entity{{"id": "a"}, {"id": "b"}},
		TotalCount: 2,
	})

	// Same owner and kind, different sort. The cached order is invalid
	// for this context so the resolver must not use it.
	other := Context{SortField: "kit_name", Page: 1, PageSize: 25}
	got := resolver.Siblings("project", "user-42", "a", other)
	if !got.IsLoading {
		t.Error("a context without a cached list must report loading")
	}
	if got.Previous != nil || got.Next != nil {
		t.Error("loading state must not guess siblings")
	}
}

func TestSiblings_IDNotInList(t *testing.T) {
	resolver, store := newSiblingFixture(t)
	nav := Context{SortField: "title", Page: 1, PageSize: 25}
	seedList(t, store, nav, remote.ListResult{
		Items:      []remote.Entity{{"id": "a"}, {"id": "b"}},
		TotalCount: 2,
	})

	got := resolver.Siblings("project", "user-42", "missing", nav)
	if got.IsLoading {
		t.Error("a cached list with the id absent is not a loading state")
	}
	if got.HasPrevious || got.HasNext {
		t.Error("no siblings for an id outside the list")
	}
}

func TestSiblings_EquivalentFilterOrderSharesKey(t *testing.T) {
	resolver, store := newSiblingFixture(t)
	seeded := Context{
		Filters:  map[string]any{"status": "completed", "artist": "anna"},
		Page:     1,
		PageSize: 25,
	}
	seedList(t, store, seeded, remote.ListResult{
		Items:      []remote.Entity{{"id": "a"}, {"id": "b"}},
		TotalCount: 2,
	})

	// Same filters built in a different order must hit the same entry.
	lookup := Context{
		Filters:  map[string]any{"artist": "anna", "status": "completed"},
		Page:     1,
		PageSize: 25,
	}
	got := resolver.Siblings("project", "user-42", "a", lookup)
	if got.IsLoading {
		t.Fatal("equivalent contexts must resolve to the same cached list")
	}
	if got.Next.ID() != "b" {
		t.Errorf("next = %q, want b", got.Next.ID())
	}
}
