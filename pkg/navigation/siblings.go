package navigation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/serabi/organized-glitter-sub001/pkg/cachekey"
	"github.com/serabi/organized-glitter-sub001/pkg/cachestore"
	"github.com/serabi/organized-glitter-sub001/pkg/remote"
)

var siblingLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "og_sibling_lookups_total",
		Help: "Total sibling lookups by result",
	},
	[]string{"result"}, // "hit", "loading", "absent"
)

// Siblings is the previous/next answer for one entity within its
// resolved browsing context.
type Siblings struct {
	Previous remote.Entity
	Next     remote.Entity

	// HasPrevious and HasNext account for pagination. They can be true
	// with a nil Previous/Next when the adjacent item lives on a page
	// that is not cached yet.
	HasPrevious bool
	HasNext     bool

	// IsLoading means the list page for this exact context is not
	// cached. Callers should show a loading state, not guess siblings
	// from a differently filtered or sorted list.
	IsLoading bool
}

// SiblingResolver derives previous/next entities from cached list pages
// without a remote round trip.
type SiblingResolver struct {
	store *cachestore.Store
}

// NewSiblingResolver creates a sibling resolver over the given store.
func NewSiblingResolver(store *cachestore.Store) *SiblingResolver {
	return &SiblingResolver{store: store}
}

// Siblings looks up the cached list page matching the exact resolved
// context and locates the current entity in it. List order is only
// meaningful for the context that produced it, so the lookup requires
// an exact key match and never falls back to a near-miss page.
func (r *SiblingResolver) Siblings(kind, ownerID, currentID string, nav Context) Siblings {
	key := cachekey.List(kind, ownerID, cachekey.Digest(nav.ListParams()))

	entry, ok := r.store.Get(key)
	if !ok || entry.Kind != cachestore.KindList {
		siblingLookups.WithLabelValues("loading").Inc()
		return Siblings{IsLoading: true}
	}
	list, ok := entry.Value.(remote.ListResult)
	if !ok {
		siblingLookups.WithLabelValues("loading").Inc()
		return Siblings{IsLoading: true}
	}

	index := -1
	for i, item := range list.Items {
		if item.ID() == currentID {
			index = i
			break
		}
	}
	if index < 0 {
		siblingLookups.WithLabelValues("absent").Inc()
		return Siblings{}
	}

	result := Siblings{
		HasPrevious: index > 0,
		HasNext:     index < len(list.Items)-1,
	}
	if index > 0 {
		result.Previous = list.Items[index-1]
	}
	if index < len(list.Items)-1 {
		result.Next = list.Items[index+1]
	}

	// At a page boundary the adjacent item lives on the neighboring
	// page. Report that it exists even though it is not cached here.
	if !result.HasPrevious && nav.Page > 1 {
		result.HasPrevious = true
	}
	if !result.HasNext && nav.Page > 0 && nav.PageSize > 0 {
		if nav.Page*nav.PageSize < list.TotalCount {
			result.HasNext = true
		}
	}

	siblingLookups.WithLabelValues("hit").Inc()
	return result
}
