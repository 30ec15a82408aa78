// Package navigation resolves the user's current browsing context and
// derives previous/next siblings from cached list pages. The resolved
// context is what keeps detail-page navigation consistent with whatever
// filter and sort the user last browsed under.
package navigation

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/serabi/organized-glitter-sub001/pkg/cachekey"
	"github.com/serabi/organized-glitter-sub001/pkg/cachestore"
	"github.com/serabi/organized-glitter-sub001/pkg/remote"
)

var contextResolutions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "og_navigation_resolutions_total",
		Help: "Total navigation context resolutions by provenance",
	},
	[]string{"provenance"},
)

// Context describes one filtered, sorted, paginated view over a list.
type Context struct {
	Filters       map[string]any `json:"filters,omitempty"`
	SortField     string         `json:"sort_field,omitempty"`
	SortDirection string         `json:"sort_direction,omitempty"`
	Page          int            `json:"page,omitempty"`
	PageSize      int            `json:"page_size,omitempty"`

	// ScrollOffset is transient UI state. It rides along with the
	// context but never influences cache keys or list queries.
	ScrollOffset int `json:"scroll_offset,omitempty"`
}

// DefaultContext is the hard-coded fallback used when neither a
// transient nor a persisted context exists.
func DefaultContext() Context {
	return Context{
		SortField:     "last_updated",
		SortDirection: "desc",
		Page:          1,
		PageSize:      25,
	}
}

// IsZero reports whether the context carries no browsing state at all.
func (c Context) IsZero() bool {
	return len(c.Filters) == 0 && c.SortField == "" && c.SortDirection == "" &&
		c.Page == 0 && c.PageSize == 0
}

// ListParams converts the context into the list query it describes.
// ScrollOffset is deliberately dropped; it is not part of the query.
func (c Context) ListParams() remote.ListParams {
	return remote.ListParams{
		Filters:       c.Filters,
		SortField:     c.SortField,
		SortDirection: c.SortDirection,
		Page:          c.Page,
		PageSize:      c.PageSize,
	}
}

// Provenance reports which source in the priority chain produced the
// resolved context.
type Provenance string

const (
	// ProvenanceTransient means the immediate caller supplied the context.
	ProvenanceTransient Provenance = "transient"

	// ProvenancePersisted means the context came from the user's saved
	// preference.
	ProvenancePersisted Provenance = "persisted"

	// ProvenanceDefault means the hard-coded fallback was used.
	ProvenanceDefault Provenance = "default"
)

// Resolved is a context plus its provenance. Consumers treat it as
// read-only; only the resolver produces it.
type Resolved struct {
	Context    Context
	Provenance Provenance
}

// PreferenceStore is the persisted navigation preference collaborator.
type PreferenceStore interface {
	// GetNavigationPreference returns the user's saved context, with
	// found=false when none has been saved.
	GetNavigationPreference(ctx context.Context, userID string) (Context, bool, error)

	// SetNavigationPreference saves the user's context.
	SetNavigationPreference(ctx context.Context, userID string, nav Context) error
}

// Resolver resolves the current browsing context through a strict
// priority chain: transient, then persisted, then default.
type Resolver struct {
	prefs  PreferenceStore
	logger zerolog.Logger
}

// NewResolver creates a resolver. prefs may be nil, in which case the
// persisted step is skipped.
func NewResolver(prefs PreferenceStore) *Resolver {
	return &Resolver{
		prefs:  prefs,
		logger: log.With().Str("component", "navigation").Logger(),
	}
}

// Resolve returns the effective browsing context for a user. A non-zero
// transient context always wins. A preference store failure is logged
// and treated as "no saved preference" so navigation keeps working.
func (r *Resolver) Resolve(ctx context.Context, userID string, transient *Context) Resolved {
	if transient != nil && !transient.IsZero() {
		contextResolutions.WithLabelValues(string(ProvenanceTransient)).Inc()
		return Resolved{Context: *transient, Provenance: ProvenanceTransient}
	}

	if r.prefs != nil {
		saved, found, err := r.prefs.GetNavigationPreference(ctx, userID)
		if err != nil {
			r.logger.Warn().
				Err(err).
				Str("user_id", userID).
				Msg("Failed to load navigation preference, falling back to default")
		} else if found && !saved.IsZero() {
			contextResolutions.WithLabelValues(string(ProvenancePersisted)).Inc()
			return Resolved{Context: saved, Provenance: ProvenancePersisted}
		}
	}

	contextResolutions.WithLabelValues(string(ProvenanceDefault)).Inc()
	return Resolved{Context: DefaultContext(), Provenance: ProvenanceDefault}
}

// CachedPreferences is a read-through cache over a PreferenceStore.
// Preference reads happen on every detail-page render; caching them
// keeps the resolver off the preference backend's hot path.
type CachedPreferences struct {
	inner  PreferenceStore
	store  *cachestore.Store
	policy cachestore.Policy
}

// NewCachedPreferences wraps a preference store with cache reads.
func NewCachedPreferences(inner PreferenceStore, store *cachestore.Store) *CachedPreferences {
	return &CachedPreferences{
		inner: inner,
		store: store,
		policy: cachestore.Policy{
			StaleAfter: 5 * time.Minute,
			EvictAfter: 30 * time.Minute,
		},
	}
}

func prefKey(userID string) cachekey.Key {
	return cachekey.Key{"navigation", "prefs", userID}
}

// GetNavigationPreference returns the cached context when present,
// otherwise reads through to the inner store and caches the result.
func (c *CachedPreferences) GetNavigationPreference(ctx context.Context, userID string) (Context, bool, error) {
	if entry, ok := c.store.Get(prefKey(userID)); ok {
		if nav, ok := entry.Value.(Context); ok {
			return nav, true, nil
		}
	}

	nav, found, err := c.inner.GetNavigationPreference(ctx, userID)
	if err != nil || !found {
		return Context{}, false, err
	}

	_ = c.store.Set(prefKey(userID), cachestore.KindDetail, nav, c.policy)
	return nav, true, nil
}

// SetNavigationPreference writes through to the inner store and updates
// the cache so the next resolve sees the new context immediately.
func (c *CachedPreferences) SetNavigationPreference(ctx context.Context, userID string, nav Context) error {
	if err := c.inner.SetNavigationPreference(ctx, userID, nav); err != nil {
		return err
	}
	_ = c.store.Set(prefKey(userID), cachestore.KindDetail, nav, c.policy)
	return nil
}
