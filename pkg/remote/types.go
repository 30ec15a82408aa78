// Package remote defines the collaborator interfaces the caching engine
// depends on, plus an HTTP JSON implementation against the hosted
// backend. The engine stays agnostic to the concrete transport; only
// this package knows about URLs and status codes.
package remote

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Entity is a backend record in its JSON shape. Every entity carries an
// "id" field; the rest of the shape is kind-specific (projects, supplies,
// and so on).
type Entity map[string]any

// ID returns the entity's id field, or "" if absent.
func (e Entity) ID() string {
	id, _ := e["id"].(string)
	return id
}

// Clone returns a shallow copy. Cached entities are cloned before
// speculative patching so snapshots stay untouched.
func (e Entity) Clone() Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Patch is a partial update applied to an entity, field name to new value.
type Patch map[string]any

// ListParams describes one page of a filtered, sorted list query.
type ListParams struct {
	Filters       map[string]any
	SortField     string
	SortDirection string
	Page          int
	PageSize      int
}

// QueryValues encodes the params as URL query values with deterministic
// ordering, matching the backend's list endpoint contract.
func (p ListParams) QueryValues() url.Values {
	values := url.Values{}
	if p.SortField != "" {
		values.Set("sort", p.SortField)
	}
	if p.SortDirection != "" {
		values.Set("direction", p.SortDirection)
	}
	if p.Page > 0 {
		values.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		values.Set("per_page", strconv.Itoa(p.PageSize))
	}

	filterKeys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		filterKeys = append(filterKeys, k)
	}
	sort.Strings(filterKeys)
	for _, k := range filterKeys {
		values.Set("filter["+k+"]", fmt.Sprintf("%v", p.Filters[k]))
	}

	return values
}

// ListResult is one page of entities plus the backend's total count for
// the full filtered set.
type ListResult struct {
	Items      []Entity `json:"items"`
	TotalCount int      `json:"total_count"`

	// Filtered records whether the query that produced this page carried
	// filters. A filtered page's TotalCount is the size of the filtered
	// set, not the full population, so it must never be used as a
	// population estimate.
	Filtered bool `json:"-"`
}

// Clone deep-copies the page so speculative writes never alias snapshots.
func (r ListResult) Clone() ListResult {
	items := make([]Entity, len(r.Items))
	for i, item := range r.Items {
		items[i] = item.Clone()
	}
	return ListResult{Items: items, TotalCount: r.TotalCount, Filtered: r.Filtered}
}

// EntityStore is the remote entity storage collaborator.
type EntityStore interface {
	FetchEntity(ctx context.Context, kind, id string) (Entity, error)
	FetchList(ctx context.Context, kind string, params ListParams) (ListResult, error)
	MutateEntity(ctx context.Context, kind, id string, patch Patch) (Entity, error)
	DeleteEntity(ctx context.Context, kind, id string) error
}

// AggregateSource is the authoritative aggregate collaborator, consulted
// when local cache coverage is insufficient to derive counts.
type AggregateSource interface {
	FetchAggregate(ctx context.Context, kind, ownerID string) (map[string]int, error)
}
