package cachestore

import "time"

// Kind discriminates the shape of a cached value. Scans filter by tag
// instead of probing value shapes.
type Kind string

const (
	// KindDetail marks a single entity's detail record.
	KindDetail Kind = "detail"

	// KindList marks one page of a filtered, sorted list.
	KindList Kind = "list"

	// KindAggregate marks derived aggregate counts.
	KindAggregate Kind = "aggregate"
)

// Policy controls an entry's freshness and eviction windows.
type Policy struct {
	// StaleAfter is how long the entry is considered fresh after a fetch.
	// Stale entries are still servable but eligible for background refresh.
	StaleAfter time.Duration

	// EvictAfter is how long the entry survives without observers before
	// the janitor removes it.
	EvictAfter time.Duration
}

// DefaultPolicy returns the freshness policy used when a key family has
// no explicit policy.
func DefaultPolicy() Policy {
	return Policy{
		StaleAfter: 30 * time.Second,
		EvictAfter: 5 * time.Minute,
	}
}

// Entry is a cached value with its freshness metadata.
type Entry struct {
	// Kind tags the value shape.
	Kind Kind

	// Value is the cached payload: an entity, a list page, or counts.
	Value any

	// FetchedAt is when the value was last written.
	FetchedAt time.Time

	// Policy is the freshness policy in effect for this entry.
	Policy Policy

	// Stale marks the entry explicitly invalidated ahead of its window.
	Stale bool
}

// IsStale reports whether the entry is past its freshness window or was
// explicitly invalidated.
func (e Entry) IsStale(now time.Time) bool {
	if e.Stale {
		return true
	}
	return now.After(e.FetchedAt.Add(e.Policy.StaleAfter))
}

// Expired reports whether the entry is past its eviction window.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.FetchedAt.Add(e.Policy.EvictAfter))
}
