// Package cachekey provides deterministic cache key construction for the
// Organized Glitter caching engine. Keys are ordered segment sequences;
// structured query parameters are canonicalized and digested so that
// equivalent parameter objects always map to the same key.
package cachekey

import "strings"

// Separator joins key segments in the string form of a key.
const Separator = ":"

// Key is an ordered sequence of segments identifying a cached value.
// Two keys are equal iff their segment sequences are equal.
type Key []string

// New builds a key from the given segments.
func New(segments ...string) Key {
	return Key(segments)
}

// String returns the canonical string form of the key.
// Example: og:project:list:user-42:c1a9f30b2d8e4f17
func (k Key) String() string {
	return "og" + Separator + strings.Join(k, Separator)
}

// Equal reports whether two keys have identical segment sequences.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether the key starts with the given leading segment
// sequence. Every key is a prefix of itself; the empty key is a prefix of
// every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Detail returns the key for a single entity's detail record.
func Detail(kind, id string) Key {
	return Key{kind, "detail", id}
}

// List returns the key for one cached page of a filtered, sorted list.
// digest is the canonical digest of the list parameters (see Digest).
func List(kind, ownerID, digest string) Key {
	return Key{kind, "list", ownerID, digest}
}

// ListPrefix returns the prefix matching every cached list page for an
// owner, regardless of filters, sort, or page.
func ListPrefix(kind, ownerID string) Key {
	return Key{kind, "list", ownerID}
}

// Aggregate returns the key for an owner's aggregate counts.
func Aggregate(kind, ownerID string) Key {
	return Key{kind, "aggregate", ownerID}
}

// KindPrefix returns the prefix matching every key for an entity kind.
// Used as the escalation target when a rollback cannot be completed.
func KindPrefix(kind string) Key {
	return Key{kind}
}
