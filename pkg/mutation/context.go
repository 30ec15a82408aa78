package mutation

import (
	"github.com/serabi/organized-glitter-sub001/pkg/cachekey"
	"github.com/serabi/organized-glitter-sub001/pkg/cachestore"
	"github.com/serabi/organized-glitter-sub001/pkg/remote"
)

// snapshot preserves one cache entry's pre-mutation state so a rollback
// can restore it verbatim, including re-creating entries the speculative
// apply removed and removing entries it created.
type snapshot struct {
	key     cachekey.Key
	kind    cachestore.Kind
	policy  cachestore.Policy
	value   any
	existed bool
}

// mutationContext is owned exclusively by one in-flight Mutate call and
// discarded once the mutation settles.
type mutationContext struct {
	detailKey  cachekey.Key
	listPrefix cachekey.Key
	aggPrefix  cachekey.Key
	snapshots  []snapshot
}

// record snapshots the current state of a key. Values are cloned where
// the shape is known so later speculative writes cannot alias them.
func (m *mutationContext) record(key cachekey.Key, entry cachestore.Entry, existed bool) {
	m.snapshots = append(m.snapshots, snapshot{
		key:     key,
		kind:    entry.Kind,
		policy:  entry.Policy,
		value:   cloneValue(entry.Value),
		existed: existed,
	})
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case remote.Entity:
		return v.Clone()
	case remote.ListResult:
		return v.Clone()
	default:
		return value
	}
}
