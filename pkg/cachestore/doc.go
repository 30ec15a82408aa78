// Package cachestore implements the shared in-memory cache at the heart
// of the Organized Glitter consistency engine.
//
// The store holds tagged entries (detail records, list pages, aggregate
// counts) with per-entry freshness and eviction windows:
//
//   - Stale entries are still servable but eligible for background refresh.
//   - Expired entries are evicted once no observer holds them.
//   - Invalidation is prefix-based, so one call can flush every cached
//     list page for an entity kind and owner.
//   - Pending fetches are cancellable, preventing a late stale response
//     from clobbering a fresher speculative write.
//
// # Basic Usage
//
//	store := cachestore.New(cachestore.Config{})
//	defer store.Close()
//
//	store.RegisterFetcher(
//		cachekey.KindPrefix("project"),
//		cachestore.KindDetail,
//		cachestore.DefaultPolicy(),
//		func(ctx context.Context, key cachekey.Key) (any, error) {
//			return backend.FetchEntity(ctx, "project", key[2])
//		},
//	)
//
//	_ = store.Set(cachekey.Detail("project", "p-1"), cachestore.KindDetail, entity, cachestore.DefaultPolicy())
//	entry, ok := store.Get(cachekey.Detail("project", "p-1"))
//
// The store performs no I/O of its own beyond delegating refreshes to
// registered fetch functions.
package cachestore
