// Package mutation orchestrates optimistic mutations against the shared
// cache: snapshot, speculative apply, remote call, commit or rollback,
// then a deferred reconcile. Callers receive a settled Result instead of
// chained callbacks; the mutation never raises coordinator-internal
// errors, only the classified remote failure.
package mutation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/serabi/organized-glitter-sub001/pkg/cachekey"
	"github.com/serabi/organized-glitter-sub001/pkg/cachestore"
	"github.com/serabi/organized-glitter-sub001/pkg/remote"
	"github.com/serabi/organized-glitter-sub001/pkg/retry"
)

// Outcome is the settled state of a mutation.
type Outcome string

const (
	// OutcomeCommitted means the remote call succeeded and the cache
	// holds authoritative data.
	OutcomeCommitted Outcome = "committed"

	// OutcomeRolledBack means the remote call failed past its retry
	// bound and every snapshot was restored.
	OutcomeRolledBack Outcome = "rolled_back"
)

// Result is the settled outcome of one mutation. Err carries the
// classified remote failure on rollback and is nil on commit.
type Result struct {
	Outcome Outcome
	Entity  remote.Entity
	Err     error
}

// Request describes one mutation.
type Request struct {
	// Kind and ID identify the entity.
	Kind string
	ID   string

	// OwnerID scopes the lists and aggregates the entity feeds.
	OwnerID string

	// Patch is the partial update. Nil is only valid for deletes.
	Patch remote.Patch

	// Delete removes the entity instead of patching it.
	Delete bool

	// SuccessMessage overrides the default success notification.
	SuccessMessage string

	// Policy overrides the retry policy. Defaults to DeletePolicy for
	// deletes and DefaultPolicy otherwise.
	Policy *retry.Policy
}

// Config holds the coordinator dependencies.
type Config struct {
	Store   *cachestore.Store
	Backend remote.EntityStore

	// Notify receives user-facing messages on settle. Optional.
	Notify Notifier

	// SettleDelay is the pause before the reconcile invalidation that
	// picks up server-side side effects. Zero means 1 second.
	SettleDelay time.Duration

	// CachePolicy applies to entries written by commits. Zero value
	// means cachestore.DefaultPolicy.
	CachePolicy cachestore.Policy
}

// Coordinator runs the optimistic mutation state machine. A single
// coordinator is shared by all callers; its mutex serializes the
// cache-touching phases so a later mutation's snapshot always observes
// an earlier mutation's speculative write.
type Coordinator struct {
	store       *cachestore.Store
	backend     remote.EntityStore
	notify      Notifier
	settleDelay time.Duration
	cachePolicy cachestore.Policy
	logger      zerolog.Logger

	mu       sync.Mutex
	schedule func(d time.Duration, fn func())
}

// NewCoordinator creates a mutation coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = time.Second
	}
	if cfg.CachePolicy == (cachestore.Policy{}) {
		cfg.CachePolicy = cachestore.DefaultPolicy()
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(string, Severity) {}
	}

	return &Coordinator{
		store:       cfg.Store,
		backend:     cfg.Backend,
		notify:      notify,
		settleDelay: cfg.SettleDelay,
		cachePolicy: cfg.CachePolicy,
		logger:      log.With().Str("component", "mutation").Logger(),
		schedule:    func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}, nil
}

// SetScheduler sets a custom reconcile scheduler (for testing).
func (c *Coordinator) SetScheduler(fn func(d time.Duration, fn func())) {
	c.schedule = fn
}

// Mutate runs one mutation to settlement. It always returns a Result;
// remote failures are classified, retried per policy, and reported in
// Result.Err rather than panicking or leaking coordinator internals.
func (c *Coordinator) Mutate(ctx context.Context, req Request) Result {
	start := time.Now()
	defer func() {
		mutationDuration.WithLabelValues(req.Kind).Observe(time.Since(start).Seconds())
	}()

	if req.Kind == "" || req.ID == "" {
		err := fmt.Errorf("mutation requires kind and id")
		return Result{Outcome: OutcomeRolledBack, Err: err}
	}
	if !req.Delete && len(req.Patch) == 0 {
		err := fmt.Errorf("mutation requires a patch or delete")
		return Result{Outcome: OutcomeRolledBack, Err: err}
	}

	// Begin + SpeculativeApply run atomically with respect to other
	// mutations; see the Coordinator doc comment.
	mctx := c.begin(req)

	c.logger.Debug().
		Str("entity_kind", req.Kind).
		Str("entity_id", req.ID).
		Bool("delete", req.Delete).
		Msg("Speculative apply complete, calling backend")

	// RemoteCall is the only suspension point.
	policy := c.policyFor(req)
	var authoritative remote.Entity
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		if req.Delete {
			return c.backend.DeleteEntity(ctx, req.Kind, req.ID)
		}
		entity, mErr := c.backend.MutateEntity(ctx, req.Kind, req.ID, req.Patch)
		if mErr != nil {
			return mErr
		}
		authoritative = entity
		return nil
	})

	var result Result
	if err == nil {
		c.commit(req, authoritative)
		mutationsTotal.WithLabelValues(req.Kind, string(OutcomeCommitted)).Inc()
		c.notify(c.successMessage(req), SeveritySuccess)
		result = Result{Outcome: OutcomeCommitted, Entity: authoritative}
	} else {
		c.rollback(req, mctx)
		mutationsTotal.WithLabelValues(req.Kind, string(OutcomeRolledBack)).Inc()
		c.notify(failureMessage(err), SeverityError)
		c.logger.Warn().
			Err(err).
			Str("entity_kind", req.Kind).
			Str("entity_id", req.ID).
			Str("error_class", string(remote.ClassOf(err))).
			Msg("Mutation rolled back")
		result = Result{Outcome: OutcomeRolledBack, Err: err}
	}

	// Reconcile runs regardless of outcome: server-side side effects
	// (derived fields, cascades) are not captured by the projection.
	c.scheduleReconcile(mctx)

	return result
}

// begin cancels in-flight fetches for every affected key, snapshots
// current values, and writes the speculative projection.
func (c *Coordinator) begin(req Request) *mutationContext {
	c.mu.Lock()
	defer c.mu.Unlock()

	mctx := &mutationContext{
		detailKey:  cachekey.Detail(req.Kind, req.ID),
		listPrefix: cachekey.ListPrefix(req.Kind, req.OwnerID),
		aggPrefix:  cachekey.Aggregate(req.Kind, req.OwnerID),
	}

	c.store.CancelInFlight(mctx.detailKey)
	c.store.CancelInFlight(mctx.listPrefix)
	c.store.CancelInFlight(mctx.aggPrefix)

	// Detail entry.
	entry, ok := c.store.Get(mctx.detailKey)
	mctx.record(mctx.detailKey, entry, ok)
	if req.Delete {
		if ok {
			_ = c.store.Delete(mctx.detailKey)
			speculativeApplies.Inc()
		}
	} else if ok {
		if entity, isEntity := entry.Value.(remote.Entity); isEntity {
			projected := applyPatch(entity, req.Patch)
			c.setOrInvalidate(mctx.detailKey, cachestore.KindDetail, projected, entry.Policy)
			speculativeApplies.Inc()
		}
	}

	// Every cached list page for this owner.
	for _, cached := range c.store.Query(mctx.listPrefix) {
		list, isList := cached.Entry.Value.(remote.ListResult)
		if !isList {
			continue
		}

		var projected remote.ListResult
		var touched bool
		if req.Delete {
			projected, touched = removeFromList(list, req.ID)
		} else {
			projected, touched = patchInList(list, req.ID, func(item remote.Entity) remote.Entity {
				return applyPatch(item, req.Patch)
			})
		}
		if !touched {
			continue
		}

		mctx.record(cached.Key, cached.Entry, true)
		c.setOrInvalidate(cached.Key, cachestore.KindList, projected, cached.Entry.Policy)
		speculativeApplies.Inc()
	}

	return mctx
}

// commit overwrites affected entries with authoritative server data and
// invalidates dependent aggregates. Aggregates are never hand-patched;
// partial manual patching of counts is a proven source of drift.
func (c *Coordinator) commit(req Request, authoritative remote.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	detailKey := cachekey.Detail(req.Kind, req.ID)
	listPrefix := cachekey.ListPrefix(req.Kind, req.OwnerID)
	aggPrefix := cachekey.Aggregate(req.Kind, req.OwnerID)

	if req.Delete {
		_ = c.store.Delete(detailKey)
	} else {
		c.setOrInvalidate(detailKey, cachestore.KindDetail, authoritative.Clone(), c.cachePolicy)

		for _, cached := range c.store.Query(listPrefix) {
			list, isList := cached.Entry.Value.(remote.ListResult)
			if !isList {
				continue
			}
			updated, touched := patchInList(list, req.ID, func(remote.Entity) remote.Entity {
				return authoritative.Clone()
			})
			if touched {
				c.setOrInvalidate(cached.Key, cachestore.KindList, updated, cached.Entry.Policy)
			}
		}
	}

	if err := c.store.Invalidate(aggPrefix); err != nil {
		c.escalate(req, aggPrefix, err)
	}
}

// rollback restores every snapshot verbatim. A snapshot that cannot be
// restored falls back to invalidation of that key; if even that fails
// the whole kind prefix is invalidated as a safety net.
func (c *Coordinator) rollback(req Request, mctx *mutationContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, snap := range mctx.snapshots {
		var err error
		if snap.existed {
			err = c.store.Set(snap.key, snap.kind, snap.value, snap.policy)
		} else {
			err = c.store.Delete(snap.key)
		}
		if err != nil {
			if invErr := c.store.Invalidate(snap.key); invErr != nil {
				c.escalate(req, snap.key, invErr)
			}
		}
	}
}

// scheduleReconcile invalidates the entity's detail key and primary list
// prefix after a settle delay, picking up server-computed fields the
// optimistic projection could not know about.
func (c *Coordinator) scheduleReconcile(mctx *mutationContext) {
	c.schedule(c.settleDelay, func() {
		if err := c.store.Invalidate(mctx.detailKey); err != nil && err != cachestore.ErrClosed {
			reconciliationFailures.Inc()
			c.logger.Error().Err(err).Str("cache_key", mctx.detailKey.String()).Msg("Reconcile invalidation failed")
		}
		if err := c.store.Invalidate(mctx.listPrefix); err != nil && err != cachestore.ErrClosed {
			reconciliationFailures.Inc()
			c.logger.Error().Err(err).Str("cache_key", mctx.listPrefix.String()).Msg("Reconcile invalidation failed")
		}
	})
}

// setOrInvalidate writes an entry, falling back to invalidation when the
// write is rejected.
func (c *Coordinator) setOrInvalidate(key cachekey.Key, kind cachestore.Kind, value any, policy cachestore.Policy) {
	if err := c.store.Set(key, kind, value, policy); err != nil {
		_ = c.store.Invalidate(key)
	}
}

// escalate handles a reconciliation fault: the rollback or invalidation
// itself failed. Never silently ignored.
func (c *Coordinator) escalate(req Request, key cachekey.Key, err error) {
	reconciliationFailures.Inc()
	c.logger.Error().
		Err(err).
		Str("entity_kind", req.Kind).
		Str("cache_key", key.String()).
		Msg("Reconciliation fault, invalidating kind prefix")
	_ = c.store.Invalidate(cachekey.KindPrefix(req.Kind))
}

func (c *Coordinator) policyFor(req Request) retry.Policy {
	if req.Policy != nil {
		return *req.Policy
	}
	if req.Delete {
		return retry.DeletePolicy()
	}
	return retry.DefaultPolicy()
}

func (c *Coordinator) successMessage(req Request) string {
	if req.SuccessMessage != "" {
		return req.SuccessMessage
	}
	if req.Delete {
		return "Deleted"
	}
	return "Saved"
}
