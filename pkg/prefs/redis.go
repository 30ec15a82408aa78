// Package prefs persists per-user navigation preferences in Redis so a
// direct link or a second device resumes the user's last browsing
// context.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/serabi/organized-glitter-sub001/pkg/navigation"
)

var (
	prefReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "og_preference_reads_total",
			Help: "Total preference reads by result",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	prefWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "og_preference_writes_total",
		Help: "Total preference writes",
	})
)

// DefaultTTL is how long a saved preference survives without being
// refreshed by a new save.
const DefaultTTL = 90 * 24 * time.Hour

// RedisStore implements navigation.PreferenceStore on Redis.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates a preference store. A zero ttl means DefaultTTL.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

func redisKey(userID string) string {
	return "og:prefs:navigation:" + userID
}

// GetNavigationPreference loads the user's saved browsing context.
// A missing key is a miss, not an error.
func (s *RedisStore) GetNavigationPreference(ctx context.Context, userID string) (navigation.Context, bool, error) {
	payload, err := s.redis.Get(ctx, redisKey(userID)).Result()
	if err == redis.Nil {
		prefReads.WithLabelValues("miss").Inc()
		return navigation.Context{}, false, nil
	}
	if err != nil {
		prefReads.WithLabelValues("error").Inc()
		return navigation.Context{}, false, fmt.Errorf("get navigation preference: %w", err)
	}

	var nav navigation.Context
	if err := json.Unmarshal([]byte(payload), &nav); err != nil {
		// A corrupt payload is unrecoverable; treat it as a miss so the
		// resolver falls back to the default context.
		prefReads.WithLabelValues("error").Inc()
		s.logger.Warn().
			Err(err).
			Str("user_id", userID).
			Msg("Discarding unparseable navigation preference")
		return navigation.Context{}, false, nil
	}

	prefReads.WithLabelValues("hit").Inc()
	return nav, true, nil
}

// SetNavigationPreference saves the user's browsing context with the
// configured TTL.
func (s *RedisStore) SetNavigationPreference(ctx context.Context, userID string, nav navigation.Context) error {
	payload, err := json.Marshal(nav)
	if err != nil {
		return fmt.Errorf("marshal navigation preference: %w", err)
	}

	if err := s.redis.Set(ctx, redisKey(userID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store navigation preference: %w", err)
	}

	prefWrites.Inc()
	s.logger.Debug().
		Str("user_id", userID).
		Int("page", nav.Page).
		Str("sort_field", nav.SortField).
		Msg("Navigation preference saved")
	return nil
}
