//go:build integration

package prefs

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/serabi/organized-glitter-sub001/pkg/navigation"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_RoundTrip(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	store := NewRedisStore(redisClient, 0, logger)
	ctx := context.Background()

	// Empty Redis is a miss, not an error.
	_, found, err := store.GetNavigationPreference(ctx, "user-42")
	if err != nil {
		t.Fatalf("GetNavigationPreference() error = %v", err)
	}
	if found {
		t.Error("expected no preference in empty Redis")
	}

	saved := navigation.Context{
		Filters:       map[string]any{"status": "in_progress"},
		SortField:     "kit_name",
		SortDirection: "asc",
		Page:          3,
		PageSize:      50,
	}
	if err := store.SetNavigationPreference(ctx, "user-42", saved); err != nil {
		t.Fatalf("SetNavigationPreference() error = %v", err)
	}

	got, found, err := store.GetNavigationPreference(ctx, "user-42")
	if err != nil {
		t.Fatalf("GetNavigationPreference() after save error = %v", err)
	}
	if !found {
		t.Fatal("expected saved preference to be found")
	}
	if !reflect.DeepEqual(got, saved) {
		t.Errorf("preference = %+v, want %+v", got, saved)
	}
}

func TestRedisStore_Integration_UserIsolation(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	store := NewRedisStore(redisClient, 0, logger)
	ctx := context.Background()

	if err := store.SetNavigationPreference(ctx, "user-a", navigation.Context{Page: 1, PageSize: 25}); err != nil {
		t.Fatalf("SetNavigationPreference() error = %v", err)
	}

	_, found, err := store.GetNavigationPreference(ctx, "user-b")
	if err != nil {
		t.Fatalf("GetNavigationPreference() error = %v", err)
	}
	if found {
		t.Error("user-b must not see user-a's preference")
	}
}

func TestRedisStore_Integration_TTL(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	store := NewRedisStore(redisClient, 2*time.Second, logger)
	ctx := context.Background()

	if err := store.SetNavigationPreference(ctx, "user-42", navigation.Context{Page: 1, PageSize: 25}); err != nil {
		t.Fatalf("SetNavigationPreference() error = %v", err)
	}

	time.Sleep(3 * time.Second)

	_, found, err := store.GetNavigationPreference(ctx, "user-42")
	if err != nil {
		t.Fatalf("GetNavigationPreference() error = %v", err)
	}
	if found {
		t.Error("preference must expire after its TTL")
	}
}

func TestRedisStore_Integration_CorruptPayload(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	store := NewRedisStore(redisClient, 0, logger)
	ctx := context.Background()

	if err := redisClient.Set(ctx, "og:prefs:navigation:user-42", "{not json", 0).Err(); err != nil {
		t.Fatalf("seed corrupt payload: %v", err)
	}

	_, found, err := store.GetNavigationPreference(ctx, "user-42")
	if err != nil {
		t.Fatalf("GetNavigationPreference() error = %v, want miss on corrupt payload", err)
	}
	if found {
		t.Error("corrupt payload must be treated as a miss")
	}
}
