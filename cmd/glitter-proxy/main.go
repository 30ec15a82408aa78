// Command glitter-proxy serves a collection tracker API backed by the
// optimistic caching engine. Reads are answered from the cache where
// possible; writes go through the mutation coordinator so the API stays
// responsive while the backend call settles.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/serabi/organized-glitter-sub001/pkg/aggregate"
	"github.com/serabi/organized-glitter-sub001/pkg/cachekey"
	"github.com/serabi/organized-glitter-sub001/pkg/cachestore"
	"github.com/serabi/organized-glitter-sub001/pkg/logging"
	"github.com/serabi/organized-glitter-sub001/pkg/mutation"
	"github.com/serabi/organized-glitter-sub001/pkg/navigation"
	"github.com/serabi/organized-glitter-sub001/pkg/pagination"
	"github.com/serabi/organized-glitter-sub001/pkg/prefs"
	"github.com/serabi/organized-glitter-sub001/pkg/remote"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	backendURL := getEnv("BACKEND_URL", "")
	if backendURL == "" {
		logger.Fatal().Msg("BACKEND_URL is required")
	}
	redisURL := getEnv("REDIS_URL", "")
	port := getEnv("PORT", "8080")

	backend, err := remote.NewHTTPStore(remote.Config{
		BaseURL:   backendURL,
		Token:     getEnv("BACKEND_TOKEN", ""),
		UserAgent: getEnv("USER_AGENT", "glitter-proxy/0.1.0"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create backend store")
	}

	store := cachestore.New(cachestore.Config{})
	defer store.Close()

	// Preferences are optional: without Redis the resolver falls back to
	// the default browsing context.
	var prefStore navigation.PreferenceStore
	var redisClient *redis.Client
	if redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("redis_url", redisURL).Msg("Connected to Redis")
		prefStore = navigation.NewCachedPreferences(
			prefs.NewRedisStore(redisClient, 0, logging.NewLogger("prefs")),
			store,
		)
	}

	coordinator, err := mutation.NewCoordinator(mutation.Config{
		Store:   store,
		Backend: backend,
		Notify: func(message string, severity mutation.Severity) {
			logger.Info().Str("severity", string(severity)).Msg(message)
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create coordinator")
	}

	engine, err := aggregate.NewEngine(aggregate.Config{Store: store, Source: backend})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create aggregate engine")
	}

	srv := &server{
		store:       store,
		backend:     backend,
		coordinator: coordinator,
		engine:      engine,
		resolver:    navigation.NewResolver(prefStore),
		siblings:    navigation.NewSiblingResolver(store),
		prefStore:   prefStore,
		warmer:      pagination.NewWarmer(store, backend, pagination.DefaultConfig(), cachestore.DefaultPolicy()),
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(redisClient, backend))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/navigation/siblings", srv.siblingsHandler)
	mux.HandleFunc("GET /api/navigation/prefs", srv.getPrefsHandler)
	mux.HandleFunc("PUT /api/navigation/prefs", srv.putPrefsHandler)
	mux.HandleFunc("POST /api/{kind}/warm", srv.warmHandler)
	mux.HandleFunc("GET /api/{kind}/aggregate", srv.aggregateHandler)
	mux.HandleFunc("GET /api/{kind}/{id}", srv.detailHandler)
	mux.HandleFunc("PATCH /api/{kind}/{id}", srv.mutateHandler)
	mux.HandleFunc("DELETE /api/{kind}/{id}", srv.deleteHandler)
	mux.HandleFunc("GET /api/{kind}", srv.listHandler)

	addr := ":" + port
	logger.Info().Str("addr", addr).Str("backend_url", backendURL).Msg("Starting glitter proxy")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

type server struct {
	store       *cachestore.Store
	backend     *remote.HTTPStore
	coordinator *mutation.Coordinator
	engine      *aggregate.Engine
	resolver    *navigation.Resolver
	siblings    *navigation.SiblingResolver
	prefStore   navigation.PreferenceStore
	warmer      *pagination.Warmer
	logger      zerolog.Logger
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// readyHandler reports readiness. Redis is optional; when configured it
// must be reachable.
func readyHandler(redisClient *redis.Client, backend *remote.HTTPStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// detailHandler serves an entity, cache first. Stale entries, such as
// those invalidated by a post-mutation reconcile, are refetched rather
// than served.
func (s *server) detailHandler(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	id := r.PathValue("id")
	key := cachekey.Detail(kind, id)

	if entry, ok := s.store.Get(key); ok && !entry.IsStale(time.Now()) {
		if entity, isEntity := entry.Value.(remote.Entity); isEntity {
			writeJSON(w, http.StatusOK, entity)
			return
		}
	}

	entity, err := s.backend.FetchEntity(r.Context(), kind, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	_ = s.store.Set(key, cachestore.KindDetail, entity, cachestore.DefaultPolicy())
	writeJSON(w, http.StatusOK, entity)
}

// listHandler serves one list page, cache first, keyed by the canonical
// encoding of the query.
func (s *server) listHandler(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner query parameter is required", http.StatusBadRequest)
		return
	}

	params := listParamsFromQuery(r)
	key := cachekey.List(kind, owner, cachekey.Digest(params))

	if entry, ok := s.store.Get(key); ok && !entry.IsStale(time.Now()) {
		if list, isList := entry.Value.(remote.ListResult); isList {
			writeJSON(w, http.StatusOK, list)
			return
		}
	}

	list, err := s.backend.FetchList(r.Context(), kind, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	_ = s.store.Set(key, cachestore.KindList, list, cachestore.DefaultPolicy())
	writeJSON(w, http.StatusOK, list)
}

func (s *server) mutateHandler(w http.ResponseWriter, r *http.Request) {
	var patch remote.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid patch body", http.StatusBadRequest)
		return
	}

	result := s.coordinator.Mutate(r.Context(), mutation.Request{
		Kind:    r.PathValue("kind"),
		ID:      r.PathValue("id"),
		OwnerID: r.URL.Query().Get("owner"),
		Patch:   patch,
	})
	s.writeMutationResult(w, result)
}

func (s *server) deleteHandler(w http.ResponseWriter, r *http.Request) {
	result := s.coordinator.Mutate(r.Context(), mutation.Request{
		Kind:    r.PathValue("kind"),
		ID:      r.PathValue("id"),
		OwnerID: r.URL.Query().Get("owner"),
		Delete:  true,
	})
	s.writeMutationResult(w, result)
}

func (s *server) aggregateHandler(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner query parameter is required", http.StatusBadRequest)
		return
	}

	result, err := s.engine.GetAggregate(r.Context(), r.PathValue("kind"), owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts": result.Counts,
		"source": result.Source,
	})
}

// warmHandler prefetches every page of an owner's collection so
// aggregates and sibling navigation can be answered locally.
func (s *server) warmHandler(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner query parameter is required", http.StatusBadRequest)
		return
	}

	warmed, err := s.warmer.WarmLists(r.Context(), r.PathValue("kind"), owner, listParamsFromQuery(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages_warmed": warmed})
}

func (s *server) siblingsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := q.Get("kind")
	owner := q.Get("owner")
	id := q.Get("id")
	if kind == "" || owner == "" || id == "" {
		http.Error(w, "kind, owner and id query parameters are required", http.StatusBadRequest)
		return
	}

	transient := contextFromQuery(r)
	resolved := s.resolver.Resolve(r.Context(), owner, transient)
	siblings := s.siblings.Siblings(kind, owner, id, resolved.Context)

	writeJSON(w, http.StatusOK, map[string]any{
		"provenance":   resolved.Provenance,
		"previous":     siblings.Previous,
		"next":         siblings.Next,
		"has_previous": siblings.HasPrevious,
		"has_next":     siblings.HasNext,
		"is_loading":   siblings.IsLoading,
	})
}

func (s *server) getPrefsHandler(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "user query parameter is required", http.StatusBadRequest)
		return
	}
	if s.prefStore == nil {
		http.Error(w, "preference store not configured", http.StatusNotImplemented)
		return
	}

	nav, found, err := s.prefStore.GetNavigationPreference(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		http.Error(w, "no saved preference", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, nav)
}

func (s *server) putPrefsHandler(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "user query parameter is required", http.StatusBadRequest)
		return
	}
	if s.prefStore == nil {
		http.Error(w, "preference store not configured", http.StatusNotImplemented)
		return
	}

	var nav navigation.Context
	if err := json.NewDecoder(r.Body).Decode(&nav); err != nil {
		http.Error(w, "invalid context body", http.StatusBadRequest)
		return
	}
	if err := s.prefStore.SetNavigationPreference(r.Context(), user, nav); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) writeMutationResult(w http.ResponseWriter, result mutation.Result) {
	status := http.StatusOK
	var errMsg string
	if result.Outcome == mutation.OutcomeRolledBack {
		status = statusForError(result.Err)
		if result.Err != nil {
			errMsg = result.Err.Error()
		}
	}
	writeJSON(w, status, map[string]any{
		"outcome": result.Outcome,
		"entity":  result.Entity,
		"error":   errMsg,
	})
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	s.logger.Warn().Err(err).Msg("Request failed")
	http.Error(w, err.Error(), statusForError(err))
}

func statusForError(err error) int {
	var remoteErr *remote.RemoteError
	if errors.As(err, &remoteErr) && remoteErr.StatusCode > 0 {
		return remoteErr.StatusCode
	}
	return http.StatusBadGateway
}

func listParamsFromQuery(r *http.Request) remote.ListParams {
	q := r.URL.Query()
	params := remote.ListParams{
		SortField:     q.Get("sort"),
		SortDirection: q.Get("direction"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		params.Page = page
	}
	if size, err := strconv.Atoi(q.Get("per_page")); err == nil {
		params.PageSize = size
	}
	for key, values := range q {
		if len(key) > 8 && key[:7] == "filter[" && key[len(key)-1] == ']' && len(values) > 0 {
			if params.Filters == nil {
				params.Filters = make(map[string]any)
			}
			params.Filters[key[7:len(key)-1]] = values[0]
		}
	}
	return params
}

// contextFromQuery builds a transient navigation context from query
// parameters, or nil when none were supplied.
func contextFromQuery(r *http.Request) *navigation.Context {
	params := listParamsFromQuery(r)
	nav := navigation.Context{
		Filters:       params.Filters,
		SortField:     params.SortField,
		SortDirection: params.SortDirection,
		Page:          params.Page,
		PageSize:      params.PageSize,
	}
	if nav.IsZero() {
		return nil
	}
	return &nav
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
