package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for backend requests.
var (
	backendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "og_backend_requests_total",
		Help: "Total backend requests by entity kind, method and status",
	}, []string{"kind", "method", "status"})

	backendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "og_backend_request_duration_seconds",
		Help:    "Backend request duration in seconds by entity kind and method",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"kind", "method"})

	backendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "og_backend_errors_total",
		Help: "Total backend errors by fault class",
	}, []string{"class"})
)

// Config holds the HTTP store configuration.
type Config struct {
	// BaseURL is the root of the hosted backend API, without trailing slash.
	BaseURL string

	// Token is the bearer token for authenticated requests (optional).
	Token string

	// UserAgent identifies this client to the backend.
	UserAgent string

	// Timeout applies per request. Zero means 30 seconds.
	Timeout time.Duration
}

// HTTPStore implements EntityStore and AggregateSource over the hosted
// backend's JSON API.
type HTTPStore struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// NewHTTPStore creates an HTTP-backed entity store.
func NewHTTPStore(cfg Config) (*HTTPStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &HTTPStore{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     log.With().Str("component", "remote").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (s *HTTPStore) SetHTTPClient(client *http.Client) {
	s.httpClient = client
}

// FetchEntity retrieves a single entity by kind and id.
func (s *HTTPStore) FetchEntity(ctx context.Context, kind, id string) (Entity, error) {
	var entity Entity
	path := fmt.Sprintf("/api/%s/%s", kind, id)
	if err := s.do(ctx, http.MethodGet, kind, path, nil, &entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// FetchList retrieves one page of a filtered, sorted list.
func (s *HTTPStore) FetchList(ctx context.Context, kind string, params ListParams) (ListResult, error) {
	var result ListResult
	path := fmt.Sprintf("/api/%s?%s", kind, params.QueryValues().Encode())
	if err := s.do(ctx, http.MethodGet, kind, path, nil, &result); err != nil {
		return ListResult{}, err
	}
	result.Filtered = len(params.Filters) > 0
	return result, nil
}

// MutateEntity applies a partial update and returns the authoritative
// entity, including any server-computed fields.
func (s *HTTPStore) MutateEntity(ctx context.Context, kind, id string, patch Patch) (Entity, error) {
	var entity Entity
	path := fmt.Sprintf("/api/%s/%s", kind, id)
	if err := s.do(ctx, http.MethodPatch, kind, path, patch, &entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// DeleteEntity removes an entity.
func (s *HTTPStore) DeleteEntity(ctx context.Context, kind, id string) error {
	path := fmt.Sprintf("/api/%s/%s", kind, id)
	return s.do(ctx, http.MethodDelete, kind, path, nil, nil)
}

// FetchAggregate retrieves authoritative aggregate counts for an owner.
func (s *HTTPStore) FetchAggregate(ctx context.Context, kind, ownerID string) (map[string]int, error) {
	var counts map[string]int
	path := fmt.Sprintf("/api/%s/aggregate?owner=%s", kind, ownerID)
	if err := s.do(ctx, http.MethodGet, kind, path, nil, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// do executes a single backend request and decodes the JSON response.
// Failures are classified into the fault taxonomy; retry decisions are
// the caller's responsibility.
func (s *HTTPStore) do(ctx context.Context, method, kind, path string, body, out any) error {
	start := time.Now()
	defer func() {
		backendRequestDuration.WithLabelValues(kind, method).Observe(time.Since(start).Seconds())
	}()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		backendErrorsTotal.WithLabelValues(string(FaultNetwork)).Inc()
		backendRequestsTotal.WithLabelValues(kind, method, "network_error").Inc()
		s.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("Backend request failed")
		return &RemoteError{Class: FaultNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	backendRequestsTotal.WithLabelValues(kind, method, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := ClassifyStatus(resp.StatusCode)
		backendErrorsTotal.WithLabelValues(string(class)).Inc()

		message := readErrorMessage(resp)
		s.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Backend request error")

		return &RemoteError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    message,
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		backendErrorsTotal.WithLabelValues(string(FaultServer)).Inc()
		return &RemoteError{
			StatusCode: resp.StatusCode,
			Class:      FaultServer,
			Message:    "invalid response body",
			Err:        err,
		}
	}

	return nil
}

// readErrorMessage extracts the backend's error message, falling back to
// the HTTP status text.
func readErrorMessage(resp *http.Response) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && json.Unmarshal(data, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return resp.Status
}
