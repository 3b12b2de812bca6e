package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	routeerrors "github.com/toolmesh/routecore/internal/errors"
)

// RemoteConfig configures a RemoteEmbedder pointed at an external embedding
// oracle (any HTTP service that accepts a batch of strings and returns
// vectors — a local model server, a hosted API, a sidecar process).
type RemoteConfig struct {
	// Endpoint is the base URL of the embedding oracle, e.g. http://localhost:11434.
	Endpoint string

	// Model is the model identifier to request from the oracle.
	Model string

	// Dimensions is the expected output dimension, reported by Dimensions().
	// Embed/EmbedBatch do not check returned vector lengths against it.
	Dimensions int

	// WarmTimeout bounds requests after the oracle has already served one
	// (model assumed resident). ColdTimeout bounds the first request, where
	// the oracle may still be loading weights.
	WarmTimeout time.Duration
	ColdTimeout time.Duration

	// InterBatchDelay pauses between batches to avoid saturating a
	// resource-constrained oracle process.
	InterBatchDelay time.Duration

	// TimeoutProgression scales the request timeout upward as SetBatchIndex
	// advances; the final batch (SetFinalBatch) gets a further 1.5x.
	TimeoutProgression float64

	// OracleRetries bounds how many times a single EmbedBatch call retries a
	// transient oracle failure (connection refused, 5xx) with backoff before
	// giving up; 0 disables retrying. The caller's own circuit breaker (see
	// Orchestrator.embedQuery) still governs repeated failures across calls.
	OracleRetries int
}

// DefaultRemoteConfig returns sensible defaults for a local oracle endpoint.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Endpoint:           "http://localhost:11434",
		Model:              DefaultModelName,
		Dimensions:         DefaultDimensions,
		WarmTimeout:        DefaultWarmTimeout,
		ColdTimeout:        DefaultColdTimeout,
		InterBatchDelay:    DefaultInterBatchDelay,
		TimeoutProgression: DefaultTimeoutProgression,
		OracleRetries:      2,
	}
}

// RemoteEmbedder calls out to an external embedding oracle over HTTP.
// It treats the oracle as a black box: request in, vectors out. A transient
// failure (unreachable oracle, 5xx) is retried with backoff up to
// cfg.OracleRetries times within one call; circuit-breaking across calls is
// the caller's responsibility (see errors.EmbedderError and
// errors.CircuitBreaker, wired in by Orchestrator.embedQuery).
type RemoteEmbedder struct {
	cfg    RemoteConfig
	client *http.Client

	mu         sync.Mutex
	batchIndex int
	finalBatch bool
	firstCall  bool
}

// NewRemoteEmbedder creates an embedder backed by an external oracle.
// It does not perform I/O; Available performs a lightweight health check.
func NewRemoteEmbedder(_ context.Context, cfg RemoteConfig) (*RemoteEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote embedder: endpoint must not be empty")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.WarmTimeout <= 0 {
		cfg.WarmTimeout = DefaultWarmTimeout
	}
	if cfg.ColdTimeout <= 0 {
		cfg.ColdTimeout = DefaultColdTimeout
	}
	return &RemoteEmbedder{
		cfg:       cfg,
		client:    &http.Client{},
		firstCall: true,
	}, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (e *RemoteEmbedder) timeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	base := e.cfg.WarmTimeout
	if e.firstCall {
		base = e.cfg.ColdTimeout
	}

	progression := e.cfg.TimeoutProgression
	if progression < 1.0 {
		progression = 1.0
	}
	scale := 1.0 + (progression-1.0)*float64(e.batchIndex)/1000.0
	if e.finalBatch {
		scale *= 1.5
	}
	return time.Duration(float64(base) * scale)
}

// Embed generates an embedding for a single text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single oracle call.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if e.cfg.InterBatchDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.cfg.InterBatchDelay):
		}
	}

	timeout := e.timeout()
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("remote embedder: marshal request: %w", err)
	}

	backoffCfg := routeerrors.DefaultBackoffConfig()
	backoffCfg.MaxRetries = e.cfg.OracleRetries
	backoffCfg.InitialDelay = 200 * time.Millisecond
	backoffCfg.MaxDelay = 2 * time.Second
	backoffCfg.Jitter = true

	parsed, err := routeerrors.BackoffResult(reqCtx, backoffCfg, func() (embedResponse, error) {
		return e.sendEmbedRequest(reqCtx, body)
	})
	if err != nil {
		return nil, err
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding oracle returned %d vectors for %d inputs", len(parsed.Embeddings), len(texts))
	}

	e.mu.Lock()
	e.firstCall = false
	e.mu.Unlock()

	for i, vec := range parsed.Embeddings {
		parsed.Embeddings[i] = normalizeVector(vec)
	}
	return parsed.Embeddings, nil
}

// sendEmbedRequest performs one oracle HTTP round trip. Connection failures
// and 5xx responses are returned as plain errors so routeerrors.BackoffResult
// in EmbedBatch can retry them; a non-retryable 4xx or a malformed body is
// still returned the same way; EmbedBatch bounds the retries regardless.
func (e *RemoteEmbedder) sendEmbedRequest(ctx context.Context, body []byte) (embedResponse, error) {
	url := strings.TrimRight(e.cfg.Endpoint, "/") + "/api/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return embedResponse{}, fmt.Errorf("remote embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return embedResponse{}, fmt.Errorf("embedding oracle unreachable at %s: %w", e.cfg.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return embedResponse{}, fmt.Errorf("embedding oracle returned status %s", resp.Status)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return embedResponse{}, fmt.Errorf("remote embedder: decode response: %w", err)
	}
	if parsed.Error != "" {
		return embedResponse{}, fmt.Errorf("embedding oracle error: %s", parsed.Error)
	}
	return parsed, nil
}

// Dimensions returns the configured embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// ModelName returns the configured model identifier.
func (e *RemoteEmbedder) ModelName() string {
	return e.cfg.Model
}

// Available performs a lightweight reachability check against the oracle.
func (e *RemoteEmbedder) Available(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := strings.TrimRight(e.cfg.Endpoint, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases the HTTP client's idle connections.
func (e *RemoteEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// SetBatchIndex records progress through a long ingest run so the timeout
// can progressively widen (embedding oracles backed by local hardware slow
// down under sustained load).
func (e *RemoteEmbedder) SetBatchIndex(idx int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batchIndex = idx
}

// SetFinalBatch marks the final batch of an ingest run, applying an extra
// timeout margin for peak thermal throttling.
func (e *RemoteEmbedder) SetFinalBatch(isFinal bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalBatch = isFinal
}
