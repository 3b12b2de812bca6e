package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderRemote calls out to an external embedding oracle over HTTP
	// (a local model server, a hosted API, a sidecar process).
	ProviderRemote ProviderType = "remote"

	// ProviderStatic uses hash-based embeddings. Deterministic and
	// dependency-free; used for tests and as a last-resort fallback when no
	// oracle endpoint is configured.
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder for the given provider and model.
// The ROUTECORE_EMBEDDER environment variable overrides provider selection:
//   - "remote": RemoteEmbedder against ROUTECORE_EMBED_ENDPOINT
//   - "static": hash-based embedder at Static768Dimensions
//
// Query embedding caching is enabled by default (saves 50-200ms per
// repeated query). Set ROUTECORE_EMBED_CACHE=false to disable it.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	if envProvider := os.Getenv("ROUTECORE_EMBEDDER"); envProvider != "" {
		provider = ParseProvider(envProvider)
	}

	var embedder Embedder
	var err error

	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder768()
	default:
		embedder, err = newRemoteWithEnv(ctx, model)
	}
	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}
	return embedder, nil
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("ROUTECORE_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// newRemoteWithEnv builds a RemoteEmbedder, applying environment overrides
// on top of the default oracle configuration.
func newRemoteWithEnv(ctx context.Context, model string) (Embedder, error) {
	cfg := DefaultRemoteConfig()
	if model != "" {
		cfg.Model = model
	}
	if endpoint := os.Getenv("ROUTECORE_EMBED_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if modelOverride := os.Getenv("ROUTECORE_EMBED_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}

	embedder, err := NewRemoteEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding oracle unavailable: %w\n\nTo fix:\n  1. Start an embedding oracle at %s\n  2. Or use --offline to switch to the static embedder", err, cfg.Endpoint)
	}
	return embedder, nil
}

// NewDefaultEmbedder creates a static embedder (768 dimensions).
//
// Deprecated: ignores user configuration; prefer
// NewEmbedder(ctx, ParseProvider(cfg.Vector.EmbedderProvider), cfg.Vector.EmbedderModel).
func NewDefaultEmbedder(ctx context.Context) (Embedder, error) {
	return NewEmbedder(ctx, ProviderStatic, "")
}

// ParseProvider converts a string to ProviderType.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "static":
		return ProviderStatic
	default:
		return ProviderRemote
	}
}

// String returns the string representation of ProviderType.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderRemote), string(ProviderStatic)}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo contains information about an embedder.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder, unwrapping a CachedEmbedder
// to classify the underlying provider.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *RemoteEmbedder:
		info.Provider = ProviderRemote
	default:
		info.Provider = ProviderStatic
	}
	return info
}

// MustNewEmbedder creates an embedder and panics on failure.
// Use only in tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType, model string) Embedder {
	embedder, err := NewEmbedder(ctx, provider, model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
