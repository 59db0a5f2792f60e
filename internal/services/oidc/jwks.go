// Package oidc verifies bearer tokens issued by an OpenID Connect provider
// and obtains tokens for the CLI through the client credentials flow.
package oidc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// DefaultJWKSTTL is how long a fetched key set is trusted
const DefaultJWKSTTL = time.Hour

// jwksCache is one cached key set
type jwksCache struct {
	keys    jwk.Set
	expires time.Time
}

// JWKSManager manages JWKS fetching and caching
type JWKSManager struct {
	cache      map[string]jwksCache
	mu         sync.RWMutex
	ttl        time.Duration
	httpClient *http.Client
}

// NewJWKSManager creates a new JWKS manager. A zero ttl uses DefaultJWKSTTL.
func NewJWKSManager(ttl time.Duration) *JWKSManager {
	if ttl <= 0 {
		ttl = DefaultJWKSTTL
	}
	return &JWKSManager{
		cache:      make(map[string]jwksCache),
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetJWKS retrieves JWKS for a given JWKS URL, with caching
func (m *JWKSManager) GetJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	m.mu.RLock()
	cached, exists := m.cache[jwksURL]
	m.mu.RUnlock()

	if exists && time.Now().Before(cached.expires) {
		return cached.keys, nil
	}

	keys, err := m.fetchJWKS(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	m.mu.Lock()
	m.cache[jwksURL] = jwksCache{keys: keys, expires: time.Now().Add(m.ttl)}
	m.mu.Unlock()

	return keys, nil
}

func (m *JWKSManager) fetchJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	return keys, nil
}
