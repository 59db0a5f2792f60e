package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const testIssuer = "https://auth.example.com"

// testKeys serves a one-key JWKS and signs tokens with that key
type testKeys struct {
	private jwk.Key
	server  *httptest.Server
	fetches atomic.Int32
}

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	private, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("Failed to wrap key: %v", err)
	}
	_ = private.Set(jwk.KeyIDKey, "test-key")
	_ = private.Set(jwk.AlgorithmKey, jwa.RS256)

	public, err := jwk.PublicKeyOf(private)
	if err != nil {
		t.Fatalf("Failed to derive public key: %v", err)
	}
	set := jwk.NewSet()
	_ = set.AddKey(public)

	keys := &testKeys{private: private}
	keys.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(keys.server.Close)
	return keys
}

func (k *testKeys) sign(t *testing.T, issuer, subject string, expires time.Time) string {
	t.Helper()

	builder := jwt.NewBuilder().
		Issuer(issuer).
		IssuedAt(time.Now()).
		Expiration(expires).
		Claim("email", "ada@example.com")
	if subject != "" {
		builder = builder.Subject(subject)
	}
	token, err := builder.Build()
	if err != nil {
		t.Fatalf("Failed to build token: %v", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, k.private))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return string(signed)
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()

	keys := newTestKeys(t)
	verifier := NewVerifier(NewJWKSManager(0), testIssuer, keys.server.URL)
	hour := time.Now().Add(time.Hour)

	tests := []struct {
		name      string
		token     string
		expectSub string
		expectErr error
	}{
		{name: "valid", token: keys.sign(t, testIssuer, "auth0|42", hour), expectSub: "auth0|42"},
		{name: "wrong issuer", token: keys.sign(t, "https://evil.example.com", "auth0|42", hour)},
		{name: "expired", token: keys.sign(t, testIssuer, "auth0|42", time.Now().Add(-time.Hour))},
		{name: "no subject", token: keys.sign(t, testIssuer, "", hour), expectErr: ErrMissingSubject},
		{name: "garbage", token: "not.a.token"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := verifier.Verify(context.Background(), tt.token)
			if tt.expectSub == "" {
				if err == nil {
					t.Fatalf("Expected an error, got claims %+v", claims)
				}
				if tt.expectErr != nil && !errors.Is(err, tt.expectErr) {
					t.Errorf("Expected %v, got %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if claims.Sub != tt.expectSub || claims.Email != "ada@example.com" || claims.Iss != testIssuer {
				t.Errorf("Unexpected claims %+v", claims)
			}
		})
	}
}

func TestJWKSManager_Caches(t *testing.T) {
	t.Parallel()

	keys := newTestKeys(t)
	manager := NewJWKSManager(time.Hour)

	for i := 0; i < 3; i++ {
		set, err := manager.GetJWKS(context.Background(), keys.server.URL)
		if err != nil {
			t.Fatalf("GetJWKS() error = %v", err)
		}
		if set.Len() != 1 {
			t.Errorf("Expected 1 key, got %d", set.Len())
		}
	}
	if got := keys.fetches.Load(); got != 1 {
		t.Errorf("Expected one fetch, got %d", got)
	}
}

func TestJWKSManager_Errors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			_, _ = w.Write([]byte("{not json"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	manager := NewJWKSManager(time.Hour)
	for _, path := range []string{"/down", "/broken"} {
		if _, err := manager.GetJWKS(context.Background(), server.URL+path); err == nil {
			t.Errorf("Expected an error for %s", path)
		}
	}
}

func TestClientConfig_HTTPClient(t *testing.T) {
	t.Parallel()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("Expected a client credentials grant, got %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc123","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	var authorization string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
	}))
	defer api.Close()

	config := ClientConfig{ClientID: "cli", ClientSecret: "secret", TokenURL: tokenServer.URL}
	if !config.Enabled() {
		t.Fatal("Expected the client config to be enabled")
	}

	resp, err := config.HTTPClient(context.Background()).Get(api.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_ = resp.Body.Close()

	if authorization != "Bearer abc123" {
		t.Errorf("Expected bearer token, got %q", authorization)
	}

	if (ClientConfig{}).HTTPClient(context.Background()) != http.DefaultClient {
		t.Error("Expected the default client without credentials")
	}
}
