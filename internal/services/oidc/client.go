package oidc

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientConfig names a machine client registered with the provider
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Enabled reports whether the client credentials flow is configured
func (c ClientConfig) Enabled() bool {
	return c.ClientID != "" && c.TokenURL != ""
}

// TokenSource returns a cached, self-refreshing token source for the client credentials flow
func (c ClientConfig) TokenSource(ctx context.Context) oauth2.TokenSource {
	config := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
	return config.TokenSource(ctx)
}

// HTTPClient returns a client that sends a bearer token with every request.
// Without client credentials, http.DefaultClient is returned.
func (c ClientConfig) HTTPClient(ctx context.Context) *http.Client {
	if !c.Enabled() {
		return http.DefaultClient
	}
	return oauth2.NewClient(ctx, c.TokenSource(ctx))
}
