// Package credential supplies the bearer token used for uploads.
package credential

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Scope requested by AuthorizeURL.
const Scope = "write_data_points read_data_points"

var ErrNoCredential = errors.New("no credential available")

// Provider hands out the current bearer token.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// TokenStore is the settings subset backing Stored.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
}

// Stored prefers the cached token and falls back to a configured static one.
type Stored struct {
	store    TokenStore
	fallback string
}

func NewStored(store TokenStore, fallback string) *Stored {
	return &Stored{store: store, fallback: fallback}
}

func (s *Stored) Token(ctx context.Context) (string, error) {
	if s.store != nil {
		token, err := s.store.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read cached token: %w", err)
		}
		if token != "" {
			return token, nil
		}
	}
	if s.fallback != "" {
		return s.fallback, nil
	}
	return "", ErrNoCredential
}

// Store caches token for later runs.
func (s *Stored) Store(ctx context.Context, token string) error {
	if s.store == nil {
		return ErrNoCredential
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("empty token: %w", ErrNoCredential)
	}
	return s.store.SetToken(ctx, token)
}

// AuthorizeURL builds the implicit-grant authorization URL for server.
func AuthorizeURL(server, clientID, redirect string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/") + "/oauth/authorize")
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", server, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing scheme or host", server)
	}
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("response_type", "token")
	q.Set("scope", Scope)
	if redirect != "" {
		q.Set("redirect_uri", redirect)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseRedirect extracts access_token from the fragment of the URL the
// authorization server redirected to. A bare token is returned as is.
func ParseRedirect(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty redirect: %w", ErrNoCredential)
	}
	if !strings.Contains(raw, "://") && !strings.Contains(raw, "#") {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	frag, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return "", fmt.Errorf("invalid redirect fragment: %w", err)
	}
	if e := frag.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	token := frag.Get("access_token")
	if token == "" {
		return "", fmt.Errorf("redirect carries no access_token: %w", ErrNoCredential)
	}
	return token, nil
}
