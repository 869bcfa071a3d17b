// Package oauth fetches an access token before a run starts so every worker
// begins authenticated.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/studiowebux/loadhook/internal/hooks"
	"github.com/studiowebux/loadhook/internal/state"
)

// TokenRequestTimeout is the timeout for the token exchange
const TokenRequestTimeout = 30 * time.Second

var ErrMissingConfig = errors.New("oauth token url and client id are required")

// Config holds the client credentials grant settings
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string // space separated
}

// Enabled reports whether a preflight was configured
func (c Config) Enabled() bool {
	return c.TokenURL != "" || c.ClientID != ""
}

// Token performs the client credentials exchange
func Token(ctx context.Context, cfg Config, client *http.Client) (*oauth2.Token, error) {
	if cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, ErrMissingConfig
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       strings.Fields(cfg.Scope),
	}

	if client == nil {
		client = &http.Client{Timeout: TokenRequestTimeout}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	token, err := cc.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return token, nil
}

// Preflight fetches a token and stores it in shared as already authenticated,
// under the keys the auth pipeline reads.
func Preflight(ctx context.Context, cfg Config, client *http.Client, shared *state.Shared) (*oauth2.Token, error) {
	if shared == nil {
		return nil, hooks.ErrSharedStateRequired
	}

	token, err := Token(ctx, cfg, client)
	if err != nil {
		return nil, err
	}

	shared.Update(func(values map[string]any) {
		values[hooks.KeyToken] = token.AccessToken
		values[hooks.KeyAuthenticated] = true
	})
	return token, nil
}
