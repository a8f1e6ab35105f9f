// Package auth implements the pluggable bearer-token verifier described in
// SPEC_FULL.md's domain-stack expansion: a "static" mode checking
// ACCESS_TOKENS/API_KEY, and an "oauth" mode performing RFC 7662 token
// introspection.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Verifier validates a bearer token extracted from an Authorization header.
type Verifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// StaticVerifier checks tokens against a fixed, pre-configured set.
type StaticVerifier struct {
	tokens map[string]bool
}

// NewStaticVerifier builds a StaticVerifier from API_KEY and ACCESS_TOKENS.
func NewStaticVerifier(apiKey string, accessTokens []string) *StaticVerifier {
	tokens := make(map[string]bool, len(accessTokens)+1)
	if apiKey != "" {
		tokens[apiKey] = true
	}
	for _, t := range accessTokens {
		t = strings.TrimSpace(t)
		if t != "" {
			tokens[t] = true
		}
	}
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (bool, error) {
	return v.tokens[token], nil
}

// OAuthConfig configures OAuthVerifier.
type OAuthConfig struct {
	IntrospectionURL string
	ClientID         string
	ClientSecret     string
	RequiredScopes   []string
	Timeout          time.Duration
}

// OAuthVerifier validates tokens via RFC 7662 introspection.
type OAuthVerifier struct {
	cfg    OAuthConfig
	client *http.Client
}

func NewOAuthVerifier(cfg OAuthConfig) *OAuthVerifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &OAuthVerifier{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type introspectionResponse struct {
	Active bool   `json:"active"`
	Scope  string `json:"scope"`
}

// Verify POSTs token= to the configured introspection endpoint and checks
// {active: true} plus (if configured) that every required scope is present
// in the space-delimited scope string.
func (v *OAuthVerifier) Verify(ctx context.Context, token string) (bool, error) {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.IntrospectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if v.cfg.ClientID != "" {
		req.SetBasicAuth(v.cfg.ClientID, v.cfg.ClientSecret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("introspection endpoint returned status %d", resp.StatusCode)
	}

	var body introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	if !body.Active {
		return false, nil
	}
	if len(v.cfg.RequiredScopes) == 0 {
		return true, nil
	}

	granted := map[string]bool{}
	for _, s := range strings.Fields(body.Scope) {
		granted[s] = true
	}
	for _, required := range v.cfg.RequiredScopes {
		if !granted[required] {
			return false, nil
		}
	}
	return true, nil
}

// ExtractBearerToken pulls the token out of an Authorization: Bearer header.
func ExtractBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
