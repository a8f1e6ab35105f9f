// Package config loads the full environment surface described in spec.md
// §6, following the teacher's LoadConfig style: explicit os.Getenv reads,
// strconv parsing, and range validation that returns wrapped errors.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeStatic AuthMode = "static"
	AuthModeOAuth  AuthMode = "oauth"
)

// OAuthConfig groups the OAuth introspection environment surface.
type OAuthConfig struct {
	IssuerURL        string
	AuthorizationURL string
	TokenURL         string
	IntrospectionURL string
	RevocationURL    string
	RegistrationURL  string
	ResourceURL      string
	RequiredScopes   []string
	ClientID         string
	ClientSecret     string
	IntrospectionTTL time.Duration
}

// Config holds the full runtime configuration for the superFetch server.
type Config struct {
	Port      int
	Host      string
	UserAgent string

	CacheEnabled bool
	CacheTTL     time.Duration

	LogLevel string

	APIKey         string
	AccessTokens   []string
	TrustedProxies map[string]struct{}

	AuthMode AuthMode
	OAuth    OAuthConfig

	// Fetcher / transform knobs not individually named by §6 but required
	// to wire the components it does name.
	RequestTimeout   time.Duration
	MaxRedirects     int
	MaxContentLength int64
	FetchRetries     int

	MaxInlineContentChars int
	MaxBlockLength        int
	DefaultMaxKeys        int

	RateLimitMaxRequests int
	RateLimitWindow      time.Duration

	SessionMaxCount    int
	SessionTTL         time.Duration
	SessionInitTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:      3000,
		Host:      "127.0.0.1",
		UserAgent: "superfetch/1.0 (+https://github.com/gomcpgo/superfetch)",

		CacheEnabled: true,
		CacheTTL:     time.Hour,

		LogLevel: "info",

		AuthMode: AuthModeStatic,

		RequestTimeout:   15 * time.Second,
		MaxRedirects:     5,
		MaxContentLength: 10 * 1024 * 1024,
		FetchRetries:     2,

		MaxInlineContentChars: 20000,
		MaxBlockLength:        5000,
		DefaultMaxKeys:        500,

		RateLimitMaxRequests: 100,
		RateLimitWindow:      60 * time.Second,

		SessionMaxCount:    1000,
		SessionTTL:         30 * time.Minute,
		SessionInitTimeout: 10 * time.Second,

		OAuth: OAuthConfig{IntrospectionTTL: 5 * time.Second},
	}

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT value: %s", v)
		}
		if p < 1024 || p > 65535 {
			return nil, fmt.Errorf("PORT must be between 1024 and 65535")
		}
		cfg.Port = p
	}

	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}

	if v := os.Getenv("USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}

	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CACHE_ENABLED value: %s", v)
		}
		cfg.CacheEnabled = enabled
	}

	if v := os.Getenv("CACHE_TTL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CACHE_TTL value: %s", v)
		}
		if secs < 60 || secs > 86400 {
			return nil, fmt.Errorf("CACHE_TTL must be between 60 and 86400 seconds")
		}
		cfg.CacheTTL = time.Duration(secs) * time.Second
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		switch v {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = v
		default:
			return nil, fmt.Errorf("invalid LOG_LEVEL value: %s", v)
		}
	}

	cfg.APIKey = os.Getenv("API_KEY")
	cfg.AccessTokens = splitCommaList(os.Getenv("ACCESS_TOKENS"))

	cfg.TrustedProxies = map[string]struct{}{}
	for _, ip := range splitCommaList(os.Getenv("TRUSTED_PROXIES")) {
		cfg.TrustedProxies[ip] = struct{}{}
	}

	if v := os.Getenv("AUTH_MODE"); v != "" {
		switch AuthMode(v) {
		case AuthModeStatic, AuthModeOAuth:
			cfg.AuthMode = AuthMode(v)
		default:
			return nil, fmt.Errorf("invalid AUTH_MODE value: %s", v)
		}
	}

	cfg.OAuth.IssuerURL = os.Getenv("OAUTH_ISSUER_URL")
	cfg.OAuth.AuthorizationURL = os.Getenv("OAUTH_AUTHORIZATION_URL")
	cfg.OAuth.TokenURL = os.Getenv("OAUTH_TOKEN_URL")
	cfg.OAuth.IntrospectionURL = os.Getenv("OAUTH_INTROSPECTION_URL")
	cfg.OAuth.RevocationURL = os.Getenv("OAUTH_REVOCATION_URL")
	cfg.OAuth.RegistrationURL = os.Getenv("OAUTH_REGISTRATION_URL")
	cfg.OAuth.ResourceURL = os.Getenv("OAUTH_RESOURCE_URL")
	cfg.OAuth.RequiredScopes = splitCommaList(os.Getenv("OAUTH_REQUIRED_SCOPES"))
	cfg.OAuth.ClientID = os.Getenv("OAUTH_CLIENT_ID")
	cfg.OAuth.ClientSecret = os.Getenv("OAUTH_CLIENT_SECRET")

	if v := os.Getenv("OAUTH_INTROSPECTION_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid OAUTH_INTROSPECTION_TIMEOUT_MS value: %s", v)
		}
		if ms < 1000 || ms > 30000 {
			return nil, fmt.Errorf("OAUTH_INTROSPECTION_TIMEOUT_MS must be between 1000 and 30000")
		}
		cfg.OAuth.IntrospectionTTL = time.Duration(ms) * time.Millisecond
	}

	if cfg.AuthMode == AuthModeOAuth && cfg.OAuth.IntrospectionURL == "" {
		return nil, fmt.Errorf("AUTH_MODE=oauth requires OAUTH_INTROSPECTION_URL")
	}

	return cfg, nil
}

func splitCommaList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
