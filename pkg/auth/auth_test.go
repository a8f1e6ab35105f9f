package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier("api-key-1", []string{"tok-a", "tok-b"})

	ok, err := v.Verify(context.Background(), "api-key-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(context.Background(), "tok-b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	token, ok := ExtractBearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc123", token)

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	_, ok = ExtractBearerToken(req2)
	assert.False(t, ok)
}

func TestOAuthVerifier_ActiveWithRequiredScopes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "good-token", r.FormValue("token"))
		json.NewEncoder(w).Encode(map[string]interface{}{"active": true, "scope": "read write"})
	}))
	defer srv.Close()

	v := NewOAuthVerifier(OAuthConfig{IntrospectionURL: srv.URL, RequiredScopes: []string{"read"}, Timeout: time.Second})
	ok, err := v.Verify(context.Background(), "good-token")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOAuthVerifier_MissingScopeFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"active": true, "scope": "read"})
	}))
	defer srv.Close()

	v := NewOAuthVerifier(OAuthConfig{IntrospectionURL: srv.URL, RequiredScopes: []string{"write"}})
	ok, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOAuthVerifier_Inactive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"active": false})
	}))
	defer srv.Close()

	v := NewOAuthVerifier(OAuthConfig{IntrospectionURL: srv.URL})
	ok, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}
