package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomcpgo/superfetch/pkg/auth"
	"github.com/gomcpgo/superfetch/pkg/cache"
	"github.com/gomcpgo/superfetch/pkg/ratelimit"
	"github.com/gomcpgo/superfetch/pkg/session"
	"github.com/gomcpgo/superfetch/pkg/workerpool"
)

func TestNormalizeHostHeader(t *testing.T) {
	cases := map[string]string{
		"localhost":          "localhost",
		"localhost:3000":     "localhost",
		"[::1]:3000":         "::1",
		"[::1]":               "::1",
		"EXAMPLE.com, other": "example.com",
		"  spaced.com  ":     "spaced.com",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHostHeader(in), "input=%q", in)
	}
}

func TestHostAllowlist(t *testing.T) {
	al := NewHostAllowlist("127.0.0.1", []string{"trusted.example"})
	assert.True(t, al.Allowed("localhost"))
	assert.True(t, al.Allowed("127.0.0.1:3000"))
	assert.True(t, al.Allowed("trusted.example"))
	assert.False(t, al.Allowed("evil.example"))
}

func TestHostAllowlistMiddlewareRejectsUnknownHost(t *testing.T) {
	al := NewHostAllowlist("127.0.0.1", nil)
	h := hostAllowlistMiddleware(al, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Host = "evil.example"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOriginAllowlistMiddlewarePassesMissingOrigin(t *testing.T) {
	al := NewHostAllowlist("127.0.0.1", nil)
	called := false
	h := originAllowlistMiddleware(al, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOriginAllowlistMiddlewareRejectsDisallowedOrigin(t *testing.T) {
	al := NewHostAllowlist("127.0.0.1", nil)
	h := originAllowlistMiddleware(al, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJSONParseErrorMiddleware(t *testing.T) {
	h := jsonParseErrorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{not valid json`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, float64(-32700), errObj["code"])
}

func TestJSONParseErrorMiddlewarePassesValidJSON(t *testing.T) {
	called := false
	h := jsonParseErrorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSMiddlewareShortCircuitsOptions(t *testing.T) {
	called := false
	h := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.New(1, time.Minute, nil)
	defer limiter.Close()

	h := rateLimitMiddleware(limiter, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "203.0.113.5:1234"

	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, req)
	assert.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.NotEmpty(t, rec2.Header().Get("Retry-After"))
}

func TestAcceptPolicyMiddlewareRewritesMissingAccept(t *testing.T) {
	var seen string
	h := acceptPolicyMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Accept")
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Contains(t, seen, "application/json")
	assert.Contains(t, seen, "text/event-stream")
}

func TestProtocolVersionMiddlewareDefaultsMissingHeader(t *testing.T) {
	var seen string
	h := protocolVersionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("MCP-Protocol-Version")
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, currentProtocolVersion, seen)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtocolVersionMiddlewareRejectsUnsupported(t *testing.T) {
	h := protocolVersionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("MCP-Protocol-Version", "1999-01-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHandlerBasicShape(t *testing.T) {
	sessions := session.New(10, time.Hour, time.Second)
	defer sessions.Shutdown()
	c := cache.New(true, time.Hour, 10)
	defer c.Close()
	pool := workerpool.New(2)
	defer pool.Close()
	verifier := auth.NewStaticVerifier("secret", nil)

	h := healthHandler(time.Now(), sessions, c, pool, verifier)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.ActiveSessions)
}

func TestHealthHandlerVerboseRequiresToken(t *testing.T) {
	sessions := session.New(10, time.Hour, time.Second)
	defer sessions.Shutdown()
	c := cache.New(true, time.Hour, 10)
	defer c.Close()
	pool := workerpool.New(2)
	defer pool.Close()
	verifier := auth.NewStaticVerifier("secret", nil)

	h := healthHandler(time.Now(), sessions, c, pool, verifier)

	req := httptest.NewRequest(http.MethodGet, "/health?verbose=true", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Nil(t, resp.ActiveSessions, "missing bearer token must not unlock verbose fields")

	req2 := httptest.NewRequest(http.MethodGet, "/health?verbose=true", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	h(rec2, req2)

	var resp2 healthResponse
	require.NoError(t, json.NewDecoder(rec2.Body).Decode(&resp2))
	require.NotNil(t, resp2.ActiveSessions)
	assert.Equal(t, 0, *resp2.ActiveSessions)
}

func TestDownloadHandler(t *testing.T) {
	c := cache.New(true, time.Hour, 10)
	defer c.Close()

	wrapper := map[string]string{"url": "https://example.com/articles/my-post", "title": "My Post", "markdown": "# Hello"}
	b, err := json.Marshal(wrapper)
	require.NoError(t, err)
	hash := "abcdef0123456789"
	c.Set("markdown:"+hash, string(b), nil)

	h := downloadHandler(c, time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/downloads/{namespace}/{hash}", h)

	req := httptest.NewRequest(http.MethodGet, "/mcp/downloads/markdown/"+hash, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# Hello")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "my-post.md")
}

func TestDownloadHandlerMissRespondsNotFound(t *testing.T) {
	c := cache.New(true, time.Hour, 10)
	defer c.Close()
	h := downloadHandler(c, time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/downloads/{namespace}/{hash}", h)

	req := httptest.NewRequest(http.MethodGet, "/mcp/downloads/markdown/0000000000000000", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadHandlerRejectsUnknownNamespace(t *testing.T) {
	c := cache.New(true, time.Hour, 10)
	defer c.Close()
	h := downloadHandler(c, time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/downloads/{namespace}/{hash}", h)

	req := httptest.NewRequest(http.MethodGet, "/mcp/downloads/url/0000000000000000", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionAdmissionMiddlewareReservesAndInsertsSlot(t *testing.T) {
	mgr := session.New(10, time.Hour, time.Second)
	defer mgr.Shutdown()

	h := sessionAdmissionMiddleware(mgr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Mcp-Session-Id", "sess-xyz")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := mgr.Get("sess-xyz")
	assert.True(t, ok)
	assert.Equal(t, 0, mgr.InFlight())
}

func TestSessionAdmissionMiddlewareReleasesSlotWhenNoSessionAssigned(t *testing.T) {
	mgr := session.New(10, time.Hour, time.Second)
	defer mgr.Shutdown()

	h := sessionAdmissionMiddleware(mgr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, 0, mgr.InFlight())
	assert.Equal(t, 0, mgr.Count())
}

func TestSessionAdmissionMiddlewareTouchesExistingSession(t *testing.T) {
	mgr := session.New(10, time.Hour, time.Second)
	defer mgr.Shutdown()
	tracker, ok := mgr.ReserveSlot()
	require.True(t, ok)
	mgr.Insert(tracker, "sess-1", noopCloser{})

	h := sessionAdmissionMiddleware(mgr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Mcp-Session-Id", "sess-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	_, ok = mgr.Get("sess-1")
	assert.True(t, ok)
}

func TestSessionAdmissionMiddlewareClosesOnDelete(t *testing.T) {
	mgr := session.New(10, time.Hour, time.Second)
	defer mgr.Shutdown()
	tracker, ok := mgr.ReserveSlot()
	require.True(t, ok)
	mgr.Insert(tracker, "sess-1", noopCloser{})

	h := sessionAdmissionMiddleware(mgr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set("Mcp-Session-Id", "sess-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	_, ok = mgr.Get("sess-1")
	assert.False(t, ok)
}
