package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gomcpgo/superfetch/pkg/logging"
	"github.com/gomcpgo/superfetch/pkg/ratelimit"
)

type ctxKey struct{}

// requestContext carries the ambient request/session IDs spec.md §4.6's
// "request context" middleware attaches for downstream logging.
type requestContext struct {
	RequestID string
	SessionID string
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeHostRejection(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusForbidden, map[string]string{"error": code, "code": code})
}

// hostAllowlistMiddleware implements stack step 1: Host header allowlist.
func hostAllowlistMiddleware(allowlist *HostAllowlist, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowlist.Allowed(r.Host) {
			writeHostRejection(w, "HOST_NOT_ALLOWED")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowlistMiddleware implements stack step 2: Origin allowlist.
// Missing Origin passes (MCP clients are typically non-browser).
func originAllowlistMiddleware(allowlist *HostAllowlist, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		u, err := url.Parse(origin)
		if err != nil || u.Hostname() == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !allowlist.Allowed(u.Hostname()) {
			writeHostRejection(w, "ORIGIN_NOT_ALLOWED")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonParseErrorMiddleware implements stack step 3: a malformed JSON body
// on POST is rejected with a JSON-RPC -32700 parse error before it reaches
// the MCP transport, per spec.md §4.6/§7.
func jsonParseErrorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      nil,
				"error":   map[string]interface{}{"code": -32700, "message": "Parse error: Invalid JSON"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestContextMiddleware implements stack step 4: assigns a request ID,
// attaches a session ID if present, and stores an ambient logger in
// context for downstream handlers (spec.md §9's ambient-context design
// note).
func requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := requestContext{RequestID: uuid.NewString(), SessionID: r.Header.Get("Mcp-Session-Id")}
		ctx := context.WithValue(r.Context(), ctxKey{}, rc)
		kv := []interface{}{"request_id", rc.RequestID}
		if rc.SessionID != "" {
			kv = append(kv, "session_id", rc.SessionID)
		}
		ctx = logging.WithFields(ctx, kv...)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware implements stack step 5: short-circuits OPTIONS with 200
// and no further CORS headers (MCP clients are not browsers).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware implements stack step 6: fixed-window per-IP
// limiting on /mcp.
func rateLimitMiddleware(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)
		result := limiter.Allow(ip, time.Now())
		if !result.Allowed {
			w.Header().Set("Retry-After", formatSeconds(result.RetryAfter))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded", "code": "RATE_LIMITED"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// acceptPolicyMiddleware rewrites a missing/bare Accept header on POST
// /mcp to what the Streamable HTTP transport requires, per spec.md §4.6.
func acceptPolicyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			accept := r.Header.Get("Accept")
			if accept == "" || accept == "*/*" || !(containsToken(accept, "application/json") && containsToken(accept, "text/event-stream")) {
				r.Header.Set("Accept", "application/json, text/event-stream")
			}
		}
		next.ServeHTTP(w, r)
	})
}

func containsToken(header, token string) bool {
	return bytes.Contains([]byte(header), []byte(token))
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 0 {
		secs = 0
	}
	return strconv.Itoa(secs)
}
