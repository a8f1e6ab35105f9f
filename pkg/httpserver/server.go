package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gomcpgo/superfetch/pkg/auth"
	"github.com/gomcpgo/superfetch/pkg/cache"
	"github.com/gomcpgo/superfetch/pkg/config"
	"github.com/gomcpgo/superfetch/pkg/ratelimit"
	"github.com/gomcpgo/superfetch/pkg/session"
	"github.com/gomcpgo/superfetch/pkg/workerpool"
)

// Server bundles the HTTP Surface (spec.md §4.6): the Streamable HTTP
// transport behind the full middleware stack, the download and health
// routes, and graceful shutdown of every background loop it owns.
type Server struct {
	httpServer *http.Server
	limiter    *ratelimit.Limiter
	sessions   *session.Manager
}

// Build assembles the middleware stack in the exact order spec.md §4.6
// prescribes, mounts the MCP transport handler at /mcp, the download route
// at /mcp/downloads/{namespace}/{hash}, and /health, and wraps it all in an
// *http.Server ready to ListenAndServe.
func Build(cfg *config.Config, mcpHandler http.Handler, c *cache.Cache, sessions *session.Manager, pool *workerpool.Pool, verifier auth.Verifier, startedAt time.Time) *Server {
	allowlist := NewHostAllowlist(cfg.Host, nil)
	limiter := ratelimit.New(cfg.RateLimitMaxRequests, cfg.RateLimitWindow, trustedProxyList(cfg))

	mcpChain := acceptPolicyMiddleware(protocolVersionMiddleware(sessionAdmissionMiddleware(sessions, mcpHandler)))
	mcpChain = rateLimitMiddleware(limiter, mcpChain)
	mcpChain = corsMiddleware(mcpChain)
	mcpChain = requestContextMiddleware(mcpChain)
	mcpChain = jsonParseErrorMiddleware(mcpChain)
	mcpChain = originAllowlistMiddleware(allowlist, mcpChain)
	mcpChain = hostAllowlistMiddleware(allowlist, mcpChain)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpChain)
	mux.HandleFunc("/mcp/downloads/{namespace}/{hash}", downloadHandler(c, cfg.CacheTTL))
	mux.HandleFunc("/health", healthHandler(startedAt, sessions, c, pool, verifier))

	srv := &http.Server{
		Addr:              cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler:           mux,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // SSE streams are long-lived
		IdleTimeout:       120 * time.Second,
	}

	return &Server{httpServer: srv, limiter: limiter, sessions: sessions}
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown implements spec.md §4.6's graceful shutdown sequence: stop the
// rate-limit cleanup loop, abort the session cleanup loop and close every
// session's transport best-effort in parallel, then close the HTTP
// listener. The caller is responsible for the forced-exit timer.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Close()
	s.sessions.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

func trustedProxyList(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.TrustedProxies))
	for ip := range cfg.TrustedProxies {
		out = append(out, ip)
	}
	return out
}
