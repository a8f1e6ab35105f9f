package httpserver

import (
	"net/http"
	"time"

	"github.com/gomcpgo/superfetch/pkg/auth"
	"github.com/gomcpgo/superfetch/pkg/cache"
	"github.com/gomcpgo/superfetch/pkg/session"
	"github.com/gomcpgo/superfetch/pkg/workerpool"
)

const serverName = "superfetch"

// ServerVersion is set at build time; defaulted here for dev builds.
var ServerVersion = "dev"

type healthResponse struct {
	Status string `json:"status"`
	Name   string `json:"name"`
	Version string `json:"version"`
	Uptime float64 `json:"uptime"`

	ActiveSessions *int              `json:"activeSessions,omitempty"`
	CacheKeys      *int              `json:"cacheKeys,omitempty"`
	WorkerPool     *workerpool.Stats `json:"workerPool,omitempty"`
}

// healthHandler implements GET /health per spec.md §4.6: always the basic
// shape, and a verbose shape gated on ?verbose=true plus a valid bearer
// token.
func healthHandler(startedAt time.Time, sessions *session.Manager, c *cache.Cache, pool *workerpool.Pool, verifier auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:  "ok",
			Name:    serverName,
			Version: ServerVersion,
			Uptime:  time.Since(startedAt).Seconds(),
		}

		if r.URL.Query().Get("verbose") == "true" && verifier != nil {
			token, ok := auth.ExtractBearerToken(r)
			if ok {
				if valid, err := verifier.Verify(r.Context(), token); err == nil && valid {
					activeSessions := sessions.Count()
					cacheKeys := len(c.Keys())
					stats := pool.Stats()
					resp.ActiveSessions = &activeSessions
					resp.CacheKeys = &cacheKeys
					resp.WorkerPool = &stats
				}
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
