package httpserver

import (
	"net/http"

	"github.com/gomcpgo/superfetch/pkg/apperrors"
	"github.com/gomcpgo/superfetch/pkg/session"
)

// noopCloser stands in for the transport handle session.Manager expects:
// the Streamable HTTP handler owns the actual transport lifecycle, so the
// Manager here only tracks admission/LRU/TTL bookkeeping keyed by session
// ID, not the transport itself.
type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// headerCapturingWriter observes the Mcp-Session-Id response header an
// initialize response assigns, without buffering the body (the streamable
// transport may stream SSE over the same response).
type headerCapturingWriter struct {
	http.ResponseWriter
	sessionID string
	wroteHead bool
}

func (w *headerCapturingWriter) WriteHeader(status int) {
	if !w.wroteHead {
		w.sessionID = w.Header().Get("Mcp-Session-Id")
		w.wroteHead = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *headerCapturingWriter) Write(b []byte) (int, error) {
	if !w.wroteHead {
		w.sessionID = w.Header().Get("Mcp-Session-Id")
		w.wroteHead = true
	}
	return w.ResponseWriter.Write(b)
}

// sessionAdmissionMiddleware implements spec.md §4.5's slot admission
// protocol at the HTTP boundary: a request with no Mcp-Session-Id is an
// initialize attempt and must reserve a slot before reaching the MCP
// transport; the resulting session ID (assigned by the transport) is then
// inserted into the Manager so later requests can be touched and closed.
// Requests that already carry a session ID are touched instead of
// re-admitted; DELETE closes the session after the transport handles it.
func sessionAdmissionMiddleware(mgr *session.Manager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		existing := r.Header.Get("Mcp-Session-Id")

		if existing != "" {
			mgr.Touch(existing)
			if r.Method == http.MethodDelete {
				next.ServeHTTP(w, r)
				mgr.Close(existing)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		slot, ok := mgr.ReserveSlot()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      nil,
				"error":   map[string]interface{}{"code": -32000, "message": apperrors.New(apperrors.KindInternal, 503, "SESSION_CAPACITY", "session capacity exceeded").Message},
			})
			return
		}

		hw := &headerCapturingWriter{ResponseWriter: w}
		next.ServeHTTP(hw, r)

		if hw.sessionID != "" {
			mgr.Insert(slot, hw.sessionID, noopCloser{})
		} else {
			slot.Release()
		}
	})
}
