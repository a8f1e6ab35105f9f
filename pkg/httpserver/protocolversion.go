package httpserver

import "net/http"

// supportedProtocolVersions lists the MCP protocol versions this server
// understands, newest first. currentProtocolVersion is what a request with
// no MCP-Protocol-Version header is assumed to want.
var supportedProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

var currentProtocolVersion = supportedProtocolVersions[0]

func isSupportedProtocolVersion(v string) bool {
	for _, s := range supportedProtocolVersions {
		if s == v {
			return true
		}
	}
	return false
}

// protocolVersionMiddleware implements spec.md §4.6's MCP-Protocol-Version
// handling: a missing header defaults to the current version (the MCP SDK
// handler reads it back off the request), an unsupported one is a 400
// JSON-RPC error.
func protocolVersionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := r.Header.Get("MCP-Protocol-Version")
		if v == "" {
			r.Header.Set("MCP-Protocol-Version", currentProtocolVersion)
			next.ServeHTTP(w, r)
			return
		}
		if !isSupportedProtocolVersion(v) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      nil,
				"error": map[string]interface{}{
					"code":    -32600,
					"message": "Unsupported protocol version: " + v,
				},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
