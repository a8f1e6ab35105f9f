package httpserver

import (
	"net"
	"strings"
)

// HostAllowlist implements spec.md §4.6's Host/Origin allowlist middleware
// set: loopback addresses, the configured bind host (unless it is the
// wildcard bind address), and any explicitly configured extra hosts.
type HostAllowlist struct {
	allowed map[string]bool
}

func NewHostAllowlist(configuredHost string, extra []string) *HostAllowlist {
	allowed := map[string]bool{
		"localhost": true,
		"127.0.0.1": true,
		"::1":       true,
	}
	if configuredHost != "" && configuredHost != "0.0.0.0" && configuredHost != "::" {
		allowed[strings.ToLower(configuredHost)] = true
	}
	for _, h := range extra {
		allowed[strings.ToLower(strings.TrimSpace(h))] = true
	}
	return &HostAllowlist{allowed: allowed}
}

// Allowed normalizes a raw Host or Origin-hostname value (first
// comma-separated entry, IPv6 bracket stripping, port stripping, lowercase)
// and reports whether it is in the allowlist.
func (h *HostAllowlist) Allowed(raw string) bool {
	host := NormalizeHostHeader(raw)
	if host == "" {
		return false
	}
	return h.allowed[host]
}

// NormalizeHostHeader implements the exact normalization spec.md §4.6
// prescribes for the Host header: take the first comma-separated value,
// strip IPv6 brackets, strip a trailing port (but not from a bracketless
// IPv6 literal), lowercase.
func NormalizeHostHeader(raw string) string {
	first := raw
	if idx := strings.Index(raw, ","); idx >= 0 {
		first = raw[:idx]
	}
	first = strings.TrimSpace(first)
	if first == "" {
		return ""
	}

	if strings.HasPrefix(first, "[") {
		// Bracketed IPv6, optionally with a port: [::1]:8080
		if end := strings.Index(first, "]"); end >= 0 {
			return strings.ToLower(first[1:end])
		}
		return strings.ToLower(first)
	}

	// Bracketless: could be "host:port" or a bare IPv6 literal (multiple
	// colons, no brackets) which must NOT have a "port" stripped from it.
	if strings.Count(first, ":") == 1 {
		if host, _, err := net.SplitHostPort(first); err == nil {
			return strings.ToLower(host)
		}
	}
	return strings.ToLower(first)
}
