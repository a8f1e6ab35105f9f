package urlguard

import "net/netip"

// cidrBlocksV4 and cidrBlocksV6 enumerate the private/reserved ranges
// spec.md §4.1 requires.
var cidrBlocksV4 = mustParsePrefixes([]string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"224.0.0.0/4",
	"240.0.0.0/4",
})

var cidrBlocksV6 = mustParsePrefixes([]string{
	"::/128",
	"::1/128",
	"::ffff:0:0/96",
	"64:ff9b::/96",
	"64:ff9b:1::/48",
	"2001::/32",
	"2002::/16",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
})

// literalBlocklist is the set of hostnames rejected outright regardless of
// DNS resolution, per §4.1.
var literalBlocklist = map[string]struct{}{
	"localhost":                {},
	"127.0.0.1":                {},
	"::1":                      {},
	"0.0.0.0":                  {},
	"169.254.169.254":          {},
	"metadata.google.internal": {},
	"metadata.azure.com":       {},
	"100.100.100.200":          {},
	"instance-data":            {},
}

func mustParsePrefixes(cidrs []string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p := netip.MustParsePrefix(c)
		out = append(out, p)
	}
	return out
}

// IsLiteralBlocked reports whether host (already lowercased) is in the
// literal blocklist or ends in a reserved pseudo-TLD.
func IsLiteralBlocked(host string) bool {
	if _, ok := literalBlocklist[host]; ok {
		return true
	}
	return hasSuffix(host, ".local") || hasSuffix(host, ".internal")
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// IsBlockedIP reports whether ip falls in any blocked CIDR range. IPv4-mapped
// IPv6 addresses are normalized to their IPv4 form before the check, as
// required so the two representations always agree.
func IsBlockedIP(ip netip.Addr) bool {
	if ip.Is4In6() {
		ip = ip.Unmap()
	}
	if ip.Is4() {
		for _, p := range cidrBlocksV4 {
			if p.Contains(ip) {
				return true
			}
		}
		return false
	}
	for _, p := range cidrBlocksV6 {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
