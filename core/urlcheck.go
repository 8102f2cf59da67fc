package core

import (
	"net"
	"strings"
)

// Reserved top-level domains that never host public federation peers.
// https://en.wikipedia.org/wiki/Top-level_domain#Reserved_domains
var reservedTLDs = map[string]struct{}{
	// RFC 3172
	"arpa": {},
	// RFC 6761
	"example":     {},
	"invalid":     {},
	"localhost":   {},
	"test":        {},
	"localdomain": {},
	// RFC 6762
	"local": {},
	// RFC 7686
	"onion": {},
}

// https://url.spec.whatwg.org/#forbidden-host-code-point
const forbiddenHostChars = "\x00\t\n\r #%/:?@[\\]"

// IsPublicURL reports whether a URL plausibly points at a resource on
// the public internet: HTTPS, a dotted domain name rather than an IP
// address or a reserved TLD. Attacker-supplied URLs failing this check
// must not be fetched, so resolution cannot be steered at the local
// network.
func IsPublicURL(url string) bool {
	if !strings.HasPrefix(url, "https://") {
		return false
	}

	host, _, _ := strings.Cut(url[len("https://"):], "/")
	if host == "" || !strings.Contains(host, ".") {
		return false
	}
	if net.ParseIP(host) != nil {
		return false
	}
	if strings.ContainsAny(host, forbiddenHostChars) {
		return false
	}

	tld := host[strings.LastIndex(host, ".")+1:]
	if _, reserved := reservedTLDs[strings.ToLower(tld)]; reserved {
		return false
	}
	return true
}
