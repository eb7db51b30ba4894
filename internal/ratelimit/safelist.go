package ratelimit

import (
	"fmt"
	"net/netip"
)

// Safelist is a set of CIDR ranges whose clients bypass the safety-net
// rule. Named per-endpoint rules are not bypassed.
type Safelist struct {
	prefixes []netip.Prefix
}

// NewSafelist parses CIDR strings into a Safelist.
func NewSafelist(cidrs []string) (Safelist, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return Safelist{}, fmt.Errorf("invalid safelist CIDR %q: %w", cidr, err)
		}
		prefixes = append(prefixes, prefix)
	}
	return Safelist{prefixes: prefixes}, nil
}

// Contains reports whether ip falls in any safelisted range.
// Unparseable addresses are never safelisted.
func (s Safelist) Contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range s.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
