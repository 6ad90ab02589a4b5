// Package sampler draws random publicly routable IPv4 addresses.
package sampler

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"net/netip"

	"go4.org/netipx"
)

// Reserved lists the IPv4 blocks that are never sampled.
var Reserved = []string{
	"0.0.0.0/8",          // this network
	"10.0.0.0/8",         // private
	"100.64.0.0/10",      // carrier grade NAT
	"127.0.0.0/8",        // loopback
	"169.254.0.0/16",     // link local
	"172.16.0.0/12",      // private
	"192.0.0.0/24",       // IETF protocol assignments
	"192.0.2.0/24",       // TEST-NET-1
	"192.88.99.0/24",     // 6to4 relay anycast
	"192.168.0.0/16",     // private
	"198.18.0.0/15",      // benchmarking
	"198.51.100.0/24",    // TEST-NET-2
	"203.0.113.0/24",     // TEST-NET-3
	"224.0.0.0/4",        // multicast
	"240.0.0.0/4",        // reserved
	"255.255.255.255/32", // broadcast
}

// Sampler produces addresses uniformly over the allowed set.
// It is safe for concurrent use when its source is.
type Sampler struct {
	allowed *netipx.IPSet
	rnd     func() uint32
}

// New builds a sampler over the public IPv4 space minus Reserved and the extra
// exclusions (CIDR prefixes or single addresses).
func New(exclude ...string) (*Sampler, error) {
	allowed, err := buildSet(exclude)
	if err != nil {
		return nil, err
	}

	return &Sampler{allowed: allowed, rnd: rand.Uint32}, nil
}

// WithSource replaces the entropy source, mostly for deterministic tests.
func (s *Sampler) WithSource(src rand.Source) *Sampler {
	r := rand.New(src)
	return &Sampler{allowed: s.allowed, rnd: r.Uint32}
}

// Next returns a random allowed address. Rejection sampling keeps the
// distribution uniform over the allowed set.
func (s *Sampler) Next() netip.Addr {
	var b [4]byte
	for {
		binary.BigEndian.PutUint32(b[:], s.rnd())
		addr := netip.AddrFrom4(b)
		if s.allowed.Contains(addr) {
			return addr
		}
	}
}

// Contains reports whether addr can be produced by the sampler.
func (s *Sampler) Contains(addr netip.Addr) bool {
	return s.allowed.Contains(addr.Unmap())
}

var public = func() *netipx.IPSet {
	set, err := buildSet(nil)
	if err != nil {
		panic(err)
	}
	return set
}()

// IsPublic reports whether addr is an IPv4 address outside every Reserved block.
func IsPublic(addr netip.Addr) bool {
	return public.Contains(addr.Unmap())
}

func buildSet(exclude []string) (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	b.AddPrefix(netip.MustParsePrefix("0.0.0.0/0"))

	for _, p := range Reserved {
		b.RemovePrefix(netip.MustParsePrefix(p))
	}

	for _, raw := range exclude {
		prefix, err := parsePrefix(raw)
		if err != nil {
			return nil, err
		}
		b.RemovePrefix(prefix)
	}

	set, err := b.IPSet()
	if err != nil {
		return nil, err
	}
	if len(set.Prefixes()) == 0 {
		return nil, fmt.Errorf("no addresses left to sample")
	}

	return set, nil
}

func parsePrefix(raw string) (netip.Prefix, error) {
	if prefix, err := netip.ParsePrefix(raw); err == nil {
		if !prefix.Addr().Is4() {
			return netip.Prefix{}, fmt.Errorf("exclude %q: only IPv4 is supported", raw)
		}
		return prefix.Masked(), nil
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil || !addr.Is4() {
		return netip.Prefix{}, fmt.Errorf("invalid exclude %q", raw)
	}

	return netip.PrefixFrom(addr, 32), nil
}
