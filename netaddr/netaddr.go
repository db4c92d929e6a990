// Package netaddr holds the small address value type shared by the request builder,
// the acquisition layer, and the pool, so none of them need to agree on *net.TCPAddr
// versus net.Addr versus a bare string.
package netaddr

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// Addr is a resolved TCP endpoint: an IP literal and a port. It is the PoolKey
// ordering prefix described in spec §3 ("IP, port, pooled-time, sequence number").
type Addr struct {
	IP   string
	Port int
}

// String renders host:port, suitable for net.Dial and for the Host header.
func (a Addr) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// Resolve looks up host via resolver (nil means net.DefaultResolver) and returns the
// first resolved address, per spec §4.4 step 4 and §9's open question: "when the
// first resolved socket address fails, the source does not try subsequent addresses."
// An empty lookup result is the caller's cue to fail with InvalidInput.
func Resolve(ctx context.Context, resolver *net.Resolver, host string, port int) (Addr, error) {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if ip := net.ParseIP(host); ip != nil {
		return Addr{IP: ip.String(), Port: port}, nil
	}
	ips, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return Addr{}, err
	}
	if len(ips) == 0 {
		return Addr{}, fmt.Errorf("netaddr: host %q resolved to no addresses", host)
	}
	return Addr{IP: ips[0], Port: port}, nil
}
