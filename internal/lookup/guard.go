package lookup

/*
domaincheck — WHOIS, DNS, geolocation and TLS lookups for lists of domains
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"fmt"
	"net"

	"github.com/zmap/go-iptree/iptree"
)

// DefaultBlockedRanges are the IPv4 ranges refused by the guard: this-network, RFC1918,
// CGNAT, loopback, link-local and multicast.
var DefaultBlockedRanges = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"224.0.0.0/4",
}

// BlockedError is returned by Guard.DialContext for a refused address.
type BlockedError struct {
	IP net.IP
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("target address %s is in a blocked range", e.IP)
}

// Is makes errors.Is(err, ErrBlockedTarget) hold.
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlockedTarget
}

// Guard refuses connections to addresses in a set of blocked ranges.
// IPv6 addresses are checked against the loopback, unique-local, link-local and
// unspecified classes.
type Guard struct {
	tree   *iptree.IPTree
	dialer *net.Dialer
}

// NewGuard builds a guard for cidrs. An empty list means DefaultBlockedRanges.
func NewGuard(cidrs []string) (*Guard, error) {
	if len(cidrs) == 0 {
		cidrs = DefaultBlockedRanges
	}
	t := iptree.New()
	for _, c := range cidrs {
		if err := t.AddByString(c, c); err != nil {
			return nil, fmt.Errorf("invalid blocked range %q: %w", c, err)
		}
	}
	return &Guard{tree: t, dialer: &net.Dialer{}}, nil
}

// Blocked reports whether ip falls in a refused range.
func (g *Guard) Blocked(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		_, found, err := g.tree.GetByString(v4.String())
		return err == nil && found
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() || ip.IsMulticast()
}

// DialContext resolves addr and dials the first permitted address.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, ip := range ips {
		if g.Blocked(ip) {
			lastErr = &BlockedError{IP: ip}
			continue
		}
		conn, err := g.dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses for %s", host)
	}
	return nil, lastErr
}
