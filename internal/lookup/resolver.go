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
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"
)

// FallbackDNSServers are used when resolv.conf cannot be read.
var FallbackDNSServers = []string{"8.8.8.8:53", "1.1.1.1:53"}

const maxCNAMEHops = 8

// Resolver performs A and PTR lookups against a fixed list of servers, tried in order.
type Resolver struct {
	servers []string
	client  *dns.Client
}

// NewResolver returns a resolver for servers ("host:port"). An empty list means SystemDNSServers.
func NewResolver(servers []string, timeout time.Duration) *Resolver {
	if len(servers) == 0 {
		servers = SystemDNSServers("/etc/resolv.conf")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		servers: servers,
		client:  &dns.Client{Timeout: timeout},
	}
}

// SystemDNSServers reads nameservers from a resolv.conf style file, falling back to
// FallbackDNSServers when the file is missing or empty.
func SystemDNSServers(path string) []string {
	c, err := dns.ClientConfigFromFile(path)
	if err != nil || len(c.Servers) == 0 {
		return FallbackDNSServers
	}
	servers := make([]string, 0, len(c.Servers))
	for _, s := range c.Servers {
		servers = append(servers, net.JoinHostPort(s, c.Port))
	}
	return servers
}

// exchange sends q to each server until one answers with something other than SERVFAIL/REFUSED.
func (r *Resolver) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			log.WithFields(log.Fields{"server": server, "name": name}).Debugf("dns exchange failed: %v", err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		switch in.Rcode {
		case dns.RcodeSuccess, dns.RcodeNameError:
			return in, nil
		default:
			lastErr = fmt.Errorf("%s answered %s", server, dns.RcodeToString[in.Rcode])
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no DNS servers configured")
	}
	return nil, lastErr
}

// LookupIPv4 returns the first A record for domain, following CNAME chains.
func (r *Resolver) LookupIPv4(ctx context.Context, domain string) (string, error) {
	name := domain
	for hop := 0; hop < maxCNAMEHops; hop++ {
		in, err := r.exchange(ctx, name, dns.TypeA)
		if err != nil {
			return "", fmt.Errorf("lookup %s: %w", domain, err)
		}
		if in.Rcode == dns.RcodeNameError {
			return "", fmt.Errorf("lookup %s: %w", domain, ErrNXDomain)
		}

		var cname string
		for _, rr := range in.Answer {
			switch v := rr.(type) {
			case *dns.A:
				return v.A.String(), nil
			case *dns.CNAME:
				if cname == "" {
					cname = v.Target
				}
			}
		}
		if cname == "" {
			break
		}
		name = cname
	}
	return "", fmt.Errorf("lookup %s: %w", domain, ErrNoAddress)
}

// Reverse returns the PTR name for ip without the trailing dot.
func (r *Resolver) Reverse(ctx context.Context, ip string) (string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", err
	}
	in, err := r.exchange(ctx, arpa, dns.TypePTR)
	if err != nil {
		return "", err
	}
	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", ErrNoPTR
}
