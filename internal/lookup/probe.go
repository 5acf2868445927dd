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
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/x-stp/domaincheck/internal/client"
)

// KeyHeaders are the response headers reported for every domain.
var KeyHeaders = []string{"Server", "Content-Type", "Last-Modified"}

// Header probe error messages.
const (
	HeaderConnectFailed = "Could not establish a connection"
	HeaderTimedOut      = "Connection timed out"
	HeaderNotAvailable  = "Not Available"
)

// HeaderProbe fetches http://<domain>/ and keeps the key headers.
type HeaderProbe struct {
	client *http.Client
	// Port overrides 80 when non-zero.
	Port int
}

// NewHeaderProbe builds a probe with its own client. dial may be nil.
func NewHeaderProbe(timeout time.Duration, dial client.DialFunc) *HeaderProbe {
	return &HeaderProbe{client: client.NewProbeClient(timeout, dial)}
}

// Fetch never fails; errors are carried in HeaderInfo.Err.
func (p *HeaderProbe) Fetch(ctx context.Context, domain string) *HeaderInfo {
	host := domain
	if p.Port != 0 {
		host = net.JoinHostPort(domain, strconv.Itoa(p.Port))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+host+"/", nil)
	if err != nil {
		return &HeaderInfo{Err: "Error: " + err.Error()}
	}
	req.Header.Set("User-Agent", client.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return &HeaderInfo{Err: classifyHeaderError(err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	info := &HeaderInfo{Headers: make([]Header, 0, len(KeyHeaders))}
	for _, name := range KeyHeaders {
		v := resp.Header.Get(name)
		if v == "" {
			v = HeaderNotAvailable
		}
		info.Headers = append(info.Headers, Header{Name: name, Value: v})
	}
	return info
}

func classifyHeaderError(err error) string {
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return "Error: " + blocked.Error()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return HeaderTimedOut
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return HeaderConnectFailed
	}
	return "Error: " + err.Error()
}

// CertProbe reads the validity window of the leaf certificate served on port 443.
type CertProbe struct {
	Timeout time.Duration
	// Port overrides 443 when non-zero.
	Port int
	// RootCAs overrides the system pool when set.
	RootCAs *x509.CertPool
	Dial    client.DialFunc
}

// Fetch never fails; errors are carried in CertInfo.Err.
func (p *CertProbe) Fetch(ctx context.Context, domain string) *CertInfo {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = client.ProbeTimeout
	}
	port := p.Port
	if port == 0 {
		port = 443
	}
	dial := p.Dial
	if dial == nil {
		dial = (&net.Dialer{Timeout: timeout}).DialContext
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := dial(ctx, "tcp", net.JoinHostPort(domain, strconv.Itoa(port)))
	if err != nil {
		return &CertInfo{Err: err.Error()}
	}
	defer raw.Close()

	conn := tls.Client(raw, &tls.Config{
		ServerName: domain,
		RootCAs:    p.RootCAs,
		MinVersion: tls.VersionTLS12,
	})
	if err := conn.HandshakeContext(ctx); err != nil {
		return &CertInfo{Err: err.Error()}
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return &CertInfo{Err: fmt.Sprintf("no certificate presented by %s", domain)}
	}
	leaf := certs[0]
	return &CertInfo{NotBefore: leaf.NotBefore.UTC(), NotAfter: leaf.NotAfter.UTC()}
}
