/*
Package client provides the HTTP clients used by the lookup stages.

There are two flavours. The shared client (GetHTTPClient) talks to fixed third-party APIs such
as the geolocation service and is configured once at startup. Probe clients (NewProbeClient) are
built per Checker for requests to the domains under test; they follow redirects, never reuse
connections across targets, and accept a dial hook so callers can refuse certain addresses.
*/
package client

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
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTP client-specific constants.
const (
	// DialTimeout is the maximum amount of time a dial will wait for a connect to complete.
	DialTimeout = 5 * time.Second
	// RequestTimeout is the timeout for an entire API request, including reading the body.
	RequestTimeout = 15 * time.Second
	// ProbeTimeout bounds a single request to a domain under test.
	ProbeTimeout = 10 * time.Second
	// UserAgent is sent on every request.
	UserAgent = "domaincheck/1.1"
)

var (
	defaultDialTimeout      = 5 * time.Second
	defaultKeepAliveTimeout = 60 * time.Second
	defaultIdleConnTimeout  = 90 * time.Second
	defaultMaxIdleConns     = 20
	defaultMaxConnsPerHost  = 10
	defaultRequestTimeout   = 15 * time.Second

	// sharedClient is the global API client. Lazily initialized on first use.
	sharedClient *http.Client
	// sharedClientLock protects sharedClient and clientInitialized.
	sharedClientLock  sync.RWMutex
	clientInitialized bool
)

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config holds configuration parameters for the HTTP clients.
// A zero-value Config results in default settings being used.
type Config struct {
	DialTimeout      time.Duration
	KeepAliveTimeout time.Duration
	IdleConnTimeout  time.Duration
	MaxIdleConns     int
	MaxConnsPerHost  int
	// RequestTimeout is the timeout for the entire HTTP request, including connection time,
	// all redirects, and reading the response body.
	RequestTimeout time.Duration
}

// DefaultConfig returns a new Config struct populated with default HTTP client settings.
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:      defaultDialTimeout,
		KeepAliveTimeout: defaultKeepAliveTimeout,
		IdleConnTimeout:  defaultIdleConnTimeout,
		MaxIdleConns:     defaultMaxIdleConns,
		MaxConnsPerHost:  defaultMaxConnsPerHost,
		RequestTimeout:   defaultRequestTimeout,
	}
}

func (c *Config) fillDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.KeepAliveTimeout == 0 {
		c.KeepAliveTimeout = defaultKeepAliveTimeout
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = defaultIdleConnTimeout
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaultMaxIdleConns
	}
	if c.MaxConnsPerHost == 0 {
		c.MaxConnsPerHost = defaultMaxConnsPerHost
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
}

// InitHTTPClient initializes or reconfigures the shared API client.
// A nil config means DefaultConfig(). Safe for concurrent use.
func InitHTTPClient(config *Config) {
	sharedClientLock.Lock()
	defer sharedClientLock.Unlock()

	if config == nil {
		config = DefaultConfig()
	}
	config.fillDefaults()

	// Close idle connections on the old transport so reconfigs don't leak keep-alives.
	if sharedClient != nil {
		if oldTransport, ok := sharedClient.Transport.(*http.Transport); ok && oldTransport != nil {
			oldTransport.CloseIdleConnections()
		}
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAliveTimeout,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	sharedClient = &http.Client{
		Transport: transport,
		Timeout:   config.RequestTimeout,
	}

	clientInitialized = true
}

// GetHTTPClient returns the shared API client, initializing it with defaults if needed.
func GetHTTPClient() *http.Client {
	sharedClientLock.RLock()
	if !clientInitialized {
		sharedClientLock.RUnlock()
		InitHTTPClient(nil)
		sharedClientLock.RLock()
	}
	client := sharedClient
	sharedClientLock.RUnlock()
	return client
}

// NewProbeClient returns a client for requests to domains under test.
// Keep-alives are disabled since every target is contacted once. If dial is nil a plain
// net.Dialer with the configured timeout is used.
func NewProbeClient(timeout time.Duration, dial DialFunc) *http.Client {
	if timeout <= 0 {
		timeout = ProbeTimeout
	}
	if dial == nil {
		dial = (&net.Dialer{Timeout: DialTimeout}).DialContext
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dial,
			DisableKeepAlives:     true,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
		},
		Timeout: timeout,
	}
}
