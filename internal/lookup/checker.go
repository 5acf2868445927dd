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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/x-stp/domaincheck/internal/domains"
	"github.com/x-stp/domaincheck/internal/metrics"
)

// Registry answers WHOIS questions.
type Registry interface {
	Lookup(ctx context.Context, domain string) (*WhoisAnswer, error)
}

// AddressResolver resolves forward and reverse DNS.
type AddressResolver interface {
	LookupIPv4(ctx context.Context, domain string) (string, error)
	Reverse(ctx context.Context, ip string) (string, error)
}

// Locator geolocates an address.
type Locator interface {
	Locate(ctx context.Context, ip string) (*Geo, error)
}

// HeaderFetcher returns the key HTTP response headers for a domain.
type HeaderFetcher interface {
	Fetch(ctx context.Context, domain string) *HeaderInfo
}

// CertFetcher returns the TLS certificate validity window for a domain.
type CertFetcher interface {
	Fetch(ctx context.Context, domain string) *CertInfo
}

// Options configures NewChecker. Zero values take the defaults.
type Options struct {
	WhoisTimeout time.Duration
	DNSTimeout   time.Duration
	ProbeTimeout time.Duration
	DNSServers   []string

	GeoEndpoint      string
	GeoRatePerMinute int
	GeoCacheTTL      time.Duration

	// BlockPrivate refuses header and TLS probes to addresses in BlockedRanges.
	BlockPrivate  bool
	BlockedRanges []string

	// Basic skips the HTTP header and TLS stages.
	Basic bool
}

// Checker runs the per-domain pipeline.
type Checker struct {
	Registry Registry
	Resolver AddressResolver
	Locator  Locator
	Headers  HeaderFetcher
	Certs    CertFetcher

	// Basic skips Headers and Certs.
	Basic bool
	// Now is the clock used for CheckedAt.
	Now func() time.Time
}

// NewChecker wires the network-backed stages from opts.
func NewChecker(opts Options) (*Checker, error) {
	headers := NewHeaderProbe(opts.ProbeTimeout, nil)
	certs := &CertProbe{Timeout: opts.ProbeTimeout}

	if opts.BlockPrivate {
		g, err := NewGuard(opts.BlockedRanges)
		if err != nil {
			return nil, err
		}
		headers = NewHeaderProbe(opts.ProbeTimeout, g.DialContext)
		certs.Dial = g.DialContext
	}

	return &Checker{
		Registry: NewWhoisLookup(opts.WhoisTimeout),
		Resolver: NewResolver(opts.DNSServers, opts.DNSTimeout),
		Locator: NewGeolocator(GeoConfig{
			Endpoint:      opts.GeoEndpoint,
			RatePerMinute: opts.GeoRatePerMinute,
			CacheTTL:      opts.GeoCacheTTL,
		}),
		Headers: headers,
		Certs:   certs,
		Basic:   opts.Basic,
		Now:     time.Now,
	}, nil
}

// Check runs every stage for domain. Only an invalid domain or a cancelled context
// produce an error; stage failures are recorded on the Result.
func (c *Checker) Check(ctx context.Context, domain string) (*Result, error) {
	if _, err := domains.Validate(domain); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	res := &Result{Domain: domain, CheckedAt: now()}
	logger := log.WithFields(log.Fields{"component": "checker", "domain": domain})

	done := metrics.MeasureStage(StageWhois)
	answer, err := c.Registry.Lookup(ctx, domain)
	done(err)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		logger.WithField("stage", StageWhois).Debugf("lookup failed: %v", err)
		res.Outcome = OutcomeError
		res.Err = err.Error()
		metrics.RecordOutcome(string(res.Outcome))
		return res, nil
	}

	res.Outcome = answer.Outcome
	if answer.Outcome != OutcomeRegistered {
		metrics.RecordOutcome(string(res.Outcome))
		return res, nil
	}
	res.Registration = answer.Registration

	c.resolve(ctx, res, logger)

	if !c.Basic {
		done = metrics.MeasureStage(StageHeaders)
		res.HTTP = c.Headers.Fetch(ctx, domain)
		done(stageErr(res.HTTP.Err))

		done = metrics.MeasureStage(StageTLS)
		res.TLS = c.Certs.Fetch(ctx, domain)
		done(stageErr(res.TLS.Err))
	}

	metrics.RecordOutcome(string(res.Outcome))
	return res, nil
}

// resolve fills the address, reverse DNS and geolocation fields.
func (c *Checker) resolve(ctx context.Context, res *Result, logger *log.Entry) {
	done := metrics.MeasureStage(StageResolve)
	ip, err := c.Resolver.LookupIPv4(ctx, res.Domain)
	done(err)
	if err != nil {
		logger.WithField("stage", StageResolve).Debugf("lookup failed: %v", err)
		res.IPErr = err.Error()
		res.GeoErr = GeoUnavailable
		return
	}
	res.IP = ip

	done = metrics.MeasureStage(StageReverse)
	host, err := c.Resolver.Reverse(ctx, ip)
	done(err)
	switch {
	case errors.Is(err, ErrNoPTR):
		res.ReverseDNS = NoReverseRecord
	case err != nil:
		res.ReverseDNS = fmt.Sprintf("Error retrieving hostname - %v", err)
	default:
		res.ReverseDNS = host
	}

	done = metrics.MeasureStage(StageGeo)
	geo, err := c.Locator.Locate(ctx, ip)
	done(err)
	if err != nil {
		logger.WithField("stage", StageGeo).Debugf("lookup failed: %v", err)
		res.GeoErr = GeoUnavailable
		return
	}
	res.Geo = geo
}

func stageErr(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
