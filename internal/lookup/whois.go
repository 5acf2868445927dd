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
	"sort"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"github.com/samber/lo"

	"github.com/x-stp/domaincheck/internal/domains"
)

const noMatchMarker = "No match for domain"

// WhoisClient is the raw query side of likexian/whois; *whois.Client satisfies it.
type WhoisClient interface {
	Whois(domain string, servers ...string) (string, error)
}

// WhoisAnswer is the interpreted response for one domain.
// Registration is nil unless Outcome is OutcomeRegistered.
type WhoisAnswer struct {
	Outcome      Outcome
	Registration *Registration
}

// WhoisLookup queries and parses WHOIS records.
type WhoisLookup struct {
	client WhoisClient
}

// NewWhoisLookup returns a WhoisLookup backed by likexian/whois with the given timeout.
func NewWhoisLookup(timeout time.Duration) *WhoisLookup {
	c := whois.NewClient()
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &WhoisLookup{client: c}
}

// NewWhoisLookupWithClient is used by tests and callers bringing their own transport.
func NewWhoisLookupWithClient(c WhoisClient) *WhoisLookup {
	return &WhoisLookup{client: c}
}

// Lookup queries the registrable part of domain. Only a failed query returns an error;
// responses that cannot be parsed are treated as an unregistered domain.
func (w *WhoisLookup) Lookup(ctx context.Context, domain string) (*WhoisAnswer, error) {
	target := domains.Registrable(domain)

	type reply struct {
		raw string
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		raw, err := w.client.Whois(target)
		ch <- reply{raw, err}
	}()

	var r reply
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-ch:
	}
	if r.err != nil {
		return nil, fmt.Errorf("whois query for %s: %w", target, r.err)
	}

	return interpret(r.raw), nil
}

// interpret maps a raw WHOIS response to an answer.
func interpret(raw string) *WhoisAnswer {
	info, err := whoisparser.Parse(raw)
	if err != nil {
		// ErrNotFoundDomain and friends, or an unknown format.
		return &WhoisAnswer{Outcome: OutcomeAvailable}
	}
	return classify(raw, &info)
}

// classify decides the outcome of a parsed record.
func classify(raw string, info *whoisparser.WhoisInfo) *WhoisAnswer {
	if info.Domain == nil {
		return &WhoisAnswer{Outcome: OutcomeAvailable}
	}
	noMatch := strings.Contains(raw, noMatchMarker) || lo.SomeBy(info.Domain.Status, func(st string) bool {
		return strings.Contains(st, noMatchMarker)
	})
	if noMatch || len(info.Domain.Status) == 0 {
		// A record that names the domain but carries no status is held by someone.
		if noMatch || info.Domain.Domain == "" {
			return &WhoisAnswer{Outcome: OutcomeAvailable}
		}
		return &WhoisAnswer{Outcome: OutcomeUnavailable}
	}

	return &WhoisAnswer{Outcome: OutcomeRegistered, Registration: fromWhoisInfo(info)}
}

func fromWhoisInfo(info *whoisparser.WhoisInfo) *Registration {
	reg := &Registration{}
	if d := info.Domain; d != nil {
		reg.Domain = d.Domain
		reg.Created = d.CreatedDateInTime
		reg.Expires = d.ExpirationDateInTime
		reg.Updated = d.UpdatedDateInTime
		reg.DNSSEC = d.DNSSec
		reg.Status = d.Status
		reg.WhoisServer = d.WhoisServer
		reg.NameServers = normalizeNameServers(d.NameServers)
	}
	if c := info.Registrant; c != nil {
		reg.RegistrantName = c.Name
		reg.RegistrantOrganization = c.Organization
	}
	if c := info.Registrar; c != nil {
		reg.Registrar = c.Name
	}

	contacts := []*whoisparser.Contact{info.Registrant, info.Administrative, info.Technical, info.Billing, info.Registrar}
	emails := lo.FilterMap(contacts, func(c *whoisparser.Contact, _ int) (string, bool) {
		if c == nil {
			return "", false
		}
		e := strings.TrimSpace(c.Email)
		return e, e != ""
	})
	reg.Emails = lo.Uniq(emails)

	return reg
}

// normalizeNameServers lower-cases, de-duplicates and sorts.
func normalizeNameServers(ns []string) []string {
	out := lo.Uniq(lo.FilterMap(ns, func(s string, _ int) (string, bool) {
		s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
		return s, s != ""
	}))
	sort.Strings(out)
	return out
}
