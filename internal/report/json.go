package report

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
	"fmt"

	"github.com/hashicorp/go-version"
	"github.com/liip/sheriff"
	"github.com/samber/lo"

	"github.com/x-stp/domaincheck/internal/lookup"
)

// Output groups selectable by JSON consumers.
const (
	GroupDefault = "default"
	GroupVerbose = "verbose"
)

// CurrentAPIVersion is used when a caller does not ask for one.
const CurrentAPIVersion = "1.1.0"

// Record is the JSON view of a lookup.Result. Fields are filtered by sheriff groups and
// the API version the client asked for.
type Record struct {
	Domain    string `json:"domain" groups:"default,verbose"`
	Available *bool  `json:"available,omitempty" groups:"default,verbose"`
	Error     string `json:"error,omitempty" groups:"default,verbose"`

	Registrar      string   `json:"registrar,omitempty" groups:"default,verbose"`
	CreationDate   string   `json:"creation_date,omitempty" groups:"default,verbose"`
	ExpirationDate string   `json:"expiration_date,omitempty" groups:"default,verbose"`
	Status         []string `json:"status,omitempty" groups:"default,verbose"`

	RegistrantName         string   `json:"registrant_name,omitempty" groups:"verbose"`
	RegistrantOrganization string   `json:"registrant_organization,omitempty" groups:"verbose"`
	UpdatedDate            string   `json:"updated_date,omitempty" groups:"verbose"`
	DNSSEC                 string   `json:"dnssec,omitempty" groups:"verbose"`
	Emails                 []string `json:"emails,omitempty" groups:"verbose"`
	NameServers            []string `json:"name_servers,omitempty" groups:"verbose"`
	WhoisServer            string   `json:"whois_server,omitempty" groups:"verbose"`
	IPAddress              string   `json:"ip_address,omitempty" groups:"verbose"`
	IPError                string   `json:"ip_error,omitempty" groups:"verbose"`
	ReverseIP              string   `json:"reverse_ip,omitempty" groups:"verbose"`
	Geolocation            string   `json:"geolocation,omitempty" groups:"verbose"`
	DomainAge              string   `json:"domain_age,omitempty" groups:"verbose"`

	HTTPHeaders map[string]string `json:"http_headers,omitempty" groups:"verbose" since:"1.1.0"`
	HTTPError   string            `json:"http_error,omitempty" groups:"verbose" since:"1.1.0"`
	SSLFrom     string            `json:"ssl_valid_from,omitempty" groups:"verbose" since:"1.1.0"`
	SSLUntil    string            `json:"ssl_valid_until,omitempty" groups:"verbose" since:"1.1.0"`
	SSLError    string            `json:"ssl_error,omitempty" groups:"verbose" since:"1.1.0"`
}

// NewRecord flattens res into a Record.
func NewRecord(res *lookup.Result) *Record {
	rec := &Record{Domain: res.Domain}

	switch res.Outcome {
	case lookup.OutcomeAvailable:
		rec.Available = lo.ToPtr(true)
		return rec
	case lookup.OutcomeUnavailable:
		rec.Available = lo.ToPtr(false)
		return rec
	case lookup.OutcomeError:
		rec.Error = res.Err
		return rec
	}

	if reg := res.Registration; reg != nil {
		rec.Registrar = reg.Registrar
		rec.CreationDate = FormatDate(reg.Created)
		rec.ExpirationDate = FormatDate(reg.Expires)
		rec.UpdatedDate = FormatDate(reg.Updated)
		rec.Status = reg.Status
		rec.RegistrantName = reg.RegistrantName
		rec.RegistrantOrganization = reg.RegistrantOrganization
		rec.DNSSEC = dnssec(reg.DNSSEC)
		rec.Emails = reg.Emails
		rec.NameServers = reg.NameServers
		rec.WhoisServer = reg.WhoisServer
		rec.DomainAge = AgeString(reg.Created, res.CheckedAt)
	}

	rec.IPAddress = res.IP
	rec.IPError = res.IPErr
	rec.ReverseIP = res.ReverseDNS
	rec.Geolocation = Geolocation(res)

	if h := res.HTTP; h != nil {
		rec.HTTPError = h.Err
		if h.Err == "" {
			rec.HTTPHeaders = lo.Associate(h.Headers, func(hdr lookup.Header) (string, string) {
				return hdr.Name, hdr.Value
			})
		}
	}
	if c := res.TLS; c != nil {
		rec.SSLError = c.Err
		if c.Err == "" {
			rec.SSLFrom = FormatDate(&c.NotBefore)
			rec.SSLUntil = FormatDate(&c.NotAfter)
		}
	}
	return rec
}

// ParseAPIVersion parses a client supplied version. An empty string means CurrentAPIVersion.
func ParseAPIVersion(s string) (*version.Version, error) {
	if s == "" {
		s = CurrentAPIVersion
	}
	v, err := version.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid api version %q: %w", s, err)
	}
	return v, nil
}

// Marshal returns the sheriff-filtered form of res, ready for encoding/json.
// An empty apiVersion means CurrentAPIVersion.
func Marshal(res *lookup.Result, verbose bool, apiVersion string) (interface{}, error) {
	v, err := ParseAPIVersion(apiVersion)
	if err != nil {
		return nil, err
	}

	group := GroupDefault
	if verbose {
		group = GroupVerbose
	}
	return sheriff.Marshal(&sheriff.Options{
		Groups:     []string{group},
		ApiVersion: v,
	}, NewRecord(res))
}

// MarshalAll is Marshal over a batch, preserving order.
func MarshalAll(results []*lookup.Result, verbose bool, apiVersion string) ([]interface{}, error) {
	out := make([]interface{}, 0, len(results))
	for _, r := range results {
		m, err := Marshal(r, verbose, apiVersion)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
