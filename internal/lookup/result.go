/*
Package lookup implements the per-domain pipeline: a WHOIS query decides whether the domain is
registered, and for registered domains the checker resolves the IPv4 address, looks up reverse
DNS and geolocation, probes the HTTP headers and reads the TLS certificate validity window.

Every stage sits behind a small interface so tests can replace network access with fakes.
Stage failures never abort a check; they are recorded as display text on the Result.
*/
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
	"errors"
	"time"
)

// Outcome classifies a checked domain.
type Outcome string

const (
	// OutcomeRegistered means WHOIS returned a full record.
	OutcomeRegistered Outcome = "registered"
	// OutcomeAvailable means WHOIS had no record for the domain.
	OutcomeAvailable Outcome = "available"
	// OutcomeUnavailable means WHOIS named the domain but reported no status.
	OutcomeUnavailable Outcome = "unavailable"
	// OutcomeError means the WHOIS query itself failed.
	OutcomeError Outcome = "error"
)

// Reverse DNS and geolocation display strings.
const (
	NoReverseRecord = "No reverse DNS record found"
	GeoUnavailable  = "Error retrieving geolocation"
)

// Stage names used for metrics and log fields.
const (
	StageWhois   = "whois"
	StageResolve = "resolve"
	StageReverse = "reverse"
	StageGeo     = "geo"
	StageHeaders = "headers"
	StageTLS     = "tls"
)

var (
	// ErrNoAddress is returned when a name has no A record.
	ErrNoAddress = errors.New("no IPv4 address found")
	// ErrNXDomain is returned when the resolver answers NXDOMAIN.
	ErrNXDomain = errors.New("no such host")
	// ErrNoPTR is returned when an address has no reverse record.
	ErrNoPTR = errors.New("no PTR record")
	// ErrBlockedTarget is returned by the guard dialer for refused addresses.
	ErrBlockedTarget = errors.New("target address is in a blocked range")
)

// Registration is the parsed WHOIS record of a registered domain.
type Registration struct {
	Domain                 string
	RegistrantName         string
	RegistrantOrganization string
	Registrar              string
	Created                *time.Time
	Expires                *time.Time
	Updated                *time.Time
	NameServers            []string
	DNSSEC                 bool
	Emails                 []string
	Status                 []string
	WhoisServer            string
}

// Geo is an ip-api answer.
type Geo struct {
	Country string `json:"country"`
	City    string `json:"city"`
	ISP     string `json:"isp"`
}

// Header is one response header, Value is "Not Available" when absent.
type Header struct {
	Name  string
	Value string
}

// HeaderInfo holds either the key response headers or an error message.
type HeaderInfo struct {
	Headers []Header
	Err     string
}

// CertInfo holds the leaf certificate validity window or an error message.
type CertInfo struct {
	NotBefore time.Time
	NotAfter  time.Time
	Err       string
}

// Result is everything known about one domain after a check.
type Result struct {
	Domain       string
	Outcome      Outcome
	Err          string
	Registration *Registration

	IP         string
	IPErr      string
	ReverseDNS string

	Geo    *Geo
	GeoErr string

	HTTP *HeaderInfo
	TLS  *CertInfo

	CheckedAt time.Time
}
