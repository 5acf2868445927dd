/*
Package report turns lookup results into the text blocks printed to the terminal and appended to
the results file, and into the JSON objects returned by the HTTP service.
*/
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
	"strings"
	"time"

	"github.com/x-stp/domaincheck/internal/lookup"
)

// DateLayout renders as MM-DD-YYYY HH:MM:SS followed by a literal UTC.
const DateLayout = "01-02-2006 15:04:05 UTC"

// NotAvailable is printed for missing values.
const NotAvailable = "N/A"

const separator = "========================================"

// FormatDate renders t in UTC, or N/A for nil and zero times.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return NotAvailable
	}
	return t.UTC().Format(DateLayout)
}

// Age returns the whole years (365-day) and remaining days between created and now.
// ok is false when created is unknown.
func Age(created *time.Time, now time.Time) (years, days int, ok bool) {
	if created == nil || created.IsZero() {
		return 0, 0, false
	}
	total := int(now.Sub(*created).Hours() / 24)
	return total / 365, total % 365, true
}

// AgeString is "X Years, Y Days" or N/A.
func AgeString(created *time.Time, now time.Time) string {
	y, d, ok := Age(created, now)
	if !ok {
		return NotAvailable
	}
	return fmt.Sprintf("%d Years, %d Days", y, d)
}

// DomainAge is the full "Domain Age: ..." line.
func DomainAge(created *time.Time, now time.Time) string {
	return "Domain Age: " + AgeString(created, now)
}

// Availability is the one-line outcome for a domain without a WHOIS record.
func Availability(domain string, available bool) string {
	word := "available"
	if !available {
		word = "not available"
	}
	return fmt.Sprintf("Domain '%s' is %s for registration.", domain, word)
}

// Failure is the one-line outcome for a domain whose WHOIS query failed.
func Failure(domain, msg string) string {
	return fmt.Sprintf("An error occurred while processing '%s': %s", domain, msg)
}

// Text renders res as a report block. It does not end in a newline.
func Text(res *lookup.Result, verbose bool) string {
	switch res.Outcome {
	case lookup.OutcomeAvailable:
		return Availability(res.Domain, true)
	case lookup.OutcomeUnavailable:
		return Availability(res.Domain, false)
	case lookup.OutcomeError:
		return Failure(res.Domain, res.Err)
	}

	reg := res.Registration
	if reg == nil {
		reg = &lookup.Registration{}
	}

	var b strings.Builder
	line := func(format string, args ...any) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, format, args...)
	}

	line("\n%s\n\nDomain: %s", separator, res.Domain)
	line("Registrant Name: %s", orNA(reg.RegistrantName))
	line("Registrant Organization: %s", orNA(reg.RegistrantOrganization))
	line("Registrar: %s", orNA(reg.Registrar))

	line("\nCreation Date: %s", FormatDate(reg.Created))
	line("Expiration Date: %s", FormatDate(reg.Expires))
	line("Updated Date: %s", FormatDate(reg.Updated))

	if len(reg.NameServers) > 0 {
		line("\nName Servers:")
		for _, ns := range reg.NameServers {
			line("  - %s", ns)
		}
	}

	line("\nDNSSEC: %s", dnssec(reg.DNSSEC))

	if len(reg.Emails) > 0 {
		line("\nContact Emails:")
		for _, e := range reg.Emails {
			line("  - %s", e)
		}
	}

	if res.IP != "" {
		line("\nIP Address: %s", res.IP)
		line("Reverse IP: %s", res.ReverseDNS)
	} else {
		line("\nIP Address: Error retrieving IP - %s", res.IPErr)
	}

	line("%s", DomainAge(reg.Created, res.CheckedAt))
	line("Geolocation: %s", Geolocation(res))

	if h := res.HTTP; h != nil {
		if h.Err != "" {
			line("\nHTTP Header Information: %s", h.Err)
		} else {
			line("\nHTTP Header Information:")
			for _, hdr := range h.Headers {
				line("  - %s: %s", hdr.Name, hdr.Value)
			}
		}
	}

	if c := res.TLS; c != nil {
		if c.Err != "" {
			line("\nSSL Information: Error - %s", c.Err)
		} else {
			line("\nSSL Valid from: %s, until: %s", FormatDate(&c.NotBefore), FormatDate(&c.NotAfter))
		}
	}

	if verbose {
		line("\n[Verbose Mode]")
		line("  Domain Status: %s", orNA(strings.Join(reg.Status, ", ")))
		line("  Whois Server: %s", orNA(reg.WhoisServer))
	}

	return b.String()
}

// Geolocation is the value of the "Geolocation:" line.
func Geolocation(res *lookup.Result) string {
	if res.Geo == nil {
		return lookup.GeoUnavailable
	}
	return res.Geo.String()
}

func dnssec(signed bool) string {
	if signed {
		return "signed"
	}
	return "unsigned"
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}
