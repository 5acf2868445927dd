/*
Package domains holds the input side of domaincheck: validating domain strings before they
reach any network call, reading domain lists from text and CSV sources, and small list helpers
(limit, de-duplication) shared by the CLI and the HTTP service.

A domain is accepted when it consists only of ASCII letters, digits, hyphens and dots. No
structural checks are made beyond that; URL syntax such as schemes, ports or paths is rejected.
*/
package domains

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
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/net/publicsuffix"
)

// ErrInvalidDomain is returned for strings containing anything other than [a-zA-Z0-9-.].
var ErrInvalidDomain = errors.New("invalid domain name")

var domainPattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)

// Validate returns the domain unchanged if it is well formed.
func Validate(domain string) (string, error) {
	if !domainPattern.MatchString(domain) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return domain, nil
}

// IsValid reports whether Validate would accept domain.
func IsValid(domain string) bool {
	return domainPattern.MatchString(domain)
}

// Filter drops invalid entries, calling warn (if non-nil) for each one. Order is preserved.
func Filter(list []string, warn func(domain string)) []string {
	return lo.Filter(list, func(d string, _ int) bool {
		if IsValid(d) {
			return true
		}
		if warn != nil {
			warn(d)
		}
		return false
	})
}

// Limit returns the first n entries of list. n <= 0 means no limit.
func Limit(list []string, n int) []string {
	if n <= 0 || n >= len(list) {
		return list
	}
	return list[:n]
}

// Unique removes duplicates, keeping the first occurrence of each domain.
func Unique(list []string) []string {
	return lo.Uniq(list)
}

// Registrable returns the eTLD+1 for domain, which is what registries answer WHOIS
// queries for. Subdomains like "www.example.co.uk" map to "example.co.uk".
// If the public suffix list cannot answer (bare TLDs, IPs), the input is returned as is.
func Registrable(domain string) string {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	etld1, err := publicsuffix.EffectiveTLDPlusOne(d)
	if err != nil || etld1 == "" {
		return domain
	}
	return etld1
}

// ReadFile reads one domain per line from path. Blank lines are skipped and
// surrounding whitespace is trimmed.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open domain list %q: %w", path, err)
	}
	defer f.Close()

	list, err := ReadLines(f)
	if err != nil {
		return nil, fmt.Errorf("failed reading domain list %q: %w", path, err)
	}
	return list, nil
}

// ReadLines reads one domain per line from r.
func ReadLines(r io.Reader) ([]string, error) {
	var list []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		list = append(list, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// ReadCSV treats every non-empty cell of every row as a domain.
// Rows may have differing numbers of fields.
func ReadCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var list []string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed parsing csv: %w", err)
		}
		for _, cell := range row {
			if cell = strings.TrimSpace(cell); cell != "" {
				list = append(list, cell)
			}
		}
	}
	return list, nil
}
