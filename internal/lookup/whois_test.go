package lookup

import (
	"context"
	"errors"
	"testing"
	"time"

	whoisparser "github.com/likexian/whois-parser"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type fakeWhoisClient struct {
	raw     string
	err     error
	block   chan struct{}
	queried []string
}

func (f *fakeWhoisClient) Whois(domain string, _ ...string) (string, error) {
	f.queried = append(f.queried, domain)
	if f.block != nil {
		<-f.block
	}
	return f.raw, f.err
}

const registeredRecord = `   Domain Name: EXAMPLE.COM
   Registry Domain ID: 2336799_DOMAIN_COM-VRSN
   Registrar WHOIS Server: whois.example-registrar.com
   Registrar URL: http://www.example-registrar.com
   Updated Date: 2024-08-14T07:01:34Z
   Creation Date: 1995-08-14T04:00:00Z
   Registry Expiry Date: 2025-08-13T04:00:00Z
   Registrar: Example Registrar, Inc.
   Registrar IANA ID: 9999
   Domain Status: clientDeleteProhibited https://icann.org/epp#clientDeleteProhibited
   Domain Status: clientTransferProhibited https://icann.org/epp#clientTransferProhibited
   Name Server: B.IANA-SERVERS.NET
   Name Server: A.IANA-SERVERS.NET
   DNSSEC: signedDelegation
>>> Last update of whois database: 2024-09-01T00:00:00Z <<<
`

func TestWhoisLookupQueriesRegistrableDomain(t *testing.T) {
	t.Parallel()
	fake := &fakeWhoisClient{raw: "No match for domain \"WWW.NOPE-EXAMPLE.COM\".\n"}
	w := NewWhoisLookupWithClient(fake)

	ans, err := w.Lookup(context.Background(), "www.nope-example.com")
	assert.NilError(t, err)
	assert.Equal(t, ans.Outcome, OutcomeAvailable)
	assert.Check(t, ans.Registration == nil)
	assert.DeepEqual(t, fake.queried, []string{"nope-example.com"})
}

func TestWhoisLookupRegistered(t *testing.T) {
	t.Parallel()
	w := NewWhoisLookupWithClient(&fakeWhoisClient{raw: registeredRecord})

	ans, err := w.Lookup(context.Background(), "example.com")
	assert.NilError(t, err)
	assert.Equal(t, ans.Outcome, OutcomeRegistered)
	assert.Assert(t, ans.Registration != nil)
	assert.Check(t, is.Equal(ans.Registration.Domain, "example.com"))
	assert.Check(t, is.DeepEqual(ans.Registration.NameServers, []string{"a.iana-servers.net", "b.iana-servers.net"}))
}

func TestWhoisLookupQueryError(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	w := NewWhoisLookupWithClient(&fakeWhoisClient{err: boom})

	_, err := w.Lookup(context.Background(), "example.com")
	assert.Assert(t, errors.Is(err, boom))
	assert.ErrorContains(t, err, "whois query for example.com")
}

func TestWhoisLookupHonoursContext(t *testing.T) {
	t.Parallel()
	fake := &fakeWhoisClient{block: make(chan struct{})}
	defer close(fake.block)
	w := NewWhoisLookupWithClient(fake)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Lookup(ctx, "example.com")
	assert.Assert(t, errors.Is(err, context.DeadlineExceeded))
}

func TestInterpretGarbageIsAvailable(t *testing.T) {
	t.Parallel()
	assert.Equal(t, interpret("").Outcome, OutcomeAvailable)
}

func TestClassifyOutcomes(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name string
		raw  string
		info *whoisparser.WhoisInfo
		want Outcome
	}{
		{
			name: "no match marker in status",
			info: &whoisparser.WhoisInfo{Domain: &whoisparser.Domain{
				Domain: "nope-example.com",
				Status: []string{`No match for domain "NOPE-EXAMPLE.COM".`},
			}},
			want: OutcomeAvailable,
		},
		{
			name: "no match marker in raw text",
			raw:  "No match for domain \"NOPE-EXAMPLE.COM\".\n",
			info: &whoisparser.WhoisInfo{Domain: &whoisparser.Domain{
				Domain: "nope-example.com",
				Status: []string{"ok"},
			}},
			want: OutcomeAvailable,
		},
		{
			name: "named domain without status",
			info: &whoisparser.WhoisInfo{Domain: &whoisparser.Domain{Domain: "held-example.com"}},
			want: OutcomeUnavailable,
		},
		{
			name: "no domain name and no status",
			info: &whoisparser.WhoisInfo{Domain: &whoisparser.Domain{}},
			want: OutcomeAvailable,
		},
		{
			name: "no domain section",
			info: &whoisparser.WhoisInfo{},
			want: OutcomeAvailable,
		},
		{
			name: "status present",
			info: &whoisparser.WhoisInfo{Domain: &whoisparser.Domain{
				Domain: "example.com",
				Status: []string{"clientTransferProhibited"},
			}},
			want: OutcomeRegistered,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ans := classify(tc.raw, tc.info)
			assert.Equal(t, ans.Outcome, tc.want)
			assert.Check(t, is.Equal(ans.Registration != nil, tc.want == OutcomeRegistered))
		})
	}
}

func TestInterpretRawResponses(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name string
		raw  string
		want Outcome
	}{
		{name: "no match response", raw: "No match for domain \"NOPE-EXAMPLE.COM\".\n", want: OutcomeAvailable},
		{name: "registered record", raw: registeredRecord, want: OutcomeRegistered},
		{name: "empty response", raw: "", want: OutcomeAvailable},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, interpret(tc.raw).Outcome, tc.want)
		})
	}
}

func TestFromWhoisInfo(t *testing.T) {
	t.Parallel()
	created := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	info := &whoisparser.WhoisInfo{
		Domain: &whoisparser.Domain{
			Domain:            "example.org",
			Status:            []string{"ok"},
			NameServers:       []string{"NS2.Example.org.", "ns1.example.org", "ns2.example.org", ""},
			DNSSec:            true,
			WhoisServer:       "whois.pir.org",
			CreatedDateInTime: &created,
		},
		Registrar:      &whoisparser.Contact{Name: "Registrar LLC", Email: "abuse@registrar.example"},
		Registrant:     &whoisparser.Contact{Name: "Jane Doe", Organization: "Example Org", Email: "jane@example.org"},
		Administrative: &whoisparser.Contact{Email: "jane@example.org"},
		Technical:      &whoisparser.Contact{Email: " tech@example.org "},
	}

	reg := fromWhoisInfo(info)
	assert.Equal(t, reg.Domain, "example.org")
	assert.Equal(t, reg.RegistrantName, "Jane Doe")
	assert.Equal(t, reg.RegistrantOrganization, "Example Org")
	assert.Equal(t, reg.Registrar, "Registrar LLC")
	assert.Equal(t, reg.WhoisServer, "whois.pir.org")
	assert.Check(t, reg.DNSSEC)
	assert.Check(t, reg.Created.Equal(created))
	assert.Check(t, reg.Expires == nil)
	assert.DeepEqual(t, reg.NameServers, []string{"ns1.example.org", "ns2.example.org"})
	assert.DeepEqual(t, reg.Emails, []string{"jane@example.org", "tech@example.org", "abuse@registrar.example"})
}
