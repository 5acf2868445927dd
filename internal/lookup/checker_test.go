package lookup

import (
	"context"
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/x-stp/domaincheck/internal/domains"
)

type fakeRegistry struct {
	answer *WhoisAnswer
	err    error
}

func (f *fakeRegistry) Lookup(context.Context, string) (*WhoisAnswer, error) {
	return f.answer, f.err
}

type fakeResolver struct {
	ip         string
	ipErr      error
	host       string
	reverseErr error
}

func (f *fakeResolver) LookupIPv4(context.Context, string) (string, error) { return f.ip, f.ipErr }
func (f *fakeResolver) Reverse(context.Context, string) (string, error)    { return f.host, f.reverseErr }

type fakeLocator struct {
	geo *Geo
	err error
}

func (f *fakeLocator) Locate(context.Context, string) (*Geo, error) { return f.geo, f.err }

type fakeHeaders struct{ calls int }

func (f *fakeHeaders) Fetch(context.Context, string) *HeaderInfo {
	f.calls++
	return &HeaderInfo{Headers: []Header{{Name: "Server", Value: "nginx"}}}
}

type fakeCerts struct{ calls int }

func (f *fakeCerts) Fetch(context.Context, string) *CertInfo {
	f.calls++
	return &CertInfo{Err: "x509: certificate has expired"}
}

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestChecker(reg Registry, res AddressResolver) (*Checker, *fakeHeaders, *fakeCerts) {
	h, c := &fakeHeaders{}, &fakeCerts{}
	return &Checker{
		Registry: reg,
		Resolver: res,
		Locator:  &fakeLocator{geo: &Geo{Country: "NL", City: "Amsterdam", ISP: "Example"}},
		Headers:  h,
		Certs:    c,
		Now:      func() time.Time { return fixedNow },
	}, h, c
}

func registered() *fakeRegistry {
	return &fakeRegistry{answer: &WhoisAnswer{Outcome: OutcomeRegistered, Registration: &Registration{Domain: "example.com"}}}
}

func TestCheckRegistered(t *testing.T) {
	t.Parallel()
	c, h, certs := newTestChecker(registered(), &fakeResolver{ip: "192.0.2.1", host: "web.example.com"})

	res, err := c.Check(context.Background(), "example.com")
	assert.NilError(t, err)
	assert.Equal(t, res.Outcome, OutcomeRegistered)
	assert.Equal(t, res.IP, "192.0.2.1")
	assert.Equal(t, res.ReverseDNS, "web.example.com")
	assert.Equal(t, res.Geo.City, "Amsterdam")
	assert.Equal(t, res.GeoErr, "")
	assert.Check(t, res.CheckedAt.Equal(fixedNow))
	assert.Equal(t, h.calls, 1)
	assert.Equal(t, certs.calls, 1)
	assert.Equal(t, res.TLS.Err, "x509: certificate has expired")
}

func TestCheckBasicSkipsProbes(t *testing.T) {
	t.Parallel()
	c, h, certs := newTestChecker(registered(), &fakeResolver{ip: "192.0.2.1", host: "web.example.com"})
	c.Basic = true

	res, err := c.Check(context.Background(), "example.com")
	assert.NilError(t, err)
	assert.Check(t, res.HTTP == nil)
	assert.Check(t, res.TLS == nil)
	assert.Equal(t, h.calls+certs.calls, 0)
}

func TestCheckAvailableStopsAfterWhois(t *testing.T) {
	t.Parallel()
	c, h, _ := newTestChecker(&fakeRegistry{answer: &WhoisAnswer{Outcome: OutcomeAvailable}}, &fakeResolver{ipErr: errors.New("should not be called")})

	res, err := c.Check(context.Background(), "free-example.com")
	assert.NilError(t, err)
	assert.Equal(t, res.Outcome, OutcomeAvailable)
	assert.Equal(t, res.IPErr, "")
	assert.Equal(t, h.calls, 0)
}

func TestCheckWhoisErrorBecomesText(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestChecker(&fakeRegistry{err: errors.New("whois query for example.com: i/o timeout")}, &fakeResolver{})

	res, err := c.Check(context.Background(), "example.com")
	assert.NilError(t, err)
	assert.Equal(t, res.Outcome, OutcomeError)
	assert.Equal(t, res.Err, "whois query for example.com: i/o timeout")
}

func TestCheckUnresolvableDomain(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestChecker(registered(), &fakeResolver{ipErr: ErrNXDomain})

	res, err := c.Check(context.Background(), "example.com")
	assert.NilError(t, err)
	assert.Equal(t, res.IP, "")
	assert.Equal(t, res.IPErr, "no such host")
	assert.Equal(t, res.GeoErr, GeoUnavailable)
	assert.Check(t, res.HTTP != nil)
}

func TestCheckReverseAndGeoFailures(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestChecker(registered(), &fakeResolver{ip: "192.0.2.1", reverseErr: ErrNoPTR})
	c.Locator = &fakeLocator{err: errors.New("geolocation API returned 429 Too Many Requests")}

	res, err := c.Check(context.Background(), "example.com")
	assert.NilError(t, err)
	assert.Equal(t, res.ReverseDNS, NoReverseRecord)
	assert.Equal(t, res.GeoErr, GeoUnavailable)

	c.Resolver = &fakeResolver{ip: "192.0.2.1", reverseErr: errors.New("i/o timeout")}
	res, err = c.Check(context.Background(), "example.com")
	assert.NilError(t, err)
	assert.Check(t, is.Equal(res.ReverseDNS, "Error retrieving hostname - i/o timeout"))
}

func TestCheckRejectsInvalidDomain(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestChecker(registered(), &fakeResolver{})
	_, err := c.Check(context.Background(), "http://example.com")
	assert.Assert(t, errors.Is(err, domains.ErrInvalidDomain))
}

func TestCheckCancelled(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestChecker(registered(), &fakeResolver{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Check(ctx, "example.com")
	assert.Assert(t, errors.Is(err, context.Canceled))
}

func TestNewCheckerBadRanges(t *testing.T) {
	t.Parallel()
	_, err := NewChecker(Options{BlockPrivate: true, BlockedRanges: []string{"bogus"}})
	assert.ErrorContains(t, err, "bogus")

	c, err := NewChecker(Options{Basic: true, DNSServers: []string{"127.0.0.1:53"}})
	assert.NilError(t, err)
	assert.Check(t, c.Basic)
}
