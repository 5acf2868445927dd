package lookup

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
	"gotest.tools/v3/assert"
)

// startDNSServer runs handler on a loopback UDP port for the duration of the test.
func startDNSServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	assert.NilError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func zoneHandler(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	q := r.Question[0]

	add := func(s string) {
		rr, err := dns.NewRR(s)
		if err == nil {
			m.Answer = append(m.Answer, rr)
		}
	}

	switch {
	case q.Name == "example.test." && q.Qtype == dns.TypeA:
		add("example.test. 60 IN A 192.0.2.10")
		add("example.test. 60 IN A 192.0.2.11")
	case q.Name == "www.example.test." && q.Qtype == dns.TypeA:
		add("www.example.test. 60 IN CNAME example.test.")
	case q.Name == "loop.example.test." && q.Qtype == dns.TypeA:
		add("loop.example.test. 60 IN CNAME loop.example.test.")
	case q.Name == "v6only.example.test.":
		// NOERROR, no answers
	case q.Name == "10.2.0.192.in-addr.arpa." && q.Qtype == dns.TypePTR:
		add("10.2.0.192.in-addr.arpa. 60 IN PTR host.example.test.")
	default:
		m.Rcode = dns.RcodeNameError
	}
	_ = w.WriteMsg(m)
}

func servfailHandler(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetRcode(r, dns.RcodeServerFailure)
	_ = w.WriteMsg(m)
}

func TestResolverLookupIPv4(t *testing.T) {
	addr := startDNSServer(t, zoneHandler)
	r := NewResolver([]string{addr}, time.Second)
	ctx := context.Background()

	ip, err := r.LookupIPv4(ctx, "example.test")
	assert.NilError(t, err)
	assert.Equal(t, ip, "192.0.2.10")

	ip, err = r.LookupIPv4(ctx, "www.example.test")
	assert.NilError(t, err)
	assert.Equal(t, ip, "192.0.2.10")

	_, err = r.LookupIPv4(ctx, "missing.example.test")
	assert.Assert(t, errors.Is(err, ErrNXDomain), "got %v", err)

	_, err = r.LookupIPv4(ctx, "v6only.example.test")
	assert.Assert(t, errors.Is(err, ErrNoAddress), "got %v", err)

	_, err = r.LookupIPv4(ctx, "loop.example.test")
	assert.Assert(t, errors.Is(err, ErrNoAddress), "got %v", err)
}

func TestResolverFallsThroughServfail(t *testing.T) {
	bad := startDNSServer(t, servfailHandler)
	good := startDNSServer(t, zoneHandler)
	r := NewResolver([]string{bad, good}, time.Second)

	ip, err := r.LookupIPv4(context.Background(), "example.test")
	assert.NilError(t, err)
	assert.Equal(t, ip, "192.0.2.10")

	r = NewResolver([]string{bad}, time.Second)
	_, err = r.LookupIPv4(context.Background(), "example.test")
	assert.ErrorContains(t, err, "SERVFAIL")
}

func TestResolverReverse(t *testing.T) {
	addr := startDNSServer(t, zoneHandler)
	r := NewResolver([]string{addr}, time.Second)

	host, err := r.Reverse(context.Background(), "192.0.2.10")
	assert.NilError(t, err)
	assert.Equal(t, host, "host.example.test")

	_, err = r.Reverse(context.Background(), "192.0.2.99")
	assert.Assert(t, errors.Is(err, ErrNoPTR), "got %v", err)

	_, err = r.Reverse(context.Background(), "not-an-ip")
	assert.Assert(t, err != nil)
}

func TestSystemDNSServers(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "resolv.conf")
	assert.NilError(t, os.WriteFile(path, []byte("nameserver 9.9.9.9\nnameserver 2620:fe::fe\n"), 0o644))

	assert.DeepEqual(t, SystemDNSServers(path), []string{"9.9.9.9:53", "[2620:fe::fe]:53"})
	assert.DeepEqual(t, SystemDNSServers(filepath.Join(t.TempDir(), "missing")), FallbackDNSServers)
}
