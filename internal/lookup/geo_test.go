package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/x-stp/domaincheck/internal/domains"
)

func TestGeolocatorLocateAndCache(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Check(t, r.URL.Path == "/json/192.0.2.1", "path %s", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","country":"Netherlands","city":"Amsterdam","isp":"Example BV","query":"192.0.2.1"}`))
	}))
	defer srv.Close()

	g := NewGeolocator(GeoConfig{Endpoint: srv.URL + "/json", Client: srv.Client()})

	geo, err := g.Locate(context.Background(), "192.0.2.1")
	assert.NilError(t, err)
	assert.Equal(t, geo.String(), "Country: Netherlands, City: Amsterdam, ISP: Example BV")

	_, err = g.Locate(context.Background(), "192.0.2.1")
	assert.NilError(t, err)
	assert.Equal(t, hits.Load(), int32(1))
}

func TestGeolocatorFailStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"private range","query":"10.0.0.1"}`))
	}))
	defer srv.Close()

	g := NewGeolocator(GeoConfig{Endpoint: srv.URL + "/json/", Client: srv.Client()})
	_, err := g.Locate(context.Background(), "10.0.0.1")
	assert.ErrorContains(t, err, "private range")
}

func TestGeolocatorRejectsOddAddresses(t *testing.T) {
	t.Parallel()
	g := NewGeolocator(GeoConfig{Endpoint: "http://127.0.0.1:1/json/"})
	_, err := g.Locate(context.Background(), "1.2.3.4/../admin")
	assert.Assert(t, errors.Is(err, domains.ErrInvalidDomain))
}

func TestGeolocatorRateLimitHonoursContext(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","country":"X","city":"Y","isp":"Z"}`))
	}))
	defer srv.Close()

	// One token per minute, burst of one.
	g := NewGeolocator(GeoConfig{Endpoint: srv.URL + "/json/", RatePerMinute: 1, Client: srv.Client()})
	_, err := g.Locate(context.Background(), "192.0.2.1")
	assert.NilError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Locate(ctx, "192.0.2.2")
	assert.Assert(t, err != nil)
}
