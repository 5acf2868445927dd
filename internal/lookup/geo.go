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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/x-stp/domaincheck/internal/client"
	"github.com/x-stp/domaincheck/internal/domains"
	"github.com/x-stp/domaincheck/internal/metrics"
)

// DefaultGeoEndpoint is the ip-api JSON endpoint; the address is appended.
const DefaultGeoEndpoint = "http://ip-api.com/json/"

// DefaultGeoRatePerMinute matches the ip-api free tier.
const DefaultGeoRatePerMinute = 45

// GeoConfig configures a Geolocator. Zero values take the defaults.
type GeoConfig struct {
	Endpoint      string
	RatePerMinute int
	CacheTTL      time.Duration
	Client        *http.Client
}

// Geolocator looks up ip-api records, rate limited and cached per address.
type Geolocator struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	cache    *cache.Cache
}

type ipAPIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Geo
}

// NewGeolocator returns a Geolocator for cfg.
func NewGeolocator(cfg GeoConfig) *Geolocator {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeoEndpoint
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = DefaultGeoRatePerMinute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Client == nil {
		cfg.Client = client.GetHTTPClient()
	}
	if !strings.HasSuffix(cfg.Endpoint, "/") {
		cfg.Endpoint += "/"
	}

	return &Geolocator{
		endpoint: cfg.Endpoint,
		client:   cfg.Client,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute),
		cache:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// Locate returns the geolocation record for ip.
func (g *Geolocator) Locate(ctx context.Context, ip string) (*Geo, error) {
	// The address ends up in a URL path; hold it to the same character set as domains.
	if _, err := domains.Validate(ip); err != nil {
		return nil, err
	}
	if v, ok := g.cache.Get(ip); ok {
		metrics.RecordGeoCacheHit()
		return v.(*Geo), nil
	}

	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	metrics.ObserveGeoWait(time.Since(start))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+ip, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", client.UserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geolocation API returned %s", resp.Status)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding geolocation response: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return nil, fmt.Errorf("geolocation API: %s %s", body.Status, body.Message)
	}

	geo := body.Geo
	g.cache.SetDefault(ip, &geo)
	return &geo, nil
}

// String renders the geolocation line value.
func (g *Geo) String() string {
	return fmt.Sprintf("Country: %s, City: %s, ISP: %s", g.Country, g.City, g.ISP)
}
