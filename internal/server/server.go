/*
Package server exposes the batch driver over HTTP. A client uploads a domain list to
/check_domains and receives the JSON results when the batch completes. Meanwhile the same batch
appends text blocks to the shared results file, which /stream_results relays as server-sent
events until the end-of-results sentinel. Only one batch runs at a time.
*/
package server

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
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/x-stp/domaincheck/internal/core"
	"github.com/x-stp/domaincheck/internal/metrics"
)

// Config configures a Server. Zero values take the defaults.
type Config struct {
	UploadDir      string
	ResultsFile    string
	PollInterval   time.Duration
	MaxUploadBytes int64
	// ShutdownTimeout bounds graceful shutdown in Run.
	ShutdownTimeout time.Duration
}

func (c *Config) fillDefaults() {
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.ResultsFile == "" {
		c.ResultsFile = "output/output.txt"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 10 << 20
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server is the HTTP front end.
type Server struct {
	cfg     Config
	checker core.Checker
	router  *mux.Router

	// slot admits one batch at a time.
	slot *semaphore.Weighted

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// New builds a Server that runs batches with checker.
func New(cfg Config, checker core.Checker) *Server {
	cfg.fillDefaults()
	s := &Server{
		cfg:     cfg,
		checker: checker,
		slot:    semaphore.NewWeighted(1),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(countRequests)
	r.HandleFunc("/check_domains", s.handleCheckDomains).Methods(http.MethodPost)
	r.HandleFunc("/stream_results", s.handleStreamResults).Methods(http.MethodGet)
	r.HandleFunc("/results", s.handleDownloadResults).Methods(http.MethodGet)
	r.HandleFunc("/results", s.handleDeleteResults).Methods(http.MethodDelete)
	r.HandleFunc("/cancel", s.handleCancel).Methods(http.MethodPost)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then cancels any running batch and shuts down.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so open event streams do not hold up shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", addr).Info("Starting HTTP service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.CancelBatch()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		log.Info("Shutting down HTTP service...")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// CancelBatch stops the running batch, if any. Reports whether one was running.
func (s *Server) CancelBatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Running reports whether a batch is in progress.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// setCancel records the running batch's cancel func; nil marks the batch finished.
func (s *Server) setCancel(c context.CancelFunc) {
	s.mu.Lock()
	s.cancel = c
	s.running = c != nil
	s.mu.Unlock()
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps event streams working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.RecordRequest(route, rec.code)
	})
}
