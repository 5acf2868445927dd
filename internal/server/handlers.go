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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/x-stp/domaincheck/internal/core"
	"github.com/x-stp/domaincheck/internal/domains"
	"github.com/x-stp/domaincheck/internal/metrics"
	"github.com/x-stp/domaincheck/internal/output"
	"github.com/x-stp/domaincheck/internal/report"
	"github.com/x-stp/domaincheck/internal/util"
)

const waitingMessage = "Waiting for results..."

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("component", "server").Debugf("writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	if core.IsRetryable(err) {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

// batchRequest is a parsed /check_domains form.
type batchRequest struct {
	domains    []string
	verbose    bool
	limit      int
	apiVersion string
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// readUpload parses the multipart form, stores the upload and extracts its domains.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*batchRequest, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", s.cfg.MaxUploadBytes)
		}
		return nil, http.StatusBadRequest, fmt.Errorf("invalid form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("no file uploaded")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, http.StatusBadRequest, errors.New("uploaded file is empty")
	}

	var list []string
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".txt":
		list, err = domains.ReadLines(bytes.NewReader(content))
	case ".csv":
		list, err = domains.ReadCSV(bytes.NewReader(content))
	default:
		return nil, http.StatusBadRequest, errors.New("only .txt and .csv uploads are accepted")
	}
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("preparing upload directory: %w", err)
	}
	stored := filepath.Join(s.cfg.UploadDir, util.ContentAddressedName(content, header.Filename))
	if err := os.WriteFile(stored, content, 0o644); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("storing upload: %w", err)
	}

	req := &batchRequest{
		domains:    domains.Unique(list),
		verbose:    parseBool(r.FormValue("verbose")),
		apiVersion: strings.TrimSpace(r.FormValue("api_version")),
	}
	if v := strings.TrimSpace(r.FormValue("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v)
		}
		req.limit = n
	}

	log.WithFields(log.Fields{
		"component": "server",
		"upload":    stored,
		"domains":   len(req.domains),
	}).Info("Received domain list")
	return req, http.StatusOK, nil
}

func (s *Server) handleCheckDomains(w http.ResponseWriter, r *http.Request) {
	req, code, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, code, err)
		return
	}
	if _, err := report.ParseAPIVersion(req.apiVersion); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(core.Prepare(req.domains, req.limit, nil)) == 0 {
		writeError(w, http.StatusBadRequest, core.ErrNoDomains)
		return
	}

	if !s.slot.TryAcquire(1) {
		writeError(w, http.StatusConflict, core.ErrBatchRunning)
		return
	}
	defer s.slot.Release(1)

	ctx, cancel := context.WithCancel(r.Context())
	s.setCancel(cancel)
	defer func() {
		s.setCancel(nil)
		cancel()
	}()

	logw := log.WithField("component", "batch").WriterLevel(log.DebugLevel)
	defer logw.Close()

	runner := &core.Runner{Checker: s.checker, Out: logw, Plain: true}
	results, err := runner.Run(ctx, req.domains, core.Options{
		Verbose:    req.verbose,
		OutputFile: s.cfg.ResultsFile,
		Limit:      req.limit,
	})
	switch {
	case errors.Is(err, core.ErrBatchRunning):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, context.Canceled):
		log.WithField("component", "server").Warnf("Batch cancelled after %d domains", len(results))
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	body, err := report.MarshalAll(results, req.verbose, req.apiVersion)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleStreamResults(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	done := metrics.StreamClientConnected()
	defer done()

	tailer := output.NewTailer(s.cfg.ResultsFile)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		lines, err := tailer.Poll()
		switch {
		case errors.Is(err, os.ErrNotExist):
			fmt.Fprintf(w, "data: %s\n\n", waitingMessage)
		case err != nil:
			log.WithField("component", "server").Warnf("tailing results: %v", err)
			fmt.Fprintf(w, "data: Error: %s\n\n", err)
			flusher.Flush()
			return
		}
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(line))
			if output.IsSentinel(line) {
				flusher.Flush()
				return
			}
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleDownloadResults(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.cfg.ResultsFile)
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, errors.New("no results yet"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(s.cfg.ResultsFile)))
	http.ServeContent(w, r, filepath.Base(s.cfg.ResultsFile), st.ModTime(), f)
}

func (s *Server) handleDeleteResults(w http.ResponseWriter, r *http.Request) {
	if s.Running() {
		writeError(w, http.StatusConflict, core.ErrBatchRunning)
		return
	}
	err := os.Truncate(s.cfg.ResultsFile, 0)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.CancelBatch() {
		writeError(w, http.StatusNotFound, errors.New("no batch running"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"cancelled": true})
}
