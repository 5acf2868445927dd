/*
Package output manages the flat results file shared by the batch driver and the HTTP stream.

A ResultLog truncates the file when a batch starts, appends one report block per domain and
flushes it to disk immediately so readers see progress, then terminates the file with the
Sentinel line. While a batch is writing, the file carries an exclusive advisory lock so a second
writer fails fast with ErrLogBusy. A Tailer follows the file from another goroutine or process.
*/
package output

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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/x-stp/domaincheck/internal/metrics"
)

// Sentinel is the last line of a completed results file.
const Sentinel = "END_OF_RESULTS"

var (
	// ErrLogBusy is returned by Create when another writer holds the results file.
	ErrLogBusy = errors.New("results file is locked by another batch")

	// ErrLogClosed is returned when appending to a closed ResultLog.
	ErrLogClosed = errors.New("results file closed")
)

// LogMetrics holds counters for a ResultLog.
type LogMetrics struct {
	BytesWritten  atomic.Int64
	BlocksWritten atomic.Int64
	ErrorCount    atomic.Int64
	LastWriteTime atomic.Int64 // Unix timestamp in nanoseconds
}

// ResultLog is an append-only results file.
type ResultLog struct {
	path string

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	closed bool

	metrics LogMetrics
}

// Create truncates (or creates) path and takes the writer lock on it.
func Create(path string) (*ResultLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Open without O_TRUNC so a busy file is not emptied under its writer.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file %s: %w", path, err)
	}
	if err := lockFile(file); err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Truncate(0); err != nil {
		unlockFile(file)
		file.Close()
		return nil, fmt.Errorf("failed to truncate results file %s: %w", path, err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		unlockFile(file)
		file.Close()
		return nil, err
	}

	return &ResultLog{
		path: path,
		file: file,
		w:    bufio.NewWriter(file),
	}, nil
}

// Path returns the file path.
func (l *ResultLog) Path() string {
	return l.path
}

// Metrics exposes the log counters.
func (l *ResultLog) Metrics() *LogMetrics {
	return &l.metrics
}

// Append writes block followed by a newline and flushes it to disk.
func (l *ResultLog) Append(block string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}
	if err := l.writeLocked(block + "\n"); err != nil {
		return err
	}
	l.metrics.BlocksWritten.Add(1)
	return nil
}

func (l *ResultLog) writeLocked(s string) error {
	n, err := l.w.WriteString(s)
	if err == nil {
		err = l.w.Flush()
	}
	if err == nil {
		err = l.file.Sync()
	}
	if err != nil {
		l.metrics.ErrorCount.Add(1)
		return fmt.Errorf("failed writing results file %s: %w", l.path, err)
	}

	l.metrics.BytesWritten.Add(int64(n))
	l.metrics.LastWriteTime.Store(time.Now().UnixNano())
	metrics.AddResultBytes(n)
	return nil
}

// Close writes the sentinel line, releases the lock and closes the file.
// Calling Close more than once is a no-op.
func (l *ResultLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	werr := l.writeLocked(Sentinel + "\n")
	unlockFile(l.file)
	cerr := l.file.Close()
	return errors.Join(werr, cerr)
}
