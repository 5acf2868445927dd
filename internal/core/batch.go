/*
Package core drives batches of domain checks. A Runner takes a list of domains, drops the invalid
ones with a warning, applies the limit, and checks each remaining domain in input order. Every
block is printed as soon as it is ready and, when an output file is configured, appended to it.
The output file always ends with the sentinel line, including when the batch is cancelled.
*/
package core

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
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/x-stp/domaincheck/internal/domains"
	"github.com/x-stp/domaincheck/internal/lookup"
	"github.com/x-stp/domaincheck/internal/metrics"
	"github.com/x-stp/domaincheck/internal/output"
	"github.com/x-stp/domaincheck/internal/report"
)

// Checker checks a single domain.
type Checker interface {
	Check(ctx context.Context, domain string) (*lookup.Result, error)
}

// Options controls a single Run.
type Options struct {
	Verbose bool
	// OutputFile is truncated at the start of the run and receives every block.
	OutputFile string
	// Limit keeps the first Limit valid domains; <= 0 keeps all.
	Limit int
}

// Runner processes domain lists sequentially.
type Runner struct {
	Checker Checker
	// Out receives progress lines, warnings and report blocks. Nil means os.Stdout.
	Out io.Writer
	// Plain disables terminal colours.
	Plain bool
}

// Prepare filters and limits list the way Run does, reporting each invalid entry to warn.
func Prepare(list []string, limit int, warn func(domain string)) []string {
	return domains.Limit(domains.Filter(list, warn), limit)
}

// Run checks every domain in list and returns the results in input order.
// Pipeline failures become report text; Run itself fails only when the output file cannot be
// created or written, or when ctx is cancelled (results so far are still returned).
func (r *Runner) Run(ctx context.Context, list []string, opts Options) ([]*lookup.Result, error) {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}
	progress, good, bad := r.palette()

	list = Prepare(list, opts.Limit, func(d string) {
		metrics.RecordSkipped()
		fmt.Fprintln(out, bad(fmt.Sprintf("Warning: Skipping invalid domain '%s'", d)))
	})

	// The results file is reset and terminated even when nothing is left to check.
	var rlog *output.ResultLog
	if opts.OutputFile != "" {
		l, err := output.Create(opts.OutputFile)
		if err != nil {
			if errors.Is(err, output.ErrLogBusy) {
				return nil, NewStageError("output", fmt.Errorf("%w: %w", ErrBatchRunning, err), true)
			}
			return nil, NewStageError("output", err, false)
		}
		rlog = l
		defer rlog.Close()
	}
	if len(list) == 0 {
		return nil, ErrNoDomains
	}

	done := metrics.BatchStarted()
	defer done()

	logger := log.WithFields(log.Fields{"component": "batch", "domains": len(list)})
	logger.Info("Starting batch")
	start := time.Now()

	results := make([]*lookup.Result, 0, len(list))
	var runErr error
	for i, d := range list {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		fmt.Fprintln(out, progress(fmt.Sprintf("Processing domain %d/%d: %s", i+1, len(list), d)))

		res, err := r.Checker.Check(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			res = &lookup.Result{Domain: d, Outcome: lookup.OutcomeError, Err: err.Error(), CheckedAt: time.Now()}
		}
		results = append(results, res)

		block := report.Text(res, opts.Verbose)
		switch res.Outcome {
		case lookup.OutcomeAvailable:
			fmt.Fprintln(out, good(block))
		case lookup.OutcomeError:
			fmt.Fprintln(out, bad(block))
		default:
			fmt.Fprintln(out, block)
		}

		if rlog != nil {
			if err := rlog.Append(block); err != nil {
				return results, NewStageError("output", err, false)
			}
		}
	}

	if rlog != nil {
		if err := rlog.Close(); err != nil {
			return results, NewStageError("output", err, false)
		}
	}

	logger.WithFields(log.Fields{
		"checked":  len(results),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Info("Batch finished")

	return results, runErr
}

// palette returns the formatters for progress lines, good news and bad news.
func (r *Runner) palette() (progress, good, bad func(a ...interface{}) string) {
	if r.Plain {
		plain := func(a ...interface{}) string { return fmt.Sprint(a...) }
		return plain, plain, plain
	}
	return color.New(color.FgCyan).SprintFunc(),
		color.New(color.FgGreen).SprintFunc(),
		color.New(color.FgRed).SprintFunc()
}
