/*
Package proc finds and terminates a running domaincheck batch from outside the process, by
matching the command lines of running processes.
*/
package proc

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
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

// DefaultPattern matches batches started through the CLI.
const DefaultPattern = "domaincheck"

// ErrNotFound is returned when no process matched.
var ErrNotFound = errors.New("no running script found")

// Process is the subset of a running process Kill needs.
type Process interface {
	PID() int32
	Cmdline(ctx context.Context) ([]string, error)
	Terminate(ctx context.Context) error
}

// Lister enumerates running processes.
type Lister interface {
	Processes(ctx context.Context) ([]Process, error)
}

// Match is a terminated process.
type Match struct {
	PID     int32
	Cmdline string
}

// Killer terminates processes matching a pattern.
type Killer struct {
	lister Lister
	self   int32
}

// NewKiller returns a Killer backed by the host process table.
func NewKiller() *Killer {
	return NewKillerWithLister(hostLister{})
}

// NewKillerWithLister is used by tests and callers with their own process source.
func NewKillerWithLister(l Lister) *Killer {
	return &Killer{lister: l, self: int32(os.Getpid())}
}

// Kill sends SIGTERM to the first process whose command line contains pattern, or to all of
// them when all is set. The calling process is never matched. Returns ErrNotFound if nothing
// was terminated.
func (k *Killer) Kill(ctx context.Context, pattern string, all bool) ([]Match, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	procs, err := k.lister.Processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var killed []Match
	for _, p := range procs {
		if p.PID() == k.self {
			continue
		}
		args, err := p.Cmdline(ctx)
		if err != nil || len(args) == 0 {
			// Exited, zombie, or not ours to inspect.
			continue
		}
		cmdline := strings.Join(args, " ")
		if !strings.Contains(cmdline, pattern) {
			continue
		}

		if err := p.Terminate(ctx); err != nil {
			log.WithFields(log.Fields{"pid": p.PID(), "cmdline": cmdline}).Warnf("terminate failed: %v", err)
			continue
		}
		killed = append(killed, Match{PID: p.PID(), Cmdline: cmdline})
		if !all {
			break
		}
	}

	if len(killed) == 0 {
		return nil, ErrNotFound
	}
	return killed, nil
}

type hostLister struct{}

func (hostLister) Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		out = append(out, hostProcess{p})
	}
	return out, nil
}

type hostProcess struct {
	p *process.Process
}

func (h hostProcess) PID() int32 { return h.p.Pid }

func (h hostProcess) Cmdline(ctx context.Context) ([]string, error) {
	return h.p.CmdlineSliceWithContext(ctx)
}

func (h hostProcess) Terminate(ctx context.Context) error {
	return h.p.TerminateWithContext(ctx)
}
