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
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// Tailer yields the complete lines appended to a file since the previous Poll.
// A Tailer is not safe for concurrent use.
type Tailer struct {
	path    string
	offset  int64
	partial []byte
}

// NewTailer returns a tailer positioned at the start of path.
func NewTailer(path string) *Tailer {
	return &Tailer{path: path}
}

// Poll returns the new complete lines without their line endings. A missing file returns
// an error matching os.ErrNotExist. If the file shrank since the last poll (a new batch
// truncated it), reading restarts from the beginning.
func (t *Tailer) Poll() ([]string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}
	if st.Size() == t.offset {
		return nil, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek %s: %w", t.path, err)
	}
	chunk, err := io.ReadAll(io.LimitReader(f, st.Size()-t.offset))
	if err != nil {
		return nil, fmt.Errorf("failed reading %s: %w", t.path, err)
	}
	t.offset += int64(len(chunk))

	data := append(t.partial, chunk...)
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		t.partial = data
		return nil, nil
	}
	t.partial = append([]byte(nil), data[last+1:]...)

	lines := strings.Split(string(data[:last]), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines, nil
}

// IsSentinel reports whether line marks the end of a results file.
func IsSentinel(line string) bool {
	return strings.Contains(line, Sentinel)
}
