package util

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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zeebo/xxh3"
)

const maxFilenameLength = 100

// SanitizeFilename turns an untrusted name (an upload's filename, say) into a single
// filesystem-safe path element. Path separators and shell-hostile characters become
// underscores, leading dots are stripped so the result is never hidden or "..", and the
// length is capped.
func SanitizeFilename(input string) string {
	replaced := strings.Map(func(r rune) rune {
		switch {
		case r == '/', r == '\\', r == ':', r == '*', r == '?', r == '"', r == '<', r == '>', r == '|':
			return '_'
		case r < 0x20 || r == 0x7f:
			return '_'
		}
		return r
	}, input)
	replaced = strings.TrimLeft(strings.TrimSpace(replaced), ".")
	if replaced == "" {
		replaced = "upload"
	}
	if len(replaced) > maxFilenameLength {
		// Keep the extension, it decides how the upload is parsed.
		ext := filepath.Ext(replaced)
		if len(ext) > 10 {
			ext = ""
		}
		replaced = replaced[:maxFilenameLength-len(ext)] + ext
	}
	return replaced
}

// ContentAddressedName prefixes the sanitized name with the xxh3 hash of content, so
// identical uploads share a file and different uploads with the same name do not collide.
func ContentAddressedName(content []byte, name string) string {
	return fmt.Sprintf("%016x-%s", xxh3.Hash(content), SanitizeFilename(name))
}
