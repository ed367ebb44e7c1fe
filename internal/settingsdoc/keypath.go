/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package settingsdoc

import (
	"fmt"

	packrat "github.com/launix-de/go-packrat/v2"
)

// keyPathGrammar parses a dotted settings key ("uv.default_packages")
// into its path segments. Built on the teacher's packrat parser
// combinator library (scm/packrat.go uses the unversioned v1 import;
// this module depends on the /v2 module path declared in go.mod, so
// the import below uses the versioned path) rather than strings.Split,
// so a future syntax extension (bracket indexing, escaped dots) is a
// grammar change rather than a string-surgery change — see
// SPEC_FULL.md §4.E.
var identParser = packrat.NewRegexParser(`[A-Za-z_][A-Za-z0-9_]*`, false, true)
var dotParser = packrat.NewAtomParser(".", false, true)
var keyPathParser = packrat.NewKleeneParser(identParser, dotParser)

// ParseKeyPath splits a dotted key into segments, rejecting anything
// that isn't a plain run of dot-separated identifiers.
func ParseKeyPath(key string) ([]string, error) {
	scanner := packrat.NewScanner(key, nil)
	node, err := packrat.Parse(keyPathParser, scanner)
	if err != nil || node == nil {
		return nil, fmt.Errorf("settingsdoc: invalid key path %q", key)
	}
	segments := make([]string, 0, len(node.Children))
	for _, child := range node.Children {
		segments = append(segments, child.Matched)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("settingsdoc: empty key path")
	}
	return segments, nil
}
