// Package search extracts indexable text from a document body given a
// configured set of JSON-path expressions. No third-party JSONPath
// library appears anywhere in the retrieved example corpus, so this
// package walks decoded JSON by hand (see DESIGN.md for why a
// third-party dependency wasn't available to reach for here).
package search

import (
	"encoding/json"
	"strings"
)

// Extract concatenates, space-separated, the string values found at
// each configured path within body. Non-string values, missing paths,
// and malformed bodies contribute nothing rather than erroring: search
// indexing must never block a store mutation.
func Extract(body json.RawMessage, paths []string) string {
	if len(body) == 0 || len(paths) == 0 {
		return ""
	}

	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return ""
	}

	var parts []string
	for _, p := range paths {
		if v, ok := walk(root, segments(p)); ok {
			if s, ok := v.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}

// segments turns "$.a.b" into ["a", "b"]. A bare "$" yields no segments
// (selects the whole document, which Extract then only uses if it
// happens to be a string).
func segments(path string) []string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func walk(node any, path []string) (any, bool) {
	if len(path) == 0 {
		return node, true
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, false
	}
	next, ok := obj[path[0]]
	if !ok {
		return nil, false
	}
	return walk(next, path[1:])
}
