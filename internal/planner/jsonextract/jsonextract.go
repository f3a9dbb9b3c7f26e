// Package jsonextract implements the Planner Pipeline's tolerant JSON
// parsing rule (spec.md §4.5): attempt strict JSON first; if that fails,
// extract the first balanced `{...}` span from the response (LLMs routinely
// wrap JSON in prose or markdown code fences); if no span is found, fail.
//
// Grounded on the original source's DevelopmentTeamService._parse_json_response,
// which does the same two-step fallback with a regex `\{.*\}` scan — this
// package uses an explicit brace counter instead of a greedy regex so it
// finds the first *balanced* object rather than the first-to-last span,
// which matters when the response embeds more than one `{...}` block (e.g.
// a JSON object followed by unrelated prose containing stray braces).
package jsonextract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parse decodes raw into a generic map, trying strict JSON first and
// falling back to a balanced-brace scan over the first object span.
func Parse(raw string) (map[string]json.RawMessage, error) {
	var strict map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &strict); err == nil {
		return strict, nil
	}

	span, ok := firstBalancedObject(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in response: %s", truncate(raw, 200))
	}

	var fallback map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &fallback); err != nil {
		return nil, fmt.Errorf("extracted JSON span did not parse: %w", err)
	}
	return fallback, nil
}

// Into parses raw the same way Parse does and unmarshals the result into
// dest, which must be a pointer.
func Into(raw string, dest any) error {
	if err := json.Unmarshal([]byte(raw), dest); err == nil {
		return nil
	}

	span, ok := firstBalancedObject(raw)
	if !ok {
		return fmt.Errorf("no JSON object found in response: %s", truncate(raw, 200))
	}
	if err := json.Unmarshal([]byte(span), dest); err != nil {
		return fmt.Errorf("extracted JSON span did not parse: %w", err)
	}
	return nil
}

// firstBalancedObject scans s for the first top-level `{...}` span, tracking
// brace depth and skipping over braces inside string literals so a quoted
// "}" in a value doesn't prematurely close the scan.
func firstBalancedObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
