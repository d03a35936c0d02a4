package perception

import (
	"encoding/json"
	"errors"
)

// ErrNoJSON is returned when model output contains no parseable JSON object.
var ErrNoJSON = errors.New("no JSON object in model output")

// findJSONCandidates scans the input string for top-level JSON object
// candidates. It handles nested braces and string escaping to correctly
// identify boundaries, so JSON embedded in prose or code fences is still
// found.
//
// Note: It is safe to iterate bytes for ASCII delimiters ({, }, ", \)
// because UTF-8 guarantees ASCII bytes never appear inside a multi-byte
// sequence.
func findJSONCandidates(s string) []string {
	var candidates []string
	var depth int
	var start = -1
	var inString bool
	var escape bool

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}

		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		if b == '"' {
			inString = true
			continue
		}

		if b == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if b == '}' {
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return candidates
}

// ExtractJSON unmarshals the first well-formed top-level JSON object found
// in raw into out. Model output that carries no valid object yields
// ErrNoJSON; callers treat that as abstention or rejection, never as a
// fatal pipeline error.
func ExtractJSON(raw string, out any) error {
	for _, candidate := range findJSONCandidates(raw) {
		if err := json.Unmarshal([]byte(candidate), out); err == nil {
			return nil
		}
	}
	return ErrNoJSON
}
