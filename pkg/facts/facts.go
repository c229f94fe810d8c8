// Package facts validates extractor output before anything is persisted.
//
// The only accepted shape is a non-empty JSON array whose elements are all
// non-blank strings. Anything else, including an empty array, is rejected
// as a whole.
package facts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotList   = errors.New("extractor output is not a JSON list")
	ErrEmptyList = errors.New("extractor output is an empty list")
	ErrNonString = errors.New("extractor output contains a non-string element")
	ErrBlankFact = errors.New("extractor output contains a blank element")
)

// Parse decodes raw into a list of facts. Surrounding whitespace is ignored.
func Parse(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, ErrNotList
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &elems); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotList, err)
	}
	if len(elems) == 0 {
		return nil, ErrEmptyList
	}

	out := make([]string, 0, len(elems))
	for i, elem := range elems {
		var s string
		if !bytes.HasPrefix(bytes.TrimSpace(elem), []byte(`"`)) {
			return nil, fmt.Errorf("%w at index %d", ErrNonString, i)
		}
		if err := json.Unmarshal(elem, &s); err != nil {
			return nil, fmt.Errorf("%w at index %d", ErrNonString, i)
		}
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w at index %d", ErrBlankFact, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// Valid reports whether raw parses into at least one fact.
func Valid(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}
