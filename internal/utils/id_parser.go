// Package utils provides utility functions for issue ID parsing and resolution.
package utils

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dogcat/dogcat/internal/storage"
)

// maxAmbiguousShown caps how many candidates an ambiguity error lists.
const maxAmbiguousShown = 5

// ParseIssueID ensures an issue ID carries a namespace.
// If the input already starts with "{namespace}-" it is returned as-is,
// otherwise the namespace is prepended: "4kzj" → "dc-4kzj".
func ParseIssueID(input string, namespace string) string {
	if namespace == "" {
		namespace = "dc"
	}
	prefix := strings.TrimSuffix(namespace, "-") + "-"
	if strings.HasPrefix(input, prefix) {
		return input
	}
	return prefix + input
}

// ResolvePartialID resolves a potentially partial issue ID against the
// known full ids.
// Supports:
// - Full IDs: "dc-4kzj" → "dc-4kzj"
// - Hash only: "4kzj" → "dc-4kzj"
// - Suffixes: "kzj" → "dc-4kzj" (if unique)
//
// A unique whole-hash match wins over suffix matches.
//
// Returns an error wrapping storage.ErrNotFound when nothing matches and
// storage.ErrAmbiguousID when more than one id does.
func ResolvePartialID(ids []string, input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("empty issue id: %w", storage.ErrNotFound)
	}
	for _, id := range ids {
		if id == input {
			return id, nil
		}
	}

	var matches, hashMatches []string
	for _, id := range ids {
		hashMatch := ExtractHash(id) == input
		if hashMatch {
			hashMatches = append(hashMatches, id)
		}
		if hashMatch || strings.HasSuffix(id, input) {
			matches = append(matches, id)
		}
	}

	// A whole-hash match beats suffix matches: "3d0" is dc-3d0, not dc-a3d0.
	if len(hashMatches) == 1 {
		return hashMatches[0], nil
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("issue %s: %w", input, storage.ErrNotFound)
	case 1:
		return matches[0], nil
	}

	sort.Strings(matches)
	shown := matches
	if len(shown) > maxAmbiguousShown {
		shown = shown[:maxAmbiguousShown]
	}
	list := strings.Join(shown, ", ")
	if extra := len(matches) - len(shown); extra > 0 {
		list += fmt.Sprintf(" and %d more", extra)
	}
	return "", fmt.Errorf("%w '%s' matches %d issues: %s", storage.ErrAmbiguousID, input, len(matches), list)
}

// ResolvePartialIDs resolves multiple potentially partial issue IDs.
// It stops at the first input that fails to resolve.
func ResolvePartialIDs(ids []string, inputs []string) ([]string, error) {
	resolved := make([]string, 0, len(inputs))
	for _, input := range inputs {
		fullID, err := ResolvePartialID(ids, input)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, fullID)
	}
	return resolved, nil
}
