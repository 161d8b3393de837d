package utils

import (
	"strings"
)

// ExtractNamespace extracts the namespace from a full id like "dc-4kzj" -> "dc".
// The split is on the last hyphen, so "my-app-4kzj" -> "my-app".
func ExtractNamespace(fullID string) string {
	idx := strings.LastIndex(fullID, "-")
	if idx <= 0 {
		return ""
	}
	return fullID[:idx]
}

// ExtractHash extracts the hash part of a full id: "dc-4kzj" -> "4kzj".
func ExtractHash(fullID string) string {
	idx := strings.LastIndex(fullID, "-")
	if idx < 0 {
		return fullID
	}
	return fullID[idx+1:]
}
