package validation

import (
	"bytes"

	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/types"
)

var conflictMarkers = [][]byte{[]byte("<<<<<<< "), []byte("======="), []byte(">>>>>>> ")}

// CheckConflictMarkers reports lines left behind by an unresolved git merge.
func CheckConflictMarkers(data []byte) []types.Finding {
	var findings []types.Finding
	for i, line := range jsonlfile.SplitLines(data) {
		line = bytes.TrimRight(line, "\r")
		for _, marker := range conflictMarkers {
			if bytes.HasPrefix(line, marker) || bytes.Equal(line, bytes.TrimSpace(marker)) {
				findings = append(findings, errorf(i+1, "git conflict marker %q; resolve the merge and run 'dcat doctor' again", bytes.TrimSpace(marker)))
				break
			}
		}
	}
	return findings
}
