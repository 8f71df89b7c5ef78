package pipeline

import "strings"

// ResultMarker delimits the user-facing section in plain-text command
// output. Downstream consumers that drive the CLI as a subprocess take
// everything after the marker.
const ResultMarker = "=== RESULT ==="

// UserFacing extracts the user-facing section of marker-delimited
// output. Text without a marker is returned as-is, trimmed.
func UserFacing(s string) string {
	if _, after, ok := strings.Cut(s, ResultMarker); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(s)
}
