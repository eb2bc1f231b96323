package output

import (
	"strconv"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count as a human-readable IEC size ("1.5 MiB").
// Negative counts render as "-".
func FormatBytes(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

// FormatBytesPtr renders an optional byte count. Nil means unset and renders
// as "-", matching unlimited quotas and unset file limits in listings.
func FormatBytesPtr(n *int64) string {
	if n == nil {
		return "-"
	}
	return FormatBytes(*n)
}

// FormatCount renders an integer count for table cells.
func FormatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}
