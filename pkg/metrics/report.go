package metrics

import (
	"fmt"
	"sort"
	"strings"
)

const reportRule = "============================================================"

// FormatReport renders summaries sorted by label with durations in seconds.
func FormatReport(summaries map[string]Summary) string {
	if len(summaries) == 0 {
		return "No metrics recorded\n"
	}

	labels := make([]string, 0, len(summaries))
	for label := range summaries {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var b strings.Builder
	b.WriteString(reportRule + "\n")
	b.WriteString("PERFORMANCE METRICS REPORT\n")
	b.WriteString(reportRule + "\n\n")

	for _, label := range labels {
		s := summaries[label]
		fmt.Fprintf(&b, "%s:\n", label)
		fmt.Fprintf(&b, "  Count: %d\n", s.Count)
		fmt.Fprintf(&b, "  Min:   %.2fs\n", s.Min.Seconds())
		fmt.Fprintf(&b, "  Max:   %.2fs\n", s.Max.Seconds())
		fmt.Fprintf(&b, "  Avg:   %.2fs\n", s.Avg.Seconds())
		fmt.Fprintf(&b, "  Total: %.2fs\n\n", s.Total.Seconds())
	}

	b.WriteString(reportRule + "\n")
	return b.String()
}
