package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/dexcache/pkg/models"
)

func formatResult(r models.LookupResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", r.DisplayName)
	if r.Habitat != "" {
		fmt.Fprintf(&b, "Habitat:   %s\n", r.Habitat)
	}
	fmt.Fprintf(&b, "Legendary: %t\n", r.Legendary)
	dialect := string(r.Dialect)
	if r.Dialect != models.DialectNone && !r.Translated {
		dialect += " (unavailable, original text)"
	}
	fmt.Fprintf(&b, "Dialect:   %s\n\n", dialect)
	b.WriteString(r.Description)
	return b.String()
}

func formatCacheStats(s models.CacheStats) string {
	var hitRate float64
	if total := s.Hits + s.Misses; total > 0 {
		hitRate = float64(s.Hits) / float64(total) * 100
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Entries:     %d / %d\n", s.Entries, s.Capacity)
	fmt.Fprintf(&b, "Hits:        %d\n", s.Hits)
	fmt.Fprintf(&b, "Misses:      %d\n", s.Misses)
	fmt.Fprintf(&b, "Hit Rate:    %.1f%%\n", hitRate)
	fmt.Fprintf(&b, "Evictions:   %d\n", s.Evictions)
	fmt.Fprintf(&b, "Expirations: %d\n", s.Expirations)
	return b.String()
}

func formatEvents(events []models.LookupEvent) string {
	if len(events) == 0 {
		return "No lookups recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-20s %-8s %-12s %-16s %10s\n",
		"Time", "Name", "Outcome", "Dialect", "Error", "Duration")
	b.WriteString(strings.Repeat("-", 91) + "\n")
	for _, e := range events {
		dialect := string(e.Dialect)
		if e.Fallback {
			dialect += "*"
		}
		fmt.Fprintf(&b, "%-20s %-20s %-8s %-12s %-16s %10s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			truncate(e.Name, 20), e.Outcome, dialect, string(e.ErrorKind), e.Duration.Round(100*time.Microsecond))
	}
	return b.String()
}

func formatSummary(rows []models.LookupSummary) string {
	if len(rows) == 0 {
		return "No lookups recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %8s %6s %6s %6s %9s  %-20s\n",
		"Name", "Requests", "Hits", "Misses", "Errors", "Fallbacks", "Last Seen")
	b.WriteString(strings.Repeat("-", 82) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-20s %8d %6d %6d %6d %9d  %-20s\n",
			truncate(r.Name, 20), r.RequestCount, r.Hits, r.Misses, r.Errors, r.Fallbacks,
			r.LastSeen.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
