package telegram

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/umputun/feedbot/pkg/feed"
)

// FormatFeedList renders the monitored feeds with their filter chains. Filter
// indexes match what /remove_filter expects.
func FormatFeedList(feeds []*feed.Feed) string {
	if len(feeds) == 0 {
		return noFeedsText
	}

	var b strings.Builder
	b.WriteString("Currently monitoring:\n")
	for _, f := range feeds {
		fmt.Fprintf(&b, "\n%s: %s\n", f.Name, f.URL)
		filters := f.Filters()
		if len(filters) == 0 {
			continue
		}
		b.WriteString("  filters in effect:\n")
		for i, flt := range filters {
			fmt.Fprintf(&b, "  %d: %s\n", i, flt.Describe())
		}
	}
	return b.String()
}

// FormatDump renders the new entries of one feed.
func FormatDump(feedName string, entries []feed.Entry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("No new entries for the %s feed.", feedName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stories from %s:\n", feedName)
	for _, e := range entries {
		b.WriteString("\n")
		b.WriteString(FormatEntry(e))
		b.WriteString("\n----------\n")
	}
	return b.String()
}

// FormatEntry renders a single entry with a humanized publication age.
func FormatEntry(e feed.Entry) string {
	var b strings.Builder
	b.WriteString(e.Title)
	if !e.Published.IsZero() {
		fmt.Fprintf(&b, "\npublished %s", humanize.Time(e.Published))
	}
	if e.Author != "" {
		fmt.Fprintf(&b, "\nby %s", e.Author)
	}
	if e.Summary != "" {
		fmt.Fprintf(&b, "\n%s", e.Summary)
	}
	if e.Link != "" {
		fmt.Fprintf(&b, "\n%s", e.Link)
	}
	return b.String()
}
