package feed

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Filter decides whether a feed entry should be dropped before display.
// Implementations are pure: Discard has no side effects and never fails for
// well-formed entries, missing optional fields included.
type Filter interface {
	// Discard returns true if the entry should not be displayed
	Discard(e Entry) bool
	// Describe returns a short human-readable form for filter listings
	Describe() string
	// Record returns the tagged serialized form of the filter
	Record() FilterRecord
}

// stripPolicy removes all markup, leaving plain text for term matching.
// bluemonday policies are safe for concurrent use.
var stripPolicy = bluemonday.StrictPolicy()

// stripMarkup drops inline html from s and resolves entities, feed summaries
// routinely carry both
func stripMarkup(s string) string {
	return html.UnescapeString(stripPolicy.Sanitize(s))
}

// NotFilter discards entries containing a search term. Matching is
// case-insensitive and runs over the entry's summary and title with markup
// stripped first.
type NotFilter struct {
	term string
}

// NewNotFilter creates a NotFilter for the given term, lowercased once here
// so evaluation only lowercases the entry text.
func NewNotFilter(term string) *NotFilter {
	return &NotFilter{term: strings.ToLower(term)}
}

// Discard returns true if the term occurs in the entry's summary or title
func (f *NotFilter) Discard(e Entry) bool {
	text := stripMarkup(strings.ToLower(e.Summary + " " + e.Title))
	return strings.Contains(text, f.term)
}

// Term returns the lowercased search term
func (f *NotFilter) Term() string { return f.term }

// Describe returns a human-readable form, e.g. `not "acme"`
func (f *NotFilter) Describe() string {
	return fmt.Sprintf("not %q", f.term)
}

// Record returns the serialized form of the filter
func (f *NotFilter) Record() FilterRecord {
	return FilterRecord{Kind: KindNot, Args: []string{f.term}}
}

// AgeFilter discards entries published at least the configured window before
// evaluation time. The boundary is inclusive: an entry exactly window old is
// discarded. Entries without a publication time follow the FailClosed policy,
// which defaults to fail-open (keep the entry).
type AgeFilter struct {
	window     time.Duration
	failClosed bool
	now        func() time.Time // swappable in tests
}

// NewAgeFilter creates an AgeFilter with the window given in minutes,
// fractional values allowed. The missing-timestamp policy defaults to
// fail-open, use NewAgeFilterFailClosed to discard such entries instead.
func NewAgeFilter(minutes float64) *AgeFilter {
	return &AgeFilter{window: minutesToDuration(minutes), now: time.Now}
}

// NewAgeFilterFailClosed creates an AgeFilter that discards entries with no
// publication time rather than letting them through.
func NewAgeFilterFailClosed(minutes float64) *AgeFilter {
	f := NewAgeFilter(minutes)
	f.failClosed = true
	return f
}

// Discard returns true if the entry was published before the age cutoff
func (f *AgeFilter) Discard(e Entry) bool {
	if e.Published.IsZero() {
		return f.failClosed
	}
	return f.now().Sub(e.Published) >= f.window
}

// SetWindow replaces the window in place, minutes may be fractional
func (f *AgeFilter) SetWindow(minutes float64) {
	f.window = minutesToDuration(minutes)
}

// Window returns the current window in minutes
func (f *AgeFilter) Window() float64 { return f.window.Minutes() }

// FailClosed reports the missing-timestamp policy
func (f *AgeFilter) FailClosed() bool { return f.failClosed }

// Describe returns a human-readable form, e.g. "age 90m0s"
func (f *AgeFilter) Describe() string {
	return fmt.Sprintf("age %s", f.window)
}

// Record returns the serialized form of the filter. The fail_closed kwarg is
// written only when set, keeping records for the common case minimal.
func (f *AgeFilter) Record() FilterRecord {
	kwargs := map[string]any{"minutes": f.Window()}
	if f.failClosed {
		kwargs["fail_closed"] = true
	}
	return FilterRecord{Kind: KindAge, Kwargs: kwargs}
}

func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
