package feed

import (
	"fmt"
	"reflect"
)

// Feed is a named source of filtered entries: a url plus an ordered chain of
// filters applied with AND semantics. A feed tracks at most one "primary"
// age filter, managed through SetAgeFilter. Nothing stops a second age filter
// from being added directly with AddFilter, such a filter simply is not
// tracked and SetAgeFilter will not touch it.
//
// Feed does not fetch. Raw entries come from the fetch collaborator and are
// run through FilteredEntries by the owner. Uniqueness of name and url across
// the feed set is the owner's job, not Feed's.
type Feed struct {
	Name string
	URL  string

	filters []Filter
	ageIdx  int // index of the tracked age filter in filters, -1 when none
}

// FeedRecord is the serialized form of a Feed and its filter chain.
type FeedRecord struct {
	Kind    string         `json:"kind"`
	Name    string         `json:"name"`
	URL     string         `json:"url"`
	Filters []FilterRecord `json:"filters"`
}

// NewFeed creates a Feed with the given filter chain. The first age filter in
// the initial chain, if any, becomes the tracked one so SetAgeFilter updates
// it in place instead of stacking another.
func NewFeed(name, url string, filters ...Filter) *Feed {
	f := &Feed{Name: name, URL: url, filters: filters, ageIdx: -1}
	for i, flt := range filters {
		if _, ok := flt.(*AgeFilter); ok {
			f.ageIdx = i
			break
		}
	}
	return f
}

// Accept returns true if no filter in the chain discards the entry. An empty
// chain accepts everything.
func (f *Feed) Accept(e Entry) bool {
	for _, flt := range f.filters {
		if flt.Discard(e) {
			return false
		}
	}
	return true
}

// FilteredEntries applies the filter chain to raw entries, preserving the
// fetch order of the survivors.
func (f *Feed) FilteredEntries(entries []Entry) []Entry {
	res := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.Accept(e) {
			res = append(res, e)
		}
	}
	return res
}

// Filters returns a copy of the filter chain in evaluation order.
func (f *Feed) Filters() []Filter {
	res := make([]Filter, len(f.filters))
	copy(res, f.filters)
	return res
}

// FilterAt returns the filter at the given chain position.
func (f *Feed) FilterAt(i int) (Filter, bool) {
	if i < 0 || i >= len(f.filters) {
		return nil, false
	}
	return f.filters[i], true
}

// AddFilter appends a filter to the chain. Adding an age filter this way does
// not make it the tracked one, use SetAgeFilter for that.
func (f *Feed) AddFilter(flt Filter) {
	f.filters = append(f.filters, flt)
}

// RemoveFilter removes the first filter structurally equal to flt, i.e. same
// kind and same configuration. Returns false if no such filter is in the
// chain. Removing the tracked age filter clears the tracking reference.
func (f *Feed) RemoveFilter(flt Filter) bool {
	want := flt.Record()
	for i, have := range f.filters {
		if reflect.DeepEqual(have.Record(), want) {
			f.removeAt(i)
			return true
		}
	}
	return false
}

// RemoveFilterAt removes and returns the filter at the given chain position.
func (f *Feed) RemoveFilterAt(i int) (Filter, bool) {
	if i < 0 || i >= len(f.filters) {
		return nil, false
	}
	removed := f.filters[i]
	f.removeAt(i)
	return removed, true
}

// removeAt drops position i from the chain and keeps the tracked age filter
// index pointing at the same element, or invalidates it if that element went.
func (f *Feed) removeAt(i int) {
	f.filters = append(f.filters[:i], f.filters[i+1:]...)
	switch {
	case f.ageIdx == i:
		f.ageIdx = -1
	case f.ageIdx > i:
		f.ageIdx--
	}
}

// SetAgeFilter sets the cutoff window of the tracked age filter, creating and
// appending one if the feed has none yet. This is the intended way to manage
// age filtering, it guarantees repeated calls reuse one filter.
func (f *Feed) SetAgeFilter(minutes float64) {
	if f.ageIdx >= 0 {
		f.filters[f.ageIdx].(*AgeFilter).SetWindow(minutes)
		return
	}
	f.filters = append(f.filters, NewAgeFilter(minutes))
	f.ageIdx = len(f.filters) - 1
}

// AgeFilter returns the tracked age filter, nil when the feed has none.
func (f *Feed) AgeFilter() *AgeFilter {
	if f.ageIdx < 0 {
		return nil
	}
	return f.filters[f.ageIdx].(*AgeFilter)
}

// Record serializes the feed and its filter chain.
func (f *Feed) Record() FeedRecord {
	filters := make([]FilterRecord, 0, len(f.filters))
	for _, flt := range f.filters {
		filters = append(filters, flt.Record())
	}
	return FeedRecord{Kind: KindFeed, Name: f.Name, URL: f.URL, Filters: filters}
}

// FeedFromRecord reconstructs a Feed from its serialized record. A kind tag
// mismatch or any invalid nested filter record fails the whole feed with
// ErrDeserialize, no partially built Feed is ever returned.
func FeedFromRecord(rec FeedRecord) (*Feed, error) {
	if rec.Kind != KindFeed {
		return nil, fmt.Errorf("%w: expected kind %q, got %q", ErrDeserialize, KindFeed, rec.Kind)
	}
	filters := make([]Filter, 0, len(rec.Filters))
	for i, fr := range rec.Filters {
		flt, err := FilterFromRecord(fr)
		if err != nil {
			return nil, fmt.Errorf("feed %q filter %d: %w", rec.Name, i, err)
		}
		filters = append(filters, flt)
	}
	return NewFeed(rec.Name, rec.URL, filters...), nil
}
