// Package feed implements the filtering and history-tracking core: the
// polymorphic filter chain, its flat serialization format, the Feed aggregate
// and the bounded seen-entry history.
package feed

import "time"

// Entry is a single story from a syndicated feed. Entries are produced by the
// fetcher and are read-only to the filtering core. Link doubles as the entry
// identity for seen-history tracking. Published is the zero time when the
// source feed carries no publication timestamp.
type Entry struct {
	Title     string
	Summary   string
	Link      string
	Author    string
	Published time.Time
}
