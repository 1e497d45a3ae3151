// Package bot owns the feed collection and exposes the command surface:
// add/remove feeds, manage filters and dump filtered, deduplicated entries.
// Every mutating operation rewrites the persisted feed set (persist-on-write),
// a failed save keeps the in-memory change and reports the failure.
package bot

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/umputun/feedbot/pkg/feed"
)

// Fetcher retrieves and parses a feed URL into entries.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]feed.Entry, error)
}

// Store persists the full feed set.
type Store interface {
	Load() ([]*feed.Feed, error)
	Save(feeds []*feed.Feed) error
}

// Params configures a Service.
type Params struct {
	HistorySize       int     // seen-entry history capacity, default feed.DefaultHistorySize
	StoryLimit        int     // default number of stories per dump, default 5
	DefaultAgeMinutes float64 // age filter seeded on newly added feeds, default 90
}

// Service is the owning collection of feeds plus the shared seen-history.
// All operations take one mutex, filter chains are not safe for concurrent
// mutation on their own.
type Service struct {
	fetcher    Fetcher
	store      Store
	storyLimit int
	defaultAge float64

	mu      sync.Mutex
	feeds   map[string]*feed.Feed
	history *feed.History
}

// DumpResult is the outcome of dumping one feed.
type DumpResult struct {
	Feed    string
	Entries []feed.Entry
	Err     error
}

// NewService creates a Service with an empty feed set. Call Load to restore
// persisted feeds.
func NewService(fetcher Fetcher, store Store, params Params) *Service {
	if params.StoryLimit <= 0 {
		params.StoryLimit = 5
	}
	if params.DefaultAgeMinutes <= 0 {
		params.DefaultAgeMinutes = 90
	}
	return &Service{
		fetcher:    fetcher,
		store:      store,
		storyLimit: params.StoryLimit,
		defaultAge: params.DefaultAgeMinutes,
		feeds:      map[string]*feed.Feed{},
		history:    feed.NewHistory(params.HistorySize),
	}
}

// Load restores the feed set from the store. On failure the service keeps an
// empty set and returns the error for operator notification, it never fails
// to start over a bad data file.
func (s *Service) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	feeds, err := s.store.Load()
	s.feeds = map[string]*feed.Feed{}
	for _, f := range feeds {
		s.feeds[f.Name] = f
	}
	if err != nil {
		return fmt.Errorf("load feeds: %w", err)
	}
	log.Printf("[INFO] loaded %d feeds", len(s.feeds))
	return nil
}

// AddFeed registers a new feed. The name must carry no whitespace, name and
// url must be unique across the set, and the url is probed once so broken
// feeds are rejected up front. New feeds get a default age filter. Returns
// the created feed, possibly together with a persistence error when the
// in-memory add succeeded but the save did not.
func (s *Service) AddFeed(ctx context.Context, name, url string) (*feed.Feed, error) {
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return nil, fmt.Errorf("%w: feed name %q must be non-empty without whitespace", feed.ErrValidation, name)
	}
	if url == "" {
		return nil, fmt.Errorf("%w: feed url must not be empty", feed.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feeds[name]; ok {
		return nil, fmt.Errorf("%w: %q", feed.ErrDuplicateName, name)
	}
	for _, f := range s.feeds {
		if f.URL == url {
			return nil, fmt.Errorf("%w: %q already monitored as %q", feed.ErrDuplicateURL, url, f.Name)
		}
	}

	// probe the url once, a feed we cannot parse is refused at the door
	if _, err := s.fetcher.Fetch(ctx, url); err != nil {
		return nil, fmt.Errorf("probe feed %s: %w", url, err)
	}

	f := feed.NewFeed(name, url, feed.NewAgeFilter(s.defaultAge))
	s.feeds[name] = f
	log.Printf("[INFO] added feed %q (%s)", name, url)
	return f, s.persist()
}

// Feeds returns the current feeds sorted by name.
func (s *Service) Feeds() []*feed.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedFeeds()
}

// Get returns a feed by name.
func (s *Service) Get(name string) (*feed.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(name)
}

// RemoveFeed drops a feed by name or, failing that, by url. Returns the name
// of the removed feed.
func (s *Service) RemoveFeed(nameOrURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := nameOrURL
	if _, ok := s.feeds[name]; !ok {
		name = ""
		for _, f := range s.feeds {
			if f.URL == nameOrURL {
				name = f.Name
				break
			}
		}
		if name == "" {
			return "", fmt.Errorf("%w: %q", feed.ErrUnknownFeed, nameOrURL)
		}
	}

	delete(s.feeds, name)
	log.Printf("[INFO] removed feed %q", name)
	return name, s.persist()
}

// AddFilter attaches a keyword-exclusion filter to the named feed.
func (s *Service) AddFilter(feedName, term string) error {
	if strings.TrimSpace(term) == "" {
		return fmt.Errorf("%w: filter term must not be empty", feed.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.get(feedName)
	if err != nil {
		return err
	}
	f.AddFilter(feed.NewNotFilter(term))
	log.Printf("[INFO] added filter %q to feed %q", term, feedName)
	return s.persist()
}

// RemoveFilter removes the filter at the given chain position of the named
// feed, returning the removed filter for display.
func (s *Service) RemoveFilter(feedName string, index int) (feed.Filter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.get(feedName)
	if err != nil {
		return nil, err
	}
	removed, ok := f.RemoveFilterAt(index)
	if !ok {
		return nil, fmt.Errorf("%w: feed %q has no filter %d", feed.ErrValidation, feedName, index)
	}
	log.Printf("[INFO] removed filter %s from feed %q", removed.Describe(), feedName)
	return removed, s.persist()
}

// SetAgeFilter sets the age cutoff of the named feed in minutes, creating the
// age filter when the feed has none.
func (s *Service) SetAgeFilter(feedName string, minutes float64) error {
	if minutes < 0 {
		return fmt.Errorf("%w: age window must be non-negative, got %v", feed.ErrValidation, minutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.get(feedName)
	if err != nil {
		return err
	}
	f.SetAgeFilter(minutes)
	log.Printf("[INFO] set age filter on feed %q to %v minutes", feedName, minutes)
	return s.persist()
}

// DumpFeed fetches the named feed, runs the filter chain, truncates to limit
// (the configured default when limit is not positive) and returns only the
// entries not yet shown, recording them as seen.
func (s *Service) DumpFeed(ctx context.Context, feedName string, limit int) ([]feed.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dumpFeed(ctx, feedName, limit)
}

// DumpAll dumps every feed in name order. Per-feed failures land in the
// corresponding result instead of aborting the remaining feeds.
func (s *Service) DumpAll(ctx context.Context) []DumpResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	feeds := s.sortedFeeds()
	results := make([]DumpResult, 0, len(feeds))
	for _, f := range feeds {
		entries, err := s.dumpFeed(ctx, f.Name, 0)
		results = append(results, DumpResult{Feed: f.Name, Entries: entries, Err: err})
	}
	return results
}

// dumpFeed needs s.mu held
func (s *Service) dumpFeed(ctx context.Context, feedName string, limit int) ([]feed.Entry, error) {
	f, err := s.get(feedName)
	if err != nil {
		return nil, err
	}

	raw, err := s.fetcher.Fetch(ctx, f.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", feedName, err)
	}

	entries := f.FilteredEntries(raw)
	if limit <= 0 {
		limit = s.storyLimit
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	fresh := make([]feed.Entry, 0, len(entries))
	for _, e := range entries {
		if s.history.Seen(e.Link) {
			continue
		}
		s.history.Record(e.Link)
		fresh = append(fresh, e)
	}
	return fresh, nil
}

// get needs s.mu held
func (s *Service) get(name string) (*feed.Feed, error) {
	f, ok := s.feeds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", feed.ErrUnknownFeed, name)
	}
	return f, nil
}

// sortedFeeds needs s.mu held
func (s *Service) sortedFeeds() []*feed.Feed {
	res := make([]*feed.Feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		res = append(res, f)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// persist rewrites the whole feed set, needs s.mu held. The in-memory change
// stays on failure, the caller warns the user that the change is unsaved.
func (s *Service) persist() error {
	if err := s.store.Save(s.sortedFeeds()); err != nil {
		log.Printf("[WARN] feed data not saved: %v", err)
		return fmt.Errorf("save feeds: %w", err)
	}
	return nil
}
