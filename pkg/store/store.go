// Package store persists the feed set as a single JSON array of feed records,
// rewritten in full after every mutation.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/umputun/feedbot/pkg/feed"
)

// ErrPersistence indicates the data file could not be read or written. The
// in-memory state is never rolled back on a failed save, the caller decides
// how to surface the unsaved change.
var ErrPersistence = errors.New("persistence failed")

// Store is a file-backed store for the feed set. Writes are serialized by the
// mutex, a full rewrite of the file is a critical section.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a Store writing to the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the whole feed set from the data file. A missing file is a clean
// empty start. Any read or parse failure returns an empty set together with
// the error, the caller notifies the operator and keeps going, a bad data
// file never takes the process down.
func (s *Store) Load() ([]*feed.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*feed.Feed{}, nil
		}
		return []*feed.Feed{}, fmt.Errorf("%w: read %s: %s", ErrPersistence, s.path, err)
	}

	if len(data) == 0 { // freshly created file
		return []*feed.Feed{}, nil
	}

	var records []feed.FeedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return []*feed.Feed{}, fmt.Errorf("%w: parse %s: %s", ErrPersistence, s.path, err)
	}

	feeds := make([]*feed.Feed, 0, len(records))
	for _, rec := range records {
		f, err := feed.FeedFromRecord(rec)
		if err != nil {
			// one bad record invalidates the load, no partial feed set
			return []*feed.Feed{}, fmt.Errorf("%w: %s: %s", ErrPersistence, s.path, err)
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

// Save writes the whole feed set, replacing the previous file contents. The
// write goes through a temp file and a rename so a crash mid-write cannot
// leave a torn data file.
func (s *Store) Save(feeds []*feed.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]feed.FeedRecord, 0, len(feeds))
	for _, f := range feeds {
		records = append(records, f.Record())
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal feeds: %s", ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create %s: %s", ErrPersistence, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".feedbot-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %s", ErrPersistence, err)
	}
	defer os.Remove(tmp.Name()) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write %s: %s", ErrPersistence, tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %s", ErrPersistence, tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %s", ErrPersistence, s.path, err)
	}
	return nil
}
