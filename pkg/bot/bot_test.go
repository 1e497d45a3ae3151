package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/feedbot/pkg/feed"
	"github.com/umputun/feedbot/pkg/store"
)

type fakeFetcher struct {
	entries map[string][]feed.Entry
	errs    map[string]error
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]feed.Entry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.entries[url], nil
}

type fakeStore struct {
	loaded  []*feed.Feed
	loadErr error
	saveErr error
	saves   int
	last    []*feed.Feed
}

func (s *fakeStore) Load() ([]*feed.Feed, error) { return s.loaded, s.loadErr }
func (s *fakeStore) Save(feeds []*feed.Feed) error {
	s.saves++
	s.last = feeds
	return s.saveErr
}

func newTestService(f *fakeFetcher, st *fakeStore) *Service {
	return NewService(f, st, Params{HistorySize: 50, StoryLimit: 5})
}

func TestService_AddFeed(t *testing.T) {
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{
		"http://a.example/rss": {{Title: "probe", Link: "p1"}},
	}}
	st := &fakeStore{}
	svc := newTestService(fetcher, st)

	f, err := svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "sec", f.Name)
	require.NotNil(t, f.AgeFilter(), "new feeds get a default age filter")
	assert.InDelta(t, 90.0, f.AgeFilter().Window(), 0.0001)
	assert.Equal(t, 1, fetcher.calls, "url probed once on add")
	assert.Equal(t, 1, st.saves, "mutation persisted")
}

func TestService_AddFeed_Validation(t *testing.T) {
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{
		"http://a.example/rss": {{Title: "probe", Link: "p1"}},
		"http://b.example/rss": {{Title: "probe", Link: "p2"}},
	}}
	svc := newTestService(fetcher, &fakeStore{})

	_, err := svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.NoError(t, err)

	t.Run("duplicate name", func(t *testing.T) {
		_, err := svc.AddFeed(context.Background(), "sec", "http://b.example/rss")
		require.Error(t, err)
		assert.ErrorIs(t, err, feed.ErrDuplicateName)
		assert.ErrorIs(t, err, feed.ErrValidation)
	})

	t.Run("duplicate url", func(t *testing.T) {
		_, err := svc.AddFeed(context.Background(), "other", "http://a.example/rss")
		require.Error(t, err)
		assert.ErrorIs(t, err, feed.ErrDuplicateURL)
	})

	t.Run("whitespace in name", func(t *testing.T) {
		_, err := svc.AddFeed(context.Background(), "bad name", "http://c.example/rss")
		require.Error(t, err)
		assert.ErrorIs(t, err, feed.ErrValidation)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := svc.AddFeed(context.Background(), "", "http://c.example/rss")
		assert.ErrorIs(t, err, feed.ErrValidation)
	})
}

func TestService_AddFeed_ProbeFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: feed.ErrFeedData}
	st := &fakeStore{}
	svc := newTestService(fetcher, st)

	_, err := svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrFeedData)
	assert.Empty(t, svc.Feeds(), "broken feed not added")
	assert.Zero(t, st.saves)
}

func TestService_AddFeed_SaveFailureKeepsFeed(t *testing.T) {
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{
		"http://a.example/rss": {{Title: "probe", Link: "p1"}},
	}}
	st := &fakeStore{saveErr: store.ErrPersistence}
	svc := newTestService(fetcher, st)

	f, err := svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrPersistence)
	require.NotNil(t, f, "feed kept in memory despite failed save")

	got, err := svc.Get("sec")
	require.NoError(t, err)
	assert.Equal(t, "sec", got.Name)
}

func TestService_RemoveFeed(t *testing.T) {
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{
		"http://a.example/rss": {{Link: "p1"}},
		"http://b.example/rss": {{Link: "p2"}},
	}}
	st := &fakeStore{}
	svc := newTestService(fetcher, st)

	_, err := svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.NoError(t, err)
	_, err = svc.AddFeed(context.Background(), "tech", "http://b.example/rss")
	require.NoError(t, err)

	t.Run("by name", func(t *testing.T) {
		name, err := svc.RemoveFeed("sec")
		require.NoError(t, err)
		assert.Equal(t, "sec", name)
	})

	t.Run("by url", func(t *testing.T) {
		name, err := svc.RemoveFeed("http://b.example/rss")
		require.NoError(t, err)
		assert.Equal(t, "tech", name)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := svc.RemoveFeed("nope")
		assert.ErrorIs(t, err, feed.ErrUnknownFeed)
	})

	assert.Empty(t, svc.Feeds())
}

func TestService_FilterOps(t *testing.T) {
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{
		"http://a.example/rss": {{Link: "p1"}},
	}}
	st := &fakeStore{}
	svc := newTestService(fetcher, st)

	_, err := svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.NoError(t, err)

	require.NoError(t, svc.AddFilter("sec", "acme"))
	f, err := svc.Get("sec")
	require.NoError(t, err)
	require.Len(t, f.Filters(), 2) // default age filter + the new one

	removed, err := svc.RemoveFilter("sec", 1)
	require.NoError(t, err)
	assert.Equal(t, `not "acme"`, removed.Describe())

	_, err = svc.RemoveFilter("sec", 7)
	assert.ErrorIs(t, err, feed.ErrValidation)

	require.NoError(t, svc.SetAgeFilter("sec", 30))
	assert.InDelta(t, 30.0, f.AgeFilter().Window(), 0.0001)

	err = svc.SetAgeFilter("sec", -1)
	assert.ErrorIs(t, err, feed.ErrValidation)

	assert.ErrorIs(t, svc.AddFilter("nope", "x"), feed.ErrUnknownFeed)
	_, err = svc.RemoveFilter("nope", 0)
	assert.ErrorIs(t, err, feed.ErrUnknownFeed)
	assert.ErrorIs(t, svc.SetAgeFilter("nope", 5), feed.ErrUnknownFeed)
}

func TestService_DumpFeed_Dedup(t *testing.T) {
	now := time.Now()
	e := func(n string) feed.Entry {
		return feed.Entry{Title: n, Link: "http://a.example/" + n, Published: now}
	}

	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{
		"http://a.example/rss": {e("e1"), e("e2"), e("e3")},
	}}
	svc := newTestService(fetcher, &fakeStore{})

	_, err := svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.NoError(t, err)

	first, err := svc.DumpFeed(context.Background(), "sec", 0)
	require.NoError(t, err)
	require.Len(t, first, 3, "everything is new on the first dump")

	// next fetch overlaps with the previous one
	fetcher.entries["http://a.example/rss"] = []feed.Entry{e("e2"), e("e3"), e("e4")}

	second, err := svc.DumpFeed(context.Background(), "sec", 0)
	require.NoError(t, err)
	require.Len(t, second, 1, "only the unseen entry is reported")
	assert.Equal(t, "e4", second[0].Title)
}

func TestService_DumpFeed_Limit(t *testing.T) {
	now := time.Now()
	entries := make([]feed.Entry, 0, 10)
	for i := 0; i < 10; i++ {
		entries = append(entries, feed.Entry{Title: string(rune('a' + i)), Link: string(rune('a' + i)), Published: now})
	}
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{"http://a.example/rss": entries}}
	svc := newTestService(fetcher, &fakeStore{})

	_, err := svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.NoError(t, err)

	got, err := svc.DumpFeed(context.Background(), "sec", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// default limit applies when none given
	got, err = svc.DumpFeed(context.Background(), "sec", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3, "default limit 5 minus the 2 already seen")
}

func TestService_DumpFeed_FilteredOut(t *testing.T) {
	now := time.Now()
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{
		"http://a.example/rss": {
			{Title: "acme press release", Link: "l1", Published: now},
			{Title: "real news", Link: "l2", Published: now},
		},
	}}
	svc := newTestService(fetcher, &fakeStore{})

	_, err := svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.NoError(t, err)
	require.NoError(t, svc.AddFilter("sec", "acme"))

	got, err := svc.DumpFeed(context.Background(), "sec", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "real news", got[0].Title)
}

func TestService_DumpFeed_Unknown(t *testing.T) {
	svc := newTestService(&fakeFetcher{}, &fakeStore{})
	_, err := svc.DumpFeed(context.Background(), "nope", 0)
	assert.ErrorIs(t, err, feed.ErrUnknownFeed)
}

func TestService_DumpAll(t *testing.T) {
	now := time.Now()
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{
		"http://a.example/rss": {{Title: "a1", Link: "a1", Published: now}},
		"http://b.example/rss": {{Title: "b1", Link: "b1", Published: now}},
	}}
	svc := newTestService(fetcher, &fakeStore{})

	_, err := svc.AddFeed(context.Background(), "tech", "http://b.example/rss")
	require.NoError(t, err)
	_, err = svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.NoError(t, err)

	results := svc.DumpAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "sec", results[0].Feed, "name order")
	assert.Equal(t, "tech", results[1].Feed)
	require.NoError(t, results[0].Err)
	require.Len(t, results[0].Entries, 1)
}

func TestService_DumpAll_PartialFailure(t *testing.T) {
	now := time.Now()
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{
		"http://a.example/rss": {{Title: "a1", Link: "a1", Published: now}},
		"http://b.example/rss": {{Title: "b1", Link: "b1", Published: now}},
	}}
	svc := newTestService(fetcher, &fakeStore{})

	_, err := svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.NoError(t, err)
	_, err = svc.AddFeed(context.Background(), "tech", "http://b.example/rss")
	require.NoError(t, err)

	// one feed goes bad after registration
	fetcher.errs = map[string]error{"http://a.example/rss": errors.New("connection refused")}

	results := svc.DumpAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "sec", results[0].Feed)
	assert.Error(t, results[0].Err, "failed feed reports its error")
	assert.NoError(t, results[1].Err, "other feeds still dumped")
	assert.Len(t, results[1].Entries, 1)
}

func TestService_Load(t *testing.T) {
	t.Run("restores feeds", func(t *testing.T) {
		st := &fakeStore{loaded: []*feed.Feed{
			feed.NewFeed("sec", "http://a.example/rss", feed.NewNotFilter("acme")),
		}}
		svc := newTestService(&fakeFetcher{}, st)
		require.NoError(t, svc.Load())

		f, err := svc.Get("sec")
		require.NoError(t, err)
		assert.Len(t, f.Filters(), 1)
	})

	t.Run("starts empty on failure", func(t *testing.T) {
		st := &fakeStore{loadErr: store.ErrPersistence}
		svc := newTestService(&fakeFetcher{}, st)

		err := svc.Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, store.ErrPersistence)
		assert.Empty(t, svc.Feeds())
	})
}

func TestService_History_SharedAcrossFeeds(t *testing.T) {
	now := time.Now()
	shared := feed.Entry{Title: "syndicated", Link: "http://same/story", Published: now}
	fetcher := &fakeFetcher{entries: map[string][]feed.Entry{
		"http://a.example/rss": {shared},
		"http://b.example/rss": {shared},
	}}
	svc := newTestService(fetcher, &fakeStore{})

	_, err := svc.AddFeed(context.Background(), "sec", "http://a.example/rss")
	require.NoError(t, err)
	_, err = svc.AddFeed(context.Background(), "tech", "http://b.example/rss")
	require.NoError(t, err)

	first, err := svc.DumpFeed(context.Background(), "sec", 0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// the same story via another feed is suppressed, history is global
	second, err := svc.DumpFeed(context.Background(), "tech", 0)
	require.NoError(t, err)
	assert.Empty(t, second)
}
