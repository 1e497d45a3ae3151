package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/feedbot/pkg/feed"
)

type fakeService struct {
	feeds   []*feed.Feed
	entries []feed.Entry
	err     error
	gotName string
	gotLim  int
}

func (s *fakeService) Feeds() []*feed.Feed { return s.feeds }
func (s *fakeService) DumpFeed(_ context.Context, name string, limit int) ([]feed.Entry, error) {
	s.gotName, s.gotLim = name, limit
	return s.entries, s.err
}

func newTestServer(svc FeedService) *httptest.Server {
	s := New(svc, ":0", time.Second, "test", false)
	return httptest.NewServer(s.router)
}

func TestServer_Status(t *testing.T) {
	svc := &fakeService{feeds: []*feed.Feed{feed.NewFeed("sec", "http://a.example/rss")}}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "test", status["version"])
	assert.InDelta(t, 1, status["feeds"], 0.0001)
}

func TestServer_Ping(t *testing.T) {
	ts := newTestServer(&fakeService{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Feeds(t *testing.T) {
	f := feed.NewFeed("sec", "http://a.example/rss", feed.NewNotFilter("acme"), feed.NewAgeFilter(90))
	ts := newTestServer(&fakeService{feeds: []*feed.Feed{f}})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/feeds")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var infos []FeedInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "sec", infos[0].Name)
	assert.Equal(t, "http://a.example/rss", infos[0].URL)
	assert.Equal(t, []string{`not "acme"`, "age 1h30m0s"}, infos[0].Filters)
}

func TestServer_Entries(t *testing.T) {
	svc := &fakeService{entries: []feed.Entry{{Title: "story", Link: "http://a.example/1"}}}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/feeds/sec/entries?limit=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []feed.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "story", entries[0].Title)
	assert.Equal(t, "sec", svc.gotName)
	assert.Equal(t, 3, svc.gotLim)
}

func TestServer_Entries_Errors(t *testing.T) {
	t.Run("unknown feed is 404", func(t *testing.T) {
		svc := &fakeService{err: fmt.Errorf("%w: %q", feed.ErrUnknownFeed, "nope")}
		ts := newTestServer(svc)
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/feeds/nope/entries")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("fetch failure is 500", func(t *testing.T) {
		svc := &fakeService{err: feed.ErrFeedData}
		ts := newTestServer(svc)
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/feeds/sec/entries")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("bad limit is 400", func(t *testing.T) {
		ts := newTestServer(&fakeService{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/feeds/sec/entries?limit=abc")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_RunShutdown(t *testing.T) {
	s := New(&fakeService{}, "127.0.0.1:0", time.Second, "test", false)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.NoError(t, err, "shutdown on context cancel is clean")
}
