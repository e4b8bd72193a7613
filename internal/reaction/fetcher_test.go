package reaction

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/feels/pkg/models"
)

// fakeSearcher records every search and returns canned results.
type fakeSearcher struct {
	mu      sync.Mutex
	calls   []string
	results []models.Reaction
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, term string) ([]models.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, term)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// FetcherSuite is a test suite for Fetcher operations.
type FetcherSuite struct {
	suite.Suite
	cachePath string
	searcher  *fakeSearcher
	fetcher   *Fetcher
}

func (s *FetcherSuite) SetupTest() {
	s.cachePath = filepath.Join(s.T().TempDir(), "gif-cache.json")
	s.searcher = &fakeSearcher{results: []models.Reaction{
		{URL: "https://example.test/a.gif", Title: "A", ID: "a"},
		{URL: "https://example.test/b.gif", Title: "B", ID: "b"},
	}}
	s.fetcher = NewFetcher(OpenCache(s.cachePath), s.searcher, rand.New(rand.NewSource(1)))
}

func TestFetcherSuite(t *testing.T) {
	suite.Run(t, new(FetcherSuite))
}

// TestSecondFetchUsesCache checks that a populated term is never searched again.
func (s *FetcherSuite) TestSecondFetchUsesCache() {
	ctx := context.Background()

	first := s.fetcher.Fetch(ctx, "eureka moment")
	s.Contains(s.searcher.results, first)
	s.Equal(1, s.searcher.callCount())

	second := s.fetcher.Fetch(ctx, "eureka moment")
	s.Contains(s.searcher.results, second)
	s.Equal(1, s.searcher.callCount(), "second fetch must not call the provider")
	s.Equal(int64(1), s.fetcher.Calls())
}

// TestCachePersisted checks that results survive a reopen.
func (s *FetcherSuite) TestCachePersisted() {
	s.fetcher.Fetch(context.Background(), "nailed it")

	reopened := OpenCache(s.cachePath)
	s.Equal(1, reopened.Len())
	s.Len(reopened.Get("nailed it"), 2)
}

// TestFailureNotCached checks the fallback path for every failure kind.
func (s *FetcherSuite) TestFailureNotCached() {
	tests := []struct {
		name string
		err  error
	}{
		{"rate limited", ErrRateLimited},
		{"transport error", errors.New("connection refused")},
		{"no key", ErrNoAPIKey},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			searcher := &fakeSearcher{err: tt.err}
			f := NewFetcher(NewCache(filepath.Join(s.T().TempDir(), "c.json")), searcher, nil)

			got := f.Fetch(context.Background(), "wait what")
			s.Equal(models.FallbackReaction("wait what"), got)
			s.True(got.IsFallback())
			s.Empty(f.Cache().Get("wait what"))

			f.Fetch(context.Background(), "wait what")
			s.Equal(2, searcher.callCount(), "failures are retried on the next fetch")
		})
	}
}

// TestEmptyResultsFallback checks that an empty provider answer is not cached.
func (s *FetcherSuite) TestEmptyResultsFallback() {
	s.searcher.results = nil
	got := s.fetcher.Fetch(context.Background(), "y tho")
	s.True(got.IsFallback())
	s.Equal(0, s.fetcher.Cache().Len())
}

func TestOpenCache_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gif-cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	c := OpenCache(path)
	assert.Equal(t, 0, c.Len())

	c.Put("x", []models.Reaction{{URL: "u", ID: "1"}})
	require.NoError(t, c.Save())
	require.NoError(t, c.Load())
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Clear())
	require.NoError(t, c.Load())
	assert.Equal(t, 0, c.Len())
}

func TestOpenCache_MissingFile(t *testing.T) {
	c := OpenCache(filepath.Join(t.TempDir(), "nope", "gif-cache.json"))
	assert.Equal(t, 0, c.Len())
}

func TestGiphySearcher(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{"q": q.Get("q"), "limit": q.Get("limit"), "rating": q.Get("rating"), "api_key": q.Get("api_key")}
		switch q.Get("q") {
		case "slow down":
			w.WriteHeader(http.StatusTooManyRequests)
		case "boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[
				{"id":"g1","title":"Mind Blown","images":{"original":{"url":"https://media.test/g1.gif"}}},
				{"id":"g2","title":"No URL","images":{"original":{"url":""}}}
			]}`))
		}
	}))
	defer server.Close()

	g := NewGiphySearcher(GiphyConfig{APIKey: "k", BaseURL: server.URL, Limit: 10, Rating: "g"})

	results, err := g.Search(context.Background(), "mind blown")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.Reaction{URL: "https://media.test/g1.gif", Title: "Mind Blown", ID: "g1"}, results[0])
	assert.Equal(t, map[string]string{"q": "mind blown", "limit": "10", "rating": "g", "api_key": "k"}, gotQuery)

	_, err = g.Search(context.Background(), "slow down")
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = g.Search(context.Background(), "boom")
	assert.Error(t, err)

	_, err = NewGiphySearcher(GiphyConfig{BaseURL: server.URL}).Search(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
