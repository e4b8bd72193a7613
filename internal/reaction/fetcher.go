package reaction

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/feels/pkg/models"
)

// Fetcher returns one reaction per term, searching the provider only on a
// cache miss. Failures return the fallback reaction and are not cached.
type Fetcher struct {
	cache    *Cache
	searcher Searcher
	calls    atomic.Int64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFetcher creates a fetcher.
func NewFetcher(cache *Cache, searcher Searcher, rng *rand.Rand) *Fetcher {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Fetcher{cache: cache, searcher: searcher, rng: rng}
}

// Fetch returns a reaction for term. It never fails.
func (f *Fetcher) Fetch(ctx context.Context, term string) models.Reaction {
	if cached := f.cache.Get(term); len(cached) > 0 {
		log.Debug().Str("term", term).Int("cached", len(cached)).Msg("Using cached reaction")
		return f.choose(cached)
	}
	if f.searcher == nil {
		return models.FallbackReaction(term)
	}

	f.calls.Add(1)
	results, err := f.searcher.Search(ctx, term)
	switch {
	case errors.Is(err, ErrRateLimited):
		log.Warn().Str("term", term).Msg("Reaction provider rate limited, using fallback")
		return models.FallbackReaction(term)
	case err != nil:
		log.Warn().Err(err).Str("term", term).Msg("Reaction fetch failed, using fallback")
		return models.FallbackReaction(term)
	case len(results) == 0:
		log.Debug().Str("term", term).Msg("No reactions found, using fallback")
		return models.FallbackReaction(term)
	}

	f.cache.Put(term, results)
	if err := f.cache.Save(); err != nil {
		log.Warn().Err(err).Msg("Failed to save reaction cache")
	}
	log.Debug().Str("term", term).Int("results", len(results)).Msg("Cached reactions")
	return f.choose(results)
}

// Calls returns how many provider searches were issued.
func (f *Fetcher) Calls() int64 {
	return f.calls.Load()
}

// Cache returns the backing cache.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

func (f *Fetcher) choose(results []models.Reaction) models.Reaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return results[f.rng.Intn(len(results))]
}
