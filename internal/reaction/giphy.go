package reaction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/feels/pkg/models"
)

var (
	// ErrRateLimited is returned when the provider answers 429.
	ErrRateLimited = errors.New("reaction provider rate limited")
	// ErrNoAPIKey is returned when no provider key is configured.
	ErrNoAPIKey = errors.New("reaction provider api key not configured")
)

// Searcher queries an external reaction provider.
type Searcher interface {
	Search(ctx context.Context, term string) ([]models.Reaction, error)
}

// GiphyConfig configures GiphySearcher.
type GiphyConfig struct {
	APIKey  string
	BaseURL string
	Limit   int
	Rating  string
	Timeout time.Duration
}

// GiphySearcher implements Searcher against the Giphy search API.
type GiphySearcher struct {
	cfg    GiphyConfig
	client *http.Client
}

// NewGiphySearcher creates a Giphy client.
func NewGiphySearcher(cfg GiphyConfig) *GiphySearcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.giphy.com/v1/gifs/search"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 25
	}
	if cfg.Rating == "" {
		cfg.Rating = "pg-13"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &GiphySearcher{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type giphyResponse struct {
	Data []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Images struct {
			Original struct {
				URL string `json:"url"`
			} `json:"original"`
		} `json:"images"`
	} `json:"data"`
}

// Search returns up to Limit results for term.
func (g *GiphySearcher) Search(ctx context.Context, term string) ([]models.Reaction, error) {
	if g.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	q := url.Values{}
	q.Set("api_key", g.cfg.APIKey)
	q.Set("q", term)
	q.Set("limit", strconv.Itoa(g.cfg.Limit))
	q.Set("rating", g.cfg.Rating)
	q.Set("lang", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("search %q: unexpected status %d", term, resp.StatusCode)
	}

	var body giphyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]models.Reaction, 0, len(body.Data))
	for _, d := range body.Data {
		if d.Images.Original.URL == "" {
			continue
		}
		results = append(results, models.Reaction{URL: d.Images.Original.URL, Title: d.Title, ID: d.ID})
	}
	return results, nil
}
