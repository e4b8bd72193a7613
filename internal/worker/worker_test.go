package worker

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/feels/internal/config"
	gormdb "github.com/thebtf/feels/internal/db/gorm"
	"github.com/thebtf/feels/internal/emotion"
	"github.com/thebtf/feels/pkg/models"
)

// testStore opens a migrated SQLite store in a temp dir.
func testStore(t *testing.T) *gormdb.ThoughtStore {
	t.Helper()
	store, err := gormdb.NewStore(gormdb.Config{
		Path:     filepath.Join(t.TempDir(), "feels.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return gormdb.NewThoughtStore(store)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.FeedPath = filepath.Join(t.TempDir(), "feels-feed.jsonl")
	cfg.RecentSessionLimit = 50
	return cfg
}

// recordingHub captures broadcast messages.
type recordingHub struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (h *recordingHub) Broadcast(msg any) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := msg.(models.Message); ok {
		h.msgs = append(h.msgs, m)
	}
	return 1
}

func (h *recordingHub) ClientCount() int { return 1 }

func (h *recordingHub) messages() []models.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Message(nil), h.msgs...)
}

func (h *recordingHub) ofType(t models.MessageType) []models.Message {
	var out []models.Message
	for _, m := range h.messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// recordingSubscriber is a ws.Subscriber that keeps raw frames.
type recordingSubscriber struct {
	id     string
	mu     sync.Mutex
	frames []string
}

func (s *recordingSubscriber) ID() string { return s.id }

func (s *recordingSubscriber) Send(data []byte) error {
	s.mu.Lock()
	s.frames = append(s.frames, string(data))
	s.mu.Unlock()
	return nil
}

func (s *recordingSubscriber) Close() error { return nil }

func (s *recordingSubscriber) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.frames {
		var m struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(f), &m)
		out = append(out, m.Type)
	}
	return out
}

// staticFetcher returns a fixed reaction and records the terms it saw.
type staticFetcher struct {
	mu    sync.Mutex
	terms []string
	panic atomic.Bool
}

func (f *staticFetcher) Fetch(_ context.Context, term string) models.Reaction {
	if f.panic.CompareAndSwap(true, false) {
		panic("fetch exploded")
	}
	f.mu.Lock()
	f.terms = append(f.terms, term)
	f.mu.Unlock()
	return models.Reaction{URL: "https://media.example/x.gif", Title: term, ID: "x"}
}

// fakeCommentator returns a fixed remark or error.
type fakeCommentator struct {
	calls atomic.Int32
	err   error
}

func (c *fakeCommentator) Comment(context.Context, *models.RawEvent) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}
	return "Ah yes, the classic.", nil
}

// failingStore fails every insert.
type failingStore struct {
	*gormdb.ThoughtStore
}

func (failingStore) InsertThought(context.Context, *models.Thought) (int64, error) {
	return 0, errors.New("disk full")
}

func newTestProcessor(store ThoughtStore, hub Broadcaster, fetcher ReactionFetcher, queue *Queue) *Processor {
	rng := rand.New(rand.NewSource(7))
	return NewProcessor(ProcessorConfig{
		Queue:        queue,
		Classifier:   emotion.NewClassifier(emotion.DefaultTable(), rng, config.DefaultSurpriseProbability),
		Narrator:     emotion.NewNarrator(rand.New(rand.NewSource(8)), emotion.NewState(), nil),
		Fetcher:      fetcher,
		Store:        store,
		Hub:          hub,
		PollInterval: 5 * time.Millisecond,
	})
}

func boolPtr(b bool) *bool { return &b }
