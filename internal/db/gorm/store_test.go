package gorm

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/thebtf/feels/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Ping())
	assert.Equal(t, "sqlite", store.Dialect())

	var journalMode string
	require.NoError(t, store.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error)
	assert.Equal(t, "wal", journalMode)

	for _, table := range []string{"thoughts", "sessions", "notable_moments"} {
		assert.True(t, store.DB.Migrator().HasTable(table), "table %q does not exist", table)
	}
}

func TestMigrationIdempotency(t *testing.T) {
	cfg := Config{Path: filepath.Join(t.TempDir(), "test.db"), LogLevel: logger.Silent}

	store1, err := NewStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := NewStore(cfg)
	require.NoError(t, err)
	defer store2.Close()

	assert.True(t, store2.DB.Migrator().HasTable("thoughts"))
}

func TestNewStore_RejectsUnknownDSN(t *testing.T) {
	_, err := NewStore(Config{DSN: "mysql://localhost/feels"})
	assert.Error(t, err)
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, IsPostgresDSN("postgres://u@localhost/feels"))
	assert.True(t, IsPostgresDSN("postgresql://u@localhost/feels"))
	assert.False(t, IsPostgresDSN("/tmp/feels.db"))
}

func TestParseLimitParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"?limit=10", 10},
		{"?limit=0", 50},
		{"?limit=-3", 50},
		{"?limit=abc", 50},
		{"?limit=5000", 500},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/sessions"+tt.query, nil)
			assert.Equal(t, tt.want, ParseLimitParam(r, 50, 500))
		})
	}
}

type ThoughtStoreSuite struct {
	suite.Suite
	store *ThoughtStore
	ctx   context.Context
}

func (s *ThoughtStoreSuite) SetupTest() {
	s.store = NewThoughtStore(newTestStore(s.T()))
	s.ctx = context.Background()
}

func (s *ThoughtStoreSuite) insert(session, emotion string, intensity int) int64 {
	id, err := s.store.InsertThought(s.ctx, &models.Thought{
		SessionID: session,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    "tool-call",
		ToolName:  "Bash",
		Emotion:   emotion,
		Intensity: intensity,
		GifURL:    models.FallbackReactionURL,
	})
	s.Require().NoError(err)
	return id
}

func TestThoughtStoreSuite(t *testing.T) {
	suite.Run(t, new(ThoughtStoreSuite))
}

func (s *ThoughtStoreSuite) TestEmptyStats() {
	stats, err := s.store.SessionStats(s.ctx, "nobody")
	s.Require().NoError(err)

	s.Equal(int64(0), stats.TotalThoughts)
	s.Equal(float64(5), stats.AvgIntensity)
	s.Equal(models.NeutralEmotion, stats.DominantEmotion)
	s.Empty(stats.EmotionCounts)
}

func (s *ThoughtStoreSuite) TestTwelveEventsCounted() {
	for i := 0; i < 12; i++ {
		emotion := "focused"
		if i%3 == 0 {
			emotion = "curious"
		}
		s.insert("s1", emotion, 4)
	}

	stats, err := s.store.SessionStats(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal(int64(12), stats.TotalThoughts)
	s.Equal(int64(8), stats.EmotionCounts["focused"])
	s.Equal(int64(4), stats.EmotionCounts["curious"])
	s.Equal("focused", stats.DominantEmotion)
	s.InDelta(4.0, stats.AvgIntensity, 0.001)

	sessions, err := s.store.ListSessions(s.ctx, 50)
	s.Require().NoError(err)
	s.Require().Len(sessions, 1)
	s.Equal(int64(12), sessions[0].TotalThoughts)
	s.Equal(int64(12), sessions[0].ActualThoughts)
	s.Equal("focused", sessions[0].DominantEmotion)
}

func (s *ThoughtStoreSuite) TestInsertAssignsIncreasingIDs() {
	first := s.insert("s1", "focused", 3)
	second := s.insert("s1", "focused", 3)
	s.Greater(first, int64(0))
	s.Greater(second, first)
}

func (s *ThoughtStoreSuite) TestPurge() {
	for i := 0; i < 5; i++ {
		s.insert("s1", "proud", 9)
	}
	s.Require().NoError(s.store.Purge(s.ctx))

	stats, err := s.store.SessionStats(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal(int64(0), stats.TotalThoughts)
	s.Equal(int64(0), stats.NotableMoments)

	sessions, err := s.store.ListSessions(s.ctx, 50)
	s.Require().NoError(err)
	s.Empty(sessions)

	latest, err := s.store.LatestSessionID(s.ctx)
	s.Require().NoError(err)
	s.Empty(latest)
}

func (s *ThoughtStoreSuite) TestNotableMoments() {
	s.insert("s1", "frustrated", 9)
	s.insert("s1", "frustrated", 10)
	s.insert("s1", "focused", 3) // breaks the run
	a := s.insert("s1", "frustrated", 9)
	b := s.insert("s1", "excited", 10)
	c := s.insert("s1", "proud", 9)

	moments, err := s.store.NotableMoments(s.ctx, "s1")
	s.Require().NoError(err)
	s.Require().Len(moments, 1)
	s.Equal([]int64{a, b, c}, moments[0].ThoughtIDs)
	s.Equal(28, moments[0].Score)
	s.Equal("frustrated > excited > proud", moments[0].SequenceName)

	stats, err := s.store.SessionStats(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal(int64(1), stats.NotableMoments)
}

func (s *ThoughtStoreSuite) TestMomentFailureKeepsThought() {
	s.insert("s1", "excited", 9)
	s.insert("s1", "excited", 10)
	s.Require().NoError(s.store.db.Migrator().DropTable(&NotableMoment{}))

	id, err := s.store.InsertThought(s.ctx, &models.Thought{
		SessionID: "s1",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    "tool-call",
		Emotion:   "proud",
		Intensity: 9,
		GifURL:    models.FallbackReactionURL,
	})
	s.Require().NoError(err)
	s.Greater(id, int64(0))

	recent, err := s.store.RecentThoughts(s.ctx, "s1", 10)
	s.Require().NoError(err)
	s.Len(recent, 3)
	s.Equal(id, recent[2].ID)
}

func (s *ThoughtStoreSuite) TestRunsAreTrackedPerSession() {
	s.insert("s1", "excited", 9)
	s.insert("s2", "excited", 9)
	s.insert("s1", "excited", 9)
	s.insert("s2", "focused", 2)
	s.insert("s1", "excited", 9)

	m1, err := s.store.NotableMoments(s.ctx, "s1")
	s.Require().NoError(err)
	s.Len(m1, 1)

	m2, err := s.store.NotableMoments(s.ctx, "s2")
	s.Require().NoError(err)
	s.Empty(m2)
}

func (s *ThoughtStoreSuite) TestRecentThoughtsOrder() {
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, s.insert("s1", fmt.Sprintf("e%d", i), 5))
	}

	got, err := s.store.RecentThoughts(s.ctx, "s1", 3)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal(ids[2], got[0].ID)
	s.Equal(ids[4], got[2].ID)
	s.Equal(models.FallbackReactionURL, got[2].GifURL)
}

func (s *ThoughtStoreSuite) TestContextUsageRoundTrip() {
	usage := 0.42
	_, err := s.store.InsertThought(s.ctx, &models.Thought{SessionID: "s1", Emotion: "focused", Intensity: 3, ContextUsage: &usage})
	s.Require().NoError(err)
	_, err = s.store.InsertThought(s.ctx, &models.Thought{SessionID: "s1", Emotion: "focused", Intensity: 3})
	s.Require().NoError(err)

	got, err := s.store.RecentThoughts(s.ctx, "s1", 10)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Require().NotNil(got[0].ContextUsage)
	s.InDelta(0.42, *got[0].ContextUsage, 0.0001)
	s.Nil(got[1].ContextUsage)
}

func (s *ThoughtStoreSuite) TestLatestSessionID() {
	latest, err := s.store.LatestSessionID(s.ctx)
	s.Require().NoError(err)
	s.Empty(latest)

	s.Require().NoError(s.store.StartSession(s.ctx, "fresh", "/tmp/p", time.Now()))
	latest, err = s.store.LatestSessionID(s.ctx)
	s.Require().NoError(err)
	s.Equal("fresh", latest)

	s.insert("older", "focused", 3)
	latest, err = s.store.LatestSessionID(s.ctx)
	s.Require().NoError(err)
	s.Equal("older", latest)
}

func (s *ThoughtStoreSuite) TestSessionLifecycle() {
	start := time.Now().Add(-time.Minute)
	s.Require().NoError(s.store.StartSession(s.ctx, "s1", "/work/proj", start))
	s.insert("s1", "curious", 4)
	s.Require().NoError(s.store.EndSession(s.ctx, "s1", time.Now()))

	sessions, err := s.store.ListSessions(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(sessions, 1)
	s.Equal("/work/proj", sessions[0].ProjectDir)
	s.NotEmpty(sessions[0].EndedAt)
	s.Equal(int64(1), sessions[0].TotalThoughts)

	// Restarting clears the end time
	s.Require().NoError(s.store.StartSession(s.ctx, "s1", "", time.Now()))
	sessions, err = s.store.ListSessions(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(sessions[0].EndedAt)
	s.Equal("/work/proj", sessions[0].ProjectDir)
}

func (s *ThoughtStoreSuite) TestEndUnknownSessionCreatesRow() {
	s.Require().NoError(s.store.EndSession(s.ctx, "ghost", time.Now()))
	sessions, err := s.store.ListSessions(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(sessions, 1)
	s.Equal("ghost", sessions[0].ID)
	s.Equal(int64(0), sessions[0].ActualThoughts)
}

func (s *ThoughtStoreSuite) TestListSessionsLimit() {
	base := time.Now()
	for i := 0; i < 4; i++ {
		s.Require().NoError(s.store.StartSession(s.ctx, fmt.Sprintf("s%d", i), "", base.Add(time.Duration(i)*time.Second)))
	}
	sessions, err := s.store.ListSessions(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(sessions, 2)
	s.Equal("s3", sessions[0].ID)
	s.Equal("s2", sessions[1].ID)
}
