package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/feels/pkg/models"
)

const (
	// NotableIntensity is the intensity a thought needs to count toward a notable moment.
	NotableIntensity = 9
	// NotableRunLength is how many consecutive notable thoughts make a moment.
	NotableRunLength = 3
)

// ThoughtStore provides thought and session operations.
type ThoughtStore struct {
	db *gorm.DB

	// mu serializes writes so session counters stay consistent
	mu   sync.Mutex
	runs map[string][]int64
}

// NewThoughtStore creates a new thought store.
func NewThoughtStore(store *Store) *ThoughtStore {
	return &ThoughtStore{
		db:   store.DB,
		runs: make(map[string][]int64),
	}
}

// InsertThought stores t, bumps its session's counters and returns the new row id.
// A thought that completes a run of high-intensity thoughts also records a notable moment.
func (s *ThoughtStore) InsertThought(ctx context.Context, t *models.Thought) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := fromModelThought(t)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("insert thought: %w", err)
		}

		session := &Session{
			ID:            row.SessionID,
			StartedAt:     row.Timestamp,
			TotalThoughts: 1,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"total_thoughts": gorm.Expr("sessions.total_thoughts + 1"),
			}),
		}).Create(session).Error; err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		dominant, err := dominantEmotion(tx, row.SessionID)
		if err != nil {
			return err
		}
		return tx.Model(&Session{}).
			Where("id = ?", row.SessionID).
			Update("dominant_emotion", dominant).Error
	})
	if err != nil {
		return 0, err
	}

	t.ID = row.ID
	if err := s.trackRun(ctx, row); err != nil {
		log.Warn().Err(err).Str("session", row.SessionID).Int64("thought_id", row.ID).Msg("Failed to record notable moment")
	}
	return row.ID, nil
}

// trackRun extends or resets the session's high-intensity run. Caller holds mu.
func (s *ThoughtStore) trackRun(ctx context.Context, row *Thought) error {
	if row.Intensity < NotableIntensity {
		delete(s.runs, row.SessionID)
		return nil
	}
	run := append(s.runs[row.SessionID], row.ID)
	if len(run) < NotableRunLength {
		s.runs[row.SessionID] = run
		return nil
	}
	delete(s.runs, row.SessionID)

	var thoughts []Thought
	if err := s.db.WithContext(ctx).Where("id IN ?", run).Order("id ASC").Find(&thoughts).Error; err != nil {
		return err
	}
	names := make([]string, 0, len(thoughts))
	score := 0
	for _, th := range thoughts {
		names = append(names, th.Emotion)
		score += th.Intensity
	}
	return s.recordNotableMoment(ctx, &models.NotableMoment{
		SessionID:    row.SessionID,
		SequenceName: strings.Join(names, " > "),
		ThoughtIDs:   run,
		Score:        score,
	})
}

// recordNotableMoment stores m and sets its ID. Caller holds mu.
func (s *ThoughtStore) recordNotableMoment(ctx context.Context, m *models.NotableMoment) error {
	ids, err := json.Marshal(m.ThoughtIDs)
	if err != nil {
		return err
	}
	row := &NotableMoment{
		SessionID:     m.SessionID,
		SequenceName:  m.SequenceName,
		ThoughtIDs:    string(ids),
		ViralityScore: m.Score,
		CreatedAt:     m.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	m.ID = row.ID
	m.CreatedAt = row.CreatedAt
	return nil
}

// NotableMoments returns a session's moments, oldest first.
func (s *ThoughtStore) NotableMoments(ctx context.Context, sessionID string) ([]*models.NotableMoment, error) {
	var rows []NotableMoment
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.NotableMoment, 0, len(rows))
	for _, r := range rows {
		m := &models.NotableMoment{
			ID:           r.ID,
			SessionID:    r.SessionID,
			SequenceName: r.SequenceName,
			Score:        r.ViralityScore,
			CreatedAt:    r.CreatedAt,
		}
		if r.ThoughtIDs != "" {
			if err := json.Unmarshal([]byte(r.ThoughtIDs), &m.ThoughtIDs); err != nil {
				return nil, fmt.Errorf("decode thought ids: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// dominantEmotion returns the most frequent emotion of a session, ties broken alphabetically.
func dominantEmotion(tx *gorm.DB, sessionID string) (string, error) {
	var row struct {
		Emotion string
		Count   int64
	}
	err := tx.Model(&Thought{}).
		Select("emotion, COUNT(*) AS count").
		Where("session_id = ?", sessionID).
		Group("emotion").
		Order("count DESC, emotion ASC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return "", fmt.Errorf("dominant emotion: %w", err)
	}
	if row.Emotion == "" {
		return models.NeutralEmotion, nil
	}
	return row.Emotion, nil
}

// SessionStats aggregates the thoughts of one session.
func (s *ThoughtStore) SessionStats(ctx context.Context, sessionID string) (*models.SessionStats, error) {
	stats := models.EmptyStats(sessionID)
	if sessionID == "" {
		return stats, nil
	}

	var counts []struct {
		Emotion string
		Count   int64
	}
	if err := s.db.WithContext(ctx).Model(&Thought{}).
		Select("emotion, COUNT(*) AS count").
		Where("session_id = ?", sessionID).
		Group("emotion").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count emotions: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&NotableMoment{}).
		Where("session_id = ?", sessionID).
		Count(&stats.NotableMoments).Error; err != nil {
		return nil, fmt.Errorf("count notable moments: %w", err)
	}

	if len(counts) == 0 {
		return stats, nil
	}

	var best int64
	for _, c := range counts {
		stats.EmotionCounts[c.Emotion] = c.Count
		stats.TotalThoughts += c.Count
		if c.Count > best || (c.Count == best && c.Emotion < stats.DominantEmotion) {
			best = c.Count
			stats.DominantEmotion = c.Emotion
		}
	}

	var avg struct{ Avg float64 }
	if err := s.db.WithContext(ctx).Model(&Thought{}).
		Select("AVG(intensity) AS avg").
		Where("session_id = ?", sessionID).
		Scan(&avg).Error; err != nil {
		return nil, fmt.Errorf("average intensity: %w", err)
	}
	stats.AvgIntensity = avg.Avg
	return stats, nil
}

// ListSessions returns up to limit sessions, most recently started first.
func (s *ThoughtStore) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []struct {
		Session
		ActualThoughts int64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT s.*, (SELECT COUNT(*) FROM thoughts t WHERE t.session_id = s.id) AS actual_thoughts
		FROM sessions s
		ORDER BY s.started_at_epoch DESC
		LIMIT ?`, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]*models.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, &models.Session{
			ID:              r.ID,
			StartedAt:       r.StartedAt,
			EndedAt:         r.EndedAt.String,
			ProjectDir:      r.ProjectDir,
			TotalThoughts:   r.TotalThoughts,
			DominantEmotion: r.DominantEmotion,
			ActualThoughts:  r.ActualThoughts,
		})
	}
	return out, nil
}

// RecentThoughts returns the last limit thoughts of a session in insertion order.
func (s *ThoughtStore) RecentThoughts(ctx context.Context, sessionID string, limit int) ([]*models.Thought, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Thought
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("recent thoughts: %w", err)
	}

	out := make([]*models.Thought, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = toModelThought(&rows[i])
	}
	return out, nil
}

// LatestSessionID returns the session of the newest thought, or of the newest
// session when no thoughts exist. Empty when the store is empty.
func (s *ThoughtStore) LatestSessionID(ctx context.Context) (string, error) {
	var t Thought
	err := s.db.WithContext(ctx).Order("id DESC").Limit(1).Take(&t).Error
	if err == nil {
		return t.SessionID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	var sess Session
	err = s.db.WithContext(ctx).Order("started_at_epoch DESC").Limit(1).Take(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// StartSession creates the session row, or reopens it if it already exists.
func (s *ThoughtStore) StartSession(ctx context.Context, sessionID, projectDir string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, sessionID)
	session := &Session{
		ID:             sessionID,
		StartedAt:      at.UTC().Format(time.RFC3339),
		StartedAtEpoch: at.UnixMilli(),
		ProjectDir:     projectDir,
	}
	updates := map[string]any{"ended_at": nil}
	if projectDir != "" {
		updates["project_dir"] = projectDir
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(session).Error
}

// EndSession stamps the session's end time, creating the row if needed.
func (s *ThoughtStore) EndSession(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, sessionID)
	ended := at.UTC().Format(time.RFC3339)
	session := &Session{
		ID:      sessionID,
		EndedAt: sqlNullString(ended),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{"ended_at": ended}),
	}).Create(session).Error
}

// Purge deletes every thought, session and notable moment.
func (s *ThoughtStore) Purge(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string][]int64)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"notable_moments", "thoughts", "sessions"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
		}
		return nil
	})
}

func fromModelThought(t *models.Thought) *Thought {
	return &Thought{
		SessionID:         t.SessionID,
		Timestamp:         t.Timestamp,
		Source:            t.Source,
		ToolName:          t.ToolName,
		ToolInput:         t.ToolInput,
		ToolResult:        t.ToolResult,
		ToolSuccess:       t.ToolSuccess,
		ThinkingBlock:     t.ThinkingBlock,
		InternalMonologue: t.Monologue,
		Emotion:           t.Emotion,
		MetaCommentary:    t.MetaCommentary,
		MetaObservation:   t.MetaObservation,
		ContextUsage:      nullFloat64(t.ContextUsage),
		GifSearch:         t.GifSearch,
		GifURL:            t.GifURL,
		GifTitle:          t.GifTitle,
		GifID:             t.GifID,
		Intensity:         t.Intensity,
		DisplayMode:       t.DisplayMode,
		CreatedAtEpoch:    t.CreatedAtEpoch,
	}
}

func toModelThought(r *Thought) *models.Thought {
	t := &models.Thought{
		ID:              r.ID,
		SessionID:       r.SessionID,
		Timestamp:       r.Timestamp,
		Source:          r.Source,
		ToolName:        r.ToolName,
		ToolInput:       r.ToolInput,
		ToolResult:      r.ToolResult,
		ToolSuccess:     r.ToolSuccess,
		ThinkingBlock:   r.ThinkingBlock,
		Monologue:       r.InternalMonologue,
		Emotion:         r.Emotion,
		MetaCommentary:  r.MetaCommentary,
		MetaObservation: r.MetaObservation,
		GifSearch:       r.GifSearch,
		GifURL:          r.GifURL,
		GifTitle:        r.GifTitle,
		GifID:           r.GifID,
		Intensity:       r.Intensity,
		DisplayMode:     r.DisplayMode,
		CreatedAtEpoch:  r.CreatedAtEpoch,
	}
	if r.ContextUsage.Valid {
		v := r.ContextUsage.Float64
		t.ContextUsage = &v
	}
	return t
}
