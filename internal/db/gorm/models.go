package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// Session is the per-session aggregate row.
type Session struct {
	ID              string `gorm:"primaryKey"`
	StartedAt       string `gorm:"not null"`
	StartedAtEpoch  int64  `gorm:"index:idx_sessions_started,sort:desc;not null"`
	EndedAt         sql.NullString
	ProjectDir      string
	TotalThoughts   int64 `gorm:"not null;default:0"`
	DominantEmotion string
}

func (Session) TableName() string { return "sessions" }

// BeforeCreate hook to ensure timestamps are set.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.StartedAtEpoch == 0 {
		s.StartedAtEpoch = time.Now().UnixMilli()
	}
	if s.StartedAt == "" {
		s.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return nil
}

// Thought is one persisted, enriched event.
type Thought struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	SessionID         string `gorm:"index;not null"`
	Timestamp         string `gorm:"not null"`
	Source            string
	ToolName          string
	ToolInput         string `gorm:"type:text"`
	ToolResult        string `gorm:"type:text"`
	ToolSuccess       bool
	ThinkingBlock     string `gorm:"type:text"`
	InternalMonologue string `gorm:"type:text"`
	Emotion           string `gorm:"index;not null"`
	MetaCommentary    string `gorm:"type:text"`
	MetaObservation   string `gorm:"type:text"`
	ContextUsage      sql.NullFloat64
	GifSearch         string
	GifURL            string `gorm:"column:gif_url"`
	GifTitle          string
	GifID             string `gorm:"column:gif_id"`
	Intensity         int    `gorm:"not null"`
	DisplayMode       string
	CreatedAtEpoch    int64 `gorm:"index:idx_thoughts_created,sort:desc;not null"`
}

func (Thought) TableName() string { return "thoughts" }

// BeforeCreate hook to ensure timestamps are set.
func (t *Thought) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAtEpoch == 0 {
		t.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if t.Timestamp == "" {
		t.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return nil
}

// NotableMoment records a run of high-intensity thoughts.
type NotableMoment struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	SessionID      string `gorm:"index;not null"`
	SequenceName   string
	ThoughtIDs     string `gorm:"column:thought_ids;type:text"` // JSON array
	ViralityScore  int
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"not null"`
}

func (NotableMoment) TableName() string { return "notable_moments" }

// BeforeCreate hook to ensure timestamps are set.
func (n *NotableMoment) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if n.CreatedAtEpoch == 0 {
		n.CreatedAtEpoch = now.UnixMilli()
	}
	if n.CreatedAt == "" {
		n.CreatedAt = now.UTC().Format(time.RFC3339)
	}
	return nil
}
