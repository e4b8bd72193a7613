package models

// NeutralEmotion is reported as the dominant emotion of an empty session.
const NeutralEmotion = "neutral"

// Session is the per-session aggregate row.
type Session struct {
	ID              string `json:"id"`
	StartedAt       string `json:"started_at"`
	EndedAt         string `json:"ended_at,omitempty"`
	ProjectDir      string `json:"project_dir,omitempty"`
	TotalThoughts   int64  `json:"total_thoughts"`
	DominantEmotion string `json:"dominant_emotion,omitempty"`
	ActualThoughts  int64  `json:"actual_thoughts"`
}

// SessionStats is the aggregate broadcast after every thought and served by /api/stats.
type SessionStats struct {
	SessionID       string           `json:"sessionId"`
	TotalThoughts   int64            `json:"totalThoughts"`
	EmotionCounts   map[string]int64 `json:"emotionCounts"`
	AvgIntensity    float64          `json:"avgIntensity"`
	NotableMoments  int64            `json:"viralMoments"`
	DominantEmotion string           `json:"dominantEmotion"`
}

// EmptyStats returns the stats of a session with no thoughts.
func EmptyStats(sessionID string) *SessionStats {
	return &SessionStats{
		SessionID:       sessionID,
		EmotionCounts:   map[string]int64{},
		AvgIntensity:    5,
		DominantEmotion: NeutralEmotion,
	}
}
