package models

import "time"

// DisplayModeNormal is the only display mode the daemon emits today.
const DisplayModeNormal = "normal"

// Thought is a persisted, fully enriched event as stored and broadcast.
type Thought struct {
	ID              int64    `json:"id"`
	SessionID       string   `json:"session_id"`
	Timestamp       string   `json:"timestamp"`
	Source          string   `json:"source,omitempty"`
	ToolName        string   `json:"tool_name,omitempty"`
	ToolInput       string   `json:"tool_input,omitempty"`
	ToolResult      string   `json:"tool_result,omitempty"`
	ToolSuccess     bool     `json:"tool_success"`
	ThinkingBlock   string   `json:"thinking_block,omitempty"`
	Monologue       string   `json:"internal_monologue"`
	Emotion         string   `json:"emotion"`
	MetaCommentary  string   `json:"meta_commentary,omitempty"`
	MetaObservation string   `json:"meta_observation,omitempty"`
	ContextUsage    *float64 `json:"context_usage,omitempty"`
	GifSearch       string   `json:"gif_search"`
	GifURL          string   `json:"gif_url"`
	GifTitle        string   `json:"gif_title"`
	GifID           string   `json:"gif_id"`
	Intensity       int      `json:"intensity"`
	DisplayMode     string   `json:"display_mode"`
	CreatedAtEpoch  int64    `json:"created_at_epoch"`
}

// NewThought composes a Thought from a classified event and its reaction.
// The ID is assigned by the store.
func NewThought(ev *ClassifiedEvent, r Reaction) *Thought {
	return &Thought{
		SessionID:       ev.SessionID,
		Timestamp:       ev.Timestamp,
		Source:          string(ev.Source),
		ToolName:        ev.ToolName,
		ToolInput:       ev.ToolInput.String(),
		ToolResult:      ev.ToolResult.String(),
		ToolSuccess:     ev.Succeeded(),
		ThinkingBlock:   ev.ThinkingExcerpt.String(),
		Monologue:       ev.Narrative,
		Emotion:         ev.Emotion,
		MetaCommentary:  ev.Commentary,
		MetaObservation: ev.Aside,
		ContextUsage:    ev.ContextUsage,
		GifSearch:       ev.SearchTerm,
		GifURL:          r.URL,
		GifTitle:        r.Title,
		GifID:           r.ID,
		Intensity:       ev.Intensity,
		DisplayMode:     DisplayModeNormal,
		CreatedAtEpoch:  time.Now().UnixMilli(),
	}
}

// NotableMoment marks a run of high-intensity thoughts within one session.
type NotableMoment struct {
	ID           int64   `json:"id"`
	SessionID    string  `json:"session_id"`
	SequenceName string  `json:"sequence_name"`
	ThoughtIDs   []int64 `json:"thought_ids"`
	Score        int     `json:"virality_score"`
	CreatedAt    string  `json:"created_at"`
}
