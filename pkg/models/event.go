// Package models contains domain models for feels.
package models

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// SourceKind identifies which hook produced a RawEvent.
type SourceKind string

const (
	SourceToolCall     SourceKind = "tool-call"
	SourceTurnEnd      SourceKind = "turn-end"
	SourceSessionStart SourceKind = "session-start"
	SourceSessionEnd   SourceKind = "session-end"
)

// DefaultSessionID is used for events that arrive without a session id.
const DefaultSessionID = "daemon-session"

// ParseSourceKind maps the hook event names used on the feed to a SourceKind.
// Unknown names are treated as tool calls.
func ParseSourceKind(s string) SourceKind {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(s)) {
	case "stop", "turnend":
		return SourceTurnEnd
	case "sessionstart":
		return SourceSessionStart
	case "sessionend":
		return SourceSessionEnd
	default:
		return SourceToolCall
	}
}

// Excerpt is a free-form text field on the feed. Hooks write either a plain
// string or an arbitrary JSON value; non-string values are kept as compact JSON.
type Excerpt string

// UnmarshalJSON implements json.Unmarshaler.
func (e *Excerpt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = Excerpt(s)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	*e = Excerpt(buf.String())
	return nil
}

// String returns the excerpt text.
func (e Excerpt) String() string { return string(e) }

// RawEvent is one line of the event log as written by the capture hooks.
type RawEvent struct {
	Timestamp       string     `json:"timestamp,omitempty"`
	Source          SourceKind `json:"source,omitempty"`
	SessionID       string     `json:"session_id,omitempty"`
	ProjectDir      string     `json:"project_dir,omitempty"`
	ToolName        string     `json:"tool_name,omitempty"`
	ToolInput       Excerpt    `json:"tool_input,omitempty"`
	ToolResult      Excerpt    `json:"tool_result,omitempty"`
	ToolSucceeded   *bool      `json:"tool_success,omitempty"`
	ThinkingExcerpt Excerpt    `json:"thinking_block,omitempty"`
	ContextUsage    *float64   `json:"context_usage,omitempty"`
}

// ErrNotObject is returned for feed lines that are valid JSON but not an object.
var ErrNotObject = errors.New("feed line is not a JSON object")

// ParseRawEvent decodes a single feed line and normalizes it. Only lines that
// are not JSON objects are rejected; a field of the wrong type reads as its
// default (empty text, success, no usage).
func ParseRawEvent(line []byte) (*RawEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, ErrNotObject
	}

	ev := RawEvent{
		Timestamp:       stringField(fields["timestamp"]),
		Source:          SourceKind(stringField(fields["source"])),
		SessionID:       stringField(fields["session_id"]),
		ProjectDir:      stringField(fields["project_dir"]),
		ToolName:        stringField(fields["tool_name"]),
		ToolInput:       excerptField(fields["tool_input"]),
		ToolResult:      excerptField(fields["tool_result"]),
		ToolSucceeded:   boolField(fields["tool_success"]),
		ThinkingExcerpt: excerptField(fields["thinking_block"]),
		ContextUsage:    floatField(fields["context_usage"]),
	}
	ev.Normalize()
	return &ev, nil
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func excerptField(raw json.RawMessage) Excerpt {
	var e Excerpt
	if len(raw) == 0 || e.UnmarshalJSON(raw) != nil {
		return ""
	}
	return e
}

func boolField(raw json.RawMessage) *bool {
	var b *bool
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil {
		return nil
	}
	return b
}

func floatField(raw json.RawMessage) *float64 {
	var f *float64
	if len(raw) == 0 || json.Unmarshal(raw, &f) != nil {
		return nil
	}
	return f
}

// Normalize fills defaults and clamps out-of-range values so that every
// RawEvent handed downstream satisfies the data model invariants.
func (e *RawEvent) Normalize() {
	e.Source = ParseSourceKind(string(e.Source))
	if e.SessionID == "" {
		e.SessionID = DefaultSessionID
	}
	if e.Timestamp == "" {
		e.Timestamp = time.Now().Format(time.RFC3339)
	}
	if e.ContextUsage != nil {
		u := *e.ContextUsage
		switch {
		case math.IsNaN(u) || math.IsInf(u, 0):
			e.ContextUsage = nil
		case u < 0:
			u = 0
			e.ContextUsage = &u
		case u > 1:
			u = 1
			e.ContextUsage = &u
		}
	}
}

// Succeeded reports the tool outcome; an absent flag counts as success.
func (e *RawEvent) Succeeded() bool {
	return e.ToolSucceeded == nil || *e.ToolSucceeded
}

// ClassifiedEvent is a RawEvent enriched by the classifier and narrative generator.
type ClassifiedEvent struct {
	RawEvent
	Emotion    string `json:"emotion"`
	SearchTerm string `json:"gif_search"`
	Intensity  int    `json:"intensity"`
	Narrative  string `json:"internal_monologue"`
	Aside      string `json:"meta_observation,omitempty"`
	Commentary string `json:"meta_commentary,omitempty"`
}
