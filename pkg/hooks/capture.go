package hooks

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/thebtf/feels/internal/privacy"
	"github.com/thebtf/feels/pkg/models"
)

const (
	// MaxResultChars bounds the tool result copied into the feed.
	MaxResultChars = 2000
	// MaxInputChars bounds tool input that has no well-known key field.
	MaxInputChars = 200
	// NotifyTimeout bounds the optional fire-and-forget POST.
	NotifyTimeout = 100 * time.Millisecond
)

// errorIndicators mark a tool result as a failure.
var errorIndicators = []string{
	"error", "failed", "failure", "exception", "traceback",
	"cannot", "unable to", "does not exist", "not found",
	"permission denied", "access denied", "invalid",
	"syntax error", "command not found",
}

// CaptureInput is the union of the hook payloads the capture command accepts.
type CaptureInput struct {
	BaseInput
	ToolName     string          `json:"tool_name"`
	ToolInput    json.RawMessage `json:"tool_input"`
	ToolResponse json.RawMessage `json:"tool_response"`
	ToolResult   json.RawMessage `json:"tool_result"`
	ProjectDir   string          `json:"project_dir"`
}

// BuildEvent maps a hook payload to a feed event. Transcript details are
// merged in by the caller.
func BuildEvent(kind models.SourceKind, in *CaptureInput, now time.Time) *models.RawEvent {
	ev := &models.RawEvent{
		Timestamp: now.Format(time.RFC3339),
		Source:    kind,
		SessionID: in.SessionID,
	}

	switch kind {
	case models.SourceToolCall:
		result := rawText(in.ToolResponse)
		if result == "" {
			result = rawText(in.ToolResult)
		}
		succeeded := DetectSuccess(result)

		ev.ToolName = in.ToolName
		ev.ToolInput = models.Excerpt(CondenseToolInput(in.ToolInput))
		ev.ToolResult = models.Excerpt(truncate(result, MaxResultChars))
		ev.ToolSucceeded = &succeeded
	case models.SourceSessionStart:
		ev.ProjectDir = in.ProjectDir
		if ev.ProjectDir == "" {
			ev.ProjectDir = in.CWD
		}
	}
	return ev
}

// Capture builds the feed event for one hook invocation, merges the
// transcript thinking and usage for tool calls and turn ends, appends it to
// the feed and optionally notifies hookURL.
func Capture(ctx context.Context, kind models.SourceKind, hc *HookContext, in *CaptureInput, feedPath, hookURL string) error {
	ev := BuildEvent(kind, in, time.Now())
	if ev.SessionID == "" {
		ev.SessionID = hc.SessionID
	}

	if kind == models.SourceToolCall || kind == models.SourceTurnEnd {
		info := ReadTranscript(hc.TranscriptPath)
		ev.ThinkingExcerpt = models.Excerpt(info.Thinking)
		ev.ContextUsage = info.ContextUsage
	}
	redact(ev)

	if err := AppendFeed(feedPath, ev); err != nil {
		return err
	}
	Notify(ctx, hookURL, ev)
	return nil
}

// redact removes private regions and credentials from the free-text fields.
// Thinking that is private throughout is dropped so the narrative falls back
// to its own lines.
func redact(ev *models.RawEvent) {
	ev.ToolInput = models.Excerpt(privacy.Clean(ev.ToolInput.String()))
	ev.ToolResult = models.Excerpt(privacy.Clean(ev.ToolResult.String()))
	if privacy.IsEntirelyPrivate(ev.ThinkingExcerpt.String()) {
		ev.ThinkingExcerpt = ""
		return
	}
	ev.ThinkingExcerpt = models.Excerpt(privacy.Clean(ev.ThinkingExcerpt.String()))
}

// CondenseToolInput keeps the key field of common tool inputs (command,
// file_path, pattern) and a bounded JSON rendering otherwise.
func CondenseToolInput(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err == nil {
		for _, key := range []string{"command", "file_path", "pattern"} {
			if v, ok := fields[key].(string); ok {
				return v
			}
		}
		return truncate(compact(raw), MaxInputChars)
	}
	return truncate(rawText(raw), MaxInputChars)
}

// DetectSuccess reports false when result contains a common error indicator.
func DetectSuccess(result string) bool {
	if result == "" {
		return true
	}
	lower := strings.ToLower(result)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return false
		}
	}
	return true
}

// Notify POSTs ev to url and discards the outcome. It never retries.
func Notify(ctx context.Context, url string, ev *models.RawEvent) {
	if url == "" {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, NotifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

// rawText renders a JSON value as text: strings unquoted, anything else compact.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return compact(raw)
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
