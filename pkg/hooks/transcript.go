package hooks

import (
	"bufio"
	"os"

	"github.com/goccy/go-json"
)

// ContextWindowTokens is the context window the usage ratio is computed against.
const ContextWindowTokens = 200000

// MaxThinkingChars bounds the thinking excerpt copied from a transcript.
const MaxThinkingChars = 2000

type transcriptEntry struct {
	IsSidechain       bool `json:"isSidechain"`
	IsAPIErrorMessage bool `json:"isApiErrorMessage"`
	Message           struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
		Usage   *tokenUsage     `json:"usage"`
	} `json:"message"`
	Usage *tokenUsage `json:"usage"`
}

type tokenUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
}

func (u *tokenUsage) total() int64 {
	return u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens + u.OutputTokens
}

type contentBlock struct {
	Type     string `json:"type"`
	Thinking string `json:"thinking"`
}

// TranscriptInfo is what the capture hook extracts from a session transcript.
type TranscriptInfo struct {
	Thinking     string
	ContextUsage *float64
}

// ReadTranscript scans a JSONL transcript for the latest assistant thinking
// block and the latest token usage. Sidechain and API error entries are
// skipped. A missing or unreadable transcript yields an empty result.
func ReadTranscript(path string) TranscriptInfo {
	var info TranscriptInfo
	if path == "" {
		return info
	}
	f, err := os.Open(path)
	if err != nil {
		return info
	}
	defer f.Close()

	var latest *tokenUsage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry transcriptEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.IsSidechain || entry.IsAPIErrorMessage {
			continue
		}

		if entry.Message.Usage != nil {
			latest = entry.Message.Usage
		} else if entry.Usage != nil {
			latest = entry.Usage
		}

		if entry.Message.Role != "assistant" {
			continue
		}
		var blocks []contentBlock
		if err := json.Unmarshal(entry.Message.Content, &blocks); err != nil {
			continue
		}
		for _, b := range blocks {
			if b.Type == "thinking" && b.Thinking != "" {
				info.Thinking = b.Thinking
			}
		}
	}

	info.Thinking = truncate(info.Thinking, MaxThinkingChars)
	if latest != nil {
		ratio := float64(latest.total()) / ContextWindowTokens
		if ratio > 1 {
			ratio = 1
		}
		info.ContextUsage = &ratio
	}
	return info
}
