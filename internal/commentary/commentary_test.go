package commentary

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/feels/pkg/models"
)

func TestNew_Disabled(t *testing.T) {
	_, err := New(Config{Enabled: false, APIKey: "k"})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = New(Config{Enabled: true})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestEligible(t *testing.T) {
	assert.False(t, Eligible(&models.RawEvent{}))
	assert.False(t, Eligible(&models.RawEvent{ThinkingExcerpt: "too short"}))
	assert.True(t, Eligible(&models.RawEvent{ThinkingExcerpt: "This is a long enough thought to comment on."}))
}

func TestBuildPrompt_Truncates(t *testing.T) {
	ev := &models.RawEvent{
		ToolName:        "Bash",
		ToolInput:       models.Excerpt(strings.Repeat("i", 500)),
		ThinkingExcerpt: models.Excerpt(strings.Repeat("t", 2000)),
	}
	prompt := BuildPrompt(ev)

	assert.Contains(t, prompt, "Tool being used: Bash")
	assert.Contains(t, prompt, strings.Repeat("t", maxThinkingChars)+"\n</thinking>")
	assert.NotContains(t, prompt, strings.Repeat("t", maxThinkingChars+1))
	assert.NotContains(t, prompt, strings.Repeat("i", maxInputChars+1))
}

func TestBuildPrompt_KeepsRunesWhole(t *testing.T) {
	ev := &models.RawEvent{
		ToolName:        "Edit",
		ToolInput:       models.Excerpt(strings.Repeat("日", 100)),
		ThinkingExcerpt: models.Excerpt(strings.Repeat("日", 400)),
	}
	prompt := BuildPrompt(ev)
	assert.True(t, utf8.ValidString(prompt))
}

func TestComment(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model string `json:"model"`
		}
		_ = json.Unmarshal(body, &req)
		gotModel = req.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Bold move, refactoring on a Friday.  "}}]}`))
	}))
	defer server.Close()

	c, err := New(Config{Enabled: true, APIKey: "k", BaseURL: server.URL + "/v1", Model: "haiku", Timeout: time.Second})
	require.NoError(t, err)

	got, err := c.Comment(context.Background(), &models.RawEvent{
		ToolName:        "Edit",
		ThinkingExcerpt: "I will restructure the whole module before lunch.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bold move, refactoring on a Friday.", got)
	assert.Equal(t, "haiku", gotModel)

	// Short thinking never reaches the server
	got, err = c.Comment(context.Background(), &models.RawEvent{ThinkingExcerpt: "hm"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestComment_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := New(Config{Enabled: true, APIKey: "k", BaseURL: server.URL, Model: "haiku", Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Comment(context.Background(), &models.RawEvent{ThinkingExcerpt: "A sufficiently long thinking excerpt."})
	assert.Error(t, err)
}
