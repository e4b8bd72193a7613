// Package hooks turns Claude Code hook invocations into feed lines for the
// feels daemon.
package hooks

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

// HookResponse is the response sent back to Claude Code.
type HookResponse struct {
	Continue bool `json:"continue"`
}

// WriteResponse writes a hook response to w.
func WriteResponse(w io.Writer, success bool) {
	data, _ := json.Marshal(HookResponse{Continue: success})
	fmt.Fprintln(w, string(data))
}

// WriteError reports err on stderr. Capture hooks never block the assistant,
// so the caller still answers with continue.
func WriteError(hookName string, err error) {
	fmt.Fprintf(os.Stderr, "[%s] Error: %v\n", hookName, err)
}

// BaseInput contains common fields shared by all hook inputs.
type BaseInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	PermissionMode string `json:"permission_mode"`
	HookEventName  string `json:"hook_event_name"`
}

// HookContext provides common context for hook handlers.
type HookContext struct {
	HookName       string
	SessionID      string
	CWD            string
	TranscriptPath string
	RawInput       []byte
}

// HookHandler is a function that handles hook-specific logic.
type HookHandler[T any] func(ctx *HookContext, input *T) error

// RunHook reads the hook input from stdin, runs handler and always answers
// {"continue":true}. Errors are reported on stderr only.
func RunHook[T any](hookName string, handler HookHandler[T]) {
	run(hookName, os.Stdin, os.Stdout, handler)
}

func run[T any](hookName string, stdin io.Reader, stdout io.Writer, handler HookHandler[T]) {
	defer WriteResponse(stdout, true)

	inputData, err := io.ReadAll(stdin)
	if err != nil {
		WriteError(hookName, err)
		return
	}

	var input T
	if len(inputData) > 0 {
		if err := json.Unmarshal(inputData, &input); err != nil {
			// Keep going with a zero input; the event is still worth recording
			WriteError(hookName, err)
		}
	}

	var base BaseInput
	_ = json.Unmarshal(inputData, &base)

	ctx := &HookContext{
		HookName:       hookName,
		SessionID:      base.SessionID,
		CWD:            base.CWD,
		TranscriptPath: base.TranscriptPath,
		RawInput:       inputData,
	}

	if err := handler(ctx, &input); err != nil {
		WriteError(hookName, err)
	}
}
