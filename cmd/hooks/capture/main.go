// Package main provides the capture hook entry point. It records one hook
// invocation on the feels event feed.
package main

import (
	"context"
	"os"

	"github.com/thebtf/feels/internal/config"
	"github.com/thebtf/feels/pkg/hooks"
	"github.com/thebtf/feels/pkg/models"
)

func main() {
	event := "tool-call"
	if len(os.Args) > 1 {
		event = os.Args[1]
	}
	kind := models.ParseSourceKind(event)

	hooks.RunHook("capture", func(hc *hooks.HookContext, input *hooks.CaptureInput) error {
		cfg := config.Get()
		return hooks.Capture(context.Background(), kind, hc, input, cfg.FeedPath, cfg.HookURL)
	})
}
