package hooks

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/goccy/go-json"

	"github.com/thebtf/feels/pkg/models"
)

// LockPath returns the lock file guarding the feed at path.
func LockPath(feedPath string) string {
	return feedPath + ".lock"
}

// AppendFeed writes ev as one JSON line at the end of the feed. Concurrent
// hooks and the daemon's purge serialize on the feed lock.
func AppendFeed(feedPath string, ev *models.RawEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(feedPath), 0755); err != nil {
		return fmt.Errorf("create feed dir: %w", err)
	}

	fl := flock.New(LockPath(feedPath))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock feed: %w", err)
	}
	defer fl.Unlock() //nolint:errcheck

	f, err := os.OpenFile(feedPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append feed: %w", err)
	}
	return f.Close()
}

// TruncateFeed empties the feed, creating it if missing.
func TruncateFeed(feedPath string) error {
	if err := os.MkdirAll(filepath.Dir(feedPath), 0755); err != nil {
		return fmt.Errorf("create feed dir: %w", err)
	}

	fl := flock.New(LockPath(feedPath))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock feed: %w", err)
	}
	defer fl.Unlock() //nolint:errcheck

	if err := os.WriteFile(feedPath, nil, 0644); err != nil {
		return fmt.Errorf("truncate feed: %w", err)
	}
	return nil
}
