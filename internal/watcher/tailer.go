// Package watcher tails the append-only event feed and hands each new line
// to a sink in file order.
package watcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/feels/pkg/models"
)

// DefaultPollInterval is the fallback poll period when no notification arrives.
const DefaultPollInterval = 500 * time.Millisecond

// Sink receives parsed events in file order.
type Sink interface {
	Push(ev *models.RawEvent)
}

// Tailer follows a JSONL file. It watches the parent directory since fsnotify
// cannot watch a file that does not exist yet.
type Tailer struct {
	path         string
	parentPath   string
	sink         Sink
	pollInterval time.Duration

	// mu guards offset and ident and serializes reads
	mu     sync.Mutex
	offset int64
	// ident is the file the offset belongs to
	ident os.FileInfo

	dropped atomic.Int64

	sessMu   sync.RWMutex
	sessions map[string]struct{}

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	fsw     *fsnotify.Watcher
	watched bool
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithPollInterval sets the fallback poll period.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tailer) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// NewTailer creates a Tailer for path delivering into sink.
func NewTailer(path string, sink Sink, opts ...Option) *Tailer {
	t := &Tailer{
		path:         filepath.Clean(path),
		parentPath:   filepath.Dir(filepath.Clean(path)),
		sink:         sink,
		pollInterval: DefaultPollInterval,
		sessions:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SkipHistory moves the offset to the current end of the file.
// A missing file leaves the offset at 0.
func (t *Tailer) SkipHistory() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, err := os.Stat(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		t.offset = 0
		t.ident = nil
		return nil
	}
	if err != nil {
		return err
	}
	t.offset = info.Size()
	t.ident = info
	return nil
}

// Start skips existing content and begins following the file until ctx is
// cancelled or Stop is called.
func (t *Tailer) Start(ctx context.Context) error {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.running {
		return nil
	}

	if err := t.SkipHistory(); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	t.fsw = fsw
	if err := t.addWatch(); err != nil {
		log.Warn().Err(err).Str("path", t.parentPath).Msg("Failed to add initial watch")
		// Continue anyway - the poll ticker retries
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true

	go t.loop(ctx)
	log.Info().Str("path", t.path).Int64("offset", t.Offset()).Msg("Tailing event feed")
	return nil
}

// Stop stops following the file and waits for the loop to exit.
func (t *Tailer) Stop() error {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if !t.running {
		return nil
	}
	t.running = false
	t.cancel()
	<-t.done
	return t.fsw.Close()
}

// addWatch adds the parent directory to the watch list.
func (t *Tailer) addWatch() error {
	if _, err := os.Stat(t.parentPath); err != nil {
		return err
	}
	if err := t.fsw.Add(t.parentPath); err != nil {
		return err
	}
	t.watched = true
	return nil
}

func (t *Tailer) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !t.watched {
				_ = t.addWatch()
			}
			t.pollLogged()

		case event, ok := <-t.fsw.Events:
			if !ok {
				return
			}
			eventPath := filepath.Clean(event.Name)

			// Parent directory removed: drop the watch and let the ticker re-add it
			if eventPath == t.parentPath && event.Op&fsnotify.Remove != 0 {
				t.watched = false
				t.pollLogged()
				continue
			}
			if eventPath != t.path {
				continue
			}

			// Poll decides whether the file was replaced; the event may be
			// stale by the time it is handled.
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				t.pollLogged()
			}

		case err, ok := <-t.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Reset runs truncate with no read in flight and restarts at the beginning
// of the feed, so nothing appended after the truncation is skipped.
func (t *Tailer) Reset(truncate func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if truncate != nil {
		if err := truncate(); err != nil {
			return err
		}
	}
	t.offset = 0
	t.ident = nil
	return nil
}

func (t *Tailer) pollLogged() {
	if _, err := t.Poll(); err != nil {
		log.Warn().Err(err).Str("path", t.path).Msg("Failed to read event feed")
	}
}

// Poll reads bytes appended since the last call and delivers every complete
// line. It returns the number of events delivered. A missing file reads as
// no new bytes and the next file is read from the start, as is a replaced
// file or one shorter than the offset.
func (t *Tailer) Poll() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		t.offset = 0
		t.ident = nil
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if t.ident != nil && !os.SameFile(t.ident, info) {
		log.Info().Str("path", t.path).Msg("Event feed replaced, reading from the start")
		t.offset = 0
	}
	t.ident = info
	size := info.Size()
	if size < t.offset {
		log.Info().Str("path", t.path).Int64("size", size).Int64("offset", t.offset).Msg("Event feed truncated, rewinding")
		t.offset = 0
	}
	if size == t.offset {
		return 0, nil
	}

	buf := make([]byte, size-t.offset)
	n, err := f.ReadAt(buf, t.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	buf = buf[:n]

	// Only consume up to the last complete line
	last := bytes.LastIndexByte(buf, '\n')
	if last < 0 {
		return 0, nil
	}
	t.offset += int64(last + 1)

	delivered := 0
	for _, line := range bytes.Split(buf[:last], []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		ev, err := models.ParseRawEvent(line)
		if err != nil {
			t.dropped.Add(1)
			log.Debug().Err(err).Msg("Dropping malformed feed line")
			continue
		}
		t.noteSession(ev.SessionID)
		t.sink.Push(ev)
		delivered++
	}
	return delivered, nil
}

func (t *Tailer) noteSession(id string) {
	t.sessMu.Lock()
	t.sessions[id] = struct{}{}
	t.sessMu.Unlock()
}

// Offset returns the byte offset of the next unread line.
func (t *Tailer) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Dropped returns the number of malformed lines skipped.
func (t *Tailer) Dropped() int64 {
	return t.dropped.Load()
}

// ActiveSessions returns the sorted session ids seen since startup.
func (t *Tailer) ActiveSessions() []string {
	t.sessMu.RLock()
	defer t.sessMu.RUnlock()
	out := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ForgetSessions clears the seen-session set.
func (t *Tailer) ForgetSessions() {
	t.sessMu.Lock()
	t.sessions = make(map[string]struct{})
	t.sessMu.Unlock()
}
