package emotion

import (
	"strings"
	"unicode/utf8"
)

const (
	recentToolWindow = 10
	recentFileWindow = 5
	maxFileChars     = 100
)

// State is the bounded activity history behind the narrative lines. One
// State belongs to one daemon; tests build a fresh one per case.
type State struct {
	recentTools   []string
	recentFiles   []string
	errorCount    int
	successStreak int
}

// NewState returns an empty history.
func NewState() *State {
	return &State{}
}

// Snapshot is a read-only view of State after an observation.
type Snapshot struct {
	Tool          string
	Repeated      bool
	ErrorCount    int
	SuccessStreak int
	RecentTools   int
}

// Observe records one tool outcome and returns the updated view.
func (s *State) Observe(tool, input, result string, succeeded bool) Snapshot {
	s.recentTools = pushBounded(s.recentTools, tool, recentToolWindow)

	if strings.ContainsAny(input, `/\`) {
		input = clip(input, maxFileChars)
		s.recentFiles = pushBounded(s.recentFiles, input, recentFileWindow)
	}

	if !succeeded || strings.Contains(strings.ToLower(result), "error") {
		s.errorCount++
		s.successStreak = 0
	} else {
		s.successStreak++
		if s.errorCount > 0 {
			s.errorCount--
		}
	}

	repeats := 0
	for _, t := range s.recentTools {
		if t == tool {
			repeats++
		}
	}

	return Snapshot{
		Tool:          tool,
		Repeated:      repeats > 2,
		ErrorCount:    s.errorCount,
		SuccessStreak: s.successStreak,
		RecentTools:   len(s.recentTools),
	}
}

// RecentFiles returns the remembered file-like inputs, oldest first.
func (s *State) RecentFiles() []string {
	return append([]string(nil), s.recentFiles...)
}

// SarcasmLevel grades how worn out the narrator should sound.
func (snap Snapshot) SarcasmLevel() string {
	switch {
	case snap.ErrorCount > 5:
		return "maximum"
	case snap.ErrorCount > 3 || (snap.Repeated && snap.ErrorCount > 1):
		return "elevated"
	case snap.Repeated:
		return "mild"
	default:
		return "none"
	}
}

func pushBounded(list []string, v string, max int) []string {
	list = append(list, v)
	if len(list) > max {
		list = list[len(list)-max:]
	}
	return list
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
