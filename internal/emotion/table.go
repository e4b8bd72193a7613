// Package emotion maps assistant activity to an emotion label, a reaction
// search phrase and an intensity, and writes the flavor text shown with it.
package emotion

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Emotion labels.
const (
	Focused    = "focused"
	Curious    = "curious"
	Creative   = "creative"
	Excited    = "excited"
	Success    = "success"
	Frustrated = "frustrated"
	Confused   = "confused"
	Thinking   = "thinking"
	Determined = "determined"
	Relieved   = "relieved"
	Playful    = "playful"
	Proud      = "proud"
)

// Definition describes how one emotion is rendered.
type Definition struct {
	Phrases      []string `yaml:"phrases"`
	MinIntensity int      `yaml:"min_intensity"`
	MaxIntensity int      `yaml:"max_intensity"`
}

// Table holds the lookup tables driving the classifier. A Table is never
// mutated after Validate succeeds.
type Table struct {
	Emotions map[string]Definition `yaml:"emotions"`
	Tools    map[string][]string   `yaml:"tools"`
	// Fallback is used for unknown tools.
	Fallback []string `yaml:"fallback"`
	// Default is the definition used for unknown emotion keys.
	Default string `yaml:"default"`

	labels []string
}

var (
	failureSet     = []string{Frustrated, Confused, Determined}
	successSet     = []string{Success, Excited, Proud, Relieved}
	creativeSet    = []string{Creative, Excited, Focused}
	explorationSet = []string{Curious, Thinking, Focused}
	completionSet  = []string{Proud, Success, Relieved}

	failureKeywords  = []string{"error", "failed", "failure", "broken", "doesn't work", "issue", "problem", "bug", "exception", "traceback"}
	successKeywords  = []string{"fixed", "working", "solved", "complete", "done", "success", "passed", "works", "correct"}
	creativeKeywords = []string{"idea", "design", "build", "create", "new", "implement", "feature"}

	explorationTools = map[string]bool{"Read": true, "Grep": true, "Glob": true, "WebSearch": true, "WebFetch": true}
)

// TaskListTool is the tool whose "completed" results signal finished work.
const TaskListTool = "TodoWrite"

// DefaultTable returns the built-in tables.
func DefaultTable() *Table {
	t := &Table{
		Emotions: map[string]Definition{
			Focused: {
				Phrases:      []string{"typing fast coding", "hacker coding", "programmer intense", "focused work", "concentration mode", "in the zone coding", "developer working"},
				MinIntensity: 6, MaxIntensity: 8,
			},
			Curious: {
				Phrases:      []string{"curious looking", "investigating detective", "searching clues", "hmm thinking", "sherlock holmes", "magnifying glass search", "exploring discovery", "excuse me what"},
				MinIntensity: 5, MaxIntensity: 7,
			},
			Creative: {
				Phrases:      []string{"lightbulb idea", "creative genius", "brilliant moment", "artist creating", "imagination", "innovation spark", "eureka moment"},
				MinIntensity: 7, MaxIntensity: 9,
			},
			Excited: {
				Phrases:      []string{"excited jumping", "celebration dance", "woohoo yes", "pumped up", "hyped reaction", "amazing wow", "mind blown", "lets go", "hype train"},
				MinIntensity: 8, MaxIntensity: 10,
			},
			Success: {
				Phrases:      []string{"victory celebration", "nailed it", "perfect success", "champion winner", "mission accomplished", "high five", "touchdown celebration", "feels good man", "winning"},
				MinIntensity: 8, MaxIntensity: 10,
			},
			Frustrated: {
				Phrases:      []string{"frustrated angry", "facepalm fail", "ugh annoyed", "computer rage", "keyboard smash", "error screen", "not again", "feels bad man", "send help", "why god why"},
				MinIntensity: 6, MaxIntensity: 9,
			},
			Confused: {
				Phrases:      []string{"confused math", "what happened", "lost confused", "scratch head", "does not compute", "wait what", "puzzled reaction", "y tho", "but why"},
				MinIntensity: 4, MaxIntensity: 7,
			},
			Thinking: {
				Phrases:      []string{"thinking hard", "brain working", "pondering deep", "contemplating life", "processing thinking", "hmm let me see", "calculating math"},
				MinIntensity: 4, MaxIntensity: 6,
			},
			Determined: {
				Phrases:      []string{"determined focus", "lets do this", "bring it on", "ready fight", "game face", "serious mode", "challenge accepted"},
				MinIntensity: 7, MaxIntensity: 9,
			},
			Relieved: {
				Phrases:      []string{"relief sigh", "finally done", "phew close call", "breath relief", "made it", "survived", "weight off shoulders"},
				MinIntensity: 5, MaxIntensity: 7,
			},
			Playful: {
				Phrases:      []string{"playful silly", "having fun", "goofing around", "mischievous smile", "prankster", "cheeky grin", "fun times"},
				MinIntensity: 6, MaxIntensity: 8,
			},
			Proud: {
				Phrases:      []string{"proud moment", "look what I made", "achievement unlocked", "self five", "humble brag", "mic drop", "boss mode"},
				MinIntensity: 7, MaxIntensity: 9,
			},
		},
		Tools: map[string][]string{
			"Bash":       {Focused, Determined, Excited},
			"Read":       {Curious, Thinking, Focused},
			"Edit":       {Creative, Focused, Determined},
			"Write":      {Creative, Focused, Proud},
			"Grep":       {Curious, Thinking, Focused},
			"Glob":       {Curious, Thinking, Focused},
			"TodoWrite":  {Proud, Relieved, Focused},
			"BashOutput": {Thinking, Curious, Excited},
			"WebFetch":   {Curious, Excited, Thinking},
			"WebSearch":  {Curious, Excited, Thinking},
			"Task":       {Focused, Determined, Thinking},
		},
		Fallback: []string{Focused, Thinking},
		Default:  Thinking,
	}
	if err := t.Validate(); err != nil {
		panic("emotion: built-in table is invalid: " + err.Error())
	}
	return t
}

// LoadTable reads a YAML table from path. Sections missing from the file are
// taken from the built-in table, and the result is validated.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read emotion table: %w", err)
	}

	var override Table
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse emotion table: %w", err)
	}

	t := DefaultTable()
	if len(override.Emotions) > 0 {
		t.Emotions = override.Emotions
	}
	if len(override.Tools) > 0 {
		t.Tools = override.Tools
	}
	if len(override.Fallback) > 0 {
		t.Fallback = override.Fallback
	}
	if override.Default != "" {
		t.Default = override.Default
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that every referenced emotion exists and every definition
// is renderable. It also freezes the sorted label list.
func (t *Table) Validate() error {
	if len(t.Emotions) == 0 {
		return fmt.Errorf("emotion table is empty")
	}
	for name, def := range t.Emotions {
		if len(def.Phrases) == 0 {
			return fmt.Errorf("emotion %q has no search phrases", name)
		}
		if def.MinIntensity < 1 || def.MaxIntensity > 10 || def.MinIntensity > def.MaxIntensity {
			return fmt.Errorf("emotion %q has invalid intensity range [%d, %d]", name, def.MinIntensity, def.MaxIntensity)
		}
	}
	if _, ok := t.Emotions[t.Default]; !ok {
		return fmt.Errorf("default emotion %q is not defined", t.Default)
	}
	if len(t.Fallback) == 0 {
		return fmt.Errorf("fallback emotion set is empty")
	}

	check := func(where string, set []string) error {
		for _, e := range set {
			if _, ok := t.Emotions[e]; !ok {
				return fmt.Errorf("%s references unknown emotion %q", where, e)
			}
		}
		return nil
	}
	if err := check("fallback set", t.Fallback); err != nil {
		return err
	}
	for tool, set := range t.Tools {
		if len(set) == 0 {
			return fmt.Errorf("tool %q has an empty emotion set", tool)
		}
		if err := check("tool "+tool, set); err != nil {
			return err
		}
	}
	overrides := map[string][]string{
		"failure override":     failureSet,
		"success override":     successSet,
		"creative override":    creativeSet,
		"exploration override": explorationSet,
		"completion override":  completionSet,
	}
	for where, set := range overrides {
		if err := check(where, set); err != nil {
			return err
		}
	}

	labels := make([]string, 0, len(t.Emotions))
	for name := range t.Emotions {
		labels = append(labels, name)
	}
	sort.Strings(labels)
	t.labels = labels
	return nil
}

// Labels returns every defined emotion in sorted order.
func (t *Table) Labels() []string {
	return append([]string(nil), t.labels...)
}

// Lookup returns the definition of emotion, or the default definition for
// unknown keys.
func (t *Table) Lookup(emotion string) (string, Definition) {
	if def, ok := t.Emotions[emotion]; ok {
		return emotion, def
	}
	return t.Default, t.Emotions[t.Default]
}
