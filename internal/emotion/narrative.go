package emotion

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/thebtf/feels/pkg/models"
)

// minThinkingChars is the shortest thinking excerpt used verbatim as narrative.
const minThinkingChars = 10

var (
	repetitionLines = []string{
		"Didn't I just do this? The human must really want to make sure...",
		"Here we go again with {tool}. Groundhog Day vibes.",
		"Third time using {tool}. Either I'm thorough or going in circles.",
		"Okay, {tool} again. Let's see if this time is different.",
		"Deja vu. Pretty sure I've been here before.",
	}
	meltdownLines = []string{
		"Okay this is getting ridiculous. Why won't this work?!",
		"The code gods are NOT with me today.",
		"If at first you don't succeed... fail four more times apparently.",
		"This is fine. Everything is fine. *internal screaming*",
	}
	errorLines = []string{
		"Hmm, that didn't work. Let me think about this differently.",
		"Well THAT was unexpected. Time for plan B.",
		"Okay so that approach was garbage. Moving on.",
		"The computer said no. Rude.",
	}
	streakLines = []string{
		"I'm on FIRE right now. Everything is clicking.",
		"This is what peak performance looks like.",
		"Can't stop won't stop. This streak is legendary.",
	}
	toolLines = map[string][]string{
		"Bash":       {"Time to talk to the terminal.", "Command line magic incoming...", "Running this command and hoping for the best."},
		"Read":       {"Let me see what secrets this file holds...", "Time to do some detective work.", "The answer is in here somewhere."},
		"Edit":       {"Surgery time. Let's not mess this up.", "Making changes... carefully... very carefully...", "Let me just tweak this real quick... famous last words."},
		"Write":      {"New file time! A blank canvas of possibilities.", "Let's make something beautiful. Or at least functional."},
		"Grep":       {"Search party activated. Where are you hiding?", "Needle, meet haystack."},
		"Glob":       {"Pattern matching is oddly satisfying.", "Casting a wide net. Let's see what we catch."},
		"TodoWrite":  {"Updating the to-do list.", "Progress! Sweet, trackable progress."},
		"BashOutput": {"Checking the results... fingers crossed...", "Please be good news, please be good news..."},
		"WebFetch":   {"Reaching out to the internet. Hope it's in a good mood."},
		"WebSearch":  {"Searching the web. Someone out there must know."},
		"Task":       {"Spawning a sub-agent. Delegation is a leadership skill.", "Time to call in reinforcements."},
	}
	resultSuccessLines = []string{"Nailed it! Moving on.", "Success! The dopamine flows.", "Smooth as butter."}
	warningLines       = []string{"A warning... that's future me's problem.", "Warning acknowledged. Proceeding with caution. Ish."}
	neutralLines       = []string{
		"Just doing my thing. Nothing to see here.",
		"One step at a time. We'll get there.",
		"In the zone. Don't disturb.",
		"The plot thickens.",
		"Hmm, what do we have here?",
	}
	asideLines = []string{
		"I wonder if the human knows how many cycles I'm spending on this.",
		"If I had a nickel for every time I used {tool}... I'd have no nickels.",
		"Is it just me or is this task more complex than it seemed?",
		"This feels like one of those 'seemed simple at first' situations.",
		"The code never lies. The comments, however...",
	}
)

// Narrator writes the flavor text for each event. It owns the activity
// State and its own random source.
type Narrator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	state     *State
	tokens    TokenCounter
	asideRate float64
}

// NewNarrator creates a narrator. A nil counter falls back to a character
// based token estimate.
func NewNarrator(rng *rand.Rand, state *State, tokens TokenCounter) *Narrator {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if state == nil {
		state = NewState()
	}
	if tokens == nil {
		tokens = charCounter{}
	}
	return &Narrator{rng: rng, state: state, tokens: tokens, asideRate: 0.15}
}

// Annotate records ev in the activity history and fills the narrative,
// aside and (when absent) context usage of out.
func (n *Narrator) Annotate(ev *models.RawEvent, out *models.ClassifiedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	input, result := ev.ToolInput.String(), ev.ToolResult.String()
	snap := n.state.Observe(ev.ToolName, input, result, ev.Succeeded())

	if thinking := ev.ThinkingExcerpt.String(); len(thinking) > minThinkingChars {
		out.Narrative = thinking
	} else {
		out.Narrative = n.narrate(snap, result, ev.Succeeded())
	}

	if n.rng.Float64() < n.asideRate {
		out.Aside = withTool(n.pick(asideLines), ev.ToolName)
	}

	if ev.ContextUsage == nil {
		estimate := n.estimateContext(snap, result)
		out.ContextUsage = &estimate
	}
}

func (n *Narrator) narrate(snap Snapshot, result string, succeeded bool) string {
	if snap.Repeated && n.rng.Float64() < 0.4 {
		return withTool(n.pick(repetitionLines), snap.Tool)
	}

	lower := strings.ToLower(result)
	if !succeeded || strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
		if snap.ErrorCount > 3 {
			return n.pick(meltdownLines)
		}
		return n.pick(errorLines)
	}

	if snap.SuccessStreak > 5 && n.rng.Float64() < 0.3 {
		return n.pick(streakLines)
	}
	if lines, ok := toolLines[snap.Tool]; ok {
		return n.pick(lines)
	}
	if strings.Contains(lower, "success") || strings.Contains(lower, "complete") {
		return n.pick(resultSuccessLines)
	}
	if strings.Contains(lower, "warning") {
		return n.pick(warningLines)
	}
	return n.pick(neutralLines)
}

// estimateContext guesses the context window fill from recent activity and
// the size of the latest tool result, clamped to [0.1, 0.95].
func (n *Narrator) estimateContext(snap Snapshot, result string) float64 {
	activity := float64(snap.RecentTools) / recentToolWindow
	size := float64(n.tokens.Count(result)) / 1250
	if size > 1 {
		size = 1
	}
	usage := 0.3 + activity*0.3 + size*0.2 + (n.rng.Float64()*0.1 - 0.05)
	switch {
	case usage < 0.1:
		return 0.1
	case usage > 0.95:
		return 0.95
	}
	return usage
}

func (n *Narrator) pick(lines []string) string {
	return lines[n.rng.Intn(len(lines))]
}

func withTool(line, tool string) string {
	if tool == "" {
		tool = "this tool"
	}
	return strings.ReplaceAll(line, "{tool}", tool)
}
