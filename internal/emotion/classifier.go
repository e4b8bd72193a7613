package emotion

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/thebtf/feels/pkg/models"
)

// Result is the classifier output for one event.
type Result struct {
	Emotion    string
	SearchTerm string
	Intensity  int
}

// Classifier picks an emotion for raw events. All randomness comes from the
// injected source so tests can pin outcomes.
type Classifier struct {
	table    *Table
	surprise float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewClassifier creates a classifier. surprise is the probability of
// replacing the heuristic pick with a uniformly random emotion.
func NewClassifier(table *Table, rng *rand.Rand, surprise float64) *Classifier {
	if table == nil {
		table = DefaultTable()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Classifier{table: table, rng: rng, surprise: surprise}
}

// Classify maps ev to an emotion, search phrase and intensity. It never
// fails; absent fields count as empty text and a successful tool call.
func (c *Classifier) Classify(ev *models.RawEvent) Result {
	if ev == nil {
		ev = &models.RawEvent{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	base, ok := c.table.Tools[ev.ToolName]
	if !ok {
		base = c.table.Fallback
	}
	picked := c.pick(base)

	haystack := strings.ToLower(ev.ToolInput.String() + " " + ev.ToolResult.String())
	failed := !ev.Succeeded() || containsAny(haystack, failureKeywords)
	switch {
	case failed:
		picked = c.pick(failureSet)
	case containsAny(haystack, successKeywords):
		picked = c.pick(successSet)
	case containsAny(haystack, creativeKeywords):
		picked = c.pick(creativeSet)
	case explorationTools[ev.ToolName]:
		picked = c.pick(explorationSet)
	case ev.ToolName == TaskListTool && strings.Contains(haystack, "completed"):
		picked = c.pick(completionSet)
	}

	// A failure always reads as a failure; surprises only replace the other picks.
	if !failed && c.rng.Float64() < c.surprise {
		picked = c.pick(c.table.labels)
	}

	label, def := c.table.Lookup(picked)
	return Result{
		Emotion:    label,
		SearchTerm: def.Phrases[c.rng.Intn(len(def.Phrases))],
		Intensity:  def.MinIntensity + c.rng.Intn(def.MaxIntensity-def.MinIntensity+1),
	}
}

func (c *Classifier) pick(set []string) string {
	if len(set) == 0 {
		return c.table.Default
	}
	return set[c.rng.Intn(len(set))]
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
