package models

// Reaction is one media result for a search term.
type Reaction struct {
	URL   string `json:"url" yaml:"url"`
	Title string `json:"title" yaml:"title"`
	ID    string `json:"id" yaml:"id"`
}

// FallbackReactionURL is served when no reaction could be fetched.
const FallbackReactionURL = "https://media.giphy.com/media/3o7bu3XilJ5BOiSGic/giphy.gif"

// FallbackReaction returns the deterministic placeholder for a search term.
func FallbackReaction(term string) Reaction {
	return Reaction{
		URL:   FallbackReactionURL,
		Title: "Feeling " + term,
		ID:    "fallback",
	}
}

// IsFallback reports whether r is the placeholder result.
func (r Reaction) IsFallback() bool {
	return r.ID == "fallback"
}
