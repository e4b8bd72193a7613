package emotion

import (
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts model tokens in text.
type TokenCounter interface {
	Count(text string) int
}

// NewTokenCounter returns a cl100k counter, or a character estimate when
// the encoding cannot be loaded.
func NewTokenCounter() TokenCounter {
	enc, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("Tokenizer unavailable, estimating tokens from length")
		return charCounter{}
	}
	return codecCounter{enc: enc}
}

type codecCounter struct {
	enc tokenizer.Codec
}

func (c codecCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.enc.Encode(text)
	if err != nil {
		return charCounter{}.Count(text)
	}
	return len(ids)
}

// charCounter assumes four characters per token.
type charCounter struct{}

func (charCounter) Count(text string) int {
	return (len(text) + 3) / 4
}
