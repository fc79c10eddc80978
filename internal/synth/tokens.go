package synth

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts description tokens with the tiktoken encoding of the configured model.
type TokenCounter struct {
	model string

	once  sync.Once
	codec tokenizer.Codec
	err   error
}

// NewTokenCounter creates a counter for model. The codec is resolved on first use.
func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

func (c *TokenCounter) getCodec() (tokenizer.Codec, error) {
	c.once.Do(func() {
		codec, err := tokenizer.ForModel(tokenizer.Model(strings.ToLower(c.model)))
		if err == nil {
			c.codec = codec
			return
		}
		// Unknown and future models fall back by family prefix.
		c.codec, c.err = tokenizer.Get(modelToEncoding(c.model))
		if c.err != nil {
			c.err = fmt.Errorf("failed to get tokenizer encoding: %w", c.err)
		}
	})
	return c.codec, c.err
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) (int, error) {
	codec, err := c.getCodec()
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("failed to encode text: %w", err)
	}
	return len(ids), nil
}

// modelToEncoding maps model names to encoding names for fallback.
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}
