// Package tokenizer wraps the token codec and sentence splitter used by
// token- and sentence-mode chunking.
package tokenizer

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the BPE vocabulary all token counting uses. It matches the
// embedding and generation model family, so token-mode chunk sizes line up
// with what the provider actually bills.
const Encoding = "cl100k_base"

// Tiktoken is a BPE token codec.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the cl100k_base encoding.
func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", Encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Encode converts text to token ids.
func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode converts token ids back to text.
func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Count returns the token count of text.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// estimateMultiplier approximates tokens per word for English prose.
const estimateMultiplier = 1.3

// EstimateTokens is the rough word-count heuristic used when no codec is
// available (for example, a provider that reports no embedding usage).
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Round(float64(words) * estimateMultiplier))
}
