package tokenizer

import (
	"fmt"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// Punkt splits prose into sentences using the embedded English Punkt model.
type Punkt struct {
	tok *sentences.DefaultSentenceTokenizer
}

// NewPunkt loads the English sentence tokenizer.
func NewPunkt() (*Punkt, error) {
	tok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("load english sentence tokenizer: %w", err)
	}
	return &Punkt{tok: tok}, nil
}

// Split returns the trimmed, non-empty sentences of text in order.
func (p *Punkt) Split(text string) []string {
	raw := p.tok.Tokenize(text)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}
