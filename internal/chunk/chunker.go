// Package chunk splits document text into retrieval units. Two algorithms
// are provided: a sliding window and a recursive splitter that merges small
// units and subdivides oversized ones by separator precedence.
package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/parchment-labs/fieldex/internal/domain"
)

// Codec encodes text to token ids and back. Token-mode chunking windows
// over ids so chunk sizes line up with provider billing.
type Codec interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// SentenceSplitter produces trimmed, non-empty sentences in order.
type SentenceSplitter interface {
	Split(text string) []string
}

// Chunker routes chunking requests to the configured algorithm.
type Chunker struct {
	codec     Codec
	sentences SentenceSplitter
}

// New creates a chunker. codec may be nil if token mode is never used,
// sentences may be nil if sentence mode is never used.
func New(codec Codec, sentences SentenceSplitter) *Chunker {
	return &Chunker{codec: codec, sentences: sentences}
}

// Split chunks text according to cfg. Blank text yields no chunks and no
// error. The result is deterministic for a fixed input and config, and
// never contains an empty or whitespace-only chunk.
func (c *Chunker) Split(text string, cfg domain.ChunkingConfig) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if cfg.Mode == domain.ModeToken && c.codec == nil {
		return nil, fmt.Errorf("%w: token mode requires a token codec", domain.ErrInvalidChunking)
	}
	if cfg.Mode == domain.ModeSentence && c.sentences == nil {
		return nil, fmt.Errorf("%w: sentence mode requires a sentence splitter", domain.ErrInvalidChunking)
	}

	switch cfg.Algorithm {
	case domain.AlgorithmSlidingWindow:
		return c.slidingWindow(text, cfg), nil
	default:
		return c.recursive(text, cfg), nil
	}
}

func (c *Chunker) slidingWindow(text string, cfg domain.ChunkingConfig) []string {
	switch cfg.Mode {
	case domain.ModeParagraph:
		// Paragraphs are natural retrieval units already; size and overlap
		// do not apply.
		return splitParagraphs(text)

	case domain.ModeSentence:
		// Greedy accumulation: emit once the buffer reaches size words.
		// Overlap intentionally does not apply in this mode.
		var chunks []string
		var buf []string
		words := 0
		for _, s := range c.sentences.Split(text) {
			buf = append(buf, s)
			words += wordCount(s)
			if words >= cfg.Size {
				chunks = append(chunks, strings.Join(buf, " "))
				buf, words = nil, 0
			}
		}
		if len(buf) > 0 {
			chunks = append(chunks, strings.Join(buf, " "))
		}
		return chunks

	default: // token
		tokens := c.codec.Encode(text)
		step := cfg.Size - cfg.Overlap
		if step < 1 {
			step = 1
		}
		var chunks []string
		for i := 0; i < len(tokens); i += step {
			chunks = append(chunks, c.codec.Decode(tokens[i:min(i+cfg.Size, len(tokens))]))
		}
		return chunks
	}
}

// recursiveSeparators is the precedence order for subdividing oversized
// units. The empty separator splits into single characters as last resort.
var recursiveSeparators = []string{"\n\n", "\n", ". ", " ", ""}

func (c *Chunker) recursive(text string, cfg domain.ChunkingConfig) []string {
	var initial []string
	switch cfg.Mode {
	case domain.ModeParagraph:
		initial = splitParagraphs(text)
	case domain.ModeSentence:
		initial = c.sentences.Split(text)
	default: // token: plain windows, no merge pass
		tokens := c.codec.Encode(text)
		step := cfg.Size
		if cfg.Overlap > 0 {
			step = cfg.Size - cfg.Overlap
		}
		if step < 1 {
			step = 1
		}
		var chunks []string
		for i := 0; i < len(tokens); i += step {
			chunks = append(chunks, c.codec.Decode(tokens[i:min(i+cfg.Size, len(tokens))]))
		}
		return chunks
	}

	// Merge small units; subdivide units that alone exceed the size.
	var final []string
	var current string
	for _, unit := range initial {
		if wordCount(current)+wordCount(unit) <= cfg.Size {
			if current == "" {
				current = unit
			} else {
				current += " " + unit
			}
			continue
		}
		if current != "" {
			final = append(final, current)
		}
		if wordCount(unit) > cfg.Size {
			for _, sub := range splitBySeparators(unit, recursiveSeparators, cfg.Size) {
				if strings.TrimSpace(sub) != "" {
					final = append(final, sub)
				}
			}
			current = ""
		} else {
			current = unit
		}
	}
	if current != "" {
		final = append(final, current)
	}
	return final
}

// splitBySeparators subdivides text by the first separator, recursing with
// the remaining separators on any piece still longer than size characters.
// The merge pass above sizes units in words; this inner cutoff is characters,
// which keeps the last-resort character split meaningful.
func splitBySeparators(text string, seps []string, size int) []string {
	if len(seps) == 0 {
		return []string{text}
	}
	sep := seps[0]
	if sep == "" {
		runes := []rune(text)
		out := make([]string, len(runes))
		for i, r := range runes {
			out[i] = string(r)
		}
		return out
	}

	var result []string
	for _, part := range strings.Split(text, sep) {
		if utf8.RuneCountInString(part) > size {
			result = append(result, splitBySeparators(part, seps[1:], size)...)
		} else if strings.TrimSpace(part) != "" {
			result = append(result, part)
		}
	}
	return result
}

func splitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func wordCount(s string) int { return len(strings.Fields(s)) }
