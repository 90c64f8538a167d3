// Package scoring grades extracted values against ground truth and estimates
// how much of an extraction was invented rather than read from the document.
package scoring

import "strings"

// MatchKind labels how an extracted value relates to its master value.
type MatchKind string

const (
	// MatchNotApplicable: no usable master value to grade against.
	MatchNotApplicable MatchKind = "N/A"
	// MatchExact: case-insensitive equality after trimming.
	MatchExact MatchKind = "exact"
	// MatchPartial: one value contains the other.
	MatchPartial MatchKind = "partial"
	// MatchFuzzy: at least one master word appears in the extraction.
	MatchFuzzy MatchKind = "fuzzy"
	// MatchMismatch: nothing in common.
	MatchMismatch MatchKind = "mismatch"
)

// Match grades extracted against master. Scores: exact 100, partial 70,
// fuzzy 40, otherwise 0.
func Match(extracted, master string) (MatchKind, int) {
	if master == "" || strings.ToLower(master) == "n/a" {
		return MatchNotApplicable, 0
	}

	extractedNorm := norm(extracted)
	masterNorm := norm(master)

	if extractedNorm == masterNorm {
		return MatchExact, 100
	}
	if strings.Contains(extractedNorm, masterNorm) || strings.Contains(masterNorm, extractedNorm) {
		return MatchPartial, 70
	}
	for _, word := range strings.Fields(masterNorm) {
		if strings.Contains(extractedNorm, word) {
			return MatchFuzzy, 40
		}
	}
	return MatchMismatch, 0
}

// Hallucination scores how likely an extracted value was invented, from 0
// (read straight from the document) to 80 (not found in it at all). Empty,
// "N/A" and "ERROR" values score 0: nothing extracted, nothing invented.
func Hallucination(extracted, master, context string) int {
	if extracted == "" || extracted == "N/A" || extracted == "ERROR" {
		return 0
	}

	extractedNorm := norm(extracted)
	if extractedNorm == norm(master) {
		return 0
	}

	contextNorm := strings.ToLower(context)
	if strings.Contains(contextNorm, extractedNorm) {
		return 10
	}

	overlap := wordOverlap(extractedNorm, contextNorm)
	switch {
	case overlap > 0.8:
		return 20
	case overlap > 0.5:
		return 40
	case overlap > 0.2:
		return 60
	default:
		return 80
	}
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// wordOverlap returns the share of distinct extracted words present in the
// context.
func wordOverlap(extracted, context string) float64 {
	extractedWords := wordSet(extracted)
	if len(extractedWords) == 0 {
		return 0
	}
	contextWords := wordSet(context)

	matched := 0
	for w := range extractedWords {
		if _, ok := contextWords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(extractedWords))
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
