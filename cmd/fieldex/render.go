package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/scoring"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	faintColor  = color.New(color.Faint)
)

func printFieldResults(results []domain.FieldResult) {
	for _, r := range results {
		if r.Failed() {
			badColor.Printf("  %-30s ERROR: %s\n", r.FieldName, r.Err)
			continue
		}
		c := okColor
		if r.Confidence < 50 {
			c = warnColor
		}
		fmt.Printf("  %-30s %s", r.FieldName, r.Value)
		c.Printf("  (%.1f%%)\n", r.Confidence)
		if r.Reason != "" {
			faintColor.Printf("    %s\n", r.Reason)
		}
	}
}

func printFieldDefs(defs []domain.FieldDefinition) {
	for _, d := range defs {
		fmt.Printf("  %-30s", d.Name)
		faintColor.Printf(" %s\n", d.RetrievalQuery())
	}
}

func printMetrics(label string, m domain.FlowMetrics) {
	headerColor.Printf("%s metrics\n", label)
	if m.Err != "" {
		badColor.Printf("  failed: %s\n", m.Err)
	}
	fmt.Printf("  time: %.2fs  llm calls: %d  embedding calls: %d\n",
		m.TotalTime, m.LLMCalls, m.EmbeddingCalls)
	fmt.Printf("  tokens: %d in / %d out / %d embedding (%d total)\n",
		m.LLMInputTokens, m.LLMOutputTokens, m.EmbeddingTokens, m.TotalTokens)
	fmt.Printf("  cost: $%.6f\n", m.Cost.Total)
}

func matchColor(match string) *color.Color {
	switch scoring.MatchKind(match) {
	case scoring.MatchExact:
		return okColor
	case scoring.MatchPartial, scoring.MatchFuzzy:
		return warnColor
	case scoring.MatchMismatch:
		return badColor
	default:
		return faintColor
	}
}

func printFlowReport(report domain.FlowReport) {
	headerColor.Println("Field comparison")
	for _, f := range report.Fields {
		fmt.Printf("  %s\n", f.FieldName)
		faintColor.Printf("    master:    %s\n", f.MasterValue)
		fmt.Printf("    zero-shot: %-40s ", f.ZeroShot.Value)
		matchColor(f.ZeroShot.Match).Printf("%s (score %d, hallucination %d)\n",
			f.ZeroShot.Match, f.ZeroShot.Score, f.ZeroShot.Hallucination)
		fmt.Printf("    rag:       %-40s ", f.RAG.Value)
		matchColor(f.RAG.Match).Printf("%s (score %d, hallucination %d)\n",
			f.RAG.Match, f.RAG.Score, f.RAG.Hallucination)
	}

	printFlowSummary("Zero-shot", report.ZeroShotSummary)
	printFlowSummary("RAG", report.RAGSummary)
}

func printFlowSummary(label string, s domain.FlowSummary) {
	headerColor.Printf("%s summary\n", label)
	fmt.Printf("  accuracy: %.1f%%  partial: %.1f%%  coverage: %.1f%%\n",
		s.Accuracy, s.PartialMatch, s.FieldCoverage)
	fmt.Printf("  exact: %d  partial: %d  mismatch: %d  avg hallucination: %.1f\n",
		s.ExactMatches, s.PartialMatches, s.Mismatches, s.AvgHallucination)
}

func printRunRecords(records []domain.RunRecord) {
	for _, r := range records {
		if r.Failed() {
			badColor.Printf("  run %d: ERROR: %s\n", r.Run, r.Err)
			continue
		}
		fmt.Printf("  run %d: %-40s", r.Run, r.Value)
		okColor.Printf(" %.1f%%", r.Confidence)
		faintColor.Printf("  %.0fms, %d chunks\n", r.TimeMS, r.NumChunks)
	}
}

func printAlgoSummaries(summaries map[domain.Algorithm]domain.AlgoSummary) {
	for _, algo := range domain.Algorithms() {
		s, ok := summaries[algo]
		if !ok {
			continue
		}
		headerColor.Printf("%s\n", algo)
		printRunRecords(s.Results)
		fmt.Printf("  chunks: %d  avg confidence: %.1f%%  avg time: %.0fms\n",
			s.NumChunks, s.AvgConfidence, s.AvgTimeMS)
		fmt.Printf("  consistency: %d/%d agree on %q\n",
			s.Consistency, len(s.Results), s.MostCommon)
	}
}
