package fieldex

import (
	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/repository/indexcache"
)

func toDomainChunking(c ChunkingConfig) domain.ChunkingConfig {
	return domain.ChunkingConfig{
		Algorithm: domain.Algorithm(c.Algorithm),
		Mode:      domain.Mode(c.Mode),
		Size:      c.Size,
		Overlap:   c.Overlap,
	}.WithDefaults()
}

func fromDomainChunking(c domain.ChunkingConfig) ChunkingConfig {
	return ChunkingConfig{
		Algorithm: Algorithm(c.Algorithm),
		Mode:      Mode(c.Mode),
		Size:      c.Size,
		Overlap:   c.Overlap,
	}
}

func toDomainFields(fields []Field) []domain.FieldDefinition {
	defs := make([]domain.FieldDefinition, len(fields))
	for i, f := range fields {
		defs[i] = domain.FieldDefinition{Name: f.Name, Query: f.Query}
	}
	return defs
}

func fromDomainFields(defs []domain.FieldDefinition) []Field {
	fields := make([]Field, len(defs))
	for i, d := range defs {
		fields[i] = Field{Name: d.Name, Query: d.Query}
	}
	return fields
}

func toDomainMasters(masters []MasterField) []domain.MasterField {
	out := make([]domain.MasterField, len(masters))
	for i, m := range masters {
		out[i] = domain.MasterField{
			FieldDefinition: domain.FieldDefinition{Name: m.Name, Query: m.Query},
			Value:           m.Value,
		}
	}
	return out
}

func fromDomainResults(results []domain.FieldResult) []FieldResult {
	out := make([]FieldResult, len(results))
	for i, r := range results {
		out[i] = FieldResult{
			FieldName:  r.FieldName,
			Value:      r.Value,
			Confidence: r.Confidence,
			Reason:     r.Reason,
			NumChunks:  r.NumChunks,
			Err:        r.Err,
		}
	}
	return out
}

func fromDomainChunks(chunks []domain.RetrievedChunk) []RetrievedChunk {
	out := make([]RetrievedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = RetrievedChunk{
			Chunk:      c.Chunk,
			Position:   c.Position,
			Distance:   c.Distance,
			Confidence: c.Confidence,
		}
	}
	return out
}

func fromDomainMetrics(m domain.FlowMetrics) FlowMetrics {
	return FlowMetrics{
		TotalTime:       m.TotalTime,
		AvgTimePerField: m.AvgTimePerField,
		LLMInputTokens:  m.LLMInputTokens,
		LLMOutputTokens: m.LLMOutputTokens,
		LLMTotalTokens:  m.LLMTotalTokens,
		EmbeddingTokens: m.EmbeddingTokens,
		TotalTokens:     m.TotalTokens,
		APICalls:        m.APICalls,
		LLMCalls:        m.LLMCalls,
		EmbeddingCalls:  m.EmbeddingCalls,
		Cost: CostBreakdown{
			Input:     m.Cost.Input,
			Output:    m.Cost.Output,
			Embedding: m.Cost.Embedding,
			Total:     m.Cost.Total,
		},
		Err: m.Err,
	}
}

func fromDomainSide(s domain.FlowSideResult) FlowSideResult {
	return FlowSideResult{
		Value:         s.Value,
		Match:         s.Match,
		Score:         s.Score,
		Confidence:    s.Confidence,
		Hallucination: s.Hallucination,
	}
}

func fromDomainSummary(s domain.FlowSummary) FlowSummary {
	return FlowSummary{
		Accuracy:         s.Accuracy,
		PartialMatch:     s.PartialMatch,
		ExactMatches:     s.ExactMatches,
		PartialMatches:   s.PartialMatches,
		Mismatches:       s.Mismatches,
		AvgHallucination: s.AvgHallucination,
		FieldCoverage:    s.FieldCoverage,
	}
}

func fromDomainReport(r domain.FlowReport) FlowReport {
	fields := make([]FieldComparison, len(r.Fields))
	for i, f := range r.Fields {
		fields[i] = FieldComparison{
			FieldName:   f.FieldName,
			MasterValue: f.MasterValue,
			ZeroShot:    fromDomainSide(f.ZeroShot),
			RAG:         fromDomainSide(f.RAG),
		}
	}
	return FlowReport{
		Fields:          fields,
		ZeroShotSummary: fromDomainSummary(r.ZeroShotSummary),
		RAGSummary:      fromDomainSummary(r.RAGSummary),
	}
}

func fromDomainRuns(records []domain.RunRecord) []RunRecord {
	out := make([]RunRecord, len(records))
	for i, r := range records {
		out[i] = RunRecord{
			Run:        r.Run,
			Value:      r.Value,
			Confidence: r.Confidence,
			TimeMS:     r.TimeMS,
			NumChunks:  r.NumChunks,
			Err:        r.Err,
		}
	}
	return out
}

func fromDomainSummaries(summaries map[domain.Algorithm]domain.AlgoSummary) map[Algorithm]AlgoSummary {
	out := make(map[Algorithm]AlgoSummary, len(summaries))
	for algo, s := range summaries {
		out[Algorithm(algo)] = AlgoSummary{
			Results:       fromDomainRuns(s.Results),
			NumChunks:     s.NumChunks,
			AvgConfidence: s.AvgConfidence,
			AvgTimeMS:     s.AvgTimeMS,
			Consistency:   s.Consistency,
			MostCommon:    s.MostCommon,
		}
	}
	return out
}

func fromCacheMetadata(entries []indexcache.Metadata) []CacheEntry {
	out := make([]CacheEntry, len(entries))
	for i, m := range entries {
		out[i] = CacheEntry{
			Hash:      m.DocumentHash,
			Filename:  m.Filename,
			NumChunks: m.NumChunks,
			Chunking:  fromDomainChunking(m.ChunkingConfig),
			CreatedAt: m.CreatedAt,
		}
	}
	return out
}
