// Package fieldex extracts structured fields from documents with an LLM and
// measures zero-shot extraction against retrieval-augmented extraction.
//
// A document is prepared once: chunked, embedded and indexed into an exact
// nearest-neighbor index that is cached on disk by content hash. Fields are
// then extracted either zero-shot over the full text or per field over the
// top retrieved chunks.
//
//	client, _ := fieldex.New(fieldex.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//
//	text, _ := fieldex.ReadPDF(raw)
//	doc, _ := client.Prepare(ctx, text, "invoice.pdf")
//
//	fields := []fieldex.Field{{Name: "invoice_number"}, {Name: "total_amount"}}
//	results := client.Extract(ctx, doc, fields)
//
// Ground-truth comparison grades both flows field by field:
//
//	report, _ := client.Compare(ctx, text, masters)
package fieldex
