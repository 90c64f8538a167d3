// Package pdf extracts plain text from PDF documents. Pages are concatenated
// with form-feed separators; a document with no extractable text at all (for
// example a scanned image) is reported as empty rather than silently yielding
// an empty string.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/parchment-labs/fieldex/internal/domain"
)

// Read extracts text from raw PDF bytes.
func Read(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	return extract(r)
}

// ReadFile extracts text from a PDF on disk.
func ReadFile(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()
	return extract(r)
}

func extract(r *pdf.Reader) (text string, err error) {
	// Парсер паникует на некоторых битых файлах; наружу уходит ошибка.
	defer func() {
		if p := recover(); p != nil {
			text = ""
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil || pageText == "" {
			// One unreadable page must not lose the rest of the document.
			continue
		}
		pages = append(pages, pageText)
	}

	text = strings.Join(pages, "\f")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no extractable text: %w", domain.ErrEmptyDocument)
	}
	return text, nil
}
