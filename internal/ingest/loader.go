package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is one unit of loaded source text. PDFs yield one Page per physical
// page; plain text and markdown files yield a single Page numbered 1.
type Page struct {
	Number int
	Text   string
}

// Load reads a source file into pages. Supported types: .pdf, .txt, .md,
// .markdown.
func Load(path string) ([]Page, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(path)
	case ".txt", ".md", ".markdown":
		return loadText(path)
	default:
		return nil, fmt.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

// loadPDF extracts plain text page by page. Pages that fail extraction are
// skipped; the whole file fails only when nothing at all could be read.
func loadPDF(path string) ([]Page, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open pdf %s: %w", path, err)
	}
	defer f.Close()

	total := reader.NumPage()
	var pages []Page
	for i := 1; i <= total; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("ingest: no extractable text in %s", path)
	}
	return pages, nil
}

func loadText(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("ingest: %s is empty", path)
	}
	return []Page{{Number: 1, Text: string(data)}}, nil
}
