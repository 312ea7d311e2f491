// Package extract turns stored documents into per-page plain text.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Akashbains10/pdf-assistant/internal/apperr"
)

type Page struct {
	Number int
	Text   string
}

type Extractor interface {
	Extract(ctx context.Context, path string) ([]Page, error)
}

// SupportedExtensions lists the file types Files can read.
var SupportedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

func Supported(name string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(name))]
}

// Files picks a reader by file extension.
type Files struct{}

func New() *Files {
	return &Files{}
}

func (f *Files) Extract(ctx context.Context, path string) ([]Page, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return extractPDF(ctx, path)
	case ".txt", ".md":
		return extractText(path)
	default:
		return nil, apperr.New(apperr.ErrExtraction, "extract", fmt.Errorf("unsupported file type %q", ext))
	}
}

func extractText(path string) ([]Page, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.New(apperr.ErrExtraction, "extract.text", err)
	}
	return []Page{{Number: 1, Text: string(b)}}, nil
}

func extractPDF(ctx context.Context, path string) (pages []Page, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			pages = nil
			err = apperr.New(apperr.ErrExtraction, "extract.pdf", fmt.Errorf("malformed pdf: %v", p))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, apperr.New(apperr.ErrExtraction, "extract.pdf", err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, apperr.New(apperr.ErrExtraction, "extract.pdf", fmt.Errorf("page %d: %w", i, err))
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}
