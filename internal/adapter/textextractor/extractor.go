// Package textextractor turns uploaded resume files into plain text.
package textextractor

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
	"github.com/fairyhunter13/resume-evaluator/pkg/textx"
)

// PDFFailurePrefix starts the marker returned instead of an error when no PDF text could be read.
const PDFFailurePrefix = "[PDF text extraction failed: "

// Extractor dispatches on file extension. PDFs that the local parser cannot read go to the
// optional fallback extractor, typically Apache Tika.
type Extractor struct {
	fallback domain.TextExtractor
}

// New builds an Extractor; fallback may be nil.
func New(fallback domain.TextExtractor) *Extractor {
	return &Extractor{fallback: fallback}
}

// Extract returns sanitized text for fileName's content.
func (e *Extractor) Extract(ctx context.Context, fileName string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return e.extractPDF(ctx, fileName, data), nil
	case ".docx":
		text, err := DOCXText(data)
		if err != nil {
			return "", fmt.Errorf("op=textextractor.Extract: %w: docx: %v", domain.ErrInvalidArgument, err)
		}
		return textx.SanitizeText(text), nil
	default:
		return textx.SanitizeText(strings.ToValidUTF8(string(data), "�")), nil
	}
}

func (e *Extractor) extractPDF(ctx context.Context, fileName string, data []byte) string {
	text, err := PDFText(data)
	if err == nil {
		return textx.SanitizeText(text)
	}
	lg := obsctx.LoggerFromContext(ctx)
	lg.Warn("local pdf extraction failed", slog.String("file", fileName), slog.String("error", err.Error()))
	if e.fallback != nil {
		fb, ferr := e.fallback.Extract(ctx, fileName, data)
		if ferr == nil && strings.TrimSpace(fb) != "" {
			return textx.SanitizeText(fb)
		}
		if ferr != nil {
			lg.Warn("fallback pdf extraction failed", slog.String("file", fileName), slog.String("error", ferr.Error()))
		}
	}
	return PDFFailurePrefix + err.Error() + "]"
}

// PDFText reads plain text page by page. The parser panics on some malformed inputs; those become errors.
func PDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pt, perr := page.GetPlainText(nil)
		if perr != nil {
			return "", fmt.Errorf("page %d: %w", i, perr)
		}
		b.WriteString(pt)
		b.WriteString("\n")
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("no text layer")
	}
	return b.String(), nil
}

var (
	paragraphEnd = regexp.MustCompile(`</w:p>|<w:br\s*/>|<w:cr\s*/>`)
	tabTag       = regexp.MustCompile(`<w:tab\s*/>`)
	anyTag       = regexp.MustCompile(`<[^>]+>`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
)

// DOCXText converts the main document part to text: paragraphs and breaks become newlines.
func DOCXText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer doc.Close()
	return xmlToText(doc.Editable().GetContent()), nil
}

func xmlToText(content string) string {
	s := paragraphEnd.ReplaceAllString(content, "\n")
	s = tabTag.ReplaceAllString(s, "\t")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var _ domain.TextExtractor = (*Extractor)(nil)
