// Package document defines the boundary to the document reader: whatever
// parses raw uploads (PDF, scans, plain text) must surface as ordered pages
// of plain text. The extraction engine never touches raw document bytes.
package document

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
)

// Content is the reader's output: per-page plain text in page order.
type Content struct {
	Pages     []string `json:"pages"`
	PageCount int      `json:"page_count"`
}

// FullText concatenates all pages in order, separated by newlines.
func (c *Content) FullText() string {
	return strings.Join(c.Pages, "\n")
}

// Reader turns raw document bytes into page text. Implementations report an
// unreadable document as a DocumentReadError; extraction never starts on one.
type Reader interface {
	Read(ctx context.Context, data []byte) (*Content, error)
}

// PlainTextReader is the in-tree Reader for text documents. Pages are
// separated by form feed, matching what PDF-to-text tools emit. Heavier
// formats live behind the same interface outside this module.
type PlainTextReader struct{}

func NewPlainTextReader() *PlainTextReader {
	return &PlainTextReader{}
}

func (r *PlainTextReader) Read(_ context.Context, data []byte) (*Content, error) {
	if len(data) == 0 {
		return nil, errors.NewDocumentReadError("document is empty")
	}
	if !utf8.Valid(data) {
		return nil, errors.NewDocumentReadError("document is not valid UTF-8 text")
	}

	pages := strings.Split(string(data), "\f")
	return &Content{Pages: pages, PageCount: len(pages)}, nil
}
