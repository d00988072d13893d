// Package document loads maintenance source files and splits them into
// bounded, overlapping chunks for embedding and retrieval.
//
// Supported formats: PDF, CSV (one "column: value" block per row), plain
// text, and markdown. Splitting is content-agnostic: a sliding window
// over runes with a configurable overlap.
package document

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUnsupportedFormat is returned for file types the processor cannot
// read.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Format identifies how a source file is parsed.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatCSV      Format = "csv"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// Document is a loaded source file before chunking.
type Document struct {
	ID     string
	Source string // original file path
	Format Format
	Text   string
	LoadAt time.Time
}

// Chunk is a bounded span of a document's text, the unit of retrieval.
type Chunk struct {
	ID         string
	DocumentID string
	Source     string
	Index      int // position within the parent document, starting at 0
	Text       string
}

func newID() string {
	return uuid.NewString()
}
