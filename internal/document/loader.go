package document

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// Load reads a source file and returns it as a Document. The format is
// chosen by file extension. Unknown extensions fail with
// ErrUnsupportedFormat; unreadable files return the underlying I/O error
// wrapped.
func (p *Processor) Load(path string) (Document, error) {
	var (
		text   string
		format Format
		err    error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		format = FormatPDF
		text, err = loadPDF(path)
	case ".csv":
		format = FormatCSV
		text, err = loadCSV(path)
	case ".txt":
		format = FormatText
		text, err = loadText(path)
	case ".md":
		format = FormatMarkdown
		text, err = loadText(path)
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading %s: %w", path, err)
	}

	doc := Document{
		ID:     newID(),
		Source: filepath.Base(path),
		Format: format,
		Text:   text,
		LoadAt: time.Now(),
	}
	p.logger.Debug("loaded document",
		"source", doc.Source, "format", doc.Format, "chars", len(doc.Text))
	return doc, nil
}

func loadText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func loadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}

// loadCSV renders each data row as a block of "column: value" lines,
// blocks separated by blank lines. This keeps row fields adjacent so a
// row is rarely split across chunks.
func loadCSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parsing csv: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	header := records[0]
	var sb strings.Builder
	for _, row := range records[1:] {
		for i, val := range row {
			name := fmt.Sprintf("column_%d", i)
			if i < len(header) {
				name = header[i]
			}
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(val)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
