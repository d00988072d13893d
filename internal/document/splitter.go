package document

import (
	"github.com/fleetmech/fleetmech/internal/log"
)

// Processor loads documents and splits them into chunks.
type Processor struct {
	chunkSize    int // maximum chunk length in runes
	chunkOverlap int // runes shared between consecutive chunks
	logger       log.Logger
}

// NewProcessor creates a Processor. chunkSize must be positive and
// overlap must be smaller than chunkSize; config validation enforces
// both before construction.
func NewProcessor(chunkSize, chunkOverlap int, logger log.Logger) *Processor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Processor{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// Chunk splits a document's text into overlapping chunks.
//
// The window slides by chunkSize-chunkOverlap runes, so consecutive
// chunks share chunkOverlap runes and the concatenation of all chunks
// covers the full text with no gaps. The final chunk runs to the end of
// the text. Lengths are measured in runes: the source material contains
// non-ASCII symbols (°F, part names) and byte slicing would split them.
func (p *Processor) Chunk(doc Document) []Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}

	stride := p.chunkSize - p.chunkOverlap

	var chunks []Chunk
	for start := 0; ; start += stride {
		end := min(start+p.chunkSize, len(runes))
		chunks = append(chunks, Chunk{
			ID:         newID(),
			DocumentID: doc.ID,
			Source:     doc.Source,
			Index:      len(chunks),
			Text:       string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}

	p.logger.Debug("chunked document",
		"source", doc.Source, "chunks", len(chunks),
		"chunk_size", p.chunkSize, "overlap", p.chunkOverlap)
	return chunks
}

// Process loads and chunks a source file in one step.
func (p *Processor) Process(path string) (Document, []Chunk, error) {
	doc, err := p.Load(path)
	if err != nil {
		return Document{}, nil, err
	}
	return doc, p.Chunk(doc), nil
}
