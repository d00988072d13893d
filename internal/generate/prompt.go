package generate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fleetmech/fleetmech/internal/store"
)

// ErrContextTooLarge is returned when the prompt exceeds the context
// budget before any retrieved chunk is added, i.e. the query alone is
// too long and there is nothing left to truncate.
var ErrContextTooLarge = errors.New("query exceeds maximum context length")

const promptTemplate = `You are an expert maintenance advisor for commercial trucking fleets. Use the provided context to answer the user's question accurately and helpfully.

Context:
%s

Question: %s

Instructions:
- Provide a detailed, practical answer based on the context
- Focus on actionable maintenance advice
- Include specific procedures, costs, or timeframes when available
- If the question relates to safety or compliance, emphasize those aspects
- If the context doesn't contain enough information, say so clearly
- Cite sources when referencing specific information

Answer:`

// BuildPrompt assembles the generation prompt from the query and the
// retrieved chunks, most similar first. When the assembled prompt would
// exceed maxLength runes, whole chunks are dropped from the tail of the
// ranking until it fits; the query itself is never truncated. included
// reports how many chunks made it into the prompt.
func BuildPrompt(query string, results []store.Result, maxLength int) (prompt string, included int, err error) {
	base := fmt.Sprintf(promptTemplate, "", query)
	budget := maxLength - utf8.RuneCountInString(base)
	if budget < 0 {
		return "", 0, fmt.Errorf("%w: %d runes over a budget of %d",
			ErrContextTooLarge, utf8.RuneCountInString(base), maxLength)
	}

	var (
		blocks []string
		used   int
	)
	for _, r := range results {
		block := fmt.Sprintf("Source: %s\n%s", r.Chunk.Source, r.Chunk.Text)
		cost := utf8.RuneCountInString(block)
		if len(blocks) > 0 {
			cost += 2 // separating blank line
		}
		if used+cost > budget {
			break
		}
		blocks = append(blocks, block)
		used += cost
	}

	return fmt.Sprintf(promptTemplate, strings.Join(blocks, "\n\n"), query), len(blocks), nil
}
