package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"script-rag/internal/models"
)

// SplitText splits document text into overlapping chunks using the
// configured splitter. The default "sentence" splitter never fails;
// "recursive" delegates to langchaingo's RecursiveCharacter splitter.
func (p *Processor) SplitText(text string) ([]models.Chunk, error) {
	if p.splitter == "recursive" {
		return p.splitRecursive(text)
	}
	return p.splitSentences(text), nil
}

// splitSentences grows a chunk sentence by sentence up to chunkSize and
// never cuts before chunkSize-chunkOverlap. After each cut the trailing
// whole sentences whose combined length fits chunkOverlap are carried
// over as the start of the next chunk. Sizes are in runes.
func (p *Processor) splitSentences(text string) []models.Chunk {
	sentences := sentenceSplit(text)
	if len(sentences) == 0 {
		return nil
	}

	minSize := p.chunkSize - p.chunkOverlap
	var (
		chunks  []models.Chunk
		current []string
		size    int
		start   int // rune offset of current[0] in text
		pos     int // rune offset of the next unconsumed sentence
	)

	for i, sentence := range sentences {
		if len(current) == 0 {
			start = pos
		}
		slen := utf8.RuneCountInString(sentence)
		current = append(current, sentence)
		size += slen
		pos += slen

		// cut when the chunk is full, or once it reached the minimum
		// size and more sentences remain
		if size < p.chunkSize && !(size >= minSize && i < len(sentences)-1) {
			continue
		}

		chunks = append(chunks, models.Chunk{
			Text:         strings.Join(current, ""),
			SourceOffset: start,
			Index:        len(chunks),
		})

		// rebuild the overlap from trailing whole sentences
		var overlap []string
		overlapLen := 0
		for j := len(current) - 1; j >= 0; j-- {
			l := utf8.RuneCountInString(current[j])
			if overlapLen+l > p.chunkOverlap {
				break
			}
			overlap = append([]string{current[j]}, overlap...)
			overlapLen += l
		}
		current = overlap
		size = overlapLen
		start = pos - overlapLen
	}

	if len(current) > 0 {
		chunks = append(chunks, models.Chunk{
			Text:         strings.Join(current, ""),
			SourceOffset: start,
			Index:        len(chunks),
		})
	}
	return chunks
}

// sentence terminators: CJK sentence punctuation plus ASCII enders and
// newline, so both screenplay text and plain prose split cleanly
const sentenceEnders = "。！？…；.!?\n"

// sentenceSplit cuts text after every terminator, keeping the
// terminator. Concatenating the result reproduces text exactly.
func sentenceSplit(text string) []string {
	var sentences []string
	var current []rune
	for _, r := range text {
		current = append(current, r)
		if strings.ContainsRune(sentenceEnders, r) {
			sentences = append(sentences, string(current))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, string(current))
	}
	return sentences
}

// JoinChunks reassembles the processed document text by trimming each
// successor's leading overlap, the inverse of splitSentences.
func JoinChunks(chunks []models.Chunk) string {
	var b strings.Builder
	end := 0 // rune offset one past the last written rune
	for _, c := range chunks {
		runes := []rune(c.Text)
		skip := end - c.SourceOffset
		if skip < 0 {
			skip = 0
		}
		if skip > len(runes) {
			skip = len(runes)
		}
		b.WriteString(string(runes[skip:]))
		if off := c.SourceOffset + len(runes); off > end {
			end = off
		}
	}
	return b.String()
}

// splitRecursive is the fallback splitter, configured with the same
// separator ladder the original pipeline used. Offsets are located by
// searching forward through the text, since the library reports none.
func (p *Processor) splitRecursive(text string) ([]models.Chunk, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.chunkSize),
		textsplitter.WithChunkOverlap(p.chunkOverlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", "。", "！", "？", "，", " ", ""}),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("recursive split: %v: %w", err, models.ErrLoad)
	}

	chunks := make([]models.Chunk, 0, len(parts))
	searchBase := 0 // byte offset where the next chunk may start
	for i, part := range parts {
		offset := utf8.RuneCountInString(text[:searchBase])
		if rel := strings.Index(text[searchBase:], part); rel >= 0 {
			abs := searchBase + rel
			offset = utf8.RuneCountInString(text[:abs])
			searchBase = abs + 1 // successors may begin inside the overlap
		}
		chunks = append(chunks, models.Chunk{
			Text:         part,
			SourceOffset: offset,
			Index:        i,
		})
	}
	return chunks, nil
}
