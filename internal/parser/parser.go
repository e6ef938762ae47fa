package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"script-rag/internal/config"
	"script-rag/internal/models"
)

const (
	defaultChunkSize    = 800 // runes
	defaultChunkOverlap = 100 // runes
)

// Processor turns a document file into retrieval chunks: extract plain
// text, normalize screenplay structure for script files, split with
// overlap.
type Processor struct {
	chunkSize    int
	chunkOverlap int
	splitter     string
}

// NewProcessor builds a Processor from the rag config section. A nil
// config falls back to the default chunking parameters.
func NewProcessor(cfg *config.RAGConfig) *Processor {
	p := &Processor{
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
		splitter:     "sentence",
	}
	if cfg == nil {
		return p
	}
	if cfg.ChunkSize > 0 {
		p.chunkSize = cfg.ChunkSize
	}
	if cfg.ChunkOverlap > 0 && cfg.ChunkOverlap < p.chunkSize {
		p.chunkOverlap = cfg.ChunkOverlap
	}
	if cfg.Splitter != "" {
		p.splitter = cfg.Splitter
	}
	return p
}

// Process runs the full pipeline for one file. Screenplay normalization
// is applied to .docx input only, matching the script corpus this tool
// was built for.
func (p *Processor) Process(path string) ([]models.Chunk, error) {
	text, err := p.loadText(path)
	if err != nil {
		return nil, err
	}
	chunks, err := p.SplitText(text)
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", path).Int("chunks", len(chunks)).Msg("document processed")
	return chunks, nil
}

// Stats loads and splits the document without uploading anything.
func (p *Processor) Stats(path string) (models.DocumentStats, error) {
	text, err := p.loadText(path)
	if err != nil {
		return models.DocumentStats{}, err
	}
	chunks, err := p.SplitText(text)
	if err != nil {
		return models.DocumentStats{}, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return models.DocumentStats{}, fmt.Errorf("stat %s: %v: %w", path, err, models.ErrLoad)
	}

	stats := models.DocumentStats{
		Path:          path,
		FileSizeBytes: fi.Size(),
		TextLength:    utf8.RuneCountInString(text),
		TotalChunks:   len(chunks),
		MinChunkSize:  p.chunkSize - p.chunkOverlap,
		MaxChunkSize:  p.chunkSize,
		OverlapSize:   p.chunkOverlap,
	}
	if len(chunks) > 0 {
		total := 0
		for _, c := range chunks {
			total += utf8.RuneCountInString(c.Text)
		}
		stats.AvgChunkSize = float64(total) / float64(len(chunks))
	}
	return stats, nil
}

func (p *Processor) loadText(path string) (string, error) {
	text, err := Load(path)
	if err != nil {
		return "", err
	}
	// Script documents arrive as .docx: normalize the screenplay
	// structure to markdown, then strip it back to plain text so scene
	// headings end up on blank-line separated lines of their own.
	if strings.EqualFold(filepath.Ext(path), ".docx") {
		text = markdownText([]byte(ConvertScript(text)))
	}
	return text, nil
}

// Load extracts plain text from a document file. The format is picked
// by extension; a missing file, an extraction failure or a document with
// no extractable text all wrap models.ErrLoad.
func Load(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("open %s: %v: %w", path, err, models.ErrLoad)
	}

	var (
		text string
		err  error
	)
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".docx":
		text, err = extractDocx(path)
	case ".pdf":
		text, err = extractPDF(path)
	case ".md", ".markdown":
		text, err = extractMarkdown(path)
	case ".txt":
		text, err = extractTxt(path)
	case ".pptx":
		text, err = extractPptx(path)
	case ".xlsx":
		text, err = extractXLSX(path)
	case ".ods":
		text, err = extractODS(path)
	default:
		return "", fmt.Errorf("unsupported file format %q: %w", ext, models.ErrLoad)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %v: %w", path, err, models.ErrLoad)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no extractable text in %s: %w", path, models.ErrLoad)
	}

	log.Info().Str("file", path).Int("chars", utf8.RuneCountInString(text)).Msg("document loaded")
	return text, nil
}

func extractDocx(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	// GetContent returns raw document.xml; pull the text runs out of it.
	return tagText(r.Editable().GetContent(), "w"), nil
}

func extractPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}
	return text.String(), nil
}

func extractTxt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractPptx(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return slidesText(data)
}

func extractXLSX(path string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

func extractODS(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

var xmlEntities = strings.NewReplacer(
	"&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&",
)

// tagText extracts plain text from OOXML markup for the given namespace
// prefix ("w" for docx, "a" for pptx slides). Text runs within one
// paragraph are concatenated; paragraph ends become newlines.
func tagText(xmlContent, ns string) string {
	var (
		paraEnd  = "</" + ns + ":p>"
		runOpen  = "<" + ns + ":t"
		runClose = "</" + ns + ":t>"
	)
	var text strings.Builder
	for _, para := range strings.Split(xmlContent, paraEnd) {
		line := runText(para, runOpen, runClose)
		if strings.TrimSpace(line) == "" {
			continue
		}
		text.WriteString(xmlEntities.Replace(line))
		text.WriteString("\n")
	}
	return text.String()
}

// runText collects the contents of every open/close pair of the run tag,
// tolerating attributes on the open tag. The open tag prefix also matches
// sibling tags like <w:tbl>, so anything not followed by '>', ' ' or '/'
// is skipped.
func runText(s, open, close string) string {
	var text strings.Builder
	parts := strings.Split(s, open)
	for i, part := range parts {
		if i == 0 || part == "" {
			continue
		}
		switch part[0] {
		case '>', ' ', '/':
		default:
			continue
		}
		gt := strings.Index(part, ">")
		if gt < 0 {
			continue
		}
		if gt > 0 && part[gt-1] == '/' {
			continue // self-closing, empty run
		}
		rest := part[gt+1:]
		if end := strings.Index(rest, close); end >= 0 {
			text.WriteString(rest[:end])
		}
	}
	return text.String()
}

func slidesText(data []byte) (string, error) {
	var text strings.Builder
	if err := eachSlide(data, func(slideXML string) {
		text.WriteString(tagText(slideXML, "a"))
	}); err != nil {
		return "", err
	}
	return text.String(), nil
}

// eachSlide walks the slide parts of a pptx archive in file order.
// Unreadable slides are skipped.
func eachSlide(data []byte, fn func(slideXML string)) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/slide") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		fn(string(b))
	}
	return nil
}
