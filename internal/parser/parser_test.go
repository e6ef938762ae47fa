package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"script-rag/internal/config"
	"script-rag/internal/models"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_Txt(t *testing.T) {
	content := "你好，世界。\n第二行的内容。\n"
	path := writeTestFile(t, "doc.txt", content)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != content {
		t.Errorf("got %q, want %q", got, content)
	}
}

func TestLoad_MarkdownStripped(t *testing.T) {
	path := writeTestFile(t, "doc.md", "# 标题\n\n正文内容。\n")

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, want := range []string{"标题", "正文内容。"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "#") {
		t.Errorf("markdown heading marker survived: %q", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	if !errors.Is(err, models.ErrLoad) {
		t.Fatalf("got %v, want models.ErrLoad", err)
	}
}

func TestLoad_WhitespaceOnly(t *testing.T) {
	path := writeTestFile(t, "blank.txt", "  \n\t\n")

	_, err := Load(path)
	if !errors.Is(err, models.ErrLoad) {
		t.Fatalf("got %v, want models.ErrLoad", err)
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeTestFile(t, "doc.xyz", "content")

	_, err := Load(path)
	if !errors.Is(err, models.ErrLoad) {
		t.Fatalf("got %v, want models.ErrLoad", err)
	}
}

func TestNewProcessor_Defaults(t *testing.T) {
	p := NewProcessor(nil)
	if p.chunkSize != defaultChunkSize {
		t.Errorf("chunkSize = %d, want %d", p.chunkSize, defaultChunkSize)
	}
	if p.chunkOverlap != defaultChunkOverlap {
		t.Errorf("chunkOverlap = %d, want %d", p.chunkOverlap, defaultChunkOverlap)
	}
	if p.splitter != "sentence" {
		t.Errorf("splitter = %q, want %q", p.splitter, "sentence")
	}
}

func TestNewProcessor_FromConfig(t *testing.T) {
	p := NewProcessor(&config.RAGConfig{ChunkSize: 200, ChunkOverlap: 40, Splitter: "recursive"})
	if p.chunkSize != 200 || p.chunkOverlap != 40 || p.splitter != "recursive" {
		t.Errorf("got %d/%d/%q, want 200/40/recursive", p.chunkSize, p.chunkOverlap, p.splitter)
	}
}

func TestNewProcessor_RejectsOverlapNotBelowSize(t *testing.T) {
	p := NewProcessor(&config.RAGConfig{ChunkSize: 50, ChunkOverlap: 50})
	if p.chunkOverlap != defaultChunkOverlap {
		t.Errorf("chunkOverlap = %d, want default %d", p.chunkOverlap, defaultChunkOverlap)
	}
}

func TestProcess_TxtProducesChunks(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		sb.WriteString("这是一句用于切分测试的内容。")
	}
	path := writeTestFile(t, "doc.txt", sb.String())

	p := NewProcessor(&config.RAGConfig{ChunkSize: 60, ChunkOverlap: 10, Splitter: "sentence"})
	chunks, err := p.Process(path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has Index %d", i, c.Index)
		}
		if strings.TrimSpace(c.Text) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestStats_Fields(t *testing.T) {
	content := "第一句话在这里。第二句话在这里。第三句话在这里。"
	path := writeTestFile(t, "doc.txt", content)

	p := NewProcessor(&config.RAGConfig{ChunkSize: 60, ChunkOverlap: 10, Splitter: "sentence"})
	stats, err := p.Stats(path)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Path != path {
		t.Errorf("Path = %q, want %q", stats.Path, path)
	}
	if stats.FileSizeBytes != int64(len(content)) {
		t.Errorf("FileSizeBytes = %d, want %d", stats.FileSizeBytes, len(content))
	}
	if stats.TextLength != utf8.RuneCountInString(content) {
		t.Errorf("TextLength = %d, want %d", stats.TextLength, utf8.RuneCountInString(content))
	}
	if stats.TotalChunks < 1 {
		t.Errorf("TotalChunks = %d, want at least 1", stats.TotalChunks)
	}
	if stats.AvgChunkSize <= 0 {
		t.Errorf("AvgChunkSize = %f, want positive", stats.AvgChunkSize)
	}
	if stats.MinChunkSize != 50 || stats.MaxChunkSize != 60 || stats.OverlapSize != 10 {
		t.Errorf("size bounds = %d/%d/%d, want 50/60/10",
			stats.MinChunkSize, stats.MaxChunkSize, stats.OverlapSize)
	}
}
