package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"script-rag/internal/config"
	"script-rag/internal/embedding"
	"script-rag/internal/helper"
	"script-rag/internal/models"
	"script-rag/internal/parser"
	"script-rag/internal/qdrant"
	"script-rag/internal/rag"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	_ = godotenv.Load()

	filePath := flag.String("file", "", "Document to upload (default: script path from config)")
	showInfo := flag.Bool("info", false, "Show collection info and exit")
	clearAll := flag.Bool("clear", false, "Delete every point in the collection and exit")
	dryRun := flag.Bool("dry-run", false, "Parse and chunk only, nothing is embedded or uploaded")
	export := flag.String("export", "", "Write stored chunks as a markdown report to this path and exit")
	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	setupLogger(*debug)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Error validating config")
	}

	ctx := context.Background()
	store := qdrant.New(&cfg.Qdrant, cfg.Embedding.VectorDim, cfg.RAG.ScoreThreshold)
	if err := store.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error connecting to Qdrant")
	}

	switch {
	case *showInfo:
		printCollectionInfo(ctx, store)
	case *clearAll:
		clearCollection(ctx, store)
	case *export != "":
		exportChunks(ctx, store, *export)
	default:
		path := *filePath
		if path == "" {
			path = cfg.Script.Path
		}
		upload(ctx, cfg, store, path, *dryRun)
	}
}

func setupLogger(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func upload(ctx context.Context, cfg *config.Config, store *qdrant.Client, path string, dryRun bool) {
	fmt.Println("\nRAG原型验证系统 - 文档上传工具")

	proc := parser.NewProcessor(&cfg.RAG)

	stats, err := proc.Stats(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading document")
	}
	fmt.Println("\n文档统计信息")
	fmt.Println(renderKV([][]string{
		{"文件路径", stats.Path},
		{"文件大小", fmt.Sprintf("%.2f MB", float64(stats.FileSizeBytes)/1024/1024)},
		{"文本长度", strconv.Itoa(stats.TextLength)},
		{"总块数", strconv.Itoa(stats.TotalChunks)},
		{"平均块大小", fmt.Sprintf("%.2f", stats.AvgChunkSize)},
		{"最小块大小", strconv.Itoa(stats.MinChunkSize)},
		{"最大块大小", strconv.Itoa(stats.MaxChunkSize)},
		{"重叠大小", strconv.Itoa(stats.OverlapSize)},
	}))

	chunks, err := proc.Process(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Error processing document")
	}
	if len(chunks) == 0 {
		log.Fatal().Msg("Error processing document: no text chunks generated")
	}
	fmt.Printf("成功生成 %d 个文本块\n", len(chunks))

	if dryRun {
		preview := chunks
		if len(preview) > 3 {
			preview = preview[:3]
		}
		helper.PrettyPrint(preview)
		fmt.Println("dry-run 模式，未上传任何数据")
		return
	}

	if err := store.EnsureCollection(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error creating collection")
	}

	embedder := embedding.New(&cfg.Embedding)
	defer embedder.Close()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		log.Fatal().Err(err).Msg("Error generating embeddings")
	}
	fmt.Printf("成功生成 %d 个向量\n", len(vectors))

	records, err := rag.Records(chunks, vectors, filepath.Base(path))
	if err != nil {
		log.Fatal().Err(err).Msg("Error building records")
	}
	uploaded, err := store.Upload(ctx, records)
	if err != nil {
		log.Fatal().Err(err).Int("uploaded", uploaded).Msg("Error uploading records")
	}
	fmt.Println("文档上传完成！")

	if info, err := store.Info(ctx); err == nil {
		fmt.Println("\n上传完成统计")
		fmt.Println(renderKV([][]string{
			{"集合名称", info.Name},
			{"总向量数", strconv.Itoa(info.PointsCount)},
			{"向量维度", strconv.Itoa(info.VectorSize)},
			{"状态", info.Status},
		}))
	}

	fmt.Println("\n系统已准备就绪，可以开始问答测试！")
	fmt.Println("运行命令：go run ./cmd/chat")
}

func printCollectionInfo(ctx context.Context, store *qdrant.Client) {
	info, err := store.Info(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error fetching collection info")
	}
	fmt.Println("\n数据库信息")
	fmt.Println(renderKV([][]string{
		{"集合名称", info.Name},
		{"文档数量", strconv.Itoa(info.PointsCount)},
		{"向量维度", strconv.Itoa(info.VectorSize)},
		{"距离度量", info.Distance},
		{"状态", info.Status},
	}))
}

func clearCollection(ctx context.Context, store *qdrant.Client) {
	fmt.Println("准备清空现有数据...")
	deleted, err := store.Clear(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error clearing collection")
	}
	fmt.Printf("数据清空完成，共删除 %d 个向量\n", deleted)
}

// exportChunks writes the stored chunks as a markdown report, ordered
// by their chunk index when the payload carries one.
func exportChunks(ctx context.Context, store *qdrant.Client, outPath string) {
	info, err := store.Info(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error fetching collection info")
	}
	records, err := store.Scroll(ctx, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading stored chunks")
	}
	if len(records) == 0 {
		log.Fatal().Msg("Error reading stored chunks: collection is empty")
	}

	sort.SliceStable(records, func(i, j int) bool {
		return chunkIndex(records[i]) < chunkIndex(records[j])
	})

	var b strings.Builder
	b.WriteString("# 数据库中的文本切片\n\n")
	fmt.Fprintf(&b, "集合名称: %s\n", info.Name)
	fmt.Fprintf(&b, "总切片数: %d\n\n", len(records))
	for i, rec := range records {
		fmt.Fprintf(&b, "## 切片 %d\n\n", i+1)
		b.WriteString("### 元数据\n\n")
		fmt.Fprintf(&b, "- id: %s\n", rec.ID)
		for _, k := range sortedKeys(rec.Metadata) {
			fmt.Fprintf(&b, "- %s: %v\n", k, rec.Metadata[k])
		}
		b.WriteString("\n### 文本内容\n\n```\n")
		b.WriteString(rec.Text)
		b.WriteString("\n```\n\n---\n\n")
	}

	if err := helper.CreateFolder(outPath); err != nil {
		log.Fatal().Err(err).Msg("Error creating output folder")
	}
	if err := os.WriteFile(outPath, []byte(b.String()), 0o644); err != nil {
		log.Fatal().Err(err).Msg("Error writing report")
	}
	fmt.Printf("切片数据已保存到: %s\n", outPath)
}

func chunkIndex(rec models.StoredRecord) int {
	if v, ok := rec.Metadata["chunk_index"].(float64); ok {
		return int(v)
	}
	return 1 << 30
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func renderKV(rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240")))
	for _, row := range rows {
		t = t.Row(row...)
	}
	return t.Render()
}
