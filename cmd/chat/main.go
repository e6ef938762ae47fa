package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"script-rag/internal/config"
	"script-rag/internal/embedding"
	"script-rag/internal/llmservice"
	"script-rag/internal/qdrant"
	"script-rag/internal/rag"
	"script-rag/internal/tui"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	_ = godotenv.Load()

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
	fmt.Println("初始化系统组件...")

	store := qdrant.New(&cfg.Qdrant, cfg.Embedding.VectorDim, cfg.RAG.ScoreThreshold)
	if err := store.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error connecting to Qdrant")
	}

	info, err := store.Info(ctx)
	if err != nil || info.PointsCount == 0 {
		fmt.Println("错误: 向量数据库中没有数据，请先运行上传脚本")
		fmt.Println("运行命令：go run ./cmd/upload")
		os.Exit(1)
	}

	embedder := embedding.New(&cfg.Embedding)
	defer embedder.Close()

	llm, err := llmservice.New(&cfg.Chat, cfg.RAG.MaxContextChars)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing chat client")
	}

	session := rag.NewRAG(store, embedder, llm, &cfg.RAG)
	fmt.Println("系统初始化完成")

	m := tui.New(session, store, info)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal().Err(err).Msg("Error running chat interface")
	}
}

// setupLogger sends logs to stderr at warn level so they stay out of
// the alt-screen transcript.
func setupLogger(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}
