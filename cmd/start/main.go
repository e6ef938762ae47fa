package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"script-rag/internal/config"
	"script-rag/internal/qdrant"
)

const defaultConfigPath = "./configs/config.yaml"

var (
	headStyle = lipgloss.NewStyle().Bold(true)
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Readiness checks, in dependency order. Exit status 0 means the chat
// REPL can start right away.
func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	flag.Parse()

	setupLogger()

	fmt.Println(headStyle.Render("RAG原型验证系统"))
	fmt.Println("基于 Qdrant Cloud + DeepSeek API + LangChain 的智能问答系统")
	fmt.Println()

	ready := true

	fmt.Println("检查配置文件...")
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fail("配置加载失败: " + err.Error())
		fmt.Println("请复制 configs/config.example.yaml 为 configs/config.yaml 并填入正确的配置信息")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fail("配置验证失败: " + err.Error())
		fmt.Println("请确保 QDRANT_URL、QDRANT_API_KEY、DEEPSEEK_API_KEY 已正确填写")
		os.Exit(1)
	}
	ok("配置有效")

	fmt.Println("检查文档文件...")
	if _, err := os.Stat(cfg.Script.Path); err != nil {
		fail("找不到文档文件: " + cfg.Script.Path)
		ready = false
	} else {
		ok("文档文件存在: " + cfg.Script.Path)
	}

	fmt.Println("检查向量数据...")
	ctx := context.Background()
	store := qdrant.New(&cfg.Qdrant, cfg.Embedding.VectorDim, cfg.RAG.ScoreThreshold)
	if err := store.Ping(ctx); err != nil {
		fail("数据库连接失败: " + err.Error())
		ready = false
	} else {
		ok("数据库连接正常")
		info, err := store.Info(ctx)
		if err != nil || info.PointsCount == 0 {
			fail("向量数据不存在，需要先上传文档")
			fmt.Println("运行命令：go run ./cmd/upload")
			ready = false
		} else {
			ok(fmt.Sprintf("向量数据已存在（%d 个片段）", info.PointsCount))
		}
	}

	fmt.Println()
	if !ready {
		fmt.Println("系统尚未就绪，请先完成上述步骤")
		os.Exit(1)
	}
	fmt.Println("系统准备就绪！")
	fmt.Println("运行命令：go run ./cmd/chat")
}

func ok(msg string)   { fmt.Println(okStyle.Render("  ✓ ") + msg) }
func fail(msg string) { fmt.Println(failStyle.Render("  ✗ ") + msg) }

func setupLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
}
