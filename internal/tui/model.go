package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"script-rag/internal/models"
	"script-rag/internal/rag"
)

// Chat is the TUI-facing subset of the RAG session.
type Chat interface {
	Ask(ctx context.Context, question string) (*rag.Response, error)
	History() []models.ChatTurn
	ClearHistory()
}

// Store feeds the /info command.
type Store interface {
	Info(ctx context.Context) (*models.CollectionInfo, error)
}

// Model is the Bubble Tea model for the question-answer REPL. Input is
// processed synchronously: a question blocks until the answer is back,
// then the transcript scrolls to it.
type Model struct {
	chat  Chat
	store Store

	input    textinput.Model
	viewport viewport.Model
	blocks   []string
	status   string

	showContext bool
	ready       bool
}

// New builds the REPL model. info is the collection state fetched at
// startup, shown in the welcome banner.
func New(chat Chat, store Store, info *models.CollectionInfo) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "输入问题，或 /help 查看命令"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)

	m := Model{
		chat:     chat,
		store:    store,
		input:    ti,
		viewport: vp,
		status:   "就绪",
	}
	m.blocks = append(m.blocks, banner(info))
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input frame, spacer
		vh := msg.Height - reserved - th
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width-4)
		m.viewport.Height = vh
		m.input.Width = maxInt(20, msg.Width-8)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.Reset()
			block, quit := m.submit(line)
			if block != "" {
				m.blocks = append(m.blocks, block)
				m.refresh()
			}
			if quit {
				return m, tea.Quit
			}
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the banner, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "加载中..."
	}
	header := headerStyle.Render("RAG 原型验证系统")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(strings.Join(m.blocks, "\n\n"))
	m.viewport.GotoBottom()
}

// submit handles one input line and returns the transcript block it
// produced plus whether the program should quit. Commands match the
// original CLI including their Chinese aliases; anything else is a
// question for the RAG pipeline.
func (m *Model) submit(line string) (string, bool) {
	switch strings.ToLower(line) {
	case "/quit", "/exit", "quit", "exit", "退出":
		m.status = "再见！"
		return "", true
	case "/help", "帮助":
		m.status = "就绪"
		return renderHelp(), false
	case "/info", "信息":
		return m.renderInfo(), false
	case "/history", "历史":
		m.status = "就绪"
		return m.renderHistory(), false
	case "/context", "上下文":
		m.showContext = !m.showContext
		if m.showContext {
			m.status = "上下文显示已开启"
			return noteStyle.Render("上下文显示已开启"), false
		}
		m.status = "上下文显示已关闭"
		return noteStyle.Render("上下文显示已关闭"), false
	case "/clear", "清空":
		m.chat.ClearHistory()
		m.status = "对话历史已清空"
		return noteStyle.Render("对话历史已清空"), false
	}
	return m.ask(line), false
}

func (m *Model) ask(question string) string {
	var b strings.Builder
	b.WriteString(questionStyle.Render("问题：" + question))

	resp, err := m.chat.Ask(context.Background(), question)
	if err != nil {
		m.status = "回答失败"
		b.WriteString("\n\n" + errorStyle.Render("错误："+err.Error()))
		return b.String()
	}

	if m.showContext && len(resp.Sources) > 0 {
		b.WriteString("\n\n" + noteStyle.Render(fmt.Sprintf("找到 %d 个相关文档片段：", len(resp.Sources))))
		for i, src := range resp.Sources {
			b.WriteString("\n" + scoreStyle.Render(fmt.Sprintf(
				"片段 %d  混合分数 %.3f  向量相似度 %.3f  关键词匹配 %.3f",
				i+1, src.Score, src.VectorScore, src.KeywordScore)))
			b.WriteString("\n" + truncateRunes(src.Text, 200))
		}
	}

	b.WriteString("\n\n" + answerStyle.Render("回答：") + resp.Answer)
	m.status = fmt.Sprintf("已回答（引用 %d 个片段）", len(resp.Sources))
	return b.String()
}

func (m *Model) renderInfo() string {
	info, err := m.store.Info(context.Background())
	if err != nil {
		m.status = "查询失败"
		return errorStyle.Render("错误：" + err.Error())
	}
	m.status = "就绪"
	return infoTable(info)
}

func (m *Model) renderHistory() string {
	history := m.chat.History()
	if len(history) == 0 {
		return noteStyle.Render("暂无对话历史")
	}

	var b strings.Builder
	b.WriteString(noteStyle.Render(fmt.Sprintf("对话历史（共 %d 轮）：", len(history)/2)))
	n := 0
	for i := 0; i+1 < len(history); i += 2 {
		n++
		b.WriteString(fmt.Sprintf("\n%d. 问题：%s", n, history[i].Content))
		b.WriteString(fmt.Sprintf("\n   回答：%s", truncateRunes(history[i+1].Content, 100)))
	}
	return b.String()
}

func renderHelp() string {
	help := `可用命令：
  直接输入问题          进行问答查询
  /help    帮助         显示此帮助信息
  /info    信息         显示数据库信息
  /history 历史         显示对话历史
  /context 上下文       切换上下文显示模式
  /clear   清空         清空对话历史
  /quit    /exit 退出   退出程序

示例问题：
  这个剧本的主要人物有哪些？
  故事发生在什么地方？
  主要情节是什么？`
	return noteStyle.Render(help)
}

func banner(info *models.CollectionInfo) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("欢迎使用基于剧本内容的智能问答系统！"))
	b.WriteString("\n您可以询问关于剧本的任何问题，系统会基于已上传的文档内容进行回答。")
	b.WriteString("\n输入 /help 查看可用命令，输入 /quit 退出程序。")
	if info != nil {
		b.WriteString("\n\n" + infoTable(info))
	}
	return b.String()
}

func infoTable(info *models.CollectionInfo) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Row("集合名称", info.Name).
		Row("文档数量", strconv.Itoa(info.PointsCount)).
		Row("向量维度", strconv.Itoa(info.VectorSize)).
		Row("距离度量", info.Distance).
		Row("状态", info.Status)
	return t.Render()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	answerStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noteStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	scoreStyle         = lipgloss.NewStyle().Faint(true)
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
