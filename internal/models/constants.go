package models

// Screenplay line patterns. The corpus is a Chinese drama script, so
// scene markers and speaker tags come in full-width and half-width
// punctuation variants.
const (
	SceneRegex    = `^场景\s*\d+[：:].*$|^第[一二三四五六七八九十百千万]+场[：:].*$`
	DialogueRegex = `^[^：:]+[：:].*$`
	ActionRegex   = `^[（(].*[)）]$`
)

const (
	ChatSystemPrompt    = "你是一个专业的剧本分析助手，能够根据提供的剧本内容准确回答相关问题。"
	SummarySystemPrompt = "你是一个专业的文档摘要助手。"

	// NoContextAnswer is returned instead of calling the chat model when
	// retrieval comes back empty.
	NoContextAnswer = "未找到相关内容，无法生成回答。"
)

var (
	AnswerPromptTemplate = `基于以下剧本内容回答用户问题。请确保回答准确、相关，并尽可能引用原文内容。

剧本内容：
%s

用户问题：%s

请根据上述剧本内容回答问题。如果问题无法从给定内容中找到答案，请明确说明。`

	SummaryPromptTemplate = `请为以下剧本内容生成一个简洁的摘要：

%s

请生成一个200字以内的摘要，包含主要情节和角色。`
)
