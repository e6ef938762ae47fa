package parser

import (
	"regexp"
	"strings"

	"script-rag/internal/models"
)

var (
	sceneRe    = regexp.MustCompile(models.SceneRegex)
	dialogueRe = regexp.MustCompile(models.DialogueRegex)
	actionRe   = regexp.MustCompile(models.ActionRegex)

	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// ConvertScript normalizes raw screenplay text into markdown: scene
// markers become section headings set off by blank lines, dialogue
// lines keep their speaker tag in bold, parenthesized action lines
// become emphasis. Everything else passes through unchanged. Feeding
// the result to markdownText yields plain text whose line structure
// makes chunk boundaries follow scene structure.
func ConvertScript(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case sceneRe.MatchString(line):
			b.WriteString("\n## " + line + "\n")
		case dialogueRe.MatchString(line):
			speaker, content := splitSpeaker(line)
			b.WriteString("**" + speaker + "**：" + content + "\n")
		case actionRe.MatchString(line):
			b.WriteString("*" + line + "*\n")
		default:
			b.WriteString(line + "\n")
		}
	}
	return collapseBlank(b.String())
}

// splitSpeaker cuts a dialogue line at the first full-width colon,
// falling back to the half-width one.
func splitSpeaker(line string) (string, string) {
	if i := strings.Index(line, "："); i >= 0 {
		return line[:i], line[i+len("："):]
	}
	if i := strings.Index(line, ":"); i >= 0 {
		return line[:i], line[i+1:]
	}
	return "", line
}

// collapseBlank squeezes runs of blank lines down to one blank line.
func collapseBlank(s string) string {
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimLeft(s, "\n")
}
