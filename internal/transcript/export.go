package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
)

// Format 导出格式
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ErrUnsupportedFormat 不支持的导出格式
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat 解析格式名，空串默认 markdown
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatMarkdown, "", "md":
		return FormatMarkdown, nil
	case FormatHTML:
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
}

// Export 序列化转录，只保证完整性和顺序，编码细节由消费方决定
func (t *Transcript) Export(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return t.exportJSON()
	case FormatMarkdown:
		return []byte(t.exportMarkdown()), nil
	case FormatHTML:
		return []byte(t.exportHTML()), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

type exportDoc struct {
	Topic  string `json:"topic"`
	Rounds int    `json:"rounds"`
	Turns  []Turn `json:"turns"`
}

func (t *Transcript) exportJSON() ([]byte, error) {
	doc := exportDoc{
		Topic:  t.Topic(),
		Rounds: t.Rounds(),
		Turns:  t.All(),
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (t *Transcript) exportMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 讨论主题：%s\n", t.Topic())

	currentRound := -1
	for _, turn := range t.All() {
		if turn.Round != currentRound {
			currentRound = turn.Round
			fmt.Fprintf(&b, "\n## 第%d轮讨论\n\n", currentRound+1)
		}
		if turn.Failed {
			fmt.Fprintf(&b, "- **%s**: [%s] %s\n", turn.Participant, turn.Failure, turn.FailureMsg)
		} else {
			fmt.Fprintf(&b, "- **%s**: %s\n", turn.Participant, turn.Content)
		}
	}
	return b.String()
}

func (t *Transcript) exportHTML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>讨论主题：%s</h1>\n", html.EscapeString(t.Topic()))

	currentRound := -1
	open := false
	for _, turn := range t.All() {
		if turn.Round != currentRound {
			if open {
				b.WriteString("</ul>\n")
			}
			currentRound = turn.Round
			fmt.Fprintf(&b, "<h2>第%d轮讨论</h2>\n<ul>\n", currentRound+1)
			open = true
		}
		content := turn.Content
		if turn.Failed {
			content = fmt.Sprintf("[%s] %s", turn.Failure, turn.FailureMsg)
		}
		fmt.Fprintf(&b, "<li><strong>%s</strong>: %s</li>\n",
			html.EscapeString(turn.Participant), html.EscapeString(content))
	}
	if open {
		b.WriteString("</ul>\n")
	}
	return b.String()
}
