package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/weibaohui/llmchats/internal/provider"
	"github.com/weibaohui/llmchats/internal/transcript"
	"github.com/weibaohui/llmchats/internal/utils"
)

// ErrSummarizationFailed 总结生成失败，不影响会话转录
var ErrSummarizationFailed = errors.New("summarization failed")

// Style 总结文章风格，只影响提示词
type Style string

const (
	StyleAnalytical Style = "analytical" // 学术分析
	StyleNarrative  Style = "narrative"  // 叙事博客
	StyleReport     Style = "report"     // 研究报告
)

// ParseStyle 解析风格名，空串默认 analytical
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(s)) {
	case StyleAnalytical, "":
		return StyleAnalytical, nil
	case StyleNarrative:
		return StyleNarrative, nil
	case StyleReport:
		return StyleReport, nil
	}
	return "", fmt.Errorf("unsupported summary style: %s", s)
}

// Options 总结配置
type Options struct {
	Style     Style
	MaxLength int // 生成上限（token），0 取风格默认
}

// Result 总结结果
type Result struct {
	Content     string
	Style       Style
	GeneratedBy string // 平台展示名
	Model       string
	GeneratedAt time.Time
	Stats       Stats
}

// Stats 讨论统计，拼进提示词也随结果返回
type Stats struct {
	Rounds            int            `json:"rounds"`
	Turns             int            `json:"turns"`
	FailedTurns       int            `json:"failed_turns"`
	TurnsByLabel      map[string]int `json:"turns_by_participant"`
	CharCountsByLabel map[string]int `json:"chars_by_participant"`
}

// Summarize 用指定后端对整份转录做一次总结
// 只读转录，任何失败都不影响会话本身；后端不要求是讨论参与者
func Summarize(ctx context.Context, tr *transcript.Transcript, p provider.Provider, opts Options) (*Result, error) {
	turns := tr.All()
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: transcript is empty", ErrSummarizationFailed)
	}

	stats := collectStats(turns)
	prompt := buildPrompt(tr.Topic(), turns, stats, opts.Style)

	maxTokens := styleMaxTokens(opts.Style)
	if opts.MaxLength > 0 && opts.MaxLength < maxTokens {
		maxTokens = opts.MaxLength
	}

	klog.V(6).Infof("开始生成总结: provider=%s, style=%s, maxTokens=%d, turns=%d",
		p.Name(), opts.Style, maxTokens, len(turns))

	reply, err := p.Generate(ctx, provider.GenerateRequest{
		Prompt:    prompt,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}

	return &Result{
		Content:     utils.ExtractMarkdown(reply.Content),
		Style:       opts.Style,
		GeneratedBy: p.DisplayName(),
		Model:       reply.Model,
		GeneratedAt: time.Now(),
		Stats:       stats,
	}, nil
}

// styleMaxTokens 不同风格的生成上限
// 学术文需要展开论述，报告居中，博客最短
func styleMaxTokens(style Style) int {
	switch style {
	case StyleAnalytical:
		return 8000
	case StyleReport:
		return 7000
	case StyleNarrative:
		return 6000
	}
	return 5000
}

func collectStats(turns []transcript.Turn) Stats {
	stats := Stats{
		Turns:             len(turns),
		TurnsByLabel:      make(map[string]int),
		CharCountsByLabel: make(map[string]int),
	}
	for _, turn := range turns {
		if turn.Round+1 > stats.Rounds {
			stats.Rounds = turn.Round + 1
		}
		if turn.Failed {
			stats.FailedTurns++
			continue
		}
		stats.TurnsByLabel[turn.Participant]++
		stats.CharCountsByLabel[turn.Participant] += len([]rune(turn.Content))
	}
	return stats
}

func buildPrompt(topic string, turns []transcript.Turn, stats Stats, style Style) string {
	var b strings.Builder
	b.WriteString("你是一位资深学者和专业作家，负责基于多个AI专家的深度讨论内容，撰写一篇具有原创性见解的高质量文章。\n\n")
	fmt.Fprintf(&b, "## 讨论主题\n%s\n\n", topic)

	// 按首次发言顺序列出专家，保证同一份转录生成的提示词稳定
	var labels []string
	seen := make(map[string]bool)
	for _, turn := range turns {
		if turn.Failed || seen[turn.Participant] {
			continue
		}
		seen[turn.Participant] = true
		labels = append(labels, turn.Participant)
	}
	fmt.Fprintf(&b, "## 讨论概况\n- 参与专家：%s\n- 讨论轮次：%d轮\n- 有效发言：%d条\n\n",
		strings.Join(labels, "、"), stats.Rounds, stats.Turns-stats.FailedTurns)

	b.WriteString("## 专家讨论内容\n")
	currentRound := -1
	for _, turn := range turns {
		if turn.Failed {
			continue
		}
		if turn.Round != currentRound {
			currentRound = turn.Round
			fmt.Fprintf(&b, "\n### 第%d轮讨论\n", currentRound+1)
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", turn.Participant, turn.Content)
	}

	b.WriteString("\n## 写作要求\n")
	b.WriteString(stylePrompt(style))
	b.WriteString(`
## 核心任务
1. 从讨论中提炼最有价值的核心观点和深层洞察
2. 整合不同专家的视角，识别共识点和分歧点
3. 基于讨论内容形成自己独特的观点和实践建议
4. 建立清晰的论证体系，确保观点之间的逻辑关联性

请直接输出文章正文：`)
	return b.String()
}

// stylePrompt 风格化写作要求
func stylePrompt(style Style) string {
	switch style {
	case StyleAnalytical:
		return `请以深度学术研究的风格撰写，包含：
1. 研究背景与问题陈述
2. 核心观点综合分析与批判性讨论
3. 创新洞察与原创观点
4. 实践应用与发展前景
确保内容深度与广度并重，充分展开论述。
`
	case StyleNarrative:
		return `请以适合公开发表的深度博客文章风格撰写：
1. 设计引人入胜的标题和开头
2. 使用小标题和分点列举增强可读性
3. 提供立即可用的实操建议
4. 结尾给出明确的要点总结
语言生动，观点独到，适合移动端阅读。
`
	case StyleReport:
		return `请以专业研究报告的风格撰写，包含：
1. 执行摘要：核心发现和主要结论
2. 问题分析：关键问题和挑战
3. 方案对比：系统比较讨论中的不同方案
4. 风险评估与创新建议
注重逻辑性和实用性，确保分析全面深入。
`
	}
	return "请以专业、深入的风格撰写文章，整理讨论精华，形成原创观点。\n"
}
