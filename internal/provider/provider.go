package provider

import (
	"context"
	"time"

	"github.com/weibaohui/llmchats/internal/pkg/llm"
)

// GenerateRequest 一次生成调用的输入
// History 为按时间排序的过往发言，截断策略由适配器自行处理
type GenerateRequest struct {
	System    string
	History   []llm.ChatMessage
	Prompt    string
	MaxTokens int // >0 时覆盖平台默认值
}

// Reply 生成结果
type Reply struct {
	Content string
	Model   string
	Usage   llm.Usage
	Latency time.Duration
}

// Provider 模型后端适配器
// 每家平台一个实现，调用约定统一为 Generate
type Provider interface {
	// Name 平台标识（openai/deepseek/qwen/doubao/moonshot/ollama）
	Name() string
	// DisplayName 转录中的展示名
	DisplayName() string
	// Generate 发起一次生成调用，失败时返回 *Error
	Generate(ctx context.Context, req GenerateRequest) (*Reply, error)
}

// truncateHistory 丢弃最旧的发言，保留最近 maxTurns 条
// maxTurns <= 0 表示不裁剪
func truncateHistory(history []llm.ChatMessage, maxTurns int) []llm.ChatMessage {
	if maxTurns <= 0 || len(history) <= maxTurns {
		return history
	}
	return history[len(history)-maxTurns:]
}

// buildMessages 组装发给平台的消息序列
func buildMessages(req GenerateRequest, maxTurns int) []llm.ChatMessage {
	history := truncateHistory(req.History, maxTurns)
	messages := make([]llm.ChatMessage, 0, len(history)+2)
	if req.System != "" {
		messages = append(messages, llm.ChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, history...)
	if req.Prompt != "" {
		messages = append(messages, llm.ChatMessage{Role: "user", Content: req.Prompt})
	}
	return messages
}
