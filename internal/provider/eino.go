package provider

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"k8s.io/klog/v2"

	"github.com/weibaohui/llmchats/config"
	"github.com/weibaohui/llmchats/internal/pkg/llm"
)

// einoProvider 基于 Eino 原生 OpenAI ChatModel 的适配器实现
// 直接使用 cloudwego/eino-ext/components/model/openai
type einoProvider struct {
	cfg       config.ProviderConfig
	chatModel model.ToolCallingChatModel
	policy    RetryPolicy
}

// newEinoProvider 创建 Eino ChatModel 适配器
func newEinoProvider(cfg config.ProviderConfig, policy RetryPolicy) (*einoProvider, error) {
	klog.V(6).Infof("[einoProvider] 创建 OpenAI ChatModel: model=%s, baseURL=%s", cfg.Model, cfg.BaseURL)

	mc := &openai.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
	}
	if cfg.BaseURL != "" {
		mc.BaseURL = cfg.BaseURL
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		mc.MaxTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		temperature := float32(cfg.Temperature)
		mc.Temperature = &temperature
	}

	chatModel, err := openai.NewChatModel(context.Background(), mc)
	if err != nil {
		klog.Errorf("[einoProvider] 创建 ChatModel 失败: %v", err)
		return nil, err
	}

	return &einoProvider{
		cfg:       cfg,
		chatModel: chatModel,
		policy:    policy,
	}, nil
}

func (p *einoProvider) Name() string {
	return p.cfg.Platform
}

func (p *einoProvider) DisplayName() string {
	return p.cfg.DisplayName
}

// Generate 生成响应，重试语义与 chatProvider 一致
func (p *einoProvider) Generate(ctx context.Context, req GenerateRequest) (*Reply, error) {
	input := toSchemaMessages(buildMessages(req, p.cfg.MaxContextTurns))

	var lastErr *Error
	for attempt := 0; ; attempt++ {
		reply, err := p.attempt(ctx, input)
		if err == nil {
			return reply, nil
		}

		lastErr = classify(err, p.cfg.Platform, p.cfg.DisplayName, p.cfg.Model)
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if !p.policy.Retryable(lastErr.Kind, attempt+1) {
			return nil, lastErr
		}

		backoff := p.policy.Backoff(attempt + 1)
		klog.Warningf("%s 调用失败，%v 后重试: attempt=%d, kind=%s, err=%v",
			p.cfg.DisplayName, backoff, attempt+1, lastErr.Kind, err)
		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(backoff):
		}
	}
}

func (p *einoProvider) attempt(ctx context.Context, input []*schema.Message) (*Reply, error) {
	callCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.chatModel.Generate(callCtx, input)
	latency := time.Since(start)
	if err != nil {
		return nil, err
	}

	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, emptyResponseError(p.cfg.DisplayName)
	}

	reply := &Reply{
		Content: resp.Content,
		Model:   p.cfg.Model,
		Latency: latency,
	}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		reply.Usage = llm.Usage{
			PromptTokens:     resp.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: resp.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      resp.ResponseMeta.Usage.TotalTokens,
		}
	}
	return reply, nil
}

// toSchemaMessages 转换为 Eino 消息格式
func toSchemaMessages(messages []llm.ChatMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, schema.SystemMessage(m.Content))
		case "assistant":
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}
