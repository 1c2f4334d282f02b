package provider

import (
	"context"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/weibaohui/llmchats/config"
	"github.com/weibaohui/llmchats/internal/pkg/llm"
)

// chatProvider 基于 OpenAI 兼容 HTTP 接口的适配器实现
// deepseek/qwen/doubao/moonshot/ollama 共用，差异在配置和错误提示上
type chatProvider struct {
	cfg    config.ProviderConfig
	client *llm.Client
	policy RetryPolicy
}

func newChatProvider(cfg config.ProviderConfig, policy RetryPolicy) *chatProvider {
	return &chatProvider{
		cfg:    cfg,
		client: llm.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature),
		policy: policy,
	}
}

func (p *chatProvider) Name() string {
	return p.cfg.Platform
}

func (p *chatProvider) DisplayName() string {
	return p.cfg.DisplayName
}

// Generate 发起一次生成调用，按策略重试
// 每次尝试有独立的超时预算，parent ctx 取消时立即放弃
func (p *chatProvider) Generate(ctx context.Context, req GenerateRequest) (*Reply, error) {
	messages := buildMessages(req, p.cfg.MaxContextTurns)

	chatReq := llm.ChatRequest{Messages: messages}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	var lastErr *Error
	for attempt := 0; ; attempt++ {
		reply, err := p.attempt(ctx, chatReq)
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

// attempt 执行单次调用，应用平台自身的超时配置
func (p *chatProvider) attempt(ctx context.Context, chatReq llm.ChatRequest) (*Reply, error) {
	callCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.client.Chat(callCtx, chatReq)
	latency := time.Since(start)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, emptyResponseError(p.cfg.DisplayName)
	}

	return &Reply{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage:   resp.Usage,
		Latency: latency,
	}, nil
}
