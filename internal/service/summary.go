package service

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/weibaohui/llmchats/internal/model"
	"github.com/weibaohui/llmchats/internal/provider"
	"github.com/weibaohui/llmchats/internal/session"
	"github.com/weibaohui/llmchats/internal/summarizer"
)

// SummarizeRequest 生成讨论总结的入参
type SummarizeRequest struct {
	Provider  string `json:"provider"` // 展示名，留空用第一个已配置平台
	Style     string `json:"style"`
	MaxLength int    `json:"max_length"`
}

// Summarize 对已结束的会话生成总结并入库
// 只读转录，可对同一会话以不同风格多次调用
func (s *SessionService) Summarize(ctx context.Context, sessionID string, req SummarizeRequest) (*model.Summary, error) {
	sess, err := s.sessionRepo.GetBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != string(session.StatusCompleted) && sess.Status != string(session.StatusAborted) {
		return nil, fmt.Errorf("%w: status=%s", ErrSessionNotFinished, sess.Status)
	}

	p, err := s.summarizeProvider(req.Provider)
	if err != nil {
		return nil, err
	}

	style, err := summarizer.ParseStyle(req.Style)
	if err != nil {
		return nil, err
	}

	tr, err := s.rebuildTranscript(sess)
	if err != nil {
		return nil, err
	}

	result, err := summarizer.Summarize(ctx, tr, p, summarizer.Options{
		Style:     style,
		MaxLength: req.MaxLength,
	})
	if err != nil {
		return nil, err
	}

	summary := &model.Summary{
		SessionRecordID: sess.ID,
		Style:           string(result.Style),
		Provider:        result.GeneratedBy,
		Model:           result.Model,
		Content:         result.Content,
	}
	if err := s.summaryRepo.Create(summary); err != nil {
		return nil, fmt.Errorf("总结入库失败: %w", err)
	}

	klog.V(6).Infof("总结已生成: sessionID=%s, style=%s, provider=%s, chars=%d",
		sessionID, style, result.GeneratedBy, len(result.Content))
	return summary, nil
}

// summarizeProvider 选择做总结的平台
func (s *SessionService) summarizeProvider(label string) (provider.Provider, error) {
	if label == "" {
		if len(s.providers) == 0 {
			return nil, provider.ErrNoProviders
		}
		return s.providers[0], nil
	}
	p, ok := s.byLabel[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, label)
	}
	return p, nil
}

// Summaries 会话的全部历史总结
func (s *SessionService) Summaries(sessionID string) ([]model.Summary, error) {
	sess, err := s.sessionRepo.GetBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	return s.summaryRepo.GetBySession(sess.ID)
}
