package main

import (
	"context"

	"github.com/weibaohui/llmchats/internal/service"
)

// sessionExecutorAdapter 将SessionService适配为SessionExecutor接口
// 避免orchestrator和service之间的循环依赖
type sessionExecutorAdapter struct {
	sessionService *service.SessionService
}

// ExecuteSession 执行会话
// 实现orchestrator.SessionExecutor接口
func (a *sessionExecutorAdapter) ExecuteSession(ctx context.Context, sessionRecordID uint) error {
	return a.sessionService.ExecuteSession(ctx, sessionRecordID)
}
