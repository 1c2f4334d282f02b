package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/weibaohui/llmchats/internal/pkg/llm"
)

// FailureKind 单次调用未获得可用文本的失败分类
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"        // 超过单次调用超时
	FailureAuth          FailureKind = "auth_failure"   // 凭证被拒绝，剩余轮次禁用该参与者
	FailureRateLimited   FailureKind = "rate_limited"   // 平台限流
	FailureBackendError  FailureKind = "backend_error"  // 其他非 2xx 或响应格式异常
	FailureEmptyResponse FailureKind = "empty_response" // 平台返回空内容
)

// Error 适配器调用失败
type Error struct {
	Kind     FailureKind
	Provider string
	Message  string // 面向用户的说明，记录在失败 Turn 上
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf 提取错误的失败分类，非适配器错误归为 BackendError
func KindOf(err error) FailureKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return FailureBackendError
}

// classify 将底层错误映射为带分类和友好提示的 *Error
// 提示语针对各家平台的常见故障给出排查方向
func classify(err error, platform, display, model string) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:     FailureTimeout,
			Provider: display,
			Message:  "响应超时",
			Err:      err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{
			Kind:     FailureTimeout,
			Provider: display,
			Message:  "调用被取消",
			Err:      err,
		}
	}

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &Error{
				Kind:     FailureAuth,
				Provider: display,
				Message:  "API 密钥无效或已过期",
				Err:      err,
			}
		case http.StatusTooManyRequests:
			return &Error{
				Kind:     FailureRateLimited,
				Provider: display,
				Message:  "请求频率超限，请稍后重试",
				Err:      err,
			}
		case http.StatusPaymentRequired:
			return &Error{
				Kind:     FailureBackendError,
				Provider: display,
				Message:  "账户余额不足，请充值后重试",
				Err:      err,
			}
		case http.StatusNotFound:
			// 豆包的模型字段其实是接入点 ID，404 多半是配错了
			msg := fmt.Sprintf("模型 %s 不存在或无访问权限", model)
			if platform == "doubao" {
				msg = fmt.Sprintf("接入点 %s 无效，请检查 DOUBAO_MODEL 配置", model)
			}
			return &Error{
				Kind:     FailureBackendError,
				Provider: display,
				Message:  msg,
				Err:      err,
			}
		}
		return &Error{
			Kind:     FailureBackendError,
			Provider: display,
			Message:  apiErr.Message,
			Err:      err,
		}
	}

	// eino 等上游库不一定保留结构化错误，退化为字符串匹配
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "context deadline exceeded") || strings.Contains(lower, "timeout"):
		return &Error{Kind: FailureTimeout, Provider: display, Message: "响应超时", Err: err}
	case strings.Contains(msg, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return &Error{Kind: FailureAuth, Provider: display, Message: "API 密钥无效或已过期", Err: err}
	case strings.Contains(msg, "429") || strings.Contains(lower, "rate limit"):
		return &Error{Kind: FailureRateLimited, Provider: display, Message: "请求频率超限，请稍后重试", Err: err}
	}
	return &Error{Kind: FailureBackendError, Provider: display, Message: msg, Err: err}
}

// emptyResponseError 平台返回了 2xx 但没有可用文本
func emptyResponseError(display string) *Error {
	return &Error{
		Kind:     FailureEmptyResponse,
		Provider: display,
		Message:  "平台返回了空响应",
	}
}
