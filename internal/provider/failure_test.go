package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/weibaohui/llmchats/internal/pkg/llm"
)

func TestClassifyAPIError(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		wantKind   FailureKind
		wantSubstr string
	}{
		{"unauthorized", 401, FailureAuth, "密钥无效"},
		{"forbidden", 403, FailureAuth, "密钥无效"},
		{"rate limited", 429, FailureRateLimited, "频率超限"},
		{"payment required", 402, FailureBackendError, "余额不足"},
		{"not found", 404, FailureBackendError, "不存在或无访问权限"},
		{"server error", 500, FailureBackendError, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := &llm.APIError{StatusCode: c.statusCode, Message: "upstream message"}
			pe := classify(err, "openai", "OpenAI", "gpt-4o")
			if pe.Kind != c.wantKind {
				t.Fatalf("expected kind %s, got %s", c.wantKind, pe.Kind)
			}
			if c.wantSubstr != "" && !strings.Contains(pe.Message, c.wantSubstr) {
				t.Fatalf("message %q missing %q", pe.Message, c.wantSubstr)
			}
			if !errors.Is(pe, err) {
				t.Fatal("original error not wrapped")
			}
		})
	}
}

func TestClassifyDoubaoNotFoundHint(t *testing.T) {
	err := &llm.APIError{StatusCode: 404}
	pe := classify(err, "doubao", "豆包", "ep-m-20250629223026-prr94")
	if pe.Kind != FailureBackendError {
		t.Fatalf("expected backend_error, got %s", pe.Kind)
	}
	// 豆包的 404 要提示检查接入点配置
	if !strings.Contains(pe.Message, "接入点") || !strings.Contains(pe.Message, "DOUBAO_MODEL") {
		t.Fatalf("doubao hint missing: %s", pe.Message)
	}
}

func TestClassifyContextErrors(t *testing.T) {
	if pe := classify(context.DeadlineExceeded, "openai", "OpenAI", "m"); pe.Kind != FailureTimeout {
		t.Fatalf("deadline: expected timeout, got %s", pe.Kind)
	}
	if pe := classify(context.Canceled, "openai", "OpenAI", "m"); pe.Kind != FailureTimeout {
		t.Fatalf("canceled: expected timeout, got %s", pe.Kind)
	}
}

func TestClassifyStringFallback(t *testing.T) {
	cases := []struct {
		msg  string
		want FailureKind
	}{
		{"request failed: context deadline exceeded", FailureTimeout},
		{"dial tcp: i/o timeout", FailureTimeout},
		{"error code 401: invalid api key", FailureAuth},
		{"Unauthorized", FailureAuth},
		{"429 Too Many Requests", FailureRateLimited},
		{"rate limit exceeded", FailureRateLimited},
		{"connection refused", FailureBackendError},
	}
	for _, c := range cases {
		if pe := classify(errors.New(c.msg), "qwen", "通义千问", "qwen-plus"); pe.Kind != c.want {
			t.Fatalf("classify(%q) = %s, want %s", c.msg, pe.Kind, c.want)
		}
	}
}

func TestClassifyPassthrough(t *testing.T) {
	orig := emptyResponseError("OpenAI")
	pe := classify(orig, "openai", "OpenAI", "gpt-4o")
	if pe != orig {
		t.Fatal("already classified error should pass through unchanged")
	}
}

func TestKindOf(t *testing.T) {
	pe := &Error{Kind: FailureRateLimited, Provider: "OpenAI", Message: "限流"}
	if KindOf(pe) != FailureRateLimited {
		t.Fatal("KindOf should unwrap *Error")
	}
	// 包了一层也能取出来
	wrapped := errors.Join(errors.New("outer"), pe)
	if KindOf(wrapped) != FailureRateLimited {
		t.Fatal("KindOf should see through wrapping")
	}
	if KindOf(errors.New("plain")) != FailureBackendError {
		t.Fatal("plain errors default to backend_error")
	}
}
