package registry

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/weibaohui/llmchats/internal/provider"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string        { return s.name }
func (s *stubProvider) DisplayName() string { return s.name }
func (s *stubProvider) Generate(_ context.Context, _ provider.GenerateRequest) (*provider.Reply, error) {
	return &provider.Reply{Content: "ok"}, nil
}

func TestRegistryAddAndOrder(t *testing.T) {
	r := New()
	for _, label := range []string{"OpenAI", "DeepSeek", "通义千问"} {
		if err := r.Add(label, &stubProvider{name: label}); err != nil {
			t.Fatalf("Add(%s) error: %v", label, err)
		}
	}

	if r.Len() != 3 {
		t.Fatalf("expected 3 participants, got %d", r.Len())
	}
	want := []string{"OpenAI", "DeepSeek", "通义千问"}
	if !reflect.DeepEqual(r.Labels(), want) {
		t.Fatalf("labels out of order: %v", r.Labels())
	}

	enabled := r.Enabled()
	for i, p := range enabled {
		if p.Label != want[i] {
			t.Fatalf("enabled order broken at %d: %s", i, p.Label)
		}
	}
}

func TestRegistryDuplicateLabel(t *testing.T) {
	r := New()
	if err := r.Add("OpenAI", &stubProvider{name: "openai"}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := r.Add("OpenAI", &stubProvider{name: "openai-2"}); !errors.Is(err, ErrDuplicateLabel) {
		t.Fatalf("expected ErrDuplicateLabel, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("duplicate add changed registry: len=%d", r.Len())
	}
}

func TestRegistryDisable(t *testing.T) {
	r := New()
	for _, label := range []string{"OpenAI", "DeepSeek", "月之暗面"} {
		if err := r.Add(label, &stubProvider{name: label}); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}

	r.Disable("DeepSeek")

	enabled := r.Enabled()
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled, got %d", len(enabled))
	}
	// 剩余参与者保持登记顺序
	if enabled[0].Label != "OpenAI" || enabled[1].Label != "月之暗面" {
		t.Fatalf("unexpected enabled order: %s, %s", enabled[0].Label, enabled[1].Label)
	}
	// 禁用不影响登记总数
	if r.Len() != 3 {
		t.Fatalf("Len changed after disable: %d", r.Len())
	}

	// 禁用不存在的参与者是 no-op
	r.Disable("不存在")
	if len(r.Enabled()) != 2 {
		t.Fatal("disabling unknown label changed registry")
	}
}
