package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/weibaohui/llmchats/internal/eventbus"
	"github.com/weibaohui/llmchats/internal/pkg/llm"
	"github.com/weibaohui/llmchats/internal/provider"
	"github.com/weibaohui/llmchats/internal/registry"
)

// fakeProvider 可编程的模型后端，按轮次指定延迟和失败
type fakeProvider struct {
	name  string
	delay time.Duration
	// failAt[round] 非空时该轮返回对应错误
	failAt map[int]error

	mu       sync.Mutex
	requests []provider.GenerateRequest
	calls    int
}

func (f *fakeProvider) Name() string        { return f.name }
func (f *fakeProvider) DisplayName() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.Reply, error) {
	f.mu.Lock()
	round := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &provider.Error{Kind: provider.FailureTimeout, Provider: f.name, Message: "超时"}
		}
	}
	if err, ok := f.failAt[round]; ok && err != nil {
		return nil, err
	}
	return &provider.Reply{Content: fmt.Sprintf("%s 第%d轮发言", f.name, round+1)}, nil
}

func (f *fakeProvider) request(i int) provider.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func newTestRegistry(t *testing.T, providers ...*fakeProvider) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, p := range providers {
		if err := reg.Add(p.name, p); err != nil {
			t.Fatalf("Add(%s) error: %v", p.name, err)
		}
	}
	return reg
}

func TestCoordinatorDeterministicOrder(t *testing.T) {
	// 三个参与者延迟各不相同，完成顺序与登记顺序相反
	a := &fakeProvider{name: "OpenAI", delay: 30 * time.Millisecond}
	b := &fakeProvider{name: "DeepSeek", delay: 20 * time.Millisecond}
	c := &fakeProvider{name: "通义千问", delay: 5 * time.Millisecond}
	reg := newTestRegistry(t, a, b, c)

	coordinator := NewCoordinator(Options{
		SessionID: "s-order",
		Topic:     "AI的未来",
		MaxRounds: 2,
	}, reg, nil)

	status, err := coordinator.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if status != StatusCompleted {
		t.Fatalf("expected completed, got %s", status)
	}

	turns := coordinator.Transcript().All()
	if len(turns) != 6 {
		t.Fatalf("expected 6 turns, got %d", len(turns))
	}
	// 转录顺序只由轮次和登记顺序决定，与完成先后无关
	wantOrder := []string{"OpenAI", "DeepSeek", "通义千问", "OpenAI", "DeepSeek", "通义千问"}
	for i, turn := range turns {
		if turn.Participant != wantOrder[i] {
			t.Fatalf("turn %d: expected %s, got %s", i, wantOrder[i], turn.Participant)
		}
		if turn.Round != i/3 {
			t.Fatalf("turn %d: expected round %d, got %d", i, i/3, turn.Round)
		}
	}
	if !coordinator.Transcript().Sealed() {
		t.Fatal("transcript should be sealed after completion")
	}
}

func TestCoordinatorAuthFailureDisablesParticipant(t *testing.T) {
	healthy := &fakeProvider{name: "OpenAI"}
	broken := &fakeProvider{
		name: "DeepSeek",
		failAt: map[int]error{
			0: &provider.Error{Kind: provider.FailureAuth, Provider: "deepseek", Message: "API密钥无效"},
		},
	}
	other := &fakeProvider{name: "月之暗面"}
	reg := newTestRegistry(t, healthy, broken, other)

	coordinator := NewCoordinator(Options{
		SessionID: "s-auth",
		Topic:     "topic",
		MaxRounds: 3,
	}, reg, nil)

	status, err := coordinator.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if status != StatusCompleted {
		t.Fatalf("expected completed, got %s", status)
	}

	// 第1轮 3 条（含失败），后两轮各 2 条
	turns := coordinator.Transcript().All()
	if len(turns) != 7 {
		t.Fatalf("expected 7 turns, got %d", len(turns))
	}
	failed := turns[1]
	if failed.Participant != "DeepSeek" || !failed.Failed || failed.Failure != provider.FailureAuth {
		t.Fatalf("unexpected failed turn: %+v", failed)
	}
	if failed.FailureMsg != "API密钥无效" {
		t.Fatalf("unexpected failure message: %s", failed.FailureMsg)
	}
	for _, turn := range turns[3:] {
		if turn.Participant == "DeepSeek" {
			t.Fatal("disabled participant still speaking")
		}
	}
	if broken.calls != 1 {
		t.Fatalf("disabled participant called %d times", broken.calls)
	}
}

func TestCoordinatorAllParticipantsDisabled(t *testing.T) {
	a := &fakeProvider{
		name: "OpenAI",
		failAt: map[int]error{
			0: &provider.Error{Kind: provider.FailureAuth, Provider: "openai", Message: "密钥失效"},
		},
	}
	reg := newTestRegistry(t, a)

	coordinator := NewCoordinator(Options{
		SessionID: "s-dead",
		Topic:     "topic",
		MaxRounds: 3,
	}, reg, nil)

	status, err := coordinator.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if status != StatusAborted {
		t.Fatalf("expected aborted, got %s", status)
	}
	if got := coordinator.Transcript().Len(); got != 1 {
		t.Fatalf("expected 1 turn, got %d", got)
	}
}

func TestCoordinatorCancelAtRoundBoundary(t *testing.T) {
	bus := eventbus.NewSessionEventBus()
	a := &fakeProvider{name: "OpenAI", delay: 10 * time.Millisecond}
	b := &fakeProvider{name: "DeepSeek", delay: 10 * time.Millisecond}
	reg := newTestRegistry(t, a, b)

	coordinator := NewCoordinator(Options{
		SessionID: "s-cancel",
		Topic:     "topic",
		MaxRounds: 100,
	}, reg, bus)

	// 第 2 轮收齐后取消
	bus.Subscribe(eventbus.SessionEventRoundComplete, func(_ context.Context, event eventbus.SessionEvent) error {
		if event.Round == 1 {
			coordinator.Cancel()
		}
		return nil
	})

	status, err := coordinator.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if status != StatusAborted {
		t.Fatalf("expected aborted, got %s", status)
	}

	// 已完成的轮次保留，且没有半轮
	turns := coordinator.Transcript().All()
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns (2 full rounds), got %d", len(turns))
	}
	counts := map[int]int{}
	for _, turn := range turns {
		counts[turn.Round]++
	}
	for round, n := range counts {
		if n != 2 {
			t.Fatalf("round %d has %d turns, want 2", round, n)
		}
	}
}

// gatedProvider 调用开始后阻塞，等测试放行才返回正常内容
type gatedProvider struct {
	name    string
	started chan struct{}
	release chan struct{}
}

func (g *gatedProvider) Name() string        { return g.name }
func (g *gatedProvider) DisplayName() string { return g.name }

func (g *gatedProvider) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.Reply, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, &provider.Error{Kind: provider.FailureTimeout, Provider: g.name, Message: "调用被取消"}
	}
	return &provider.Reply{Content: g.name + " 的完整观点"}, nil
}

func TestCoordinatorCancelMidRoundKeepsInFlightReplies(t *testing.T) {
	slow := &gatedProvider{name: "OpenAI", started: make(chan struct{}, 1), release: make(chan struct{})}
	fast := &fakeProvider{name: "DeepSeek"}
	reg := registry.New()
	if err := reg.Add(slow.name, slow); err != nil {
		t.Fatalf("Add(%s) error: %v", slow.name, err)
	}
	if err := reg.Add(fast.name, fast); err != nil {
		t.Fatalf("Add(%s) error: %v", fast.name, err)
	}

	coordinator := NewCoordinator(Options{
		SessionID: "s-midcancel",
		Topic:     "topic",
		MaxRounds: 100,
	}, reg, nil)

	done := make(chan Status, 1)
	go func() {
		status, _ := coordinator.Run(context.Background())
		done <- status
	}()

	// 第一轮调用在途时取消：只置标志位，不打断调用
	<-slow.started
	coordinator.Cancel()
	close(slow.release)

	var status Status
	select {
	case status = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish after cancel")
	}
	if status != StatusAborted {
		t.Fatalf("expected aborted, got %s", status)
	}

	// 在途的发言带真实内容落盘，当前轮完整，之后不再开新轮
	turns := coordinator.Transcript().All()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns (1 full round), got %d", len(turns))
	}
	for _, turn := range turns {
		if turn.Failed {
			t.Fatalf("cancel should not fail in-flight turn: %+v", turn)
		}
		if turn.Content == "" {
			t.Fatalf("turn %s has empty content", turn.Participant)
		}
	}
}

func TestCoordinatorNoParticipants(t *testing.T) {
	coordinator := NewCoordinator(Options{
		SessionID: "s-empty",
		Topic:     "topic",
		MaxRounds: 2,
	}, registry.New(), nil)

	_, err := coordinator.Run(context.Background())
	if !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
	// 前置校验失败不进入 running
	if coordinator.Status() != StatusConfigured {
		t.Fatalf("expected configured, got %s", coordinator.Status())
	}
}

func TestCoordinatorHistoryPerspective(t *testing.T) {
	a := &fakeProvider{name: "OpenAI"}
	b := &fakeProvider{name: "DeepSeek"}
	broken := &fakeProvider{
		name: "豆包",
		failAt: map[int]error{
			0: &provider.Error{Kind: provider.FailureBackendError, Provider: "doubao", Message: "接入点不存在"},
		},
	}
	reg := newTestRegistry(t, a, b, broken)

	coordinator := NewCoordinator(Options{
		SessionID:    "s-history",
		Topic:        "topic",
		SystemPrompt: "你是讨论参与者",
		MaxRounds:    2,
	}, reg, nil)

	if _, err := coordinator.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	// 第 1 轮所有人都没有历史
	if got := a.request(0).History; len(got) != 0 {
		t.Fatalf("round 1 should have empty history, got %d messages", len(got))
	}

	// 第 2 轮：自己的发言是 assistant，别人的带【名字】前缀，失败发言不出现
	second := a.request(1)
	if second.System != "你是讨论参与者" {
		t.Fatalf("system prompt lost: %s", second.System)
	}
	if len(second.History) != 2 {
		t.Fatalf("expected 2 history messages, got %d", len(second.History))
	}
	checkMessage := func(msg llm.ChatMessage, role, substr string) {
		t.Helper()
		if msg.Role != role || !strings.Contains(msg.Content, substr) {
			t.Fatalf("unexpected message: role=%s content=%s", msg.Role, msg.Content)
		}
	}
	checkMessage(second.History[0], "assistant", "OpenAI 第1轮发言")
	checkMessage(second.History[1], "user", "【DeepSeek】")
	for _, msg := range second.History {
		if strings.Contains(msg.Content, "豆包") {
			t.Fatal("failed turn leaked into history")
		}
	}

	// 引导语随轮次变化
	if !strings.Contains(a.request(0).Prompt, "请开始讨论话题") {
		t.Fatalf("unexpected first prompt: %s", a.request(0).Prompt)
	}
	if !strings.Contains(second.Prompt, "基于以上讨论") {
		t.Fatalf("unexpected followup prompt: %s", second.Prompt)
	}
}

func TestCoordinatorPublishesEvents(t *testing.T) {
	bus := eventbus.NewSessionEventBus()
	var mu sync.Mutex
	seen := map[eventbus.SessionEventType]int{}
	record := func(_ context.Context, event eventbus.SessionEvent) error {
		mu.Lock()
		seen[event.Type]++
		mu.Unlock()
		return nil
	}
	bus.Subscribe(eventbus.SessionEventRoundStart, record)
	bus.Subscribe(eventbus.SessionEventTurnComplete, record)
	bus.Subscribe(eventbus.SessionEventRoundComplete, record)
	bus.Subscribe(eventbus.SessionEventComplete, record)

	a := &fakeProvider{name: "OpenAI"}
	b := &fakeProvider{name: "DeepSeek"}
	coordinator := NewCoordinator(Options{
		SessionID: "s-events",
		Topic:     "topic",
		MaxRounds: 2,
	}, newTestRegistry(t, a, b), bus)

	if _, err := coordinator.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if seen[eventbus.SessionEventRoundStart] != 2 ||
		seen[eventbus.SessionEventRoundComplete] != 2 ||
		seen[eventbus.SessionEventTurnComplete] != 4 ||
		seen[eventbus.SessionEventComplete] != 1 {
		t.Fatalf("unexpected event counts: %+v", seen)
	}
}

func TestCoordinatorContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &fakeProvider{name: "OpenAI", delay: 5 * time.Millisecond}
	coordinator := NewCoordinator(Options{
		SessionID: "s-ctx",
		Topic:     "topic",
		MaxRounds: 1000,
	}, newTestRegistry(t, a), nil)

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	status, err := coordinator.Run(ctx)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if status != StatusAborted {
		t.Fatalf("expected aborted, got %s", status)
	}
	if coordinator.Transcript().Len() >= 1000 {
		t.Fatal("cancellation ignored")
	}
}
