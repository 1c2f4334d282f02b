package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/weibaohui/llmchats/internal/eventbus"
	"github.com/weibaohui/llmchats/internal/pkg/llm"
	"github.com/weibaohui/llmchats/internal/provider"
	"github.com/weibaohui/llmchats/internal/registry"
	"github.com/weibaohui/llmchats/internal/transcript"
)

// ErrNoParticipants 启动时没有任何可用参与者，会话不会进入 running
var ErrNoParticipants = errors.New("no enabled participants")

// Options 一场讨论的配置，会话开始后不再变更
type Options struct {
	SessionID    string
	Topic        string
	ContextText  string // 文件解析等协作方提供的附加背景，视为不透明文本
	SystemPrompt string // 为空时按主题生成
	MaxRounds    int
	CallTimeout  time.Duration // 单个参与者一次发言的总预算（含重试），0 表示不限
}

// Coordinator 轮次协调器
// 驱动 N 个参与者按轮发言：轮与轮严格串行，轮内并发调用、
// 屏障收齐后按登记顺序写入转录
type Coordinator struct {
	opts Options
	reg  *registry.Registry
	tr   *transcript.Transcript
	bus  *eventbus.SessionEventBus
	sm   *StateMachine

	mu     sync.Mutex
	status Status

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

func NewCoordinator(opts Options, reg *registry.Registry, bus *eventbus.SessionEventBus) *Coordinator {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 1
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt(opts.Topic)
	}
	if opts.ContextText != "" {
		opts.SystemPrompt += "\n\n参考背景资料：\n" + opts.ContextText
	}
	return &Coordinator{
		opts:     opts,
		reg:      reg,
		tr:       transcript.New(opts.Topic),
		bus:      bus,
		sm:       NewStateMachine(),
		status:   StatusConfigured,
		cancelCh: make(chan struct{}),
	}
}

// Status 当前会话状态
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Transcript 会话的转录，终态后只读
func (c *Coordinator) Transcript() *transcript.Transcript {
	return c.tr
}

// Cancel 协作式取消：轮次边界检查标记，进行中的调用等它自然结束或超时
func (c *Coordinator) Cancel() {
	c.cancelOnce.Do(func() {
		close(c.cancelCh)
	})
}

func (c *Coordinator) cancelled(ctx context.Context) bool {
	select {
	case <-c.cancelCh:
		return true
	default:
	}
	return ctx.Err() != nil
}

func (c *Coordinator) setStatus(to Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sm.Transition(c.status, to, c.opts.SessionID); err != nil {
		return err
	}
	c.status = to
	return nil
}

// Run 驱动整场讨论直到终态，返回终态
// 前置条件不满足时不进入 running，返回错误
func (c *Coordinator) Run(ctx context.Context) (Status, error) {
	if len(c.reg.Enabled()) == 0 {
		return c.Status(), ErrNoParticipants
	}
	if err := c.setStatus(StatusRunning); err != nil {
		return c.Status(), err
	}
	klog.V(6).Infof("讨论开始: sessionID=%s, topic=%s, rounds=%d, participants=%d",
		c.opts.SessionID, c.opts.Topic, c.opts.MaxRounds, len(c.reg.Enabled()))

	for round := 0; round < c.opts.MaxRounds; round++ {
		if c.cancelled(ctx) {
			klog.V(6).Infof("会话被取消: sessionID=%s, round=%d", c.opts.SessionID, round)
			return c.finish(ctx, StatusAborted)
		}

		participants := c.reg.Enabled()
		if len(participants) == 0 {
			klog.Warningf("所有参与者均已禁用，会话中止: sessionID=%s, round=%d", c.opts.SessionID, round)
			return c.finish(ctx, StatusAborted)
		}

		c.publish(ctx, eventbus.SessionEvent{
			Type:      eventbus.SessionEventRoundStart,
			SessionID: c.opts.SessionID,
			Round:     round,
		})

		c.runRound(ctx, round, participants)
	}

	return c.finish(ctx, StatusCompleted)
}

// runRound 执行一轮：并发调用全部参与者，屏障收齐后按登记顺序写入转录
// 一旦开跑就完整落盘，保证转录中不出现缺发言的半轮
func (c *Coordinator) runRound(ctx context.Context, round int, participants []*registry.Participant) {
	prior := c.tr.TurnsUpto(round - 1)

	results := make([]transcript.Turn, len(participants))
	var wg sync.WaitGroup
	for i, p := range participants {
		wg.Add(1)
		go func(i int, p *registry.Participant) {
			defer wg.Done()
			results[i] = c.callParticipant(ctx, round, p, prior)
		}(i, p)
	}
	wg.Wait()

	roundTurns := make([]transcript.Turn, 0, len(results))
	for i, p := range participants {
		turn := results[i]
		if err := c.tr.Append(turn); err != nil {
			// DuplicateTurnError 属于协调器缺陷，直接暴露
			panic(fmt.Sprintf("transcript append failed: %v", err))
		}
		roundTurns = append(roundTurns, turn)

		if turn.Failed && turn.Failure == provider.FailureAuth {
			klog.Warningf("参与者鉴权失败，后续轮次禁用: sessionID=%s, participant=%s",
				c.opts.SessionID, p.Label)
			c.reg.Disable(p.Label)
		}

		c.publish(ctx, eventbus.SessionEvent{
			Type:      eventbus.SessionEventTurnComplete,
			SessionID: c.opts.SessionID,
			Round:     round,
			Turn:      &turn,
		})
	}

	c.publish(ctx, eventbus.SessionEvent{
		Type:      eventbus.SessionEventRoundComplete,
		SessionID: c.opts.SessionID,
		Round:     round,
		Turns:     roundTurns,
	})
}

// callParticipant 调用一个参与者，成功与失败都转成一条 Turn
func (c *Coordinator) callParticipant(ctx context.Context, round int, p *registry.Participant, prior []transcript.Turn) transcript.Turn {
	callCtx := ctx
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	req := provider.GenerateRequest{
		System:  c.opts.SystemPrompt,
		History: buildHistory(p.Label, prior),
		Prompt:  roundPrompt(round, c.opts.Topic),
	}

	start := time.Now()
	reply, err := p.Provider.Generate(callCtx, req)
	end := time.Now()

	turn := transcript.Turn{
		Round:       round,
		Participant: p.Label,
		StartedAt:   start,
		EndedAt:     end,
		Latency:     end.Sub(start),
	}
	if err != nil {
		var pe *provider.Error
		turn.Failed = true
		turn.Failure = provider.KindOf(err)
		if errors.As(err, &pe) {
			turn.FailureMsg = pe.Message
		} else {
			turn.FailureMsg = err.Error()
		}
		klog.Warningf("参与者发言失败: sessionID=%s, round=%d, participant=%s, kind=%s, err=%v",
			c.opts.SessionID, round, p.Label, turn.Failure, err)
		return turn
	}

	turn.Content = reply.Content
	turn.Latency = reply.Latency
	return turn
}

// finish 进入终态并封存转录
func (c *Coordinator) finish(ctx context.Context, to Status) (Status, error) {
	if err := c.setStatus(to); err != nil {
		return c.Status(), err
	}
	c.tr.Seal()
	c.publish(ctx, eventbus.SessionEvent{
		Type:      eventbus.SessionEventComplete,
		SessionID: c.opts.SessionID,
		Status:    string(to),
	})
	klog.V(6).Infof("讨论结束: sessionID=%s, status=%s, turns=%d", c.opts.SessionID, to, c.tr.Len())
	return to, nil
}

func (c *Coordinator) publish(ctx context.Context, event eventbus.SessionEvent) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, event.Type, event); err != nil {
		klog.Errorf("事件发布失败: sessionID=%s, type=%s, err=%v", c.opts.SessionID, event.Type, err)
	}
}

// buildHistory 把往轮发言转成该参与者视角的消息序列
// 自己的历史发言是 assistant，其它参与者带展示名前缀作为 user；
// 失败的发言不进入上下文，转录里才保留失败标记
func buildHistory(self string, prior []transcript.Turn) []llm.ChatMessage {
	var messages []llm.ChatMessage
	for _, turn := range prior {
		if turn.Failed {
			continue
		}
		if turn.Participant == self {
			messages = append(messages, llm.ChatMessage{Role: "assistant", Content: turn.Content})
		} else {
			messages = append(messages, llm.ChatMessage{
				Role:    "user",
				Content: fmt.Sprintf("【%s】%s", turn.Participant, turn.Content),
			})
		}
	}
	return messages
}

// roundPrompt 每轮的引导语
func roundPrompt(round int, topic string) string {
	if round == 0 {
		return fmt.Sprintf("请开始讨论话题：%s。分享你的初步观点。", topic)
	}
	return fmt.Sprintf("基于以上讨论，请继续就话题「%s」发表你的观点。", topic)
}

// defaultSystemPrompt 按主题生成默认的系统提示
func defaultSystemPrompt(topic string) string {
	return fmt.Sprintf(`你是一个AI助手，正在参与关于「%s」的多方讨论。

讨论规则：
1. 请就主题发表你的观点和见解
2. 认真倾听其他参与者的观点
3. 可以提出问题、反驳或补充
4. 保持讨论的建设性和深度
5. 每次回复控制在200字以内
6. 避免重复之前已经充分讨论的内容

当前讨论主题：%s`, topic, topic)
}
