package subscriber

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/weibaohui/llmchats/internal/eventbus"
)

// SessionEventSubscriber 消费会话进度事件，输出结构化日志
// 讨论跑在后台协程里，看进度只能靠这里
type SessionEventSubscriber struct{}

func NewSessionEventSubscriber() *SessionEventSubscriber {
	return &SessionEventSubscriber{}
}

func (s *SessionEventSubscriber) Register(bus *eventbus.SessionEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.SessionEventRoundStart, s.handleRoundStart)
	bus.Subscribe(eventbus.SessionEventTurnComplete, s.handleTurnComplete)
	bus.Subscribe(eventbus.SessionEventRoundComplete, s.handleRoundComplete)
	bus.Subscribe(eventbus.SessionEventComplete, s.handleSessionComplete)
}

func (s *SessionEventSubscriber) handleRoundStart(_ context.Context, event eventbus.SessionEvent) error {
	klog.V(6).Infof("第 %d 轮开始: sessionID=%s", event.Round+1, event.SessionID)
	return nil
}

func (s *SessionEventSubscriber) handleTurnComplete(_ context.Context, event eventbus.SessionEvent) error {
	if event.Turn == nil {
		return nil
	}
	if event.Turn.Failed {
		klog.Warningf("发言失败: sessionID=%s, round=%d, participant=%s, kind=%s, msg=%s",
			event.SessionID, event.Turn.Round+1, event.Turn.Participant, event.Turn.Failure, event.Turn.FailureMsg)
		return nil
	}
	klog.V(6).Infof("发言完成: sessionID=%s, round=%d, participant=%s, chars=%d, latency=%v",
		event.SessionID, event.Turn.Round+1, event.Turn.Participant, len(event.Turn.Content), event.Turn.Latency)
	return nil
}

func (s *SessionEventSubscriber) handleRoundComplete(_ context.Context, event eventbus.SessionEvent) error {
	failed := 0
	for _, t := range event.Turns {
		if t.Failed {
			failed++
		}
	}
	klog.V(6).Infof("第 %d 轮结束: sessionID=%s, turns=%d, failed=%d",
		event.Round+1, event.SessionID, len(event.Turns), failed)
	return nil
}

func (s *SessionEventSubscriber) handleSessionComplete(_ context.Context, event eventbus.SessionEvent) error {
	klog.V(6).Infof("会话结束: sessionID=%s, status=%s", event.SessionID, event.Status)
	return nil
}
