package eventbus

import (
	"github.com/weibaohui/llmchats/internal/transcript"
)

type SessionEventType string

const (
	SessionEventRoundStart    SessionEventType = "RoundStart"
	SessionEventTurnComplete  SessionEventType = "TurnComplete"
	SessionEventRoundComplete SessionEventType = "RoundComplete"
	SessionEventComplete      SessionEventType = "SessionComplete"
)

// SessionEvent 讨论会话的进度事件，供展示层消费
type SessionEvent struct {
	Type      SessionEventType
	SessionID string
	Round     int
	Turn      *transcript.Turn  // TurnComplete 时有值
	Turns     []transcript.Turn // RoundComplete 时为该轮全部发言
	Status    string            // SessionComplete 时为终态
}

type SessionEventHandler = Handler[SessionEvent]
type SessionEventBus = Bus[SessionEventType, SessionEvent]

func NewSessionEventBus() *SessionEventBus {
	return NewBus[SessionEventType, SessionEvent]()
}
