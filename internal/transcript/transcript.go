package transcript

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/weibaohui/llmchats/internal/provider"
)

// ErrSealed 会话已结束，转录只读
var ErrSealed = errors.New("transcript is sealed")

// DuplicateTurnError 同一 (round, participant) 重复写入
// 属于协调器缺陷，不做恢复
type DuplicateTurnError struct {
	Round       int
	Participant string
}

func (e *DuplicateTurnError) Error() string {
	return fmt.Sprintf("duplicate turn: round=%d, participant=%s", e.Round, e.Participant)
}

// Turn 某个参与者在某一轮的发言记录，写入后不可变
type Turn struct {
	Round       int                  `json:"round"` // 0 起始
	Participant string               `json:"participant"`
	Content     string               `json:"content"`
	Failed      bool                 `json:"failed"`
	Failure     provider.FailureKind `json:"failure,omitempty"`
	FailureMsg  string               `json:"failure_msg,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	EndedAt     time.Time            `json:"ended_at"`
	Latency     time.Duration        `json:"latency"`
}

type turnKey struct {
	round       int
	participant string
}

// Transcript 追加式的发言记录
// 插入顺序 = 轮次升序，轮内按登记顺序；Seal 之后只读
type Transcript struct {
	mu     sync.RWMutex
	topic  string
	turns  []Turn
	index  map[turnKey]struct{}
	sealed bool
}

func New(topic string) *Transcript {
	return &Transcript{
		topic: topic,
		index: make(map[turnKey]struct{}),
	}
}

func (t *Transcript) Topic() string {
	return t.topic
}

// Append 追加一条发言记录
func (t *Transcript) Append(turn Turn) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return ErrSealed
	}
	key := turnKey{round: turn.Round, participant: turn.Participant}
	if _, ok := t.index[key]; ok {
		return &DuplicateTurnError{Round: turn.Round, Participant: turn.Participant}
	}
	t.index[key] = struct{}{}
	t.turns = append(t.turns, turn)
	return nil
}

// TurnsUpto 返回 round 及之前所有轮次的发言，用于构造适配器上下文
func (t *Transcript) TurnsUpto(round int) []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Turn
	for _, turn := range t.turns {
		if turn.Round <= round {
			out = append(out, turn)
		}
	}
	return out
}

// All 返回全部发言的副本
func (t *Transcript) All() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len 已记录的发言条数
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Rounds 已完整记录的轮次数
func (t *Transcript) Rounds() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, turn := range t.turns {
		if turn.Round+1 > n {
			n = turn.Round + 1
		}
	}
	return n
}

// Seal 会话终态后调用，转录变为只读
func (t *Transcript) Seal() {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()
}

// Sealed 是否已只读
func (t *Transcript) Sealed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sealed
}
