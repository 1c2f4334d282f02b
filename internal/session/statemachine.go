package session

import (
	"fmt"

	"k8s.io/klog/v2"
)

// Status 会话状态
type Status string

const (
	StatusConfigured Status = "configured" // 已配置，未开始
	StatusRunning    Status = "running"    // 轮次推进中
	StatusCompleted  Status = "completed"  // 跑满轮次，正常结束
	StatusAborted    Status = "aborted"    // 取消或无可用参与者，保留已有转录
)

// Transition 状态迁移
type Transition struct {
	From Status
	To   Status
}

// StateMachine 会话状态机
// configured -> running -> completed / aborted，终态不再迁移
type StateMachine struct {
	allowedTransitions map[Transition]bool
}

func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		allowedTransitions: make(map[Transition]bool),
	}

	transitions := []Transition{
		{StatusConfigured, StatusRunning},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusAborted},
	}
	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}
	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *StateMachine) CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[Transition{From: from, To: to}]
}

// Transition 执行状态迁移（带日志）
func (sm *StateMachine) Transition(from, to Status, sessionID string) error {
	if !sm.CanTransition(from, to) {
		err := &InvalidStateTransitionError{From: string(from), To: string(to)}
		klog.V(6).Infof("会话状态迁移被拒绝: sessionID=%s, %s -> %s", sessionID, from, to)
		return err
	}
	klog.V(6).Infof("会话状态迁移: sessionID=%s, %s -> %s", sessionID, from, to)
	return nil
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid session state transition: %s -> %s", e.From, e.To)
}

// IsTerminal 判断状态是否为终态
func IsTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusAborted
}
