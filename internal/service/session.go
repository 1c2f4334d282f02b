package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/weibaohui/llmchats/config"
	"github.com/weibaohui/llmchats/internal/eventbus"
	"github.com/weibaohui/llmchats/internal/model"
	"github.com/weibaohui/llmchats/internal/provider"
	"github.com/weibaohui/llmchats/internal/registry"
	"github.com/weibaohui/llmchats/internal/repository"
	"github.com/weibaohui/llmchats/internal/service/orchestrator"
	"github.com/weibaohui/llmchats/internal/session"
	"github.com/weibaohui/llmchats/internal/transcript"
)

var (
	// ErrSessionNotRunnable 会话不在可启动状态
	ErrSessionNotRunnable = errors.New("session is not in a runnable state")
	// ErrSessionNotRunning 会话当前没有在执行
	ErrSessionNotRunning = errors.New("session is not running")
	// ErrSessionNotFinished 会话尚未结束，不能总结或导出
	ErrSessionNotFinished = errors.New("session is not finished")
	// ErrUnknownParticipant 参与者不在已配置的平台中
	ErrUnknownParticipant = errors.New("unknown participant")
)

// SessionService 讨论会话服务
// 负责会话的创建、执行、取消、导出与总结
type SessionService struct {
	cfg         *config.Config
	sessionRepo repository.SessionRepository
	turnRepo    repository.TurnRepository
	summaryRepo repository.SummaryRepository
	bus         *eventbus.SessionEventBus
	orch        *orchestrator.Orchestrator

	providers []provider.Provider
	byLabel   map[string]provider.Provider

	mu     sync.Mutex
	active map[uint]*session.Coordinator
}

func NewSessionService(
	cfg *config.Config,
	sessionRepo repository.SessionRepository,
	turnRepo repository.TurnRepository,
	summaryRepo repository.SummaryRepository,
	providers []provider.Provider,
	bus *eventbus.SessionEventBus,
) *SessionService {
	byLabel := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		byLabel[p.DisplayName()] = p
	}
	return &SessionService{
		cfg:         cfg,
		sessionRepo: sessionRepo,
		turnRepo:    turnRepo,
		summaryRepo: summaryRepo,
		providers:   providers,
		byLabel:     byLabel,
		bus:         bus,
		active:      make(map[uint]*session.Coordinator),
	}
}

// SetOrchestrator 设置会话编排器
// 用于解决循环依赖问题
func (s *SessionService) SetOrchestrator(o *orchestrator.Orchestrator) {
	s.orch = o
}

// Providers 已配置的平台适配器，顺序固定
func (s *SessionService) Providers() []provider.Provider {
	return s.providers
}

// CreateSessionRequest 创建会话的入参
type CreateSessionRequest struct {
	Topic        string   `json:"topic" binding:"required"`
	ContextText  string   `json:"context_text"` // 文件解析协作方产出的纯文本，核心视为不透明
	Participants []string `json:"participants"` // 展示名，留空表示全部已配置平台
	MaxRounds    int      `json:"max_rounds"`
}

// CreateSession 创建一场讨论，参数在此定稿，启动后不再变更
func (s *SessionService) CreateSession(req CreateSessionRequest) (*model.Session, error) {
	if req.Topic == "" {
		return nil, errors.New("topic is required")
	}

	labels := req.Participants
	if len(labels) == 0 {
		for _, p := range s.providers {
			labels = append(labels, p.DisplayName())
		}
	}
	if max := s.cfg.Session.MaxParticipants; max > 0 && len(labels) > max {
		return nil, fmt.Errorf("too many participants: %d > %d", len(labels), max)
	}

	// 展示名必须对应已配置的平台，且不能重复
	seen := make(map[string]bool, len(labels))
	participants := ""
	for i, label := range labels {
		if _, ok := s.byLabel[label]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, label)
		}
		if seen[label] {
			return nil, fmt.Errorf("%w: %s", registry.ErrDuplicateLabel, label)
		}
		seen[label] = true
		if i > 0 {
			participants += ","
		}
		participants += label
	}

	maxRounds := req.MaxRounds
	if maxRounds <= 0 {
		maxRounds = s.cfg.Session.MaxRounds
	}

	sess := &model.Session{
		SessionID:    uuid.NewString(),
		Topic:        req.Topic,
		ContextText:  req.ContextText,
		Participants: participants,
		MaxRounds:    maxRounds,
		Status:       string(session.StatusConfigured),
	}
	if err := s.sessionRepo.Create(sess); err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}

	klog.V(6).Infof("会话已创建: sessionID=%s, participants=%s, rounds=%d",
		sess.SessionID, participants, maxRounds)
	return sess, nil
}

// Start 把会话提交给编排器执行
func (s *SessionService) Start(sessionID string) error {
	sess, err := s.sessionRepo.GetBySessionID(sessionID)
	if err != nil {
		return err
	}
	if sess.Status != string(session.StatusConfigured) {
		return fmt.Errorf("%w: status=%s", ErrSessionNotRunnable, sess.Status)
	}
	return s.orch.EnqueueJob(orchestrator.NewSessionJob(sess.ID))
}

// ExecuteSession 执行一场会话，由编排器的工作协程调用
// 返回 error 仅表示基础设施故障；讨论中的失败都记到会话状态上
func (s *SessionService) ExecuteSession(ctx context.Context, sessionRecordID uint) error {
	sess, err := s.sessionRepo.Get(sessionRecordID)
	if err != nil {
		return fmt.Errorf("获取会话失败: %w", err)
	}
	if sess.Status != string(session.StatusConfigured) {
		klog.Warningf("会话状态不可执行，跳过: sessionID=%s, status=%s", sess.SessionID, sess.Status)
		return nil
	}

	reg := registry.New()
	for _, label := range sess.ParticipantList() {
		p, ok := s.byLabel[label]
		if !ok {
			return s.failSession(sess, fmt.Sprintf("参与者 %s 未配置", label))
		}
		if err := reg.Add(label, p); err != nil {
			return s.failSession(sess, err.Error())
		}
	}

	coordinator := session.NewCoordinator(session.Options{
		SessionID:    sess.SessionID,
		Topic:        sess.Topic,
		ContextText:  sess.ContextText,
		SystemPrompt: s.cfg.Session.SystemPrompt,
		MaxRounds:    sess.MaxRounds,
		CallTimeout:  s.cfg.Session.CallTimeout,
	}, reg, s.bus)

	s.mu.Lock()
	s.active[sess.ID] = coordinator
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, sess.ID)
		s.mu.Unlock()
	}()

	// 每轮屏障收齐后落库，展示层可以边跑边读
	unsubscribe := s.bus.Subscribe(eventbus.SessionEventRoundComplete,
		func(_ context.Context, event eventbus.SessionEvent) error {
			if event.SessionID != sess.SessionID {
				return nil
			}
			return s.persistRound(sess.ID, event)
		})
	defer unsubscribe()

	now := time.Now()
	sess.Status = string(session.StatusRunning)
	sess.StartedAt = &now
	if err := s.sessionRepo.Save(sess); err != nil {
		return fmt.Errorf("更新会话状态失败: %w", err)
	}

	final, runErr := coordinator.Run(ctx)
	if runErr != nil {
		return s.failSession(sess, runErr.Error())
	}

	done := time.Now()
	sess.Status = string(final)
	sess.CurrentRound = coordinator.Transcript().Rounds()
	sess.CompletedAt = &done
	if err := s.sessionRepo.Save(sess); err != nil {
		return fmt.Errorf("保存会话终态失败: %w", err)
	}
	return nil
}

// persistRound 把一轮的发言写入数据库
func (s *SessionService) persistRound(sessionRecordID uint, event eventbus.SessionEvent) error {
	turns := make([]model.Turn, 0, len(event.Turns))
	for _, t := range event.Turns {
		turns = append(turns, model.Turn{
			SessionRecordID: sessionRecordID,
			Round:           t.Round,
			Participant:     t.Participant,
			Content:         t.Content,
			Failed:          t.Failed,
			FailureKind:     string(t.Failure),
			FailureMsg:      t.FailureMsg,
			StartedAt:       t.StartedAt,
			EndedAt:         t.EndedAt,
			LatencyMs:       t.Latency.Milliseconds(),
		})
	}
	if err := s.turnRepo.CreateBatch(turns); err != nil {
		klog.Errorf("发言落库失败: sessionRecordID=%d, round=%d, err=%v", sessionRecordID, event.Round, err)
		return err
	}
	return nil
}

func (s *SessionService) failSession(sess *model.Session, msg string) error {
	sess.Status = "failed"
	sess.ErrorMsg = msg
	if err := s.sessionRepo.Save(sess); err != nil {
		klog.Errorf("保存失败状态出错: sessionID=%s, err=%v", sess.SessionID, err)
	}
	return fmt.Errorf("session %s failed: %s", sess.SessionID, msg)
}

// Cancel 取消一场在跑的会话
// 协作式：只置标志位，进行中的调用正常完成（或各自超时），当前轮跑完后收尾
func (s *SessionService) Cancel(sessionID string) error {
	sess, err := s.sessionRepo.GetBySessionID(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	coordinator, ok := s.active[sess.ID]
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotRunning
	}

	coordinator.Cancel()
	return nil
}

// Status 会话当前状态，在跑的会话以协调器为准
func (s *SessionService) Status(sessionID string) (string, error) {
	sess, err := s.sessionRepo.GetBySessionID(sessionID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	coordinator, ok := s.active[sess.ID]
	s.mu.Unlock()
	if ok {
		return string(coordinator.Status()), nil
	}
	return sess.Status, nil
}

// Get 获取单个会话
func (s *SessionService) Get(sessionID string) (*model.Session, error) {
	return s.sessionRepo.GetBySessionID(sessionID)
}

// List 按创建时间倒序列出会话
func (s *SessionService) List(limit int) ([]model.Session, error) {
	return s.sessionRepo.List(limit)
}

// Turns 会话的全部发言（轮次升序，轮内按落库顺序即登记顺序）
func (s *SessionService) Turns(sessionID string) ([]model.Turn, error) {
	sess, err := s.sessionRepo.GetBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	return s.turnRepo.GetBySession(sess.ID)
}

// Export 导出会话转录
func (s *SessionService) Export(sessionID string, format transcript.Format) ([]byte, error) {
	sess, err := s.sessionRepo.GetBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	tr, err := s.rebuildTranscript(sess)
	if err != nil {
		return nil, err
	}
	return tr.Export(format)
}

// rebuildTranscript 从数据库还原转录
func (s *SessionService) rebuildTranscript(sess *model.Session) (*transcript.Transcript, error) {
	turns, err := s.turnRepo.GetBySession(sess.ID)
	if err != nil {
		return nil, err
	}
	tr := transcript.New(sess.Topic)
	for _, t := range turns {
		if err := tr.Append(transcript.Turn{
			Round:       t.Round,
			Participant: t.Participant,
			Content:     t.Content,
			Failed:      t.Failed,
			Failure:     provider.FailureKind(t.FailureKind),
			FailureMsg:  t.FailureMsg,
			StartedAt:   t.StartedAt,
			EndedAt:     t.EndedAt,
			Latency:     time.Duration(t.LatencyMs) * time.Millisecond,
		}); err != nil {
			return nil, err
		}
	}
	tr.Seal()
	return tr, nil
}

// CleanupStuckSessions 清理卡住的会话
func (s *SessionService) CleanupStuckSessions(timeout time.Duration) (int64, error) {
	return s.sessionRepo.CleanupStuckSessions(timeout)
}

// GetQueueStatus 编排器队列状态
func (s *SessionService) GetQueueStatus() *orchestrator.QueueStatus {
	return s.orch.GetQueueStatus()
}
