package repository

import (
	"errors"
	"time"

	"github.com/weibaohui/llmchats/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type SessionRepository interface {
	Create(session *model.Session) error
	Get(id uint) (*model.Session, error)
	GetBySessionID(sessionID string) (*model.Session, error)
	List(limit int) ([]model.Session, error)
	Save(session *model.Session) error
	Delete(id uint) error
	// CleanupStuckSessions 把运行超过 timeout 的会话标记为 failed
	CleanupStuckSessions(timeout time.Duration) (int64, error)
}

type TurnRepository interface {
	CreateBatch(turns []model.Turn) error
	GetBySession(sessionRecordID uint) ([]model.Turn, error)
	DeleteBySession(sessionRecordID uint) error
}

type SummaryRepository interface {
	Create(summary *model.Summary) error
	GetBySession(sessionRecordID uint) ([]model.Summary, error)
}
