package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/weibaohui/llmchats/internal/model"
)

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(session *model.Session) error {
	return r.db.Create(session).Error
}

func (r *sessionRepository) Get(id uint) (*model.Session, error) {
	var session model.Session
	err := r.db.First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) GetBySessionID(sessionID string) (*model.Session, error) {
	var session model.Session
	err := r.db.Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) List(limit int) ([]model.Session, error) {
	var sessions []model.Session
	q := r.db.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepository) Save(session *model.Session) error {
	return r.db.Save(session).Error
}

func (r *sessionRepository) Delete(id uint) error {
	return r.db.Delete(&model.Session{}, id).Error
}

// CleanupStuckSessions 清理卡住的 running 会话
// 进程崩溃后遗留的状态靠启动时兜底
func (r *sessionRepository) CleanupStuckSessions(timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout)
	result := r.db.Model(&model.Session{}).
		Where("status = ? AND started_at < ?", "running", cutoff).
		Updates(map[string]interface{}{
			"status":    "failed",
			"error_msg": fmt.Sprintf("会话超时（超过 %v），已自动标记为失败", timeout),
		})
	return result.RowsAffected, result.Error
}
