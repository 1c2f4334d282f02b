package repository

import (
	"gorm.io/gorm"

	"github.com/weibaohui/llmchats/internal/model"
)

type turnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) TurnRepository {
	return &turnRepository{db: db}
}

func (r *turnRepository) CreateBatch(turns []model.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	return r.db.Create(&turns).Error
}

// GetBySession 按轮次和落库顺序返回会话的全部发言
func (r *turnRepository) GetBySession(sessionRecordID uint) ([]model.Turn, error) {
	var turns []model.Turn
	err := r.db.Where("session_record_id = ?", sessionRecordID).
		Order("round, id").Find(&turns).Error
	return turns, err
}

func (r *turnRepository) DeleteBySession(sessionRecordID uint) error {
	return r.db.Where("session_record_id = ?", sessionRecordID).Delete(&model.Turn{}).Error
}
