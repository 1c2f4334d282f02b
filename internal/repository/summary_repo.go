package repository

import (
	"gorm.io/gorm"

	"github.com/weibaohui/llmchats/internal/model"
)

type summaryRepository struct {
	db *gorm.DB
}

func NewSummaryRepository(db *gorm.DB) SummaryRepository {
	return &summaryRepository{db: db}
}

func (r *summaryRepository) Create(summary *model.Summary) error {
	return r.db.Create(summary).Error
}

func (r *summaryRepository) GetBySession(sessionRecordID uint) ([]model.Summary, error) {
	var summaries []model.Summary
	err := r.db.Where("session_record_id = ?", sessionRecordID).
		Order("created_at DESC").Find(&summaries).Error
	return summaries, err
}
