package model

import (
	"strings"
	"time"
)

// Session 一场多模型讨论
type Session struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	SessionID    string     `json:"session_id" gorm:"size:64;uniqueIndex"` // UUID
	Topic        string     `json:"topic" gorm:"size:1000;not null"`
	ContextText  string     `json:"context_text" gorm:"type:text"` // 文件提取等提供的附加背景
	Participants string     `json:"participants" gorm:"size:500"`  // 逗号分隔的展示名，顺序即发言顺序
	MaxRounds    int        `json:"max_rounds" gorm:"default:3"`
	CurrentRound int        `json:"current_round" gorm:"default:0"`
	Status       string     `json:"status" gorm:"size:50;default:configured"` // configured, running, completed, aborted, failed
	ErrorMsg     string     `json:"error_msg" gorm:"size:1000"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	Turns        []Turn     `json:"turns,omitempty" gorm:"foreignKey:SessionRecordID"`
	Summaries    []Summary  `json:"summaries,omitempty" gorm:"foreignKey:SessionRecordID"`
}

// ParticipantList 拆出参与者展示名列表
func (s *Session) ParticipantList() []string {
	if s.Participants == "" {
		return nil
	}
	parts := strings.Split(s.Participants, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Turn 一条发言记录（成功或失败），写入后不可变
type Turn struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	SessionRecordID uint      `json:"session_record_id" gorm:"index;not null"`
	Round           int       `json:"round" gorm:"not null"` // 0 起始
	Participant     string    `json:"participant" gorm:"size:100;not null"`
	Content         string    `json:"content" gorm:"type:text"`
	Failed          bool      `json:"failed" gorm:"default:false"`
	FailureKind     string    `json:"failure_kind" gorm:"size:50"`
	FailureMsg      string    `json:"failure_msg" gorm:"size:1000"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	LatencyMs       int64     `json:"latency_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// Summary 基于转录生成的总结文章
type Summary struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	SessionRecordID uint      `json:"session_record_id" gorm:"index;not null"`
	Style           string    `json:"style" gorm:"size:50"`
	Provider        string    `json:"provider" gorm:"size:100"` // 生成总结的平台展示名
	Model           string    `json:"model" gorm:"size:100"`
	Content         string    `json:"content" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
}
