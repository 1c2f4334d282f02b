package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/weibaohui/llmchats/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db error: %v", err)
	}
	if err := db.AutoMigrate(&model.Session{}, &model.Turn{}, &model.Summary{}); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	return db
}

func TestSessionRepositoryCRUD(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	sess := &model.Session{
		SessionID:    "uuid-1",
		Topic:        "AI的未来",
		Participants: "OpenAI,DeepSeek",
		MaxRounds:    3,
		Status:       "configured",
	}
	if err := repo.Create(sess); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if sess.ID == 0 {
		t.Fatal("ID not assigned")
	}

	got, err := repo.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Topic != "AI的未来" {
		t.Fatalf("unexpected topic: %s", got.Topic)
	}

	byUUID, err := repo.GetBySessionID("uuid-1")
	if err != nil {
		t.Fatalf("GetBySessionID error: %v", err)
	}
	if byUUID.ID != sess.ID {
		t.Fatalf("unexpected id: %d", byUUID.ID)
	}
	if got := byUUID.ParticipantList(); len(got) != 2 || got[0] != "OpenAI" {
		t.Fatalf("unexpected participants: %v", got)
	}

	byUUID.Status = "running"
	if err := repo.Save(byUUID); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, _ = repo.Get(sess.ID)
	if got.Status != "running" {
		t.Fatalf("status not saved: %s", got.Status)
	}

	if err := repo.Delete(sess.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := repo.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSessionRepositoryNotFound(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	if _, err := repo.Get(999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetBySessionID("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepositoryCleanupStuck(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now().Add(-time.Minute)
	sessions := []*model.Session{
		{SessionID: "stuck", Status: "running", StartedAt: &old},
		{SessionID: "fresh", Status: "running", StartedAt: &recent},
		{SessionID: "done", Status: "completed", StartedAt: &old},
	}
	for _, sess := range sessions {
		if err := repo.Create(sess); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	affected, err := repo.CleanupStuckSessions(30 * time.Minute)
	if err != nil {
		t.Fatalf("CleanupStuckSessions error: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 affected, got %d", affected)
	}

	stuck, _ := repo.GetBySessionID("stuck")
	if stuck.Status != "failed" || stuck.ErrorMsg == "" {
		t.Fatalf("stuck session not failed: %+v", stuck)
	}
	fresh, _ := repo.GetBySessionID("fresh")
	if fresh.Status != "running" {
		t.Fatalf("fresh session touched: %s", fresh.Status)
	}
	done, _ := repo.GetBySessionID("done")
	if done.Status != "completed" {
		t.Fatalf("completed session touched: %s", done.Status)
	}
}

func TestTurnRepositoryOrder(t *testing.T) {
	repo := NewTurnRepository(newTestDB(t))

	turns := []model.Turn{
		{SessionRecordID: 1, Round: 0, Participant: "OpenAI", Content: "a"},
		{SessionRecordID: 1, Round: 0, Participant: "DeepSeek", Content: "b"},
	}
	if err := repo.CreateBatch(turns); err != nil {
		t.Fatalf("CreateBatch error: %v", err)
	}
	if err := repo.CreateBatch([]model.Turn{
		{SessionRecordID: 1, Round: 1, Participant: "OpenAI", Content: "c"},
		{SessionRecordID: 1, Round: 1, Participant: "DeepSeek", Content: "d"},
	}); err != nil {
		t.Fatalf("CreateBatch error: %v", err)
	}
	// 其他会话的数据不掺进来
	if err := repo.CreateBatch([]model.Turn{{SessionRecordID: 2, Round: 0, Participant: "月之暗面"}}); err != nil {
		t.Fatalf("CreateBatch error: %v", err)
	}
	// 空批次是 no-op
	if err := repo.CreateBatch(nil); err != nil {
		t.Fatalf("CreateBatch(nil) error: %v", err)
	}

	got, err := repo.GetBySession(1)
	if err != nil {
		t.Fatalf("GetBySession error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(got))
	}
	wantOrder := []string{"a", "b", "c", "d"}
	for i, turn := range got {
		if turn.Content != wantOrder[i] {
			t.Fatalf("turn %d out of order: %s", i, turn.Content)
		}
	}

	if err := repo.DeleteBySession(1); err != nil {
		t.Fatalf("DeleteBySession error: %v", err)
	}
	got, _ = repo.GetBySession(1)
	if len(got) != 0 {
		t.Fatalf("turns not deleted: %d", len(got))
	}
	other, _ := repo.GetBySession(2)
	if len(other) != 1 {
		t.Fatal("other session affected by delete")
	}
}

func TestSummaryRepository(t *testing.T) {
	repo := NewSummaryRepository(newTestDB(t))

	first := &model.Summary{SessionRecordID: 1, Style: "analytical", Provider: "DeepSeek", Content: "第一版"}
	if err := repo.Create(first); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	second := &model.Summary{SessionRecordID: 1, Style: "report", Provider: "OpenAI", Content: "第二版"}
	second.CreatedAt = time.Now().Add(time.Minute)
	if err := repo.Create(second); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := repo.GetBySession(1)
	if err != nil {
		t.Fatalf("GetBySession error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got))
	}
	// 新的在前
	if got[0].Content != "第二版" {
		t.Fatalf("unexpected order: %s", got[0].Content)
	}
}
