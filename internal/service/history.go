package service

import (
	"context"
	"fmt"

	"auditstore/internal/database"
	"auditstore/internal/model"
	"auditstore/internal/record"
	"auditstore/internal/repository"
)

// HistoryService writes an audit row for every save that changes a
// historifiable entity. It is plugged into repositories as their
// repository.Recorder.
type HistoryService interface {
	// Record runs inside the entity's write transaction. For a freshly
	// inserted entity every field is recorded; otherwise only fields whose
	// value differs from the loaded snapshot. Fields that were removed are
	// not recorded. Nothing is written when nothing changed.
	Record(ctx context.Context, tx *database.Tx, m model.Model) error
}

type historyService struct {
	repo repository.HistoryRepository
}

func NewHistoryService(repo repository.HistoryRepository) HistoryService {
	return &historyService{repo: repo}
}

var _ repository.Recorder = (*historyService)(nil)

func (s *historyService) Record(ctx context.Context, tx *database.Tx, m model.Model) error {
	if !m.Historifiable() {
		return nil
	}

	var changed map[string]any
	if m.IsNew() {
		changed = m.ToMap()
	} else {
		changed = record.Diff(m.ToMap(), m.OrigData())
	}
	if len(changed) == 0 {
		return nil
	}

	id, ok := m.ID()
	if !ok {
		return fmt.Errorf("record history: %s has no id", m.Kind())
	}

	h := model.NewHistory(nil)
	h.SetEntityKind(m.Kind())
	h.SetEntityID(id)
	if err := h.SetChangedData(changed); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	if _, err := s.repo.SaveTx(ctx, tx, h); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}
