package mocks

import (
	"context"

	"auditstore/internal/database"
	"auditstore/internal/model"
	"auditstore/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Save(ctx context.Context, h *model.History) (*model.History, error) {
	args := m.Called(ctx, h)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.History), args.Error(1)
}

func (m *MockHistoryRepository) SaveTx(ctx context.Context, tx *database.Tx, h *model.History) (*model.History, error) {
	args := m.Called(ctx, tx, h)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.History), args.Error(1)
}

func (m *MockHistoryRepository) GetLastByEntity(ctx context.Context, e model.Model, forceReload bool) (*model.History, error) {
	args := m.Called(ctx, e, forceReload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.History), args.Error(1)
}

func (m *MockHistoryRepository) ListByEntity(ctx context.Context, kind model.Kind, id int64, page repository.PageQuery) ([]*model.History, error) {
	args := m.Called(ctx, kind, id, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.History), args.Error(1)
}
