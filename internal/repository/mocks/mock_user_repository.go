package mocks

import (
	"context"

	"auditstore/internal/database"
	"auditstore/internal/model"
	"auditstore/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64, forceReload bool) (*model.User, error) {
	args := m.Called(ctx, id, forceReload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string, forceReload bool) (*model.User, error) {
	args := m.Called(ctx, email, forceReload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) Save(ctx context.Context, u *model.User) (*model.User, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) SaveTx(ctx context.Context, tx *database.Tx, u *model.User) (*model.User, error) {
	args := m.Called(ctx, tx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) DeleteByID(ctx context.Context, id int64, soft bool) (bool, error) {
	args := m.Called(ctx, id, soft)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context, q repository.Query) ([]*model.User, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.User), args.Error(1)
}
