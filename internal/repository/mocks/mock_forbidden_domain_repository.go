package mocks

import (
	"context"

	"auditstore/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockForbiddenDomainRepository struct {
	mock.Mock
}

func (m *MockForbiddenDomainRepository) GetByDomain(ctx context.Context, domain string, forceReload bool) (*model.ForbiddenDomain, error) {
	args := m.Called(ctx, domain, forceReload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ForbiddenDomain), args.Error(1)
}

func (m *MockForbiddenDomainRepository) MassInsert(ctx context.Context, rows []map[string]any) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}
