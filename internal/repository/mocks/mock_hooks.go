package mocks

import (
	"context"

	"auditstore/internal/database"
	"auditstore/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, e model.Model) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, tx *database.Tx, e model.Model) error {
	args := m.Called(ctx, tx, e)
	return args.Error(0)
}
