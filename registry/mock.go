package registry

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/collection-factory/interfaces"
)

// MockRegistry mocks the interfaces.Registry interface
type MockRegistry struct {
	mock.Mock
}

// Contains mocks the Contains method
func (m *MockRegistry) Contains(ctx context.Context, id interfaces.AccountID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// Insert mocks the Insert method
func (m *MockRegistry) Insert(ctx context.Context, id interfaces.AccountID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Len mocks the Len method
func (m *MockRegistry) Len(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
