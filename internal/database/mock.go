package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRepository) GetProjectOwnerId(ctx context.Context, projectId string) (string, error) {
	args := m.Called(ctx, projectId)
	return args.String(0), args.Error(1)
}
func (m *MockRepository) SubmittedBidExists(ctx context.Context, projectId, subcontractorId string) (bool, error) {
	args := m.Called(ctx, projectId, subcontractorId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) GetMessage(ctx context.Context, messageId string) (Message, error) {
	args := m.Called(ctx, messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) MarkMessageRead(ctx context.Context, messageId string, readAt time.Time) (bool, error) {
	args := m.Called(ctx, messageId, readAt)
	return args.Bool(0), args.Error(1)
}
