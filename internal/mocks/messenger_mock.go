package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/omriShneor/babycare_bot/internal/source"
)

// MockMessenger is a mock implementation of source.Messenger
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) Send(ctx context.Context, chatID int64, msg source.Outbound) error {
	args := m.Called(ctx, chatID, msg)
	return args.Error(0)
}

func (m *MockMessenger) Edit(ctx context.Context, chatID int64, messageID int, msg source.Outbound) error {
	args := m.Called(ctx, chatID, messageID, msg)
	return args.Error(0)
}
