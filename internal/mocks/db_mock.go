package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/omriShneor/babycare_bot/internal/database"
)

// MockDB is a mock implementation of database operations
type MockDB struct {
	mock.Mock
}

// Users

func (m *MockDB) GetUser(chatID int64) (*database.User, error) {
	args := m.Called(chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.User), args.Error(1)
}

// Deliveries

func (m *MockDB) RecordDelivery(d *database.Delivery) error {
	args := m.Called(d)
	return args.Error(0)
}

func (m *MockDB) ListDeliveries(chatID int64, limit int) ([]database.Delivery, error) {
	args := m.Called(chatID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.Delivery), args.Error(1)
}
