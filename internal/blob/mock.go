package blob

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, roomCode, diskName string, data []byte) error {
	args := m.Called(ctx, roomCode, diskName, data)
	return args.Error(0)
}

func (m *MockBlobStore) Get(ctx context.Context, roomCode, diskName string) ([]byte, error) {
	args := m.Called(ctx, roomCode, diskName)
	if data, ok := args.Get(0).([]byte); ok {
		return data, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, roomCode, diskName string) error {
	args := m.Called(ctx, roomCode, diskName)
	return args.Error(0)
}

func (m *MockBlobStore) DeleteAll(ctx context.Context, roomCode string) error {
	args := m.Called(ctx, roomCode)
	return args.Error(0)
}
