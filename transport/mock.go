package transport

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockTransport is a testify-based mock implementation of Transport for tests.
type MockTransport struct {
	mock.Mock
}

var _ Transport = (*MockTransport)(nil)

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (m *MockTransport) Connect(ctx context.Context, adjustCommParams bool) error {
	args := m.Called(ctx, adjustCommParams)
	return args.Error(0)
}

func (m *MockTransport) Write(ctx context.Context, frame string) error {
	args := m.Called(ctx, frame)
	return args.Error(0)
}

func (m *MockTransport) ReadUntil(ctx context.Context, delim []byte, timeout time.Duration) (string, error) {
	args := m.Called(ctx, delim, timeout)
	return args.String(0), args.Error(1)
}

func (m *MockTransport) FlushInput(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransport) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockTransport) Info() Info {
	args := m.Called()
	return args.Get(0).(Info)
}
