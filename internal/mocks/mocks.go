// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/bindpad/api/schemas"
	"github.com/xkilldash9x/bindpad/internal/config"
)

// -- Store Mock --

// MockStore mocks the editor.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListBinds(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) AddBind(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockStore) UpdateBind(ctx context.Context, update schemas.BindUpdate) (string, error) {
	args := m.Called(ctx, update)
	return args.String(0), args.Error(1)
}

func (m *MockStore) RemoveBind(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// -- Clipboard Mock --

// MockClipboard mocks the editor.Clipboard interface.
type MockClipboard struct {
	mock.Mock
}

func (m *MockClipboard) WriteText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) Logger() config.LoggerConfig { return m.Called().Get(0).(config.LoggerConfig) }
func (m *MockConfig) Editor() config.EditorConfig { return m.Called().Get(0).(config.EditorConfig) }
func (m *MockConfig) Store() config.StoreConfig   { return m.Called().Get(0).(config.StoreConfig) }
func (m *MockConfig) Shell() config.ShellConfig   { return m.Called().Get(0).(config.ShellConfig) }
func (m *MockConfig) Codes() config.CodesConfig   { return m.Called().Get(0).(config.CodesConfig) }

func (m *MockConfig) SetStoreBackend(backend string) { m.Called(backend) }
func (m *MockConfig) SetShellURL(url string)         { m.Called(url) }
