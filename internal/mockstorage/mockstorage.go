// Package mockstorage provides a testify-based mock of the storage
// interface. It is used for unit testing HTTP handlers and services by
// simulating storage behaviour, failures in particular.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/todoapp/internal/db/storage"
	"github.com/patric-chuzhbe/todoapp/internal/models"
	"github.com/patric-chuzhbe/todoapp/internal/user"
)

var _ storage.Storage = (*StorageMock)(nil)

// StorageMock is a testify mock implementing storage.Storage.
type StorageMock struct {
	mock.Mock

	// OnGetTasksByUsername, if set, replaces testify's generic handler for
	// GetTasksByUsername.
	OnGetTasksByUsername func(ctx context.Context, username string) (models.Tasks, error)
}

func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User) (string, error) {
	args := m.Called(ctx, usr)
	return args.String(0), args.Error(1)
}

func (m *StorageMock) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	args := m.Called(ctx, username)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) GetUsers(ctx context.Context) ([]user.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]user.User)
	return users, args.Error(1)
}

func (m *StorageMock) DeleteUser(ctx context.Context, userID string) (*user.User, error) {
	args := m.Called(ctx, userID)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) InsertTask(ctx context.Context, task *models.Task) (string, error) {
	args := m.Called(ctx, task)
	return args.String(0), args.Error(1)
}

// GetTasksByUsername delegates to OnGetTasksByUsername when it is set.
func (m *StorageMock) GetTasksByUsername(ctx context.Context, username string) (models.Tasks, error) {
	if m.OnGetTasksByUsername != nil {
		return m.OnGetTasksByUsername(ctx, username)
	}
	args := m.Called(ctx, username)
	tasks, _ := args.Get(0).(models.Tasks)
	return tasks, args.Error(1)
}

func (m *StorageMock) UpdateTaskText(ctx context.Context, taskID, username, text string) error {
	args := m.Called(ctx, taskID, username, text)
	return args.Error(0)
}

func (m *StorageMock) DeleteTask(ctx context.Context, taskID, username string) error {
	args := m.Called(ctx, taskID, username)
	return args.Error(0)
}

func (m *StorageMock) DeleteOrphanTasks(ctx context.Context, usernames []string) (int64, error) {
	args := m.Called(ctx, usernames)
	purged, _ := args.Get(0).(int64)
	return purged, args.Error(1)
}
