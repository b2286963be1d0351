// Package storage declares the contract shared by all storage backends
// and the sentinel errors they return.
package storage

import (
	"context"
	"errors"

	"github.com/patric-chuzhbe/todoapp/internal/models"
	"github.com/patric-chuzhbe/todoapp/internal/user"
)

var (
	// ErrNotFound is returned when the addressed user or task does not exist
	// (or, for tasks, is owned by somebody else).
	ErrNotFound = errors.New("record not found")

	// ErrUserAlreadyExists is returned on a username uniqueness conflict.
	ErrUserAlreadyExists = errors.New("user already exists")
)

type Storage interface {
	CreateUser(ctx context.Context, usr *user.User) (string, error)

	GetUserByUsername(ctx context.Context, username string) (*user.User, error)

	GetUsers(ctx context.Context) ([]user.User, error)

	// DeleteUser removes the user together with every task they own.
	DeleteUser(ctx context.Context, userID string) (*user.User, error)

	InsertTask(ctx context.Context, task *models.Task) (string, error)

	GetTasksByUsername(ctx context.Context, username string) (models.Tasks, error)

	UpdateTaskText(ctx context.Context, taskID, username, text string) error

	DeleteTask(ctx context.Context, taskID, username string) error

	// DeleteOrphanTasks removes tasks of the given owners that have no account.
	DeleteOrphanTasks(ctx context.Context, usernames []string) (int64, error)

	Ping(ctx context.Context) error

	Close() error
}
