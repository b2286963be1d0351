package taskspurger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/todoapp/internal/db/memorystorage"
	"github.com/patric-chuzhbe/todoapp/internal/models"
	"github.com/patric-chuzhbe/todoapp/internal/user"
)

type deleterMock struct {
	mock.Mock
}

func (m *deleterMock) DeleteOrphanTasks(ctx context.Context, usernames []string) (int64, error) {
	args := m.Called(ctx, usernames)
	return args.Get(0).(int64), args.Error(1)
}

func TestTasksPurger_PurgesOnTick(t *testing.T) {
	ctx := context.Background()
	db, err := memorystorage.New()
	require.NoError(t, err)

	for _, owner := range []string{"ann@gmail.com", "ann@gmail.com", "bob@gmail.com"} {
		_, err := db.InsertTask(ctx, &models.Task{Username: owner, Task: "water plants"})
		require.NoError(t, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	purger := New(db, 10, 10*time.Millisecond)
	purger.Run(runCtx)
	purger.EnqueueOwner("ann@gmail.com")
	purger.EnqueueOwner("ann@gmail.com")

	assert.Eventually(t, func() bool {
		tasks, err := db.GetTasksByUsername(ctx, "ann@gmail.com")
		return err == nil && len(tasks) == 0
	}, time.Second, 10*time.Millisecond)

	tasks, err := db.GetTasksByUsername(ctx, "bob@gmail.com")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestTasksPurger_KeepsTasksOfRegisteredOwners(t *testing.T) {
	ctx := context.Background()
	db, err := memorystorage.New()
	require.NoError(t, err)

	_, err = db.CreateUser(ctx, &user.User{Username: "ann@gmail.com", PasswordHash: "hash"})
	require.NoError(t, err)
	_, err = db.InsertTask(ctx, &models.Task{Username: "ann@gmail.com", Task: "water plants"})
	require.NoError(t, err)
	_, err = db.InsertTask(ctx, &models.Task{Username: "bob@gmail.com", Task: "left behind"})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	purger := New(db, 10, 10*time.Millisecond)
	purger.Run(runCtx)
	purger.EnqueueOwner("ann@gmail.com")
	purger.EnqueueOwner("bob@gmail.com")

	assert.Eventually(t, func() bool {
		tasks, err := db.GetTasksByUsername(ctx, "bob@gmail.com")
		return err == nil && len(tasks) == 0
	}, time.Second, 10*time.Millisecond)

	tasks, err := db.GetTasksByUsername(ctx, "ann@gmail.com")
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "an owner with an account should keep the tasks")
}

func TestTasksPurger_FlushesOnShutdown(t *testing.T) {
	deleter := &deleterMock{}
	deleter.On("DeleteOrphanTasks", mock.Anything, []string{"ann@gmail.com", "bob@gmail.com"}).
		Return(int64(3), nil).
		Once()

	runCtx, cancel := context.WithCancel(context.Background())

	purger := New(deleter, 10, time.Hour)
	purger.EnqueueOwner("ann@gmail.com")
	purger.EnqueueOwner("bob@gmail.com")
	purger.EnqueueOwner("ann@gmail.com")
	purger.Run(runCtx)
	cancel()

	select {
	case <-purger.Done():
	case <-time.After(time.Second):
		t.Fatal("purger did not stop")
	}

	deleter.AssertExpectations(t)
}

func TestTasksPurger_ReportsErrors(t *testing.T) {
	failure := errors.New("database is gone")

	deleter := &deleterMock{}
	deleter.On("DeleteOrphanTasks", mock.Anything, mock.Anything).Return(int64(0), failure)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reported := make(chan error, 10)
	purger := New(deleter, 10, 10*time.Millisecond)
	purger.ListenErrors(func(err error) {
		reported <- err
	})
	purger.Run(runCtx)
	purger.EnqueueOwner("ann@gmail.com")

	select {
	case err := <-reported:
		assert.ErrorIs(t, err, failure)
	case <-time.After(time.Second):
		t.Fatal("error was not reported")
	}
}
