package postgresdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/todoapp/internal/db/storage"
	"github.com/patric-chuzhbe/todoapp/internal/models"
	"github.com/patric-chuzhbe/todoapp/internal/user"
)

const (
	databaseDSN   = "" // host=localhost user=todo password=todo dbname=todo sslmode=disable
	migrationsDir = "../../../migrations"
)

func TestPostgresDB(t *testing.T) {
	if databaseDSN == "" {
		t.Skip("databaseDSN is not set")
	}

	ctx := context.Background()

	db, err := New(ctx, databaseDSN, 10*time.Second, migrationsDir, WithDBPreReset(true))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, db.Close())
	}()

	userID, err := db.CreateUser(ctx, &user.User{Username: "a@gmail.com", PasswordHash: "hash"})
	require.NoError(t, err)

	_, err = db.CreateUser(ctx, &user.User{Username: "a@gmail.com", PasswordHash: "hash"})
	assert.ErrorIs(t, err, storage.ErrUserAlreadyExists)

	taskID, err := db.InsertTask(ctx, &models.Task{Username: "a@gmail.com", Task: "buy milk"})
	require.NoError(t, err)

	err = db.UpdateTaskText(ctx, taskID, "b@gmail.com", "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, db.UpdateTaskText(ctx, taskID, "a@gmail.com", "buy oat milk"))

	tasks, err := db.GetTasksByUsername(ctx, "a@gmail.com")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "buy oat milk", tasks[0].Task)

	require.NoError(t, db.DeleteTask(ctx, taskID, "a@gmail.com"))
	assert.ErrorIs(t, db.DeleteTask(ctx, taskID, "a@gmail.com"), storage.ErrNotFound)

	_, err = db.InsertTask(ctx, &models.Task{Username: "a@gmail.com", Task: "walk the dog"})
	require.NoError(t, err)
	_, err = db.InsertTask(ctx, &models.Task{Username: "b@gmail.com", Task: "no account"})
	require.NoError(t, err)

	removed, err := db.DeleteOrphanTasks(ctx, []string{"a@gmail.com", "b@gmail.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	deleted, err := db.DeleteUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "a@gmail.com", deleted.Username)

	tasks, err = db.GetTasksByUsername(ctx, "a@gmail.com")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
