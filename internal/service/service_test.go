package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/todoapp/internal/auth"
	"github.com/patric-chuzhbe/todoapp/internal/db/memorystorage"
	"github.com/patric-chuzhbe/todoapp/internal/hasher"
	"github.com/patric-chuzhbe/todoapp/internal/models"
	"github.com/patric-chuzhbe/todoapp/internal/taskspurger"
)

type pricingMock struct {
	mock.Mock
}

func (m *pricingMock) Snapshot(ctx context.Context, currency string) (models.PricingSnapshot, error) {
	args := m.Called(ctx, currency)
	return args.Get(0).(models.PricingSnapshot), args.Error(1)
}

type purgerMock struct {
	mock.Mock
}

func (m *purgerMock) EnqueueOwner(username string) {
	m.Called(username)
}

type fixture struct {
	service *Service
	db      *memorystorage.MemoryStorage
	tokens  *auth.Auth
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()
	db, err := memorystorage.New()
	require.NoError(t, err)

	tokens := auth.New([]byte("test-secret"), time.Hour)

	return &fixture{
		service: New(db, hasher.New(bcrypt.MinCost), tokens, options...),
		db:      db,
		tokens:  tokens,
	}
}

func TestService_Register(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "ok", username: "ann@gmail.com", password: "p"},
		{name: "suffix_is_case_insensitive", username: "Bob@GMAIL.com", password: "p"},
		{name: "empty_username", username: "", password: "p", wantErr: ErrValidation},
		{name: "wrong_domain", username: "ann@yahoo.com", password: "p", wantErr: ErrValidation},
		{name: "only_suffix", username: "@gmail.com", password: "p", wantErr: ErrValidation},
		{name: "empty_password", username: "carl@gmail.com", password: "", wantErr: ErrValidation},
		{name: "longest_password", username: "dave@gmail.com", password: strings.Repeat("p", 72)},
		{name: "too_long_password", username: "eve@gmail.com", password: strings.Repeat("p", 73), wantErr: ErrValidation},
		{name: "too_long_multibyte_password", username: "fay@gmail.com", password: strings.Repeat("ж", 37), wantErr: ErrValidation},
	}

	f := newFixture(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := f.service.Register(context.Background(), tt.username, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				_, lookupErr := f.db.GetUserByUsername(context.Background(), tt.username)
				assert.Error(t, lookupErr)
				return
			}
			require.NoError(t, err)

			username, err := f.tokens.GetUsernameFromToken(token)
			require.NoError(t, err)
			assert.Equal(t, tt.username, username)
		})
	}
}

func TestService_RegisterValidationMessage(t *testing.T) {
	f := newFixture(t, WithUsernameSuffix("@example.org"))

	_, err := f.service.Register(context.Background(), "ann@gmail.com", "p")

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, `Username must end with "@example.org"`, validationErr.Message)
}

func TestService_RegisterLongPasswordMessage(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Register(context.Background(), "ann@gmail.com", strings.Repeat("p", 73))

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "Password cannot exceed 72 bytes", validationErr.Message)
}

func TestService_RegisterTwice(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Register(context.Background(), "ann@gmail.com", "p")
	require.NoError(t, err)

	_, err = f.service.Register(context.Background(), "ann@gmail.com", "other")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestService_Login(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Register(context.Background(), "ann@gmail.com", "secret")
	require.NoError(t, err)

	t.Run("ok", func(t *testing.T) {
		token, err := f.service.Login(context.Background(), "ann@gmail.com", "secret")
		require.NoError(t, err)
		username, err := f.tokens.GetUsernameFromToken(token)
		require.NoError(t, err)
		assert.Equal(t, "ann@gmail.com", username)
	})

	t.Run("wrong_password", func(t *testing.T) {
		_, err := f.service.Login(context.Background(), "ann@gmail.com", "nope")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown_user", func(t *testing.T) {
		_, err := f.service.Login(context.Background(), "bob@gmail.com", "secret")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("password_is_not_stored_in_plain_text", func(t *testing.T) {
		usr, err := f.db.GetUserByUsername(context.Background(), "ann@gmail.com")
		require.NoError(t, err)
		assert.NotEqual(t, "secret", usr.PasswordHash)
	})
}

func TestService_AddTaskValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		text    string
		message string
	}{
		{name: "empty", text: "", message: "Task is required"},
		{name: "too_long", text: strings.Repeat("a", 141), message: "Task cannot exceed 140 characters"},
		{name: "too_long_multibyte", text: strings.Repeat("ж", 141), message: "Task cannot exceed 140 characters"},
		{name: "too_long_astral", text: strings.Repeat("🙂", 141), message: "Task cannot exceed 140 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.service.AddTask(ctx, "ann@gmail.com", tt.text, "")

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.message, validationErr.Message)
		})
	}

	require.NoError(t, f.service.AddTask(ctx, "ann@gmail.com", strings.Repeat("ж", 140), ""))
	require.NoError(t, f.service.AddTask(ctx, "ann@gmail.com", strings.Repeat("🙂", 140), ""), "the limit counts characters, not UTF-16 units")

	tasks, err := f.service.GetTasks(ctx, "ann@gmail.com")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestService_AddTaskWithPricing(t *testing.T) {
	gateway := &pricingMock{}
	f := newFixture(t, WithPricingGateway(gateway))
	ctx := context.Background()

	snapshot := models.PricingSnapshot{ArbitrageRate: "1.03", Currency: "BTC", USD: "64000.50", ZAR: "1210000.00"}
	gateway.On("Snapshot", mock.Anything, "BTC").Return(snapshot, nil).Once()
	gateway.On("Snapshot", mock.Anything, "ETH").Return(models.PricingSnapshot{}, errors.New("timeout")).Once()

	require.NoError(t, f.service.AddTask(ctx, "ann@gmail.com", "buy bitcoin", "BTC"))

	err := f.service.AddTask(ctx, "ann@gmail.com", "buy ether", "ETH")
	assert.ErrorIs(t, err, ErrPricingUnavailable)

	tasks, err := f.service.GetTasks(ctx, "ann@gmail.com")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "buy bitcoin", tasks[0].Task)
	assert.Equal(t, snapshot, tasks[0].PricingSnapshot)

	gateway.AssertExpectations(t)
}

func TestService_GetTasksIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.AddTask(ctx, "ann@gmail.com", "buy milk", ""))
	require.NoError(t, f.service.AddTask(ctx, "bob@gmail.com", "walk the dog", ""))

	annTasks, err := f.service.GetTasks(ctx, "ann@gmail.com")
	require.NoError(t, err)
	require.Len(t, annTasks, 1)
	assert.Equal(t, "buy milk", annTasks[0].Task)
	assert.Equal(t, "ann@gmail.com", annTasks[0].Username)

	nobody, err := f.service.GetTasks(ctx, "carl@gmail.com")
	require.NoError(t, err)
	assert.NotNil(t, nobody)
	assert.Empty(t, nobody)
}

func TestService_EditAndRemoveTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.AddTask(ctx, "ann@gmail.com", "buy milk", ""))
	tasks, err := f.service.GetTasks(ctx, "ann@gmail.com")
	require.NoError(t, err)
	taskID := tasks[0].ID

	t.Run("edit_foreign_task", func(t *testing.T) {
		assert.ErrorIs(t, f.service.EditTask(ctx, "bob@gmail.com", taskID, "hijacked"), ErrTaskNotFound)
	})

	t.Run("edit_missing_task", func(t *testing.T) {
		assert.ErrorIs(t, f.service.EditTask(ctx, "ann@gmail.com", uuid.NewString(), "x"), ErrTaskNotFound)
		assert.ErrorIs(t, f.service.EditTask(ctx, "ann@gmail.com", "not-a-uuid", "x"), ErrTaskNotFound)
	})

	t.Run("edit_revalidates_text", func(t *testing.T) {
		assert.ErrorIs(t, f.service.EditTask(ctx, "ann@gmail.com", taskID, strings.Repeat("a", 141)), ErrValidation)
	})

	t.Run("edit_ok", func(t *testing.T) {
		require.NoError(t, f.service.EditTask(ctx, "ann@gmail.com", taskID, "buy oat milk"))
		tasks, err := f.service.GetTasks(ctx, "ann@gmail.com")
		require.NoError(t, err)
		assert.Equal(t, "buy oat milk", tasks[0].Task)
	})

	t.Run("remove_foreign_task", func(t *testing.T) {
		assert.ErrorIs(t, f.service.RemoveTask(ctx, "bob@gmail.com", taskID), ErrTaskNotFound)
	})

	t.Run("remove_ok", func(t *testing.T) {
		require.NoError(t, f.service.RemoveTask(ctx, "ann@gmail.com", taskID))
		tasks, err := f.service.GetTasks(ctx, "ann@gmail.com")
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("remove_twice", func(t *testing.T) {
		assert.ErrorIs(t, f.service.RemoveTask(ctx, "ann@gmail.com", taskID), ErrTaskNotFound)
	})
}

func TestService_Users(t *testing.T) {
	purger := &purgerMock{}
	f := newFixture(t, WithTasksPurger(purger))
	ctx := context.Background()

	_, err := f.service.Register(ctx, "ann@gmail.com", "p")
	require.NoError(t, err)
	_, err = f.service.Register(ctx, "bob@gmail.com", "p")
	require.NoError(t, err)

	users, err := f.service.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	var annID string
	for _, usr := range users {
		if usr.Username == "ann@gmail.com" {
			annID = usr.ID
		}
	}
	require.NotEmpty(t, annID)

	purger.On("EnqueueOwner", "ann@gmail.com").Once()
	require.NoError(t, f.service.DeleteUser(ctx, annID))

	assert.ErrorIs(t, f.service.DeleteUser(ctx, annID), ErrUserNotFound)
	assert.ErrorIs(t, f.service.DeleteUser(ctx, "not-a-uuid"), ErrUserNotFound)

	users, err = f.service.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	purger.AssertExpectations(t)
}

func TestService_DeleteUserRemovesTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, "ann@gmail.com", "p")
	require.NoError(t, err)
	require.NoError(t, f.service.AddTask(ctx, "ann@gmail.com", "buy milk", ""))

	users, err := f.service.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	require.NoError(t, f.service.DeleteUser(ctx, users[0].ID))

	tasks, err := f.service.GetTasks(ctx, "ann@gmail.com")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestService_ReRegisteredUserKeepsTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := memorystorage.New()
	require.NoError(t, err)

	const tick = 20 * time.Millisecond
	purger := taskspurger.New(db, 10, tick)
	purger.Run(ctx)

	tokens := auth.New([]byte("test-secret"), time.Hour)
	svc := New(db, hasher.New(bcrypt.MinCost), tokens, WithTasksPurger(purger))

	_, err = svc.Register(ctx, "ann@gmail.com", "p")
	require.NoError(t, err)
	require.NoError(t, svc.AddTask(ctx, "ann@gmail.com", "old account task", ""))

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.NoError(t, svc.DeleteUser(ctx, users[0].ID))

	_, err = svc.Register(ctx, "ann@gmail.com", "p2")
	require.NoError(t, err)
	require.NoError(t, svc.AddTask(ctx, "ann@gmail.com", "new account task", ""))

	time.Sleep(10 * tick)
	cancel()
	<-purger.Done()

	tasks, err := svc.GetTasks(context.Background(), "ann@gmail.com")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "new account task", tasks[0].Task)
}

func TestService_StaleTokenTasksArePurged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := memorystorage.New()
	require.NoError(t, err)

	purger := taskspurger.New(db, 10, time.Hour)
	purger.Run(ctx)

	tokens := auth.New([]byte("test-secret"), time.Hour)
	svc := New(db, hasher.New(bcrypt.MinCost), tokens, WithTasksPurger(purger))

	_, err = svc.Register(ctx, "ann@gmail.com", "p")
	require.NoError(t, err)
	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.NoError(t, svc.DeleteUser(ctx, users[0].ID))

	// The account is gone but a previously issued token can still write.
	require.NoError(t, svc.AddTask(ctx, "ann@gmail.com", "written after deletion", ""))

	cancel()
	select {
	case <-purger.Done():
	case <-time.After(time.Second):
		t.Fatal("purger did not stop")
	}

	tasks, err := svc.GetTasks(context.Background(), "ann@gmail.com")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestService_Ping(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.service.Ping(context.Background()))
}
