package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/patric-chuzhbe/todoapp/internal/db/storage"
	"github.com/patric-chuzhbe/todoapp/internal/logger"
	"github.com/patric-chuzhbe/todoapp/internal/models"
	"github.com/patric-chuzhbe/todoapp/internal/user"
)

const (
	maxTaskLength         = 140
	maxPasswordBytes      = 72 // bcrypt refuses longer input
	defaultUsernameSuffix = "@gmail.com"
)

type usersKeeper interface {
	CreateUser(ctx context.Context, usr *user.User) (string, error)

	GetUserByUsername(ctx context.Context, username string) (*user.User, error)

	GetUsers(ctx context.Context) ([]user.User, error)

	DeleteUser(ctx context.Context, userID string) (*user.User, error)
}

type tasksKeeper interface {
	InsertTask(ctx context.Context, task *models.Task) (string, error)

	GetTasksByUsername(ctx context.Context, username string) (models.Tasks, error)

	UpdateTaskText(ctx context.Context, taskID, username, text string) error

	DeleteTask(ctx context.Context, taskID, username string) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storageKeeper interface {
	usersKeeper
	tasksKeeper
	pinger
}

type passwordHasher interface {
	Hash(password string) (string, error)

	Compare(hash string, password string) error
}

type tokenIssuer interface {
	IssueToken(username string) (string, error)
}

type pricingGateway interface {
	Snapshot(ctx context.Context, currency string) (models.PricingSnapshot, error)
}

type tasksPurger interface {
	EnqueueOwner(username string)
}

type Service struct {
	db             storageKeeper
	hasher         passwordHasher
	tokens         tokenIssuer
	pricing        pricingGateway
	purger         tasksPurger
	usernameSuffix string
	validate       *validator.Validate
}

type Option func(*Service)

// WithPricingGateway enables market data enrichment of new tasks.
func WithPricingGateway(gateway pricingGateway) Option {
	return func(s *Service) {
		s.pricing = gateway
	}
}

// WithTasksPurger makes DeleteUser schedule a sweep of tasks written under
// the deleted username by tokens that outlived the account.
func WithTasksPurger(purger tasksPurger) Option {
	return func(s *Service) {
		s.purger = purger
	}
}

func WithUsernameSuffix(suffix string) Option {
	return func(s *Service) {
		s.usernameSuffix = suffix
	}
}

func New(
	db storageKeeper,
	hasher passwordHasher,
	tokens tokenIssuer,
	options ...Option,
) *Service {
	s := &Service{
		db:             db,
		hasher:         hasher,
		tokens:         tokens,
		usernameSuffix: defaultUsernameSuffix,
		validate:       validator.New(),
	}
	for _, option := range options {
		option(s)
	}

	return s
}

// Register creates a user and returns a fresh access token for it.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	if err := s.validateUsername(username); err != nil {
		return "", err
	}
	if password == "" {
		return "", newValidationError("Password is required")
	}
	if len(password) > maxPasswordBytes {
		return "", newValidationError(fmt.Sprintf("Password cannot exceed %d bytes", maxPasswordBytes))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("in internal/service/service.go/Register(): error while hashing the password: %w", err)
	}

	_, err = s.db.CreateUser(ctx, &user.User{
		Username:     username,
		PasswordHash: hash,
	})
	if errors.Is(err, storage.ErrUserAlreadyExists) {
		return "", fmt.Errorf("%w: %s", ErrUserAlreadyExists, username)
	}
	if err != nil {
		return "", fmt.Errorf("in internal/service/service.go/Register(): error while `s.db.CreateUser()` calling: %w", err)
	}

	logger.Log.Infow("user registered", "username", username)

	return s.tokens.IssueToken(username)
}

// Login checks the credentials and returns a fresh access token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	usr, err := s.db.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("in internal/service/service.go/Login(): error while `s.db.GetUserByUsername()` calling: %w", err)
	}

	if err := s.hasher.Compare(usr.PasswordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.tokens.IssueToken(username)
}

func (s *Service) ListUsers(ctx context.Context) ([]models.UserResponse, error) {
	users, err := s.db.GetUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/ListUsers(): error while `s.db.GetUsers()` calling: %w", err)
	}

	result := make([]models.UserResponse, 0, len(users))
	for _, usr := range users {
		result = append(result, models.UserResponse{
			ID:       usr.ID,
			Username: usr.Username,
		})
	}

	return result, nil
}

// DeleteUser removes the user together with their tasks.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrUserNotFound
	}

	deleted, err := s.db.DeleteUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("in internal/service/service.go/DeleteUser(): error while `s.db.DeleteUser()` calling: %w", err)
	}

	if s.purger != nil {
		s.purger.EnqueueOwner(deleted.Username)
	}

	return nil
}

// AddTask stores a new task owned by username. With a pricing gateway
// configured the current market figures are attached first; if they cannot
// be fetched the task is not saved.
func (s *Service) AddTask(ctx context.Context, username, text, currency string) error {
	if err := s.validateTaskText(text); err != nil {
		return err
	}

	task := &models.Task{
		Username: username,
		Task:     text,
	}

	if s.pricing != nil {
		snapshot, err := s.pricing.Snapshot(ctx, currency)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
		}
		task.PricingSnapshot = snapshot
	}

	if _, err := s.db.InsertTask(ctx, task); err != nil {
		return fmt.Errorf("in internal/service/service.go/AddTask(): error while `s.db.InsertTask()` calling: %w", err)
	}

	return nil
}

func (s *Service) GetTasks(ctx context.Context, username string) (models.Tasks, error) {
	tasks, err := s.db.GetTasksByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/GetTasks(): error while `s.db.GetTasksByUsername()` calling: %w", err)
	}
	if tasks == nil {
		tasks = models.Tasks{}
	}

	return tasks, nil
}

// EditTask replaces the text of a task owned by username.
func (s *Service) EditTask(ctx context.Context, username, taskID, text string) error {
	if _, err := uuid.Parse(taskID); err != nil {
		return ErrTaskNotFound
	}
	if err := s.validateTaskText(text); err != nil {
		return err
	}

	err := s.db.UpdateTaskText(ctx, taskID, username, text)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("in internal/service/service.go/EditTask(): error while `s.db.UpdateTaskText()` calling: %w", err)
	}

	return nil
}

// RemoveTask deletes a task owned by username.
func (s *Service) RemoveTask(ctx context.Context, username, taskID string) error {
	if _, err := uuid.Parse(taskID); err != nil {
		return ErrTaskNotFound
	}

	err := s.db.DeleteTask(ctx, taskID, username)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("in internal/service/service.go/RemoveTask(): error while `s.db.DeleteTask()` calling: %w", err)
	}

	return nil
}

// Ping checks the health of the storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Service) validateUsername(username string) error {
	message := fmt.Sprintf("Username must end with %q", s.usernameSuffix)

	if username == "" {
		return newValidationError(message)
	}
	lowered := strings.ToLower(username)
	suffix := strings.ToLower(s.usernameSuffix)
	if !strings.HasSuffix(lowered, suffix) || len(lowered) == len(suffix) {
		return newValidationError(message)
	}

	return nil
}

func (s *Service) validateTaskText(text string) error {
	err := s.validate.Var(text, fmt.Sprintf("required,max=%d", maxTaskLength))
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 && validationErrors[0].Tag() == "max" {
		return newValidationError(fmt.Sprintf("Task cannot exceed %d characters", maxTaskLength))
	}

	return newValidationError("Task is required")
}
