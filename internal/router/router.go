// Package router wires the HTTP surface of the to-do service: account
// routes, the token protected task routes and the administrative user
// routes.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/todoapp/internal/auth"
	"github.com/patric-chuzhbe/todoapp/internal/gzippedhttp"
	"github.com/patric-chuzhbe/todoapp/internal/logger"
	"github.com/patric-chuzhbe/todoapp/internal/metrics"
	"github.com/patric-chuzhbe/todoapp/internal/models"
	"github.com/patric-chuzhbe/todoapp/internal/service"
)

const (
	msgUserRegistered  = "User registered successfully."
	msgTaskAdded       = "Task added successfully"
	msgTaskUpdated     = "Task updated successfully"
	msgTaskRemoved     = "Task removed successfully"
	msgUserDeleted     = "User deleted successfully"
	errInternal        = "Internal server error"
	errInvalidJSON     = "Invalid JSON body"
	errInvalidContent  = "Invalid content type. Only JSON is supported."
	errBadCredentials  = "Invalid username or password"
	errUserExists      = "User already exists"
	errTaskNotFound    = "Task not found"
	errUserNotFound    = "User not found"
	errUnauthenticated = "Unauthorized"
)

type todoService interface {
	Register(ctx context.Context, username, password string) (string, error)

	Login(ctx context.Context, username, password string) (string, error)

	ListUsers(ctx context.Context) ([]models.UserResponse, error)

	DeleteUser(ctx context.Context, userID string) error

	AddTask(ctx context.Context, username, text, currency string) error

	GetTasks(ctx context.Context, username string) (models.Tasks, error)

	EditTask(ctx context.Context, username, taskID, text string) error

	RemoveTask(ctx context.Context, username, taskID string) error

	Ping(ctx context.Context) error
}

type authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler
}

type adminGate interface {
	RestrictToTrustedSubnet(h http.Handler) http.Handler
}

type Router struct {
	svc todoService
}

type initOptions struct {
	allowedOrigins []string
}

type Option func(*initOptions)

// WithAllowedOrigins limits the origins browsers may call the API from.
// Everything is allowed by default.
func WithAllowedOrigins(origins ...string) Option {
	return func(options *initOptions) {
		options.allowedOrigins = origins
	}
}

func New(
	svc todoService,
	theAuth authenticator,
	gate adminGate,
	optionsProto ...Option,
) *chi.Mux {
	options := &initOptions{
		allowedOrigins: []string{"*"},
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	myRouter := Router{
		svc: svc,
	}

	router := chi.NewRouter()
	router.Use(
		metrics.Middleware,
		logger.WithLoggingHTTPMiddleware,
		cors.Handler(cors.Options{
			AllowedOrigins: options.allowedOrigins,
			AllowedMethods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodPut,
				http.MethodDelete,
				http.MethodOptions,
			},
			AllowedHeaders: []string{"Accept", "Accept-Encoding", "Authorization", "Content-Encoding", "Content-Type"},
			MaxAge:         300,
		}),
		gzippedhttp.UngzipJSONRequest,
	)

	router.Get(`/ping`, myRouter.GetPing)
	router.Handle(`/metrics`, metrics.Handler())

	router.Route(`/api`, func(api chi.Router) {
		api.Use(gzippedhttp.GzipResponse)

		api.With(requireJSONContentType).Post(`/register`, myRouter.PostApiregister)
		api.With(requireJSONContentType).Post(`/login`, myRouter.PostApilogin)

		api.Group(func(protected chi.Router) {
			protected.Use(theAuth.AuthenticateUser)

			protected.With(requireJSONContentType).Post(`/addTask`, myRouter.PostApiaddtask)
			protected.Get(`/getTasks`, myRouter.GetApigettasks)
			protected.Get(`/tasks`, myRouter.GetApitasks)
			protected.With(requireJSONContentType).Put(`/editTask/{taskId}`, myRouter.PutApiedittask)
			protected.Delete(`/removeTask/{taskId}`, myRouter.DeleteApiremovetask)
		})

		api.Group(func(admin chi.Router) {
			admin.Use(gate.RestrictToTrustedSubnet)

			admin.Get(`/users`, myRouter.GetApiusers)
			admin.Delete(`/users/{userId}`, myRouter.DeleteApiusers)
		})
	})

	return router
}

func (router *Router) PostApiregister(response http.ResponseWriter, request *http.Request) {
	var credentials models.CredentialsRequest
	if !decodeJSONBody(response, request, &credentials) {
		return
	}

	token, err := router.svc.Register(request.Context(), credentials.Username, credentials.Password)
	if err != nil {
		writeServiceError(response, err, "PostApiregister")
		return
	}

	writeJSON(response, http.StatusOK, models.RegisterResponse{
		Message: msgUserRegistered,
		Token:   token,
	})
}

func (router *Router) PostApilogin(response http.ResponseWriter, request *http.Request) {
	var credentials models.CredentialsRequest
	if !decodeJSONBody(response, request, &credentials) {
		return
	}

	token, err := router.svc.Login(request.Context(), credentials.Username, credentials.Password)
	if err != nil {
		writeServiceError(response, err, "PostApilogin")
		return
	}

	writeJSON(response, http.StatusOK, models.LoginResponse{Token: token})
}

func (router *Router) PostApiaddtask(response http.ResponseWriter, request *http.Request) {
	username, ok := requireUsername(response, request)
	if !ok {
		return
	}

	var payload models.AddTaskRequest
	if !decodeJSONBody(response, request, &payload) {
		return
	}

	err := router.svc.AddTask(request.Context(), username, payload.Task, payload.Currency)
	if err != nil {
		writeServiceError(response, err, "PostApiaddtask")
		return
	}

	writeJSON(response, http.StatusOK, models.MessageResponse{Message: msgTaskAdded})
}

func (router *Router) GetApigettasks(response http.ResponseWriter, request *http.Request) {
	tasks, ok := router.loadTasks(response, request, "GetApigettasks")
	if !ok {
		return
	}

	writeJSON(response, http.StatusOK, tasks)
}

// GetApitasks returns the same list as GetApigettasks wrapped in an object.
func (router *Router) GetApitasks(response http.ResponseWriter, request *http.Request) {
	tasks, ok := router.loadTasks(response, request, "GetApitasks")
	if !ok {
		return
	}

	writeJSON(response, http.StatusOK, models.TasksEnvelope{Tasks: tasks})
}

func (router *Router) PutApiedittask(response http.ResponseWriter, request *http.Request) {
	username, ok := requireUsername(response, request)
	if !ok {
		return
	}

	var payload models.EditTaskRequest
	if !decodeJSONBody(response, request, &payload) {
		return
	}

	err := router.svc.EditTask(request.Context(), username, chi.URLParam(request, "taskId"), payload.Task)
	if err != nil {
		writeServiceError(response, err, "PutApiedittask")
		return
	}

	writeJSON(response, http.StatusOK, models.MessageResponse{Message: msgTaskUpdated})
}

func (router *Router) DeleteApiremovetask(response http.ResponseWriter, request *http.Request) {
	username, ok := requireUsername(response, request)
	if !ok {
		return
	}

	err := router.svc.RemoveTask(request.Context(), username, chi.URLParam(request, "taskId"))
	if err != nil {
		writeServiceError(response, err, "DeleteApiremovetask")
		return
	}

	writeJSON(response, http.StatusOK, models.MessageResponse{Message: msgTaskRemoved})
}

func (router *Router) GetApiusers(response http.ResponseWriter, request *http.Request) {
	users, err := router.svc.ListUsers(request.Context())
	if err != nil {
		writeServiceError(response, err, "GetApiusers")
		return
	}

	writeJSON(response, http.StatusOK, users)
}

func (router *Router) DeleteApiusers(response http.ResponseWriter, request *http.Request) {
	err := router.svc.DeleteUser(request.Context(), chi.URLParam(request, "userId"))
	if err != nil {
		writeServiceError(response, err, "DeleteApiusers")
		return
	}

	writeJSON(response, http.StatusOK, models.MessageResponse{Message: msgUserDeleted})
}

func (router *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := router.svc.Ping(request.Context()); err != nil {
		logger.Log.Errorln("Storage ping failed", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

func (router *Router) loadTasks(response http.ResponseWriter, request *http.Request, handlerName string) (models.Tasks, bool) {
	username, ok := requireUsername(response, request)
	if !ok {
		return nil, false
	}

	tasks, err := router.svc.GetTasks(request.Context(), username)
	if err != nil {
		writeServiceError(response, err, handlerName)
		return nil, false
	}

	return tasks, true
}

func requireUsername(response http.ResponseWriter, request *http.Request) (string, bool) {
	username, ok := auth.UsernameFromContext(request.Context())
	if !ok {
		writeError(response, http.StatusUnauthorized, errUnauthenticated)
		return "", false
	}

	return username, true
}

func requireJSONContentType(h http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		mediaType, _, err := mime.ParseMediaType(request.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			writeError(response, http.StatusBadRequest, errInvalidContent)
			return
		}

		h.ServeHTTP(response, request)
	})
}

func decodeJSONBody(response http.ResponseWriter, request *http.Request, target interface{}) bool {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		logger.Log.Debugln("Unable to decode the request body", zap.Error(err))
		writeError(response, http.StatusBadRequest, errInvalidJSON)
		return false
	}

	return true
}

func writeServiceError(response http.ResponseWriter, err error, handlerName string) {
	var validationErr *service.ValidationError

	switch {
	case errors.As(err, &validationErr):
		writeError(response, http.StatusBadRequest, validationErr.Message)
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(response, http.StatusUnauthorized, errBadCredentials)
	case errors.Is(err, service.ErrUserAlreadyExists):
		writeError(response, http.StatusConflict, errUserExists)
	case errors.Is(err, service.ErrTaskNotFound):
		writeError(response, http.StatusNotFound, errTaskNotFound)
	case errors.Is(err, service.ErrUserNotFound):
		writeError(response, http.StatusNotFound, errUserNotFound)
	default:
		logger.Log.Errorln("Error in router."+handlerName+"()", zap.Error(err))
		writeError(response, http.StatusInternalServerError, errInternal)
		return
	}

	logger.Log.Debugln("Request rejected in router."+handlerName+"()", zap.Error(err))
}

func writeError(response http.ResponseWriter, status int, message string) {
	writeJSON(response, status, models.ErrorResponse{Error: message})
}

func writeJSON(response http.ResponseWriter, status int, payload interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)

	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("Error while encoding the response", zap.Error(err))
	}
}
