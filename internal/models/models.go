// Package models holds the request/response payloads and the task record
// shared between the HTTP layer, the services and the storages.
package models

// CredentialsRequest is the body of the register and login endpoints.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// AddTaskRequest is the body of POST /api/addTask. Currency is only
// meaningful when pricing enrichment is enabled.
type AddTaskRequest struct {
	Task     string `json:"task"`
	Currency string `json:"currency,omitempty"`
}

type EditTaskRequest struct {
	Task string `json:"task"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// UserResponse is the public projection of a user. The password hash
// never leaves the server.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// PricingSnapshot is the market data attached to a task at creation time.
// Numbers are kept as strings rendered with two decimals.
type PricingSnapshot struct {
	ArbitrageRate string `json:"arbitrageRate,omitempty"`
	Currency      string `json:"currency,omitempty"`
	USD           string `json:"usd,omitempty"`
	ZAR           string `json:"zar,omitempty"`
}

// Task is a short text item owned by a user.
type Task struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Task     string `json:"task"`
	PricingSnapshot
}

type Tasks []Task

// TasksEnvelope is the response of GET /api/tasks.
type TasksEnvelope struct {
	Tasks Tasks `json:"tasks"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)
