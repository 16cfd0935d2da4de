// Package protocol defines the request and response shapes exchanged
// between workers and the coordination server, along with their field
// validation rules.
package protocol

import (
	"fmt"
	"regexp"
	"time"
)

var (
	packetNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)
	commitPattern     = regexp.MustCompile(`^[a-f0-9]{7,40}$`)
)

// FieldError reports a single field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CreateSwarmRequest is the body of POST /swarm/create.
type CreateSwarmRequest struct {
	Feature          string `json:"feature"`
	ManifestPath     string `json:"manifest_path"`
	AutoMerge        bool   `json:"auto_merge"`
	NotifyOnComplete bool   `json:"notify_on_complete"`
}

func (r CreateSwarmRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Feature == "" {
		errs = append(errs, FieldError{"feature", "must not be empty"})
	}
	if r.ManifestPath == "" {
		errs = append(errs, FieldError{"manifest_path", "must not be empty"})
	}
	return errs
}

// RegisterWorkerRequest is the body of POST /swarm/{swarm_id}/register.
type RegisterWorkerRequest struct {
	PacketID   int    `json:"packet_id"`
	PacketName string `json:"packet_name"`
	TasksTotal int    `json:"tasks_total"`
	Worktree   string `json:"worktree"`
}

func (r RegisterWorkerRequest) Validate() []FieldError {
	var errs []FieldError
	if r.PacketID <= 0 {
		errs = append(errs, FieldError{"packet_id", "must be a positive integer"})
	}
	if len(r.PacketName) < 1 || len(r.PacketName) > 255 {
		errs = append(errs, FieldError{"packet_name", "must be 1-255 characters"})
	} else if !packetNamePattern.MatchString(r.PacketName) {
		errs = append(errs, FieldError{"packet_name", "must be lowercase alphanumeric with hyphens"})
	}
	if r.TasksTotal <= 0 || r.TasksTotal > 1000 {
		errs = append(errs, FieldError{"tasks_total", "must be between 1 and 1000"})
	}
	if r.Worktree == "" {
		errs = append(errs, FieldError{"worktree", "must not be empty"})
	}
	return errs
}

// ProgressRequest is the body of POST /swarm/{swarm_id}/progress.
type ProgressRequest struct {
	PacketID       int    `json:"packet_id"`
	TaskID         string `json:"task_id"`
	TaskName       string `json:"task_name"`
	Status         string `json:"status"`
	Commit         string `json:"commit,omitempty"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksTotal     int    `json:"tasks_total"`
}

var progressStatuses = map[string]struct{}{
	"started":   {},
	"completed": {},
	"failed":    {},
}

func (r ProgressRequest) Validate() []FieldError {
	var errs []FieldError
	if r.PacketID <= 0 {
		errs = append(errs, FieldError{"packet_id", "must be a positive integer"})
	}
	if len(r.TaskID) < 1 || len(r.TaskID) > 255 {
		errs = append(errs, FieldError{"task_id", "must be 1-255 characters"})
	}
	if len(r.TaskName) < 1 || len(r.TaskName) > 500 {
		errs = append(errs, FieldError{"task_name", "must be 1-500 characters"})
	}
	if _, ok := progressStatuses[r.Status]; !ok {
		errs = append(errs, FieldError{"status", "must be one of started, completed, failed"})
	}
	if r.Commit != "" && !commitPattern.MatchString(r.Commit) {
		errs = append(errs, FieldError{"commit", "must be a 7-40 character hex git SHA"})
	}
	if r.TasksCompleted < 0 {
		errs = append(errs, FieldError{"tasks_completed", "must be non-negative"})
	}
	if r.TasksTotal <= 0 {
		errs = append(errs, FieldError{"tasks_total", "must be positive"})
	}
	if r.TasksCompleted > r.TasksTotal {
		errs = append(errs, FieldError{"tasks_completed", "cannot exceed tasks_total"})
	}
	return errs
}

// CompleteRequest is the body of POST /swarm/{swarm_id}/complete.
type CompleteRequest struct {
	PacketID     int    `json:"packet_id"`
	FinalCommit  string `json:"final_commit"`
	TestsPassed  bool   `json:"tests_passed"`
	ReviewPassed bool   `json:"review_passed"`
}

func (r CompleteRequest) Validate() []FieldError {
	var errs []FieldError
	if r.PacketID <= 0 {
		errs = append(errs, FieldError{"packet_id", "must be a positive integer"})
	}
	if !commitPattern.MatchString(r.FinalCommit) {
		errs = append(errs, FieldError{"final_commit", "must be a 7-40 character hex git SHA"})
	}
	return errs
}

// ErrorRequest is the body of POST /swarm/{swarm_id}/error.
type ErrorRequest struct {
	PacketID    int    `json:"packet_id"`
	TaskID      string `json:"task_id"`
	ErrorType   string `json:"error_type"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

func (r ErrorRequest) Validate() []FieldError {
	var errs []FieldError
	if r.PacketID <= 0 {
		errs = append(errs, FieldError{"packet_id", "must be a positive integer"})
	}
	if len(r.TaskID) < 1 || len(r.TaskID) > 255 {
		errs = append(errs, FieldError{"task_id", "must be 1-255 characters"})
	}
	if len(r.ErrorType) < 1 || len(r.ErrorType) > 100 {
		errs = append(errs, FieldError{"error_type", "must be 1-100 characters"})
	}
	if len(r.Message) < 1 || len(r.Message) > 5000 {
		errs = append(errs, FieldError{"message", "must be 1-5000 characters"})
	}
	return errs
}

// SwarmCreateResponse is the response to POST /swarm/create.
type SwarmCreateResponse struct {
	SwarmID          string    `json:"swarm_id"`
	Endpoint         string    `json:"endpoint"`
	CreatedAt        time.Time `json:"created_at"`
	AutoMerge        bool      `json:"auto_merge"`
	NotifyOnComplete bool      `json:"notify_on_complete"`
}

// RegisterResponse is the response to POST /swarm/{swarm_id}/register.
type RegisterResponse struct {
	Registered   bool      `json:"registered"`
	PacketID     int       `json:"packet_id"`
	PacketName   string    `json:"packet_name"`
	SwarmID      string    `json:"swarm_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ProgressResponse is the response to POST /swarm/{swarm_id}/progress.
type ProgressResponse struct {
	Acknowledged   bool      `json:"acknowledged"`
	PacketID       int       `json:"packet_id"`
	TaskID         string    `json:"task_id"`
	TasksCompleted int       `json:"tasks_completed"`
	TasksTotal     int       `json:"tasks_total"`
	Timestamp      time.Time `json:"timestamp"`
}

// CompleteResponse is the response to POST /swarm/{swarm_id}/complete.
type CompleteResponse struct {
	Acknowledged     bool      `json:"acknowledged"`
	PacketID         int       `json:"packet_id"`
	FinalCommit      string    `json:"final_commit"`
	CompletedAt      time.Time `json:"completed_at"`
	SwarmComplete    bool      `json:"swarm_complete"`
	RemainingWorkers int       `json:"remaining_workers"`
}

// ErrorResponse is the response to POST /swarm/{swarm_id}/error.
type ErrorResponse struct {
	Acknowledged   bool `json:"acknowledged"`
	PacketID       int  `json:"packet_id"`
	ErrorLogged    bool `json:"error_logged"`
	RetryScheduled bool `json:"retry_scheduled"`
	RetryInSeconds *int `json:"retry_in_seconds"`
}

// WorkerStatus describes a single worker within a SwarmStatus response.
type WorkerStatus struct {
	PacketID       int       `json:"packet_id"`
	PacketName     string    `json:"packet_name"`
	Status         string    `json:"status"`
	TasksCompleted int       `json:"tasks_completed"`
	TasksTotal     int       `json:"tasks_total"`
	LastUpdate     time.Time `json:"last_update"`
}

// SwarmStatus is the response to GET /swarm/{swarm_id}/status.
type SwarmStatus struct {
	SwarmID           string         `json:"swarm_id"`
	Status            string         `json:"status"`
	WorkersRegistered int            `json:"workers_registered"`
	WorkersComplete   int            `json:"workers_complete"`
	WorkersFailed     int            `json:"workers_failed"`
	ReadyForMerge     bool           `json:"ready_for_merge"`
	Workers           []WorkerStatus `json:"workers"`
	CreatedAt         time.Time      `json:"created_at"`
	LastUpdate        time.Time      `json:"last_update"`
}

// HealthResponse is the response to GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ActiveSwarms  int    `json:"active_swarms"`
	TotalWorkers  int    `json:"total_workers"`
	Version       string `json:"version"`
}
