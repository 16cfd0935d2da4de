package store

import "time"

type Swarm struct {
	SwarmID          string
	Feature          string
	ManifestPath     string
	Status           string
	AutoMerge        bool
	NotifyOnComplete bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

type Worker struct {
	WorkerID       int64
	SwarmID        string
	PacketID       int
	PacketName     string
	Worktree       string
	Status         string
	TasksTotal     int
	TasksCompleted int
	FinalCommit    *string
	TestsPassed    *bool
	ReviewPassed   *bool
	RegisteredAt   time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

type Event struct {
	EventID      int64
	SwarmID      string
	EventType    string
	PacketID     *int
	TaskID       *string
	TaskName     *string
	Commit       *string
	ErrorType    *string
	ErrorMessage *string
	Recoverable  *bool
	EventData    string
	CreatedAt    time.Time
}

// SwarmCounts is the aggregate worker tally behind a single swarm's
// status response.
type SwarmCounts struct {
	WorkersRegistered int
	WorkersComplete   int
	WorkersFailed     int
}

// ServiceCounts is the service-wide tally behind the health check.
type ServiceCounts struct {
	ActiveSwarms int
	TotalWorkers int
}
