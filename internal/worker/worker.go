package worker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Worker is the helper a task packet uses to talk to a swarm: register
// on startup, report progress per task, and report completion or
// error. Every coordinator call is preceded by a checkpoint write, so
// a coordinator outage never loses a worker's local progress.
type Worker struct {
	Client     CoordinatorClient
	SwarmID    string
	PacketID   int
	PacketName string
	Worktree   string
	TasksTotal int

	tasksCompleted int
}

func New(client CoordinatorClient, swarmID string, packetID int, packetName, worktree string, tasksTotal int) *Worker {
	return &Worker{
		Client:     client,
		SwarmID:    swarmID,
		PacketID:   packetID,
		PacketName: packetName,
		Worktree:   worktree,
		TasksTotal: tasksTotal,
	}
}

func (w *Worker) checkpointPath() string {
	return checkpointPath(w.Worktree, w.PacketID, w.PacketName)
}

func (w *Worker) baseCheckpoint(event string) Checkpoint {
	return Checkpoint{
		Event:          event,
		Timestamp:      nowRFC3339(),
		PacketID:       w.PacketID,
		PacketName:     w.PacketName,
		TasksCompleted: w.tasksCompleted,
		TasksTotal:     w.TasksTotal,
	}
}

// Register checkpoints then registers the worker with the swarm. A
// checkpoint write failure aborts before the coordinator call, so the
// checkpoint on disk is never stale relative to the server's view.
func (w *Worker) Register(ctx context.Context) (json.RawMessage, error) {
	if err := writeCheckpoint(w.checkpointPath(), w.baseCheckpoint("registered")); err != nil {
		return nil, fmt.Errorf("write checkpoint: %w", err)
	}

	return w.Client.RegisterWorker(ctx, w.SwarmID, RegisterWorkerPayload{
		PacketID:   w.PacketID,
		PacketName: w.PacketName,
		TasksTotal: w.TasksTotal,
		Worktree:   w.Worktree,
	})
}

// ReportProgress increments the local tasks-completed counter (for
// status "completed") before checkpointing and reporting.
func (w *Worker) ReportProgress(ctx context.Context, taskID, taskName, status, commit string) (json.RawMessage, error) {
	if status == "completed" {
		w.tasksCompleted++
	}

	cp := w.baseCheckpoint("progress")
	cp.TaskID = taskID
	cp.TaskName = taskName
	cp.Status = status
	cp.Commit = commit
	if err := writeCheckpoint(w.checkpointPath(), cp); err != nil {
		return nil, fmt.Errorf("write checkpoint: %w", err)
	}

	return w.Client.ReportProgress(ctx, w.SwarmID, ProgressPayload{
		PacketID:       w.PacketID,
		TaskID:         taskID,
		TaskName:       taskName,
		Status:         status,
		TasksCompleted: w.tasksCompleted,
		TasksTotal:     w.TasksTotal,
		Commit:         commit,
	})
}

// ReportComplete checkpoints then reports the worker as complete.
func (w *Worker) ReportComplete(ctx context.Context, finalCommit string, testsPassed, reviewPassed bool) (json.RawMessage, error) {
	cp := w.baseCheckpoint("complete")
	cp.FinalCommit = finalCommit
	cp.TestsPassed = &testsPassed
	cp.ReviewPassed = &reviewPassed
	if err := writeCheckpoint(w.checkpointPath(), cp); err != nil {
		return nil, fmt.Errorf("write checkpoint: %w", err)
	}

	return w.Client.ReportComplete(ctx, w.SwarmID, CompletePayload{
		PacketID:     w.PacketID,
		FinalCommit:  finalCommit,
		TestsPassed:  testsPassed,
		ReviewPassed: reviewPassed,
	})
}

// ReportError checkpoints then reports a task error.
func (w *Worker) ReportError(ctx context.Context, taskID, errorType, message string, recoverable bool) (json.RawMessage, error) {
	cp := w.baseCheckpoint("error")
	cp.TaskID = taskID
	cp.ErrorType = errorType
	cp.Message = message
	cp.Recoverable = &recoverable
	if err := writeCheckpoint(w.checkpointPath(), cp); err != nil {
		return nil, fmt.Errorf("write checkpoint: %w", err)
	}

	return w.Client.ReportError(ctx, w.SwarmID, ErrorPayload{
		PacketID:    w.PacketID,
		TaskID:      taskID,
		ErrorType:   errorType,
		Message:     message,
		Recoverable: recoverable,
	})
}
