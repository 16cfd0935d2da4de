package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is the on-disk marker a worker writes before every
// coordinator call, so progress can be recovered even if the
// coordinator is unreachable.
type Checkpoint struct {
	Event          string `json:"event"`
	Timestamp      string `json:"timestamp"`
	PacketID       int    `json:"packet_id"`
	PacketName     string `json:"packet_name"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksTotal     int    `json:"tasks_total"`

	TaskID       string `json:"task_id,omitempty"`
	TaskName     string `json:"task_name,omitempty"`
	Status       string `json:"status,omitempty"`
	Commit       string `json:"commit,omitempty"`
	FinalCommit  string `json:"final_commit,omitempty"`
	TestsPassed  *bool  `json:"tests_passed,omitempty"`
	ReviewPassed *bool  `json:"review_passed,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	Message      string `json:"message,omitempty"`
	Recoverable  *bool  `json:"recoverable,omitempty"`
}

// checkpointPath is <worktree>/.spellbook/checkpoints/packet-<id>-<name>.json.
func checkpointPath(worktree string, packetID int, packetName string) string {
	return filepath.Join(worktree, ".spellbook", "checkpoints", fmt.Sprintf("packet-%d-%s.json", packetID, packetName))
}

// writeCheckpoint persists cp atomically: write to a temp file in the
// same directory, then rename over the destination. A half-written
// checkpoint must never be observable by a process recovering state.
func writeCheckpoint(path string, cp Checkpoint) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}
	return nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
