// Package store persists swarm coordination state in SQLite: swarms,
// their registered workers, and the append-only event log workers and
// the SSE stream are built from.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
)

const timeLayout = time.RFC3339

// StateManager owns the coordination database. WAL mode lets readers
// run concurrently with the writer; writes themselves are serialized
// through writeMu so MarkComplete's read-your-writes all_complete
// check is never racing another worker's update.
type StateManager struct {
	db      *sql.DB
	writeMu chan struct{}
}

// Open creates (if needed) and opens the SQLite database at dbPath,
// enabling WAL mode and applying the schema.
func Open(dbPath string) (*StateManager, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// journal_mode, busy_timeout, and foreign_keys are per-connection
	// pragmas in SQLite; setting them with a bare db.Exec only reaches
	// whichever single connection happens to run it; db.Exec inside a
	// later transaction is worse, since SQLite treats a pragma issued
	// inside an already-open transaction as a no-op. Driving them
	// through modernc.org/sqlite's `_pragma` DSN parameters instead
	// applies each one on every connection the pool opens, so foreign
	// keys (and therefore the ON DELETE CASCADE in schema.go) are
	// enforced regardless of which pooled connection a query lands on.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)",
		filepath.ToSlash(dbPath))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	sm := &StateManager{db: db, writeMu: make(chan struct{}, 1)}
	sm.writeMu <- struct{}{}
	return sm, nil
}

func (s *StateManager) Close() error {
	return s.db.Close()
}

// withWriteLock serializes writers; readers are unaffected and run
// concurrently under WAL.
func (s *StateManager) withWriteLock(ctx context.Context, fn func(tx *sql.Tx) error) error {
	select {
	case <-s.writeMu:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { s.writeMu <- struct{}{} }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nowString() string {
	return time.Now().UTC().Format(timeLayout)
}

func newSwarmID() string {
	return fmt.Sprintf("swarm-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.NewString()[:6])
}

// CreateSwarm inserts a new swarm in the "created" state and returns
// its generated id.
func (s *StateManager) CreateSwarm(ctx context.Context, feature, manifestPath string, autoMerge, notifyOnComplete bool) (string, error) {
	swarmID := newSwarmID()
	now := nowString()

	err := s.withWriteLock(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO swarms (swarm_id, feature, manifest_path, status, auto_merge, notify_on_complete, created_at, updated_at)
			VALUES (?, ?, ?, 'created', ?, ?, ?, ?)`,
			swarmID, feature, manifestPath, autoMerge, notifyOnComplete, now, now)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create swarm: %w", err)
	}
	return swarmID, nil
}

// GetSwarm returns the swarm row for swarmID, or ErrSwarmNotFound.
func (s *StateManager) GetSwarm(ctx context.Context, swarmID string) (*Swarm, error) {
	return s.getSwarm(ctx, s.db, swarmID)
}

func (s *StateManager) getSwarm(ctx context.Context, q querier, swarmID string) (*Swarm, error) {
	row := q.QueryRowContext(ctx, `
		SELECT swarm_id, feature, manifest_path, status, auto_merge, notify_on_complete, created_at, updated_at, completed_at
		FROM swarms WHERE swarm_id = ?`, swarmID)

	var sw Swarm
	var createdAt, updatedAt string
	var completedAt sql.NullString
	if err := row.Scan(&sw.SwarmID, &sw.Feature, &sw.ManifestPath, &sw.Status, &sw.AutoMerge, &sw.NotifyOnComplete, &createdAt, &updatedAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSwarmNotFound
		}
		return nil, err
	}

	sw.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	sw.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	if completedAt.Valid {
		t, _ := time.Parse(timeLayout, completedAt.String)
		sw.CompletedAt = &t
	}
	return &sw, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RegisterWorker adds a worker to the swarm and flips the swarm to
// "running". Returns ErrWorkerAlreadyRegistered if (swarm_id, packet_id)
// already exists.
func (s *StateManager) RegisterWorker(ctx context.Context, swarmID string, packetID int, packetName, worktree string, tasksTotal int) (int64, error) {
	now := nowString()
	var workerID int64

	err := s.withWriteLock(ctx, func(tx *sql.Tx) error {
		if _, err := s.getSwarm(ctx, tx, swarmID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO workers (swarm_id, packet_id, packet_name, worktree, status, tasks_total, tasks_completed, registered_at, updated_at)
			VALUES (?, ?, ?, ?, 'registered', ?, 0, ?, ?)`,
			swarmID, packetID, packetName, worktree, tasksTotal, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrWorkerAlreadyRegistered
			}
			return err
		}

		workerID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE swarms SET status = 'running', updated_at = ? WHERE swarm_id = ?`, now, swarmID); err != nil {
			return err
		}

		return insertEvent(ctx, tx, swarmID, "worker_registered", &eventFields{PacketID: &packetID, EventData: fmt.Sprintf("%q", packetName)}, now)
	})
	if err != nil {
		return 0, err
	}
	return workerID, nil
}

// UpdateProgress records a worker's task-level progress and appends a
// "progress" event.
func (s *StateManager) UpdateProgress(ctx context.Context, swarmID string, packetID int, taskID, taskName, status string, tasksCompleted, tasksTotal int, commit string) error {
	now := nowString()

	return s.withWriteLock(ctx, func(tx *sql.Tx) error {
		if _, err := s.getSwarm(ctx, tx, swarmID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE workers SET status = 'running', tasks_completed = ?, updated_at = ?
			WHERE swarm_id = ? AND packet_id = ?`,
			tasksCompleted, now, swarmID, packetID); err != nil {
			return err
		}

		fields := &eventFields{
			PacketID: &packetID,
			TaskID:   &taskID,
			TaskName: &taskName,
		}
		if commit != "" {
			fields.Commit = &commit
		}
		fields.EventData = fmt.Sprintf(`{"task_id":%q,"task_name":%q,"status":%q,"tasks_completed":%d,"tasks_total":%d}`,
			taskID, taskName, status, tasksCompleted, tasksTotal)

		return insertEvent(ctx, tx, swarmID, "progress", fields, now)
	})
}

// MarkComplete marks a worker complete and, if every worker in the
// swarm is now complete, flips the swarm to "complete" and emits an
// all_complete event. The all-complete check runs inside the same
// transaction as the worker update, so it always sees this write.
func (s *StateManager) MarkComplete(ctx context.Context, swarmID string, packetID int, finalCommit string, testsPassed, reviewPassed bool) (swarmComplete bool, err error) {
	now := nowString()

	err = s.withWriteLock(ctx, func(tx *sql.Tx) error {
		if _, err := s.getSwarm(ctx, tx, swarmID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE workers SET status = 'complete', final_commit = ?, tests_passed = ?, review_passed = ?, completed_at = ?, updated_at = ?
			WHERE swarm_id = ? AND packet_id = ?`,
			finalCommit, testsPassed, reviewPassed, now, now, swarmID, packetID); err != nil {
			return err
		}

		commitEventData := fmt.Sprintf(`{"final_commit":%q,"tests_passed":%t,"review_passed":%t}`, finalCommit, testsPassed, reviewPassed)
		if err := insertEvent(ctx, tx, swarmID, "worker_complete", &eventFields{PacketID: &packetID, Commit: &finalCommit, EventData: commitEventData}, now); err != nil {
			return err
		}

		counts, err := swarmCounts(ctx, tx, swarmID)
		if err != nil {
			return err
		}

		total := counts.WorkersRegistered
		if total > 0 && counts.WorkersComplete == total {
			swarmComplete = true
			if _, err := tx.ExecContext(ctx, `
				UPDATE swarms SET status = 'complete', completed_at = ?, updated_at = ? WHERE swarm_id = ?`,
				now, now, swarmID); err != nil {
				return err
			}
			if err := insertEvent(ctx, tx, swarmID, "all_complete", &eventFields{}, now); err != nil {
				return err
			}
		}

		return nil
	})
	return swarmComplete, err
}

// RecordError logs a worker-reported error. Non-recoverable errors
// also flip the worker to "failed".
func (s *StateManager) RecordError(ctx context.Context, swarmID string, packetID int, taskID, errorType, message string, recoverable bool) error {
	now := nowString()

	return s.withWriteLock(ctx, func(tx *sql.Tx) error {
		if _, err := s.getSwarm(ctx, tx, swarmID); err != nil {
			return err
		}

		if !recoverable {
			if _, err := tx.ExecContext(ctx, `
				UPDATE workers SET status = 'failed', updated_at = ? WHERE swarm_id = ? AND packet_id = ?`,
				now, swarmID, packetID); err != nil {
				return err
			}
		}

		return insertEvent(ctx, tx, swarmID, "worker_error", &eventFields{
			PacketID:     &packetID,
			TaskID:       &taskID,
			ErrorType:    &errorType,
			ErrorMessage: &message,
			Recoverable:  &recoverable,
		}, now)
	})
}

// GetSwarmCounts computes the aggregate worker tallies used by the
// status endpoint and the complete endpoint's remaining_workers count.
func (s *StateManager) GetSwarmCounts(ctx context.Context, swarmID string) (SwarmCounts, error) {
	return swarmCounts(ctx, s.db, swarmID)
}

func swarmCounts(ctx context.Context, q querier, swarmID string) (SwarmCounts, error) {
	row := q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN status = 'complete' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		FROM workers WHERE swarm_id = ?`, swarmID)

	var total int
	var complete, failed sql.NullInt64
	if err := row.Scan(&total, &complete, &failed); err != nil {
		return SwarmCounts{}, err
	}
	return SwarmCounts{
		WorkersRegistered: total,
		WorkersComplete:   int(complete.Int64),
		WorkersFailed:     int(failed.Int64),
	}, nil
}

// ListWorkers returns every worker registered to a swarm, ordered by
// packet id.
func (s *StateManager) ListWorkers(ctx context.Context, swarmID string) ([]Worker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT worker_id, swarm_id, packet_id, packet_name, worktree, status, tasks_total, tasks_completed,
		       final_commit, tests_passed, review_passed, registered_at, updated_at, completed_at
		FROM workers WHERE swarm_id = ? ORDER BY packet_id ASC`, swarmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []Worker
	for rows.Next() {
		var w Worker
		var registeredAt, updatedAt string
		var completedAt, finalCommit sql.NullString
		var testsPassed, reviewPassed sql.NullBool
		if err := rows.Scan(&w.WorkerID, &w.SwarmID, &w.PacketID, &w.PacketName, &w.Worktree, &w.Status,
			&w.TasksTotal, &w.TasksCompleted, &finalCommit, &testsPassed, &reviewPassed,
			&registeredAt, &updatedAt, &completedAt); err != nil {
			return nil, err
		}

		w.RegisteredAt, _ = time.Parse(timeLayout, registeredAt)
		w.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		if completedAt.Valid {
			t, _ := time.Parse(timeLayout, completedAt.String)
			w.CompletedAt = &t
		}
		if finalCommit.Valid {
			v := finalCommit.String
			w.FinalCommit = &v
		}
		if testsPassed.Valid {
			v := testsPassed.Bool
			w.TestsPassed = &v
		}
		if reviewPassed.Valid {
			v := reviewPassed.Bool
			w.ReviewPassed = &v
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// GetEvents returns events for swarmID with event_id > sinceEventID,
// ordered ascending.
func (s *StateManager) GetEvents(ctx context.Context, swarmID string, sinceEventID int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, swarm_id, event_type, packet_id, task_id, task_name, commit_sha,
		       error_type, error_message, recoverable, event_data, created_at
		FROM events WHERE swarm_id = ? AND event_id > ? ORDER BY event_id ASC`, swarmID, sinceEventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAt string
		var packetID sql.NullInt64
		var taskID, taskName, commit, errorType, errorMessage, eventData sql.NullString
		var recoverable sql.NullBool

		if err := rows.Scan(&e.EventID, &e.SwarmID, &e.EventType, &packetID, &taskID, &taskName, &commit,
			&errorType, &errorMessage, &recoverable, &eventData, &createdAt); err != nil {
			return nil, err
		}

		if packetID.Valid {
			v := int(packetID.Int64)
			e.PacketID = &v
		}
		if taskID.Valid {
			v := taskID.String
			e.TaskID = &v
		}
		if taskName.Valid {
			v := taskName.String
			e.TaskName = &v
		}
		if commit.Valid {
			v := commit.String
			e.Commit = &v
		}
		if errorType.Valid {
			v := errorType.String
			e.ErrorType = &v
		}
		if errorMessage.Valid {
			v := errorMessage.String
			e.ErrorMessage = &v
		}
		if recoverable.Valid {
			v := recoverable.Bool
			e.Recoverable = &v
		}
		e.EventData = eventData.String
		e.CreatedAt, _ = time.Parse(timeLayout, createdAt)

		events = append(events, e)
	}
	return events, rows.Err()
}

// CleanupOldSwarms deletes swarms (and, via cascade, their workers and
// events) created more than retentionDays ago.
func (s *StateManager) CleanupOldSwarms(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour).Format(timeLayout)

	var affected int64
	err := s.withWriteLock(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM swarms WHERE created_at < ?`, cutoff)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// DeleteSwarm cascades a single swarm (and its workers and events) out
// of the database, for operator-driven cleanup outside the age-based
// sweep. Returns the number of swarm rows removed (0 or 1).
func (s *StateManager) DeleteSwarm(ctx context.Context, swarmID string) (int64, error) {
	var affected int64
	err := s.withWriteLock(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM swarms WHERE swarm_id = ?`, swarmID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// GetServiceCounts computes the service-wide aggregate counters
// reported by the health check.
func (s *StateManager) GetServiceCounts(ctx context.Context) (ServiceCounts, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM swarms WHERE status IN ('created', 'running')),
			(SELECT COUNT(*) FROM workers)`)

	var counts ServiceCounts
	if err := row.Scan(&counts.ActiveSwarms, &counts.TotalWorkers); err != nil {
		return ServiceCounts{}, err
	}
	return counts, nil
}

type eventFields struct {
	PacketID     *int
	TaskID       *string
	TaskName     *string
	Commit       *string
	ErrorType    *string
	ErrorMessage *string
	Recoverable  *bool
	EventData    string
}

func insertEvent(ctx context.Context, tx *sql.Tx, swarmID, eventType string, f *eventFields, createdAt string) error {
	var eventData any
	if f.EventData != "" {
		eventData = f.EventData
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events (swarm_id, event_type, packet_id, task_id, task_name, commit_sha, error_type, error_message, recoverable, event_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		swarmID, eventType, f.PacketID, f.TaskID, f.TaskName, f.Commit, f.ErrorType, f.ErrorMessage, f.Recoverable, eventData, createdAt)
	return err
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// violation, inspecting the driver's typed error rather than matching
// on message text.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqliteConstraintUnique
	}
	return false
}
