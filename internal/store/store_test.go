package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/axiomantic/coordinatord/internal/store"
)

func newTestStore(t *testing.T) *store.StateManager {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "coordination.db")
	sm, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })
	return sm
}

func TestCreateAndGetSwarm(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	swarmID, err := sm.CreateSwarm(ctx, "add-retry-policy", "/manifests/add-retry-policy.yaml", false, true)
	require.NoError(t, err)
	require.NotEmpty(t, swarmID)

	sw, err := sm.GetSwarm(ctx, swarmID)
	require.NoError(t, err)
	require.Equal(t, "created", sw.Status)
	require.Equal(t, "add-retry-policy", sw.Feature)
}

func TestGetSwarm_NotFound(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	_, err := sm.GetSwarm(ctx, "swarm-does-not-exist")
	require.ErrorIs(t, err, store.ErrSwarmNotFound)
}

func TestRegisterWorker_FlipsSwarmToRunning(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	swarmID, err := sm.CreateSwarm(ctx, "feat", "/m.yaml", false, true)
	require.NoError(t, err)

	_, err = sm.RegisterWorker(ctx, swarmID, 1, "packet-one", "/worktrees/packet-one", 5)
	require.NoError(t, err)

	sw, err := sm.GetSwarm(ctx, swarmID)
	require.NoError(t, err)
	require.Equal(t, "running", sw.Status)

	counts, err := sm.GetSwarmCounts(ctx, swarmID)
	require.NoError(t, err)
	require.Equal(t, 1, counts.WorkersRegistered)
}

func TestRegisterWorker_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	swarmID, err := sm.CreateSwarm(ctx, "feat", "/m.yaml", false, true)
	require.NoError(t, err)

	_, err = sm.RegisterWorker(ctx, swarmID, 1, "packet-one", "/worktrees/packet-one", 5)
	require.NoError(t, err)

	_, err = sm.RegisterWorker(ctx, swarmID, 1, "packet-one", "/worktrees/packet-one", 5)
	require.ErrorIs(t, err, store.ErrWorkerAlreadyRegistered)
}

func TestMarkComplete_SingleWorkerCompletesSwarm(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	swarmID, err := sm.CreateSwarm(ctx, "feat", "/m.yaml", false, true)
	require.NoError(t, err)

	_, err = sm.RegisterWorker(ctx, swarmID, 1, "packet-one", "/worktrees/packet-one", 1)
	require.NoError(t, err)

	complete, err := sm.MarkComplete(ctx, swarmID, 1, "deadbeef", true, true)
	require.NoError(t, err)
	require.True(t, complete)

	sw, err := sm.GetSwarm(ctx, swarmID)
	require.NoError(t, err)
	require.Equal(t, "complete", sw.Status)
	require.NotNil(t, sw.CompletedAt)
}

func TestMarkComplete_WaitsForAllWorkers(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	swarmID, err := sm.CreateSwarm(ctx, "feat", "/m.yaml", false, true)
	require.NoError(t, err)

	_, err = sm.RegisterWorker(ctx, swarmID, 1, "packet-one", "/worktrees/packet-one", 1)
	require.NoError(t, err)
	_, err = sm.RegisterWorker(ctx, swarmID, 2, "packet-two", "/worktrees/packet-two", 1)
	require.NoError(t, err)

	complete, err := sm.MarkComplete(ctx, swarmID, 1, "deadbeef", true, true)
	require.NoError(t, err)
	require.False(t, complete)

	sw, err := sm.GetSwarm(ctx, swarmID)
	require.NoError(t, err)
	require.Equal(t, "running", sw.Status)

	complete, err = sm.MarkComplete(ctx, swarmID, 2, "cafebabe", true, true)
	require.NoError(t, err)
	require.True(t, complete)
}

func TestRecordError_NonRecoverableFailsWorker(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	swarmID, err := sm.CreateSwarm(ctx, "feat", "/m.yaml", false, true)
	require.NoError(t, err)
	_, err = sm.RegisterWorker(ctx, swarmID, 1, "packet-one", "/worktrees/packet-one", 1)
	require.NoError(t, err)

	err = sm.RecordError(ctx, swarmID, 1, "task-1", "build_failure", "compile error", false)
	require.NoError(t, err)

	workers, err := sm.ListWorkers(ctx, swarmID)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	require.Equal(t, "failed", workers[0].Status)

	counts, err := sm.GetSwarmCounts(ctx, swarmID)
	require.NoError(t, err)
	require.Equal(t, 1, counts.WorkersFailed)
}

func TestGetEvents_OrderedAndResumable(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	swarmID, err := sm.CreateSwarm(ctx, "feat", "/m.yaml", false, true)
	require.NoError(t, err)
	_, err = sm.RegisterWorker(ctx, swarmID, 1, "packet-one", "/worktrees/packet-one", 2)
	require.NoError(t, err)
	require.NoError(t, sm.UpdateProgress(ctx, swarmID, 1, "task-1", "first task", "completed", 1, 2, "abc1234"))
	require.NoError(t, sm.UpdateProgress(ctx, swarmID, 1, "task-2", "second task", "completed", 2, 2, "def5678"))

	all, err := sm.GetEvents(ctx, swarmID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "worker_registered", all[0].EventType)
	require.Equal(t, "progress", all[1].EventType)

	resumed, err := sm.GetEvents(ctx, swarmID, all[0].EventID)
	require.NoError(t, err)
	require.Len(t, resumed, 2)
}

func TestCleanupOldSwarms_KeepsRecent(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	_, err := sm.CreateSwarm(ctx, "feat", "/m.yaml", false, true)
	require.NoError(t, err)

	affected, err := sm.CleanupOldSwarms(ctx, 7)
	require.NoError(t, err)
	require.Zero(t, affected)
}

func TestDeleteSwarm(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	swarmID, err := sm.CreateSwarm(ctx, "feat", "/m.yaml", false, true)
	require.NoError(t, err)

	affected, err := sm.DeleteSwarm(ctx, swarmID)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	_, err = sm.GetSwarm(ctx, swarmID)
	require.ErrorIs(t, err, store.ErrSwarmNotFound)
}

func TestDeleteSwarm_CascadesWorkersAndEvents(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	swarmID, err := sm.CreateSwarm(ctx, "feat", "/m.yaml", false, true)
	require.NoError(t, err)
	_, err = sm.RegisterWorker(ctx, swarmID, 1, "packet-one", "/worktrees/packet-one", 1)
	require.NoError(t, err)

	affected, err := sm.DeleteSwarm(ctx, swarmID)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	workers, err := sm.ListWorkers(ctx, swarmID)
	require.NoError(t, err)
	require.Empty(t, workers, "worker rows must be cascade-deleted with their swarm")

	events, err := sm.GetEvents(ctx, swarmID, 0)
	require.NoError(t, err)
	require.Empty(t, events, "event rows must be cascade-deleted with their swarm")
}

func TestCleanupOldSwarms_CascadesWorkersAndEvents(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	swarmID, err := sm.CreateSwarm(ctx, "feat", "/m.yaml", false, true)
	require.NoError(t, err)
	_, err = sm.RegisterWorker(ctx, swarmID, 1, "packet-one", "/worktrees/packet-one", 1)
	require.NoError(t, err)

	// A negative retention window pushes the cutoff into the future, so
	// every existing swarm is "old" regardless of clock precision.
	affected, err := sm.CleanupOldSwarms(ctx, -1)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	workers, err := sm.ListWorkers(ctx, swarmID)
	require.NoError(t, err)
	require.Empty(t, workers, "worker rows must be cascade-deleted with their swarm")

	events, err := sm.GetEvents(ctx, swarmID, 0)
	require.NoError(t, err)
	require.Empty(t, events, "event rows must be cascade-deleted with their swarm")
}

func TestGetServiceCounts(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	swarmID, err := sm.CreateSwarm(ctx, "feat", "/m.yaml", false, true)
	require.NoError(t, err)
	_, err = sm.RegisterWorker(ctx, swarmID, 1, "packet-one", "/worktrees/packet-one", 1)
	require.NoError(t, err)

	counts, err := sm.GetServiceCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts.ActiveSwarms)
	require.Equal(t, 1, counts.TotalWorkers)
}
