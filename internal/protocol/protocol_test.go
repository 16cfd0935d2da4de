package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomantic/coordinatord/internal/protocol"
)

func TestRegisterWorkerRequest_Validate(t *testing.T) {
	valid := protocol.RegisterWorkerRequest{
		PacketID:   1,
		PacketName: "packet-one",
		TasksTotal: 10,
		Worktree:   "/srv/worktrees/packet-one",
	}
	require.Empty(t, valid.Validate())

	cases := []struct {
		name string
		req  protocol.RegisterWorkerRequest
	}{
		{"zero packet id", protocol.RegisterWorkerRequest{PacketID: 0, PacketName: "a", TasksTotal: 1, Worktree: "/x"}},
		{"uppercase packet name", protocol.RegisterWorkerRequest{PacketID: 1, PacketName: "Packet-One", TasksTotal: 1, Worktree: "/x"}},
		{"empty packet name", protocol.RegisterWorkerRequest{PacketID: 1, PacketName: "", TasksTotal: 1, Worktree: "/x"}},
		{"tasks total zero", protocol.RegisterWorkerRequest{PacketID: 1, PacketName: "a", TasksTotal: 0, Worktree: "/x"}},
		{"tasks total too large", protocol.RegisterWorkerRequest{PacketID: 1, PacketName: "a", TasksTotal: 1001, Worktree: "/x"}},
		{"empty worktree", protocol.RegisterWorkerRequest{PacketID: 1, PacketName: "a", TasksTotal: 1, Worktree: ""}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEmpty(t, tt.req.Validate())
		})
	}
}

func TestProgressRequest_Validate(t *testing.T) {
	valid := protocol.ProgressRequest{
		PacketID:       1,
		TaskID:         "task-1",
		TaskName:       "run tests",
		Status:         "started",
		TasksCompleted: 0,
		TasksTotal:     5,
	}
	require.Empty(t, valid.Validate())

	withCommit := valid
	withCommit.Commit = "abc1234"
	require.Empty(t, withCommit.Validate())

	t.Run("bad status", func(t *testing.T) {
		req := valid
		req.Status = "unknown"
		assert.NotEmpty(t, req.Validate())
	})

	t.Run("bad commit", func(t *testing.T) {
		req := valid
		req.Commit = "not-hex"
		assert.NotEmpty(t, req.Validate())
	})

	t.Run("completed exceeds total", func(t *testing.T) {
		req := valid
		req.TasksCompleted = 6
		req.TasksTotal = 5
		assert.NotEmpty(t, req.Validate())
	})

	t.Run("negative completed", func(t *testing.T) {
		req := valid
		req.TasksCompleted = -1
		assert.NotEmpty(t, req.Validate())
	})
}

func TestCompleteRequest_Validate(t *testing.T) {
	valid := protocol.CompleteRequest{
		PacketID:    1,
		FinalCommit: "deadbee",
	}
	require.Empty(t, valid.Validate())

	bad := valid
	bad.FinalCommit = "zz"
	assert.NotEmpty(t, bad.Validate())
}

func TestErrorRequest_Validate(t *testing.T) {
	valid := protocol.ErrorRequest{
		PacketID:  1,
		TaskID:    "task-1",
		ErrorType: "network_error",
		Message:   "connection reset",
	}
	require.Empty(t, valid.Validate())

	bad := valid
	bad.Message = ""
	assert.NotEmpty(t, bad.Validate())
}

func TestCreateSwarmRequest_Validate(t *testing.T) {
	valid := protocol.CreateSwarmRequest{
		Feature:      "add-retry-policy",
		ManifestPath: "/srv/manifests/add-retry-policy.yaml",
	}
	require.Empty(t, valid.Validate())

	bad := protocol.CreateSwarmRequest{}
	assert.Len(t, bad.Validate(), 2)
}
