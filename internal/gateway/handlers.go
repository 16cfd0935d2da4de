package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/axiomantic/coordinatord/internal/logger"
	"github.com/axiomantic/coordinatord/internal/protocol"
	"github.com/axiomantic/coordinatord/internal/retry"
	"github.com/axiomantic/coordinatord/internal/store"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorCF("gateway", "failed to encode JSON response", map[string]any{"error": err.Error()})
	}
}

type errorBody struct {
	Error  string              `json:"error"`
	Fields []protocol.FieldError `json:"fields,omitempty"`
}

func writeJSONError(w http.ResponseWriter, code int, message string, fields []protocol.FieldError) {
	writeJSON(w, code, errorBody{Error: message, Fields: fields})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "malformed JSON body", nil)
		return false
	}
	return true
}

func validationFailed[T interface{ Validate() []protocol.FieldError }](w http.ResponseWriter, req T) bool {
	if errs := req.Validate(); len(errs) > 0 {
		writeJSONError(w, http.StatusUnprocessableEntity, "validation failed", errs)
		return true
	}
	return false
}

func handleStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSwarmNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, store.ErrWorkerAlreadyRegistered):
		writeJSONError(w, http.StatusConflict, err.Error(), nil)
	default:
		logger.ErrorCF("gateway", "store operation failed", map[string]any{"error": err.Error()})
		writeJSONError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func (s *Server) handleCreateSwarm(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateSwarmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if validationFailed(w, req) {
		return
	}

	swarmID, err := s.store.CreateSwarm(r.Context(), req.Feature, req.ManifestPath, req.AutoMerge, req.NotifyOnComplete)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, protocol.SwarmCreateResponse{
		SwarmID:          swarmID,
		Endpoint:         fmt.Sprintf("http://%s/swarm/%s", r.Host, swarmID),
		CreatedAt:        time.Now().UTC(),
		AutoMerge:        req.AutoMerge,
		NotifyOnComplete: req.NotifyOnComplete,
	})
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	swarmID := r.PathValue("swarm_id")

	var req protocol.RegisterWorkerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if validationFailed(w, req) {
		return
	}

	_, err := s.store.RegisterWorker(r.Context(), swarmID, req.PacketID, req.PacketName, req.Worktree, req.TasksTotal)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, protocol.RegisterResponse{
		Registered:   true,
		PacketID:     req.PacketID,
		PacketName:   req.PacketName,
		SwarmID:      swarmID,
		RegisteredAt: time.Now().UTC(),
	})
}

func (s *Server) handleReportProgress(w http.ResponseWriter, r *http.Request) {
	swarmID := r.PathValue("swarm_id")

	var req protocol.ProgressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if validationFailed(w, req) {
		return
	}

	if err := s.store.UpdateProgress(r.Context(), swarmID, req.PacketID, req.TaskID, req.TaskName, req.Status, req.TasksCompleted, req.TasksTotal, req.Commit); err != nil {
		handleStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, protocol.ProgressResponse{
		Acknowledged:   true,
		PacketID:       req.PacketID,
		TaskID:         req.TaskID,
		TasksCompleted: req.TasksCompleted,
		TasksTotal:     req.TasksTotal,
		Timestamp:      time.Now().UTC(),
	})
}

func (s *Server) handleReportComplete(w http.ResponseWriter, r *http.Request) {
	swarmID := r.PathValue("swarm_id")

	var req protocol.CompleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if validationFailed(w, req) {
		return
	}

	swarmComplete, err := s.store.MarkComplete(r.Context(), swarmID, req.PacketID, req.FinalCommit, req.TestsPassed, req.ReviewPassed)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	counts, err := s.store.GetSwarmCounts(r.Context(), swarmID)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	remaining := counts.WorkersRegistered - counts.WorkersComplete

	writeJSON(w, http.StatusOK, protocol.CompleteResponse{
		Acknowledged:     true,
		PacketID:         req.PacketID,
		FinalCommit:      req.FinalCommit,
		CompletedAt:      time.Now().UTC(),
		SwarmComplete:    swarmComplete,
		RemainingWorkers: remaining,
	})
}

func (s *Server) handleReportError(w http.ResponseWriter, r *http.Request) {
	swarmID := r.PathValue("swarm_id")

	var req protocol.ErrorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if validationFailed(w, req) {
		return
	}

	if err := s.store.RecordError(r.Context(), swarmID, req.PacketID, req.TaskID, req.ErrorType, req.Message, req.Recoverable); err != nil {
		handleStoreError(w, err)
		return
	}

	category := retry.Classify(req.ErrorType)
	retryScheduled := category == retry.Recoverable

	resp := protocol.ErrorResponse{
		Acknowledged:   true,
		PacketID:       req.PacketID,
		ErrorLogged:    true,
		RetryScheduled: retryScheduled,
	}
	if retryScheduled {
		seconds := int(s.retryPolicy.DelayForAttempt(1).Seconds())
		resp.RetryInSeconds = &seconds
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSwarmStatus(w http.ResponseWriter, r *http.Request) {
	swarmID := r.PathValue("swarm_id")

	sw, err := s.store.GetSwarm(r.Context(), swarmID)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	counts, err := s.store.GetSwarmCounts(r.Context(), swarmID)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	workers, err := s.store.ListWorkers(r.Context(), swarmID)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	statuses := make([]protocol.WorkerStatus, 0, len(workers))
	for _, wk := range workers {
		statuses = append(statuses, protocol.WorkerStatus{
			PacketID:       wk.PacketID,
			PacketName:     wk.PacketName,
			Status:         wk.Status,
			TasksCompleted: wk.TasksCompleted,
			TasksTotal:     wk.TasksTotal,
			LastUpdate:     wk.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, protocol.SwarmStatus{
		SwarmID:           swarmID,
		Status:            sw.Status,
		WorkersRegistered: counts.WorkersRegistered,
		WorkersComplete:   counts.WorkersComplete,
		WorkersFailed:     counts.WorkersFailed,
		ReadyForMerge:     sw.Status == "complete",
		Workers:           statuses,
		CreatedAt:         sw.CreatedAt,
		LastUpdate:        sw.UpdatedAt,
	})
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	swarmID := r.PathValue("swarm_id")

	if _, err := s.store.GetSwarm(r.Context(), swarmID); err != nil {
		handleStoreError(w, err)
		return
	}

	workers, err := s.store.ListWorkers(r.Context(), swarmID)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	statuses := make([]protocol.WorkerStatus, 0, len(workers))
	for _, wk := range workers {
		statuses = append(statuses, protocol.WorkerStatus{
			PacketID:       wk.PacketID,
			PacketName:     wk.PacketName,
			Status:         wk.Status,
			TasksCompleted: wk.TasksCompleted,
			TasksTotal:     wk.TasksTotal,
			LastUpdate:     wk.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleDeleteSwarm(w http.ResponseWriter, r *http.Request) {
	swarmID := r.PathValue("swarm_id")

	if _, err := s.store.GetSwarm(r.Context(), swarmID); err != nil {
		handleStoreError(w, err)
		return
	}

	if _, err := s.store.DeleteSwarm(r.Context(), swarmID); err != nil {
		handleStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.GetServiceCounts(r.Context())
	if err != nil {
		handleStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ActiveSwarms:  counts.ActiveSwarms,
		TotalWorkers:  counts.TotalWorkers,
		Version:       serviceVersion,
	})
}
