package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/axiomantic/coordinatord/internal/store"
)

const ssePollInterval = 2 * time.Second

type sseEventData struct {
	EventType string          `json:"event_type"`
	PacketID  *int            `json:"packet_id"`
	TaskID    *string         `json:"task_id"`
	Commit    *string         `json:"commit"`
	CreatedAt time.Time       `json:"created_at"`
	EventData json.RawMessage `json:"event_data,omitempty"`
}

// handleEvents streams a swarm's event log as Server-Sent Events,
// replaying everything after since_event_id, then polling for new
// events until the swarm reaches a terminal state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	swarmID := r.PathValue("swarm_id")

	if !s.limiterFor(swarmID).Allow() {
		writeJSONError(w, http.StatusTooManyRequests, "too many reconnect attempts, slow down", nil)
		return
	}

	if _, err := s.store.GetSwarm(r.Context(), swarmID); err != nil {
		handleStoreError(w, err)
		return
	}

	since := int64(0)
	if v := r.URL.Query().Get("since_event_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusUnprocessableEntity, "since_event_id must be an integer", nil)
			return
		}
		since = parsed
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()

	lastID := since
	for {
		events, err := s.store.GetEvents(ctx, swarmID, lastID)
		if err != nil {
			return
		}

		for _, ev := range events {
			if err := writeSSEEvent(w, ev); err != nil {
				return
			}
			lastID = ev.EventID
		}
		flusher.Flush()

		sw, err := s.store.GetSwarm(ctx, swarmID)
		if err != nil {
			return
		}
		if sw.Status == "complete" || sw.Status == "failed" {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev store.Event) error {
	data := sseEventData{
		EventType: ev.EventType,
		PacketID:  ev.PacketID,
		TaskID:    ev.TaskID,
		Commit:    ev.Commit,
		CreatedAt: ev.CreatedAt,
	}
	if ev.EventData != "" {
		data.EventData = json.RawMessage(ev.EventData)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.EventID, ev.EventType, payload)
	return err
}
