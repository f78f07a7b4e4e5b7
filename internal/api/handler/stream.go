package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/engine"
	"github.com/edvin/backhaul/internal/model"
)

type Stream struct {
	executions   *core.ExecutionService
	logs         *core.LogService
	orchestrator *engine.Orchestrator
}

func NewStream(executions *core.ExecutionService, logs *core.LogService, orchestrator *engine.Orchestrator) *Stream {
	return &Stream{executions: executions, logs: logs, orchestrator: orchestrator}
}

// progressFrame is one message of the live progress stream.
type progressFrame struct {
	Status model.ExecutionStatus `json:"status"`
	Stats  *model.ExecutionStats `json:"stats"`
}

// Connect upgrades to WebSocket and streams progress snapshots for an
// execution until it finishes or the client goes away.
func (h *Stream) Connect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.WriteError(w, http.StatusBadRequest, "missing execution ID")
		return
	}

	exec, err := h.executions.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, "execution not found")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Origin differs from Host when proxied through a UI.
	})
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		entries, err := h.logs.Entries(ctx, exec.ID)
		if err != nil {
			ws.Close(websocket.StatusInternalError, "log read failed")
			return
		}

		// Reload so the end timestamp is seen once the run closes.
		current, err := h.executions.GetByID(ctx, exec.ID)
		if err != nil {
			ws.Close(websocket.StatusInternalError, "execution read failed")
			return
		}

		snap, _ := h.orchestrator.ProgressFor(exec.ID)
		frame := progressFrame{
			Status: engine.DeriveStatus(current, entries),
			Stats:  engine.BuildExecutionStats(current, entries, snap, time.Now()),
		}

		if err := writeFrame(ctx, ws, frame); err != nil {
			return
		}
		if current.Finished() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeFrame(ctx context.Context, ws *websocket.Conn, frame progressFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
