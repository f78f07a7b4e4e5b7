package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/backhaul/internal/api/request"
	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
)

type Logs struct {
	svc *core.LogService
}

func NewLogs(svc *core.LogService) *Logs {
	return &Logs{svc: svc}
}

// List godoc
//
//	@Summary		List per-file change records of an execution
//	@Description	Sentinel and milestone entries are excluded; they are bookkeeping, not file events.
//	@Tags		Logs
//	@Param		id path string true "Execution ID"
//	@Param		action query string false "Filter by action (Copy, Delete, Ignored, CopyError)"
//	@Param		search query string false "Substring match on file name"
//	@Param		order query string false "Sort by datetime" Enums(asc, desc)
//	@Success	200 {array} model.LogEntry
//	@Failure	400 {object} response.ErrorBody
//	@Router		/executions/{id}/logs [get]
func (h *Logs) List(w http.ResponseWriter, r *http.Request) {
	executionID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := request.ParseLogFilter(r)

	entries, err := h.svc.List(r.Context(), executionID, params)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, entries)
}
