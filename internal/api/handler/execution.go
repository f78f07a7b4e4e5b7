package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/backhaul/internal/api/request"
	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/engine"
	"github.com/edvin/backhaul/internal/model"
)

type Execution struct {
	svc          *core.ExecutionService
	logs         *core.LogService
	orchestrator *engine.Orchestrator
}

func NewExecution(svc *core.ExecutionService, logs *core.LogService, orchestrator *engine.Orchestrator) *Execution {
	return &Execution{svc: svc, logs: logs, orchestrator: orchestrator}
}

// executionView decorates an execution with its derived status. Status is
// never stored; it is computed from the execution row and its log.
type executionView struct {
	*model.BackupExecution
	Status model.ExecutionStatus `json:"status"`
}

func (h *Execution) view(r *http.Request, exec *model.BackupExecution) (executionView, error) {
	entries, err := h.logs.Entries(r.Context(), exec.ID)
	if err != nil {
		return executionView{}, err
	}
	return executionView{BackupExecution: exec, Status: engine.DeriveStatus(exec, entries)}, nil
}

// ListByPlan godoc
//
//	@Summary	List executions of a plan, newest first
//	@Tags		Executions
//	@Param		planID path string true "Plan ID"
//	@Param		limit query int false "Page size" default(50)
//	@Param		offset query int false "Offset"
//	@Success	200 {array} handler.executionView
//	@Failure	500 {object} response.ErrorBody
//	@Router		/plans/{planID}/executions [get]
func (h *Execution) ListByPlan(w http.ResponseWriter, r *http.Request) {
	planID, err := request.RequireID(chi.URLParam(r, "planID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	pg := request.ParsePagination(r)

	execs, err := h.svc.ListByPlan(r.Context(), planID, pg.Limit, pg.Offset)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]executionView, 0, len(execs))
	for i := range execs {
		v, err := h.view(r, &execs[i])
		if err != nil {
			response.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		views = append(views, v)
	}

	response.WriteJSON(w, http.StatusOK, views)
}

// Get godoc
//
//	@Summary	Get an execution with its derived status
//	@Tags		Executions
//	@Param		id path string true "Execution ID"
//	@Success	200 {object} handler.executionView
//	@Failure	404 {object} response.ErrorBody
//	@Router		/executions/{id} [get]
func (h *Execution) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	exec, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	v, err := h.view(r, exec)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, v)
}

// Cancel godoc
//
//	@Summary		Cancel a running execution
//	@Description	Kills the transfer and records the interruption. Only executions owned by this process can be canceled.
//	@Tags			Executions
//	@Param			id path string true "Execution ID"
//	@Success		202
//	@Failure		409 {object} response.ErrorBody
//	@Router			/executions/{id}/cancel [post]
func (h *Execution) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.orchestrator.Cancel(id); err != nil {
		if errors.Is(err, engine.ErrNotRunning) {
			response.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Stats godoc
//
//	@Summary		Get an execution's progress and aggregate numbers
//	@Description	For a running execution the live in-memory cursor wins over the persisted one.
//	@Tags			Executions
//	@Param			id path string true "Execution ID"
//	@Success		200 {object} model.ExecutionStats
//	@Failure		404 {object} response.ErrorBody
//	@Router			/executions/{id}/stats [get]
func (h *Execution) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	exec, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	entries, err := h.logs.Entries(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snap, _ := h.orchestrator.ProgressFor(id)
	stats := engine.BuildExecutionStats(exec, entries, snap, time.Now())

	response.WriteJSON(w, http.StatusOK, stats)
}
