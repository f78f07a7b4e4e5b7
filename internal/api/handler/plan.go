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
	"github.com/edvin/backhaul/internal/platform"
)

type Plan struct {
	svc          *core.PlanService
	agents       *core.AgentService
	orchestrator *engine.Orchestrator
}

func NewPlan(svc *core.PlanService, agents *core.AgentService, orchestrator *engine.Orchestrator) *Plan {
	return &Plan{svc: svc, agents: agents, orchestrator: orchestrator}
}

// List godoc
//
//	@Summary	List backup plans
//	@Tags		Plans
//	@Param		limit query int false "Page size" default(50)
//	@Param		cursor query string false "Pagination cursor"
//	@Success	200 {object} response.Page{items=[]model.BackupPlan}
//	@Failure	500 {object} response.ErrorBody
//	@Router		/plans [get]
func (h *Plan) List(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	plans, hasMore, err := h.svc.List(r.Context(), pg.Limit, pg.Cursor)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextCursor string
	if hasMore && len(plans) > 0 {
		nextCursor = plans[len(plans)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, plans, nextCursor, hasMore)
}

// Create godoc
//
//	@Summary		Create a backup plan
//	@Description	Transport settings (host, port, user, key) are resolved from the agent at creation time.
//	@Tags			Plans
//	@Param			plan body request.CreatePlan true "Plan"
//	@Success		201 {object} model.BackupPlan
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Router			/plans [post]
func (h *Plan) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreatePlan
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	agent, err := h.agents.GetByID(r.Context(), req.AgentID)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, "agent not found: "+err.Error())
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now()
	plan := &model.BackupPlan{
		ID:          platform.NewID(),
		AgentID:     &agent.ID,
		Name:        req.Name,
		Description: req.Description,
		Schedule:    req.Schedule,
		Source:      req.Source,
		Destination: req.Destination,
		Active:      active,
		Host:        agent.Host,
		Port:        agent.Port,
		SSHUser:     agent.SSHUser,
		PrivateKey:  agent.PrivateKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.svc.Create(r.Context(), plan); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusCreated, plan)
}

// Get godoc
//
//	@Summary	Get a backup plan
//	@Tags		Plans
//	@Param		id path string true "Plan ID"
//	@Success	200 {object} model.BackupPlan
//	@Failure	404 {object} response.ErrorBody
//	@Router		/plans/{id} [get]
func (h *Plan) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, plan)
}

// Update godoc
//
//	@Summary	Update a backup plan
//	@Tags		Plans
//	@Param		id path string true "Plan ID"
//	@Param		plan body request.UpdatePlan true "Plan"
//	@Success	200 {object} model.BackupPlan
//	@Failure	404 {object} response.ErrorBody
//	@Router		/plans/{id} [put]
func (h *Plan) Update(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdatePlan
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	plan.Name = req.Name
	plan.Description = req.Description
	plan.Schedule = req.Schedule
	plan.Source = req.Source
	plan.Destination = req.Destination
	if req.Active != nil {
		plan.Active = *req.Active
	}
	plan.UpdatedAt = time.Now()

	if err := h.svc.Update(r.Context(), plan); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, plan)
}

// Delete godoc
//
//	@Summary	Delete a backup plan
//	@Tags		Plans
//	@Param		id path string true "Plan ID"
//	@Success	204
//	@Failure	400 {object} response.ErrorBody
//	@Router		/plans/{id} [delete]
func (h *Plan) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Execute godoc
//
//	@Summary		Start a backup run
//	@Description	The run happens in the background; the accepted execution is returned immediately. A plan already mid-run is rejected.
//	@Tags			Executions
//	@Param			id path string true "Plan ID"
//	@Success		202 {object} model.BackupExecution
//	@Failure		409 {object} response.ErrorBody
//	@Failure		422 {object} response.ErrorBody
//	@Router			/plans/{id}/execute [post]
func (h *Plan) Execute(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	exec, err := h.orchestrator.Execute(r.Context(), plan, false)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrMissingTransport):
		response.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, engine.ErrExecutionInProgress), errors.Is(err, core.ErrExecutionInProgress):
		response.WriteError(w, http.StatusConflict, err.Error())
		return
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusAccepted, exec)
}

// Simulate godoc
//
//	@Summary		Dry-run a backup plan
//	@Description	Runs the transfer with --dry-run and returns the changes rsync would make. Nothing is persisted.
//	@Tags			Executions
//	@Param			id path string true "Plan ID"
//	@Success		200 {object} engine.SimulationResult
//	@Failure		422 {object} response.ErrorBody
//	@Router			/plans/{id}/simulate [post]
func (h *Plan) Simulate(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	result, err := h.orchestrator.Simulate(r.Context(), plan)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrMissingTransport):
		response.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, result)
}
