package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/backhaul/internal/api/request"
	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
	"github.com/edvin/backhaul/internal/remote"
	"github.com/edvin/backhaul/internal/sshkey"
)

type Agent struct {
	svc     *core.AgentService
	browser *remote.Browser
}

func NewAgent(svc *core.AgentService, browser *remote.Browser) *Agent {
	return &Agent{svc: svc, browser: browser}
}

// List godoc
//
//	@Summary	List agents
//	@Tags		Agents
//	@Param		limit query int false "Page size" default(50)
//	@Param		cursor query string false "Pagination cursor"
//	@Success	200 {object} response.Page{items=[]model.Agent}
//	@Failure	500 {object} response.ErrorBody
//	@Router		/agents [get]
func (h *Agent) List(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	agents, hasMore, err := h.svc.List(r.Context(), pg.Limit, pg.Cursor)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextCursor string
	if hasMore && len(agents) > 0 {
		nextCursor = agents[len(agents)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, agents, nextCursor, hasMore)
}

// Create godoc
//
//	@Summary		Register an agent
//	@Description	Creates the agent and generates its SSH key pair. The public key must be installed on the host before plans can run.
//	@Tags			Agents
//	@Param			agent body request.CreateAgent true "Agent"
//	@Success		201 {object} model.Agent
//	@Failure		400 {object} response.ErrorBody
//	@Router			/agents [post]
func (h *Agent) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateAgent
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	keys, err := sshkey.Generate(req.Name)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	port := req.Port
	if port == 0 {
		port = 22
	}

	now := time.Now()
	agent := &model.Agent{
		ID:          platform.NewID(),
		Name:        req.Name,
		Host:        req.Host,
		Port:        port,
		SSHUser:     req.SSHUser,
		PublicKey:   keys.AuthorizedKey,
		PrivateKey:  keys.PrivateKeyPEM,
		Fingerprint: keys.Fingerprint,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.svc.Create(r.Context(), agent); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusCreated, agent)
}

// Get godoc
//
//	@Summary	Get an agent
//	@Tags		Agents
//	@Param		id path string true "Agent ID"
//	@Success	200 {object} model.Agent
//	@Failure	404 {object} response.ErrorBody
//	@Router		/agents/{id} [get]
func (h *Agent) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	agent, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, agent)
}

// Update godoc
//
//	@Summary		Update an agent
//	@Description	Key material cannot be changed here; use the rotate-key endpoint.
//	@Tags			Agents
//	@Param			id path string true "Agent ID"
//	@Param			agent body request.UpdateAgent true "Agent"
//	@Success		200 {object} model.Agent
//	@Failure		404 {object} response.ErrorBody
//	@Router			/agents/{id} [put]
func (h *Agent) Update(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdateAgent
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	agent, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	agent.Name = req.Name
	agent.Host = req.Host
	if req.Port != 0 {
		agent.Port = req.Port
	}
	agent.SSHUser = req.SSHUser
	agent.UpdatedAt = time.Now()

	if err := h.svc.Update(r.Context(), agent); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, agent)
}

// Delete godoc
//
//	@Summary	Delete an agent
//	@Tags		Agents
//	@Param		id path string true "Agent ID"
//	@Success	204
//	@Failure	400 {object} response.ErrorBody
//	@Router		/agents/{id} [delete]
func (h *Agent) Delete(w http.ResponseWriter, r *http.Request) {
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

// RotateKey godoc
//
//	@Summary		Rotate the agent's SSH key pair
//	@Description	Replaces the key pair. Plans created before the rotation keep their resolved copy of the old key until they are updated.
//	@Tags			Agents
//	@Param			id path string true "Agent ID"
//	@Success		200 {object} map[string]string
//	@Failure		404 {object} response.ErrorBody
//	@Router			/agents/{id}/rotate-key [post]
func (h *Agent) RotateKey(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	agent, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	keys, err := sshkey.Generate(agent.Name)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.svc.SetKeyPair(r.Context(), id, keys.AuthorizedKey, keys.PrivateKeyPEM, keys.Fingerprint); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{
		"public_key":  keys.AuthorizedKey,
		"fingerprint": keys.Fingerprint,
	})
}

// Browse godoc
//
//	@Summary		Browse a directory on the agent
//	@Description	Lists a directory over SSH so operators can pick backup sources.
//	@Tags			Agents
//	@Param			id path string true "Agent ID"
//	@Param			path query string false "Directory to list"
//	@Success		200 {object} map[string]any
//	@Failure		502 {object} response.ErrorBody
//	@Router			/agents/{id}/browse [get]
func (h *Agent) Browse(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	agent, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	dir := r.URL.Query().Get("path")
	entries, err := h.browser.List(r.Context(), agent, dir)
	if err != nil {
		response.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"path":    dir,
		"entries": entries,
	})
}
