package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tasktrail.org/internal/task"
)

func (a *API) handleTasksCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listTasks(w, r)
	case http.MethodPost:
		a.createTask(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTaskResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getTask(w, r, id)
	case http.MethodPatch:
		a.updateTask(w, r, id)
	case http.MethodDelete:
		a.deleteTask(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleTasksBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Tasks []task.BulkUpdateItem `json:"tasks"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Tasks) == 0 {
		writeError(w, r, http.StatusBadRequest, "tasks are required")
		return
	}
	updated, err := a.tasks.BulkUpdate(r.Context(), p, req.Tasks)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": updated})
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	var req task.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.tasks.Create(r.Context(), p, req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/tasks/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	t, err := a.tasks.Get(r.Context(), p, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) updateTask(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	var req task.UpdateInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.tasks.Update(r.Context(), p, id, req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) deleteTask(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	if err := a.tasks.Delete(r.Context(), p, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	in := task.ListInput{
		Status:    task.Status(q.Get("status")),
		Priority:  task.Priority(q.Get("priority")),
		Category:  task.Category(q.Get("category")),
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	var err error
	if in.Page, err = parseIntParam(q.Get("page"), 0); err != nil {
		writeError(w, r, http.StatusBadRequest, "page must be an integer")
		return
	}
	if in.Limit, err = parseIntParam(q.Get("limit"), 0); err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be an integer")
		return
	}

	res, err := a.tasks.List(r.Context(), p, in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseIntParam(raw string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func parseTimeParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New("dates must be RFC 3339 timestamps")
	}
	return &t, nil
}
