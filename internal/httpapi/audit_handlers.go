package httpapi

import (
	"net/http"
	"strings"

	"tasktrail.org/internal/audit"
	"tasktrail.org/internal/authz"
	"tasktrail.org/internal/obs"
)

func (a *API) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	d := authz.CanViewAuditLog(p)
	obs.AuthzDecision("audit.view", d.Allowed())
	if err := d.Err(); err != nil {
		handleDomainError(w, r, err)
		return
	}

	q := r.URL.Query()
	f := audit.Filter{
		UserID:     q.Get("userId"),
		Action:     audit.Action(q.Get("action")),
		Resource:   audit.Resource(q.Get("resource")),
		ResourceID: q.Get("resourceId"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sortBy"),
		SortOrder:  q.Get("sortOrder"),
	}
	if raw := strings.TrimSpace(q.Get("success")); raw != "" {
		switch raw {
		case "true":
			v := true
			f.Success = &v
		case "false":
			v := false
			f.Success = &v
		default:
			writeError(w, r, http.StatusBadRequest, "success must be true or false")
			return
		}
	}
	var err error
	if f.StartDate, err = parseTimeParam(q.Get("startDate")); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if f.EndDate, err = parseTimeParam(q.Get("endDate")); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if f.Page, err = parseIntParam(q.Get("page"), 0); err != nil {
		writeError(w, r, http.StatusBadRequest, "page must be an integer")
		return
	}
	if f.Limit, err = parseIntParam(q.Get("limit"), 0); err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be an integer")
		return
	}

	page, err := a.recorder.Query(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	d := authz.CanViewAuditLog(p)
	obs.AuthzDecision("audit.view", d.Allowed())
	if err := d.Err(); err != nil {
		handleDomainError(w, r, err)
		return
	}

	stats, err := a.recorder.Stats(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
