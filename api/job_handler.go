package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
)

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		writeException(w, http.StatusBadRequest, typeInvalidParam, "Invalid parameter", "limit must be a positive integer")
		return
	}
	limit = min(limit, maxListLimit)
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeException(w, http.StatusBadRequest, typeInvalidParam, "Invalid parameter", "offset must be a non-negative integer")
		return
	}

	jobs, total, err := a.orch.ListJobs(r.Context(), limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := JobList{
		Jobs:          make([]StatusInfo, 0, len(jobs)),
		NumberMatched: total,
		Links:         []Link{{Href: a.pageLink(limit, offset), Rel: relSelf, Type: mediaJSON}},
	}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, a.statusInfo(j))
	}
	if int64(offset+len(jobs)) < total {
		resp.Links = append(resp.Links, Link{Href: a.pageLink(limit, offset+limit), Rel: relNext, Type: mediaJSON})
	}
	if offset > 0 {
		resp.Links = append(resp.Links, Link{Href: a.pageLink(limit, max(offset-limit, 0)), Rel: relPrev, Type: mediaJSON})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobID(w, r)
	if !ok {
		return
	}
	j, err := a.orch.GetJob(r.Context(), jobID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.statusInfo(j))
}

func (a *API) getResults(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobID(w, r)
	if !ok {
		return
	}
	out, err := a.orch.GetResults(r.Context(), jobID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) dismissJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobID(w, r)
	if !ok {
		return
	}
	j, err := a.orch.DismissJob(r.Context(), jobID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.statusInfo(j))
}

// jobID parses the path parameter. A malformed ID cannot name a job, so
// it is reported as unknown.
func (a *API) jobID(w http.ResponseWriter, r *http.Request) (id.JobID, bool) {
	raw := chi.URLParam(r, "jobID")
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %q", processes.ErrJobNotFound, raw))
		return id.Nil, false
	}
	return jobID, true
}

func (a *API) pageLink(limit, offset int) string {
	return a.link(fmt.Sprintf("/jobs?limit=%d&offset=%d", limit, offset))
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
