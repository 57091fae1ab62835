package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/processes/job"
	"github.com/xraph/processes/orchestrator"
)

// maxBodyBytes caps the size of an execution request.
const maxBodyBytes = 8 << 20

func (a *API) landing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Landing{
		Title: a.title,
		Links: []Link{
			{Href: a.link("/"), Rel: relSelf, Type: mediaJSON, Title: "this document"},
			{Href: a.link("/conformance"), Rel: relConform, Type: mediaJSON, Title: "conformance classes"},
			{Href: a.link("/processes"), Rel: relProcesses, Type: mediaJSON, Title: "process list"},
			{Href: a.link("/jobs"), Rel: relJobs, Type: mediaJSON, Title: "job list"},
		},
	})
}

func (a *API) conformance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Conformance{ConformsTo: conformsTo})
}

func (a *API) listProcesses(w http.ResponseWriter, _ *http.Request) {
	descs := a.orch.Processes()
	resp := ProcessList{
		Processes: make([]ProcessSummary, 0, len(descs)),
		Links:     []Link{{Href: a.link("/processes"), Rel: relSelf, Type: mediaJSON}},
	}
	for _, d := range descs {
		resp.Processes = append(resp.Processes, a.processSummary(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) getProcess(w http.ResponseWriter, r *http.Request) {
	d, err := a.orch.Process(chi.URLParam(r, "processID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	self := a.link("/processes/" + d.ID)
	writeJSON(w, http.StatusOK, ProcessDocument{
		Description: d,
		Links: []Link{
			{Href: self, Rel: relSelf, Type: mediaJSON, Title: "process description"},
			{Href: self + "/execution", Rel: relExecute, Type: mediaJSON, Title: "execute"},
		},
	})
}

func (a *API) execute(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "processID")
	// Unknown processes are reported before the body is looked at.
	if _, err := a.orch.Process(processID); err != nil {
		a.writeError(w, r, err)
		return
	}

	inputs, err := readInputs(r)
	if err != nil {
		writeException(w, http.StatusBadRequest, typeInvalidParam, "Malformed request", err.Error())
		return
	}

	pref := parsePrefer(r.Header.Values("Prefer"))
	res, err := a.orch.Execute(r.Context(), orchestrator.ExecuteRequest{
		ProcessID: processID,
		Inputs:    inputs,
		Mode:      pref.mode,
		Wait:      pref.wait,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	location := a.link("/jobs/" + res.Job.ID.String())
	if res.Async {
		if pref.mode == job.ModeAsync {
			w.Header().Set("Preference-Applied", "respond-async")
		}
		w.Header().Set("Location", location)
		writeJSON(w, http.StatusCreated, a.statusInfo(res.Job))
		return
	}

	if pref.wait > 0 {
		w.Header().Set("Preference-Applied", "wait="+strconv.Itoa(int(pref.wait/time.Second)))
	}
	w.Header().Set("Location", location)
	if res.Job.Status == job.StatusSuccessful {
		writeJSON(w, http.StatusOK, res.Outputs)
		return
	}
	// Failed or dismissed while the caller waited.
	writeJSON(w, http.StatusOK, a.statusInfo(res.Job))
}

// readInputs returns the "inputs" member of the request body. An empty
// body executes with no inputs.
func readInputs(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, errors.New("request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var req ExecuteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if len(req.Inputs) == 0 || bytes.Equal(bytes.TrimSpace(req.Inputs), []byte("null")) {
		return nil, nil
	}
	return req.Inputs, nil
}

type preference struct {
	mode job.Mode
	wait time.Duration
}

// parsePrefer reads RFC 7240 preferences. respond-async wins over wait.
func parsePrefer(values []string) preference {
	var p preference
	for _, v := range values {
		for _, tok := range strings.Split(v, ",") {
			tok = strings.ToLower(strings.TrimSpace(tok))
			switch {
			case tok == "respond-async":
				p.mode = job.ModeAsync
			case strings.HasPrefix(tok, "wait="):
				n, err := strconv.Atoi(strings.TrimPrefix(tok, "wait="))
				if err == nil && n > 0 {
					p.wait = time.Duration(n) * time.Second
				}
			}
		}
	}
	if p.mode == job.ModeAsync {
		p.wait = 0
	} else if p.wait > 0 {
		p.mode = job.ModeSync
	}
	return p
}
