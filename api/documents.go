package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/xraph/processes/job"
	"github.com/xraph/processes/process"
)

// Link relations used in documents.
const (
	relSelf      = "self"
	relNext      = "next"
	relPrev      = "prev"
	relResults   = "http://www.opengis.net/def/rel/ogc/1.0/results"
	relStatus    = "status"
	relProcesses = "http://www.opengis.net/def/rel/ogc/1.0/processes"
	relJobs      = "http://www.opengis.net/def/rel/ogc/1.0/job-list"
	relConform   = "http://www.opengis.net/def/rel/ogc/1.0/conformance"
	relExecute   = "http://www.opengis.net/def/rel/ogc/1.0/execute"
)

const mediaJSON = "application/json"

// Link is a typed hyperlink.
type Link struct {
	Href  string `json:"href"`
	Rel   string `json:"rel"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// StatusInfo is the status document of a job.
type StatusInfo struct {
	Type      string     `json:"type"`
	JobID     string     `json:"jobID"`
	ProcessID string     `json:"processID"`
	Status    job.Status `json:"status"`
	Message   string     `json:"message,omitempty"`
	Created   time.Time  `json:"created"`
	Started   *time.Time `json:"started,omitempty"`
	Finished  *time.Time `json:"finished,omitempty"`
	Updated   time.Time  `json:"updated"`
	Progress  *int       `json:"progress,omitempty"`
	// Error describes why a failed job failed.
	Error *job.ErrorInfo `json:"error,omitempty"`
	Links []Link         `json:"links"`
}

// JobList is the response of GET /jobs.
type JobList struct {
	Jobs          []StatusInfo `json:"jobs"`
	NumberMatched int64        `json:"numberMatched"`
	Links         []Link       `json:"links"`
}

// ProcessSummary is one entry of the process list.
type ProcessSummary struct {
	ID                string               `json:"id"`
	Title             string               `json:"title,omitempty"`
	Description       string               `json:"description,omitempty"`
	Version           string               `json:"version"`
	JobControlOptions []process.JobControl `json:"jobControlOptions,omitempty"`
	Links             []Link               `json:"links"`
}

// ProcessList is the response of GET /processes.
type ProcessList struct {
	Processes []ProcessSummary `json:"processes"`
	Links     []Link           `json:"links"`
}

// ProcessDocument is the full description of one process.
type ProcessDocument struct {
	process.Description
	Links []Link `json:"links"`
}

// ExecuteRequest is the body of an execution request. Only inputs are
// interpreted; every output is returned.
type ExecuteRequest struct {
	Inputs json.RawMessage `json:"inputs,omitempty"`
}

// Exception is the error document of every failed request.
type Exception struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Landing is the response of GET /.
type Landing struct {
	Title string `json:"title"`
	Links []Link `json:"links"`
}

// Conformance lists the implemented conformance classes.
type Conformance struct {
	ConformsTo []string `json:"conformsTo"`
}

var conformsTo = []string{
	"http://www.opengis.net/spec/ogcapi-processes-1/1.0/conf/core",
	"http://www.opengis.net/spec/ogcapi-processes-1/1.0/conf/json",
	"http://www.opengis.net/spec/ogcapi-processes-1/1.0/conf/job-list",
	"http://www.opengis.net/spec/ogcapi-processes-1/1.0/conf/dismiss",
}

func (a *API) statusInfo(j *job.Job) StatusInfo {
	self := a.link("/jobs/" + j.ID.String())
	doc := StatusInfo{
		Type:      "process",
		JobID:     j.ID.String(),
		ProcessID: j.ProcessID,
		Status:    j.Status,
		Message:   j.Message,
		Created:   j.CreatedAt,
		Started:   j.StartedAt,
		Finished:  j.FinishedAt,
		Updated:   j.UpdatedAt,
		Progress:  j.Progress,
		Links: []Link{
			{Href: self, Rel: relSelf, Type: mediaJSON, Title: "this document"},
		},
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		// The last progress message predates the failure.
		doc.Message = j.Error.Message
		doc.Error = j.Error
	}
	if j.Status == job.StatusSuccessful {
		doc.Links = append(doc.Links, Link{Href: self + "/results", Rel: relResults, Type: mediaJSON, Title: "job results"})
	}
	return doc
}

func (a *API) processSummary(d process.Description) ProcessSummary {
	return ProcessSummary{
		ID:                d.ID,
		Title:             d.Title,
		Description:       d.Description,
		Version:           d.Version,
		JobControlOptions: d.JobControlOptions,
		Links: []Link{
			{Href: a.link("/processes/" + d.ID), Rel: relSelf, Type: mediaJSON, Title: "process description"},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", mediaJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
