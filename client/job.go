package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/processes/api"
	"github.com/xraph/processes/backoff"
	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
)

// Execution is the answer to an execution request.
type Execution struct {
	// Job is the status of the created job.
	Job api.StatusInfo
	// Async reports whether the job was still unfinished when the server
	// answered; poll it with Wait.
	Async bool
	// Outputs holds the results of a job that finished successfully
	// within the synchronous wait.
	Outputs result.Outputs
	// Location is the URL of the job's status document.
	Location string
}

type executeConfig struct {
	prefer []string
}

// ExecuteOption adjusts an execution request.
type ExecuteOption func(*executeConfig)

// Async asks the server to answer immediately with an accepted job.
func Async() ExecuteOption {
	return func(c *executeConfig) { c.prefer = append(c.prefer, "respond-async") }
}

// WaitFor asks the server to wait at most d for a synchronous result
// before falling back to an asynchronous answer.
func WaitFor(d time.Duration) ExecuteOption {
	return func(c *executeConfig) {
		secs := max(int(d/time.Second), 1)
		c.prefer = append(c.prefer, "wait="+strconv.Itoa(secs))
	}
}

// Execute runs a process. inputs is marshalled as the "inputs" member of
// the request; nil sends no inputs.
func (c *Client) Execute(ctx context.Context, processID string, inputs any, opts ...ExecuteOption) (*Execution, error) {
	var cfg executeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	body := map[string]any{}
	if inputs != nil {
		body["inputs"] = inputs
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("processes/client: marshal inputs: %w", err)
	}

	header := http.Header{}
	if len(cfg.prefer) > 0 {
		header.Set("Prefer", strings.Join(cfg.prefer, ", "))
	}

	resp, err := c.do(ctx, http.MethodPost, "/processes/"+url.PathEscape(processID)+"/execution", raw, header)
	if err != nil {
		return nil, err
	}

	exec := &Execution{Location: resp.Header.Get("Location")}
	switch resp.StatusCode {
	case http.StatusCreated:
		exec.Async = true
		if err := decode(resp, &exec.Job); err != nil {
			return nil, err
		}
		return exec, nil
	case http.StatusOK:
		// The body holds outputs when the job succeeded and the status
		// document otherwise; the job's status tells which.
		var payload json.RawMessage
		if err := decode(resp, &payload); err != nil {
			return nil, err
		}
		jobID := exec.Location[strings.LastIndex(exec.Location, "/")+1:]
		status, err := c.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		exec.Job = *status
		if status.Status == job.StatusSuccessful {
			if err := json.Unmarshal(payload, &exec.Outputs); err != nil {
				return nil, fmt.Errorf("processes/client: decode outputs: %w", err)
			}
		}
		return exec, nil
	default:
		return nil, decode(resp, nil)
	}
}

// GetJob fetches the status document of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*api.StatusInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, nil)
	if err != nil {
		return nil, err
	}
	var doc api.StatusInfo
	if err := decode(resp, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListJobs fetches one page of jobs in creation order.
func (c *Client) ListJobs(ctx context.Context, limit, offset int) (*api.JobList, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var list api.JobList
	if err := decode(resp, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Results fetches the outputs of a successful job.
func (c *Client) Results(ctx context.Context, jobID string) (result.Outputs, error) {
	resp, err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/results", nil, nil)
	if err != nil {
		return nil, err
	}
	out := result.Outputs{}
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Dismiss cancels a job and returns its final status.
func (c *Client) Dismiss(ctx context.Context, jobID string) (*api.StatusInfo, error) {
	resp, err := c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(jobID), nil, nil)
	if err != nil {
		return nil, err
	}
	var doc api.StatusInfo
	if err := decode(resp, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Wait polls a job until it reaches a terminal status or ctx is done.
func (c *Client) Wait(ctx context.Context, jobID string) (*api.StatusInfo, error) {
	for attempt := 1; ; attempt++ {
		doc, err := c.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if doc.Status.IsTerminal() {
			return doc, nil
		}
		if err := backoff.Sleep(ctx, c.poll, attempt); err != nil {
			return doc, err
		}
	}
}
