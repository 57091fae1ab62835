package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/xraph/processes/api"
)

// Processes lists the processes the server offers.
func (c *Client) Processes(ctx context.Context) ([]api.ProcessSummary, error) {
	resp, err := c.do(ctx, http.MethodGet, "/processes", nil, nil)
	if err != nil {
		return nil, err
	}
	var list api.ProcessList
	if err := decode(resp, &list); err != nil {
		return nil, err
	}
	return list.Processes, nil
}

// Process fetches the full description of one process, including its
// inputs.
func (c *Client) Process(ctx context.Context, processID string) (*api.ProcessDocument, error) {
	resp, err := c.do(ctx, http.MethodGet, "/processes/"+url.PathEscape(processID), nil, nil)
	if err != nil {
		return nil, err
	}
	var doc api.ProcessDocument
	if err := decode(resp, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
