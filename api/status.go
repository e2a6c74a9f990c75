package api

import "github.com/rackerlabs/otter-sub001/otter/structs"

// Status is used to query all status related endpoints.
type Status struct {
	client *Client
}

// Status returns a handle on the status related endpoints.
func (c *Client) Status() *Status {
	return &Status{client: c}
}

// Workers is used to query the current worker membership view.
func (s *Status) Workers() (structs.WorkerStatus, error) {
	var resp structs.WorkerStatus

	err := s.client.query("/v1/status/workers", &resp)
	if err != nil {
		return resp, err
	}

	return resp, nil
}
