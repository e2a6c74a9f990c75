package api

import (
	"fmt"

	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// Groups is used to interact with the scaling group endpoints.
type Groups struct {
	client *Client
}

// Groups returns a handle on the scaling group endpoints.
func (c *Client) Groups() *Groups {
	return &Groups{client: c}
}

// ExecutePolicy triggers the execution of a scaling policy. A nil error
// only acknowledges acceptance; cooldown or pause rejections are visible
// in group state, never to the caller.
func (g *Groups) ExecutePolicy(tenant, group, policy string) error {
	return g.client.write("PUT", fmt.Sprintf(
		"/v1/groups/%s/%s/policies/%s/execute", tenant, group, policy), nil)
}

// Resync triggers a drift correcting convergence pass on a group.
func (g *Groups) Resync(tenant, group string) error {
	return g.client.write("POST", fmt.Sprintf(
		"/v1/groups/%s/%s/resync", tenant, group), nil)
}

// Pause suspends convergence activity on a group.
func (g *Groups) Pause(tenant, group string) error {
	return g.client.write("POST", fmt.Sprintf(
		"/v1/groups/%s/%s/pause", tenant, group), nil)
}

// Resume lifts a pause on a group.
func (g *Groups) Resume(tenant, group string) error {
	return g.client.write("POST", fmt.Sprintf(
		"/v1/groups/%s/%s/resume", tenant, group), nil)
}

// State returns the current state record of a group.
func (g *Groups) State(tenant, group string) (*structs.GroupState, error) {
	var resp structs.GroupState

	err := g.client.query(fmt.Sprintf(
		"/v1/groups/%s/%s/state", tenant, group), &resp)
	if err != nil {
		return nil, err
	}

	return &resp, nil
}
