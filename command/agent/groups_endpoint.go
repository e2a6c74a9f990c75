package agent

import (
	"net/http"
	"strings"

	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// GroupSpecificRequest routes the scaling group endpoints. The path layout
// is /v1/groups/{tenant}/{group}/{action} with policy execution carried as
// /v1/groups/{tenant}/{group}/policies/{policy}/execute.
func (s *HTTPServer) GroupSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {

	path := strings.TrimPrefix(req.URL.Path, "/v1/groups/")
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return nil, CodedError(404, "resource not found")
	}

	id := structs.GroupID{Tenant: parts[0], ID: parts[1]}

	switch {
	case len(parts) == 5 && parts[2] == "policies" && parts[4] == "execute":
		return s.groupExecutePolicy(resp, req, id, parts[3])
	case len(parts) == 3 && parts[2] == "resync":
		return s.groupResync(resp, req, id)
	case len(parts) == 3 && parts[2] == "pause":
		return s.groupSetPause(resp, req, id, true)
	case len(parts) == 3 && parts[2] == "resume":
		return s.groupSetPause(resp, req, id, false)
	case len(parts) == 3 && parts[2] == "state":
		return s.groupState(resp, req, id)
	default:
		return nil, CodedError(404, "resource not found")
	}
}

// groupExecutePolicy triggers the execution of a scaling policy. The
// trigger is always acknowledged with a 202; whether the policy resolved,
// like a cooldown or pause rejection, is an internal outcome readable only
// from group state.
func (s *HTTPServer) groupExecutePolicy(resp http.ResponseWriter, req *http.Request,
	id structs.GroupID, policyID string) (interface{}, error) {

	if req.Method != "PUT" && req.Method != "POST" {
		return nil, CodedError(405, ErrInvalidMethod)
	}

	if err := s.agent.server.TriggerPolicy(id, policyID); err != nil {
		logging.Error("command/http: unable to execute policy %v of group "+
			"%v: %v", policyID, id, err)
	}

	resp.WriteHeader(202)
	return nil, nil
}

// groupResync triggers a drift correcting convergence pass.
func (s *HTTPServer) groupResync(resp http.ResponseWriter, req *http.Request,
	id structs.GroupID) (interface{}, error) {

	if req.Method != "PUT" && req.Method != "POST" {
		return nil, CodedError(405, ErrInvalidMethod)
	}

	s.agent.server.Resync(id)
	resp.WriteHeader(202)
	return nil, nil
}

// groupSetPause suspends or resumes convergence activity on a group.
func (s *HTTPServer) groupSetPause(resp http.ResponseWriter, req *http.Request,
	id structs.GroupID, paused bool) (interface{}, error) {

	if req.Method != "PUT" && req.Method != "POST" {
		return nil, CodedError(405, ErrInvalidMethod)
	}

	var err error
	if paused {
		err = s.agent.server.Pause(id)
	} else {
		err = s.agent.server.Resume(id)
	}
	if err != nil {
		return nil, err
	}

	return nil, nil
}

// groupState returns the current state record of a group.
func (s *HTTPServer) groupState(resp http.ResponseWriter, req *http.Request,
	id structs.GroupID) (interface{}, error) {

	if req.Method != "GET" {
		return nil, CodedError(405, ErrInvalidMethod)
	}

	state, err := s.agent.server.GroupState(id)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, CodedError(404, "group not found")
	}

	return state, nil
}

// WebhookRequest executes the policy bound to a capability hash. The
// response never distinguishes unknown hashes from internal rejections.
func (s *HTTPServer) WebhookRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {

	if req.Method != "POST" {
		return nil, CodedError(405, ErrInvalidMethod)
	}

	hash := strings.TrimPrefix(req.URL.Path, "/v1/execute/")
	if hash == "" || strings.Contains(hash, "/") {
		return nil, CodedError(404, "resource not found")
	}

	// Always acknowledge so the endpoint does not become an oracle for
	// probing which capability hashes exist.
	s.agent.server.ExecuteWebhook(hash)
	resp.WriteHeader(202)
	return nil, nil
}
