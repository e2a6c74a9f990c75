package agent

import (
	"net/http"

	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// StatusWorkersRequest is used to perform the Status.Workers API request.
func (s *HTTPServer) StatusWorkersRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != "GET" {
		return nil, CodedError(405, ErrInvalidMethod)
	}

	var workers structs.WorkerStatus
	if err := s.agent.RPC("Status.Workers", &workers); err != nil {
		return nil, err
	}
	return workers, nil
}
