package otter

import (
	"github.com/rackerlabs/otter-sub001/otter/structs"
	"github.com/rackerlabs/otter-sub001/version"
)

// Status endpoint is used to check on server status.
type Status struct {
	srv *Server
}

// Version is used to reply with the running otter version.
func (s *Status) Version(args struct{}, reply *string) error {
	*reply = version.Get()
	return nil
}

// Workers is used to reply with the current worker membership view along
// with the answering worker's group assignment count.
func (s *Status) Workers(args struct{}, reply *structs.WorkerStatus) error {
	owned, err := s.srv.ListOwnedGroups()
	if err != nil {
		return err
	}

	*reply = structs.WorkerStatus{
		Workers:     s.srv.partitioner.Workers(),
		WorkerID:    s.srv.workerID,
		OwnedGroups: len(owned),
	}
	return nil
}
