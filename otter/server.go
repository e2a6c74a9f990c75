package otter

import (
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// sessionTTL is the Consul session TTL in seconds backing worker
// membership and group locks. A worker that stops renewing drops out of
// the membership set within this window.
const sessionTTL = 15

// Server is the otter worker process. It owns one coordination session,
// registers itself in the worker membership set, and runs the background
// tickers driving self-heal sweeps, schedule evaluation and orphaned job
// recovery for the groups the partitioner assigns to it.
type Server struct {
	// config is the Config that created this Server. It is used internally
	// to construct other objects and pass data.
	config *structs.Config

	// workerID is the identity this process carries in the membership set.
	workerID string

	// session is the Consul session backing membership and locks.
	session   string
	renewChan chan struct{}

	partitioner *Partitioner
	supervisor  *Supervisor
	controller  *Controller
	scheduler   *scheduleTracker

	// endpoints represents the otter RPC endpoints.
	endpoints endpoints

	rpcAdvertise net.Addr
	rpcListener  net.Listener
	rpcServer    *rpc.Server

	shutdown     bool
	shutdownChan chan struct{}
}

// endpoints represents the otter RPC endpoints.
type endpoints struct {
	Status *Status
}

type inmemCodec struct {
	method string
	args   interface{}
	reply  interface{}
	err    error
}

// NewServer is the main entry point into the daemon and launches all
// background processes based on the configuration.
func NewServer(config *structs.Config) (*Server, error) {
	s := &Server{
		config:       config,
		workerID:     uuid.New().String(),
		renewChan:    make(chan struct{}),
		rpcServer:    rpc.NewServer(),
		shutdownChan: make(chan struct{}),
		scheduler:    newScheduleTracker(),
	}

	// Obtain our coordination session and publish this worker into the
	// ephemeral membership set.
	session, err := config.ConsulClient.CreateSession(sessionTTL, s.renewChan)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain a coordination session: %v", err)
	}
	s.session = session

	if err := config.ConsulClient.RegisterWorker(s.workerID, session); err != nil {
		close(s.renewChan)
		return nil, err
	}

	s.partitioner = NewPartitioner(s.workerID)
	s.supervisor = NewSupervisor(config)
	s.controller = NewController(config, s.supervisor, session)

	go s.membershipWatcher()
	go s.selfHealTicker()
	go s.scheduleTicker()
	go s.jobRecoveryTicker()

	if err := s.setupRPC(); err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("failed to start RPC layer: %v", err)
	}

	// Start the RPC listeners
	go s.listen()
	logging.Info("core/server: worker %v has started, the RPC server is "+
		"listening at %v", s.workerID, s.config.RPCAddr)

	return s, nil
}

// Shutdown halts the execution of the server. The coordination session is
// destroyed so the membership entry and any held locks clear without
// waiting for the TTL to expire.
func (s *Server) Shutdown() {
	logging.Info("core/server: gracefully shutting down worker %v", s.workerID)

	s.shutdown = true
	s.supervisor.Stop()
	close(s.renewChan)

	if err := s.config.ConsulClient.DestroySession(s.session); err != nil {
		logging.Error("core/server: unable to destroy session %v: %v",
			s.session, err)
	}

	// Shutdown the RPC listener.
	if s.rpcListener != nil {
		logging.Info("core/server: shutting down RPC server at %v",
			s.rpcListener.Addr())
		s.rpcListener.Close()
	}

	close(s.shutdownChan)
}

// membershipWatcher feeds membership snapshots from the coordination watch
// into the partitioner so ownership is recomputed as workers join and
// leave.
func (s *Server) membershipWatcher() {
	updateCh := make(chan []string)
	go s.config.ConsulClient.WatchWorkers(updateCh, s.shutdownChan)

	for {
		select {
		case workers := <-updateCh:
			s.partitioner.UpdateMembership(workers)
		case <-s.shutdownChan:
			return
		}
	}
}

// selfHealTicker periodically issues a resync trigger for every group this
// worker owns. The sweep both corrects out-of-band drift and re-applies
// bound clamping after config edits that were not immediately
// re-converged.
func (s *Server) selfHealTicker() {
	ticker := time.NewTicker(
		time.Second * time.Duration(s.config.SelfHealInterval),
	)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.resyncOwnedGroups()
		case <-s.shutdownChan:
			return
		}
	}
}

// resyncOwnedGroups issues a resync convergence pass for each owned group.
// Passes for different groups run concurrently; the per-group lock keeps
// passes for one group serialized.
func (s *Server) resyncOwnedGroups() {
	groups, err := s.config.ConsulClient.ListGroups()
	if err != nil {
		logging.Error("core/server: unable to enumerate scaling groups for "+
			"the self-heal sweep: %v", err)
		return
	}

	owned := s.partitioner.OwnedGroups(groups)
	logging.Debug("core/server: self-heal sweep over %v of %v groups",
		len(owned), len(groups))

	for _, id := range owned {
		id := id
		go func() {
			trigger := &structs.Trigger{Kind: structs.TriggerResync}
			if err := s.controller.Converge(id, trigger); err != nil {
				logging.Error("core/server: self-heal pass for group %v "+
					"failed: %v", id, err)
			}
		}()
	}
}

// scheduleTicker periodically evaluates schedule driven policies for the
// groups this worker owns.
func (s *Server) scheduleTicker() {
	ticker := time.NewTicker(
		time.Second * time.Duration(s.config.ScheduleInterval),
	)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evaluateSchedules()
		case <-s.shutdownChan:
			return
		}
	}
}

// jobRecoveryTicker periodically sweeps for orphaned job records left by
// crashed workers and adopts those belonging to owned groups.
func (s *Server) jobRecoveryTicker() {
	ticker := time.NewTicker(
		time.Second * time.Duration(s.config.JobSweepInterval),
	)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.supervisor.RunRecoverySweep(s.partitioner.OwnsGroup)
		case <-s.shutdownChan:
			return
		}
	}
}

// TriggerPolicy resolves a policy and runs its convergence pass
// asynchronously. Internal rejections such as cooldown or pause are
// deliberately invisible to the caller; the authoritative outcome is only
// readable from group state afterward.
func (s *Server) TriggerPolicy(id structs.GroupID, policyID string) error {
	policy, err := s.config.ConsulClient.ReadPolicy(id, policyID)
	if err != nil {
		return err
	}
	if policy == nil {
		return fmt.Errorf("policy %v is not defined on group %v", policyID, id)
	}

	go func() {
		trigger := &structs.Trigger{Kind: structs.TriggerPolicy, Policy: policy}
		if err := s.controller.Converge(id, trigger); err != nil {
			logging.Error("core/server: policy %v execution for group %v "+
				"failed: %v", policyID, id, err)
		}
	}()

	return nil
}

// ExecuteWebhook resolves a capability hash to its bound policy and
// executes it. Possession of the hash alone authorizes the execution.
func (s *Server) ExecuteWebhook(capabilityHash string) error {
	webhook, err := s.config.ConsulClient.FindWebhook(capabilityHash)
	if err != nil {
		return err
	}
	if webhook == nil {
		return fmt.Errorf("no webhook carries the presented capability hash")
	}

	return s.TriggerPolicy(webhook.Group, webhook.PolicyID)
}

// Resync runs an explicit resync convergence pass asynchronously.
func (s *Server) Resync(id structs.GroupID) {
	go func() {
		trigger := &structs.Trigger{Kind: structs.TriggerResync}
		if err := s.controller.Converge(id, trigger); err != nil {
			logging.Error("core/server: resync for group %v failed: %v", id, err)
		}
	}()
}

// Pause sets the paused flag on a group. Triggers are still accepted while
// paused but produce no deltas.
func (s *Server) Pause(id structs.GroupID) error {
	return s.supervisor.updateGroupState(id, func(state *structs.GroupState) {
		state.Paused = true
	})
}

// Resume clears the paused flag on a group.
func (s *Server) Resume(id structs.GroupID) error {
	return s.supervisor.updateGroupState(id, func(state *structs.GroupState) {
		state.Paused = false
	})
}

// GroupState reads the current state record of a group.
func (s *Server) GroupState(id structs.GroupID) (*structs.GroupState, error) {
	return s.config.ConsulClient.ReadGroupState(id)
}

// ListOwnedGroups returns the groups currently assigned to this worker.
func (s *Server) ListOwnedGroups() ([]structs.GroupID, error) {
	groups, err := s.config.ConsulClient.ListGroups()
	if err != nil {
		return nil, err
	}
	return s.partitioner.OwnedGroups(groups), nil
}

// setupRPC is used to setup our endpoints and register the handlers as
// well as setup the RPC listener.
func (s *Server) setupRPC() error {
	s.endpoints.Status = &Status{s}
	s.rpcServer.Register(s.endpoints.Status)

	list, err := net.ListenTCP("tcp", s.config.RPCAddr)
	if err != nil {
		return err
	}
	s.rpcListener = list

	s.rpcAdvertise = s.rpcListener.Addr()

	// Verify that we have a usable advertise address
	addr, ok := s.rpcAdvertise.(*net.TCPAddr)
	if !ok {
		list.Close()
		return fmt.Errorf("RPC advertise address is not a TCP Address: %v", addr)
	}
	if addr.IP.IsUnspecified() {
		list.Close()
		return fmt.Errorf("RPC advertise address is not advertisable: %v", addr)
	}

	return nil
}

func (i *inmemCodec) ReadRequestHeader(req *rpc.Request) error {
	req.ServiceMethod = i.method
	return nil
}

func (i *inmemCodec) ReadRequestBody(args interface{}) error {
	return nil
}

func (i *inmemCodec) WriteResponse(resp *rpc.Response, reply interface{}) error {
	if resp.Error != "" {
		i.err = errors.New(resp.Error)
		return nil
	}
	sourceValue := reflect.Indirect(reflect.Indirect(reflect.ValueOf(reply)))
	dst := reflect.Indirect(reflect.Indirect(reflect.ValueOf(i.reply)))
	dst.Set(sourceValue)
	return nil
}

func (i *inmemCodec) Close() error {
	return nil
}

// RPC is used to make an in-process RPC call.
func (s *Server) RPC(method string, reply interface{}) error {
	codec := &inmemCodec{
		method: method,
		reply:  reply,
	}
	if err := s.rpcServer.ServeRequest(codec); err != nil {
		return err
	}
	return codec.err
}
