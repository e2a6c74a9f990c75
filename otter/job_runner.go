package otter

import (
	"errors"
	"fmt"
	"time"

	metrics "github.com/armon/go-metrics"

	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// errShutdown aborts a runner during supervisor shutdown. It is not a job
// failure; the record stays behind for another worker to resume.
var errShutdown = errors.New("supervisor shutdown")

const (
	// serverPollInterval is the pause between provider status polls while
	// a submitted server is still building.
	serverPollInterval = 10 * time.Second

	// serverPollLimit bounds how many status polls a create job performs
	// before the build is declared failed.
	serverPollLimit = 90

	// retryBackoffBase is the initial pause before a transient provider
	// failure is retried; the pause doubles per attempt up to the cap.
	retryBackoffBase = 1 * time.Second

	// retryBackoffCap bounds the exponential retry pause.
	retryBackoffCap = 30 * time.Second
)

// runJob drives one job state machine to a terminal state, bounded by the
// supervisor's concurrency limit. Each step is persisted before it is
// considered complete, so a crash leaves a record any worker can resume.
func (s *Supervisor) runJob(job *structs.Job) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	defer metrics.MeasureSince([]string{"supervisor", "job", "run"}, time.Now())

	var err error
	switch job.Kind {
	case structs.JobKindCreate:
		err = s.runCreate(job)
	case structs.JobKindDelete:
		err = s.runDelete(job)
	default:
		err = fmt.Errorf("job %v carries unknown kind %v", job.ID, job.Kind)
	}

	if err != nil {
		if errors.Is(err, errShutdown) {
			logging.Info("core/supervisor: job %v for group %v was "+
				"interrupted at step %v by shutdown, leaving the record for "+
				"another worker", job.ID, job.Group, job.Step)
			return
		}
		s.failJob(job, err)
	}
}

// runCreate executes the create job state machine: submit the create
// request, poll until the server is active, attach the configured load
// balancers, then move the server identifier from pending to active.
func (s *Supervisor) runCreate(job *structs.Job) error {
	if job.Step == structs.StepSubmitCreate {
		// The job ID doubles as the provider side idempotency token; a
		// resubmission after a crash resolves to the original server.
		err := s.withRetry(job, "create-server", func() error {
			ref, err := s.provider.CreateServer(job.Group, job.Launch, job.ID)
			if err != nil {
				return err
			}
			job.ProviderRef = ref
			job.ServerID = ref
			return nil
		})
		if err != nil {
			return err
		}

		job.Step = structs.StepPollServer
		if err := s.persistStep(job); err != nil {
			return err
		}
	}

	if job.Step == structs.StepPollServer {
		status, err := s.pollServer(job)
		if err != nil {
			return err
		}

		job.ServerID = status.ServerID
		job.Step = structs.StepAttachLB
		if err := s.persistStep(job); err != nil {
			return err
		}
	}

	if job.Cancelled {
		return s.teardownCancelled(job)
	}

	if job.Step == structs.StepAttachLB {
		lbs, err := job.Launch.LoadBalancers()
		if err != nil {
			return err
		}

		for _, lb := range lbs {
			lb := lb
			err := s.withRetry(job, "attach-lb", func() error {
				return s.provider.AttachLoadBalancer(job.ServerID, lb)
			})
			if err != nil {
				return err
			}
		}
	}

	return s.reportCreateSuccess(job)
}

// pollServer polls the provider until the submitted server is active,
// returning an error when the provider reports a fault or the poll budget
// is exhausted.
func (s *Supervisor) pollServer(job *structs.Job) (*structs.ServerStatus, error) {
	for attempt := 0; attempt < serverPollLimit; attempt++ {
		status, err := s.provider.ServerStatus(job.ProviderRef)
		if err != nil {
			if attempt == serverPollLimit-1 {
				return nil, err
			}
		} else {
			switch status.State {
			case structs.ServerStateActive:
				return status, nil
			case structs.ServerStateError:
				return nil, fmt.Errorf("the provider reported a fault while "+
					"building server %v: %v", job.ProviderRef, status.Fault)
			}
		}

		// A build can outlast the orphan age, so the record's heartbeat
		// is refreshed between polls to keep the recovery sweep from
		// adopting a job whose runner is still making progress.
		s.touchJob(job)

		select {
		case <-s.stopCh:
			return nil, fmt.Errorf("%w while polling server %v", errShutdown,
				job.ProviderRef)
		case <-time.After(s.pollInterval):
		}
	}

	return nil, fmt.Errorf("server %v did not become active within the poll "+
		"budget", job.ProviderRef)
}

// teardownCancelled deletes a server whose pending reservation was
// reclaimed before it entered service, then settles the job record.
func (s *Supervisor) teardownCancelled(job *structs.Job) error {
	logging.Info("core/supervisor: job %v was cancelled during scale-in, "+
		"tearing down server %v", job.ID, job.ServerID)

	err := s.withRetry(job, "delete-server", func() error {
		return s.provider.DeleteServer(job.ServerID)
	})
	if err != nil {
		return err
	}

	err = s.updateGroupState(job.Group, func(state *structs.GroupState) {
		delete(state.Pending, job.ID)
	})
	if err != nil {
		return err
	}

	return s.consul.DeleteJob(job.ID)
}

// reportCreateSuccess atomically moves the server from pending to active
// in the group state, then removes the job record. The single conditional
// write guarantees a server identifier is never present in both sets.
func (s *Supervisor) reportCreateSuccess(job *structs.Job) error {
	created := time.Now().UTC()
	if status, err := s.provider.ServerStatus(job.ProviderRef); err == nil {
		created = status.Created
	}

	err := s.updateGroupState(job.Group, func(state *structs.GroupState) {
		delete(state.Pending, job.ID)
		state.Active[job.ServerID] = structs.ActiveServer{
			ID:      job.ServerID,
			Created: created,
		}
	})
	if err != nil {
		return err
	}

	logging.Info("core/supervisor: create job %v completed, server %v is in "+
		"service for group %v", job.ID, job.ServerID, job.Group)
	metrics.IncrCounter([]string{"supervisor", "job", "succeeded"}, 1)

	return s.consul.DeleteJob(job.ID)
}

// runDelete executes the delete job state machine: honour the configured
// connection draining timeout, detach the server from its load balancers,
// delete the server, then remove its identifier from the active set.
func (s *Supervisor) runDelete(job *structs.Job) error {
	if job.Step == structs.StepDrainLB {
		if err := s.drainLoadBalancers(job); err != nil {
			return err
		}

		job.Step = structs.StepDeleteServer
		if err := s.persistStep(job); err != nil {
			return err
		}
	}

	if job.Step == structs.StepDeleteServer {
		err := s.withRetry(job, "delete-server", func() error {
			return s.provider.DeleteServer(job.ServerID)
		})
		if err != nil {
			return err
		}
	}

	err := s.updateGroupState(job.Group, func(state *structs.GroupState) {
		delete(state.Active, job.ServerID)
	})
	if err != nil {
		return err
	}

	logging.Info("core/supervisor: delete job %v completed, server %v has "+
		"left group %v", job.ID, job.ServerID, job.Group)
	metrics.IncrCounter([]string{"supervisor", "job", "succeeded"}, 1)

	return s.consul.DeleteJob(job.ID)
}

// drainLoadBalancers places the server's load balancer nodes in draining
// mode, waits out the longest configured draining timeout, then detaches
// the server. Load balancers without a draining timeout are detached
// immediately.
func (s *Supervisor) drainLoadBalancers(job *structs.Job) error {
	if job.Launch == nil {
		return nil
	}

	lbs, err := job.Launch.LoadBalancers()
	if err != nil {
		return err
	}
	if len(lbs) == 0 {
		return nil
	}

	longest := 0
	for _, lb := range lbs {
		if lb.DrainingTimeout <= 0 {
			continue
		}

		lb := lb
		err := s.withRetry(job, "set-draining", func() error {
			return s.provider.SetNodeDraining(job.ServerID, lb, lb.DrainingTimeout)
		})
		if err != nil {
			return err
		}

		if lb.DrainingTimeout > longest {
			longest = lb.DrainingTimeout
		}
	}

	if longest > 0 {
		logging.Debug("core/supervisor: waiting %vs for connection draining "+
			"of server %v", longest, job.ServerID)

		deadline := time.Now().Add(time.Duration(longest) * time.Second)
		for remaining := time.Until(deadline); remaining > 0; remaining = time.Until(deadline) {
			pause := s.pollInterval
			if remaining < pause {
				pause = remaining
			}

			select {
			case <-s.stopCh:
				// The server must not be detached before its draining
				// timeout has elapsed. Leave the record at the draining
				// step; another worker resumes the wait.
				return fmt.Errorf("%w while draining server %v", errShutdown,
					job.ServerID)
			case <-time.After(pause):
			}

			s.touchJob(job)
		}
	}

	for _, lb := range lbs {
		lb := lb
		err := s.withRetry(job, "detach-lb", func() error {
			return s.provider.DetachLoadBalancer(job.ServerID, lb)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// persistStep writes the advanced job record back through the conditional
// write primitive, folding in a cancellation flag set concurrently by the
// convergence controller.
func (s *Supervisor) persistStep(job *structs.Job) error {
	for attempt := 0; attempt < jobPersistRetryLimit; attempt++ {
		ok, err := s.consul.WriteJob(job)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		current, err := s.consul.ReadJob(job.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("job record %v disappeared mid-flight", job.ID)
		}

		job.Version = current.Version
		if current.Cancelled {
			job.Cancelled = true
		}
	}

	return fmt.Errorf("unable to persist step %v of job %v after repeated "+
		"write conflicts", job.Step, job.ID)
}

// touchJob refreshes the heartbeat on a job record while its runner sits
// inside a long provider wait. Failure is tolerated; the next refresh or
// step write catches the record up. A write conflict folds in a
// cancellation flag set concurrently by the convergence controller.
func (s *Supervisor) touchJob(job *structs.Job) {
	ok, err := s.consul.WriteJob(job)
	if err != nil {
		logging.Warning("core/supervisor: unable to refresh the heartbeat "+
			"of job %v: %v", job.ID, err)
		return
	}
	if ok {
		return
	}

	current, err := s.consul.ReadJob(job.ID)
	if err != nil || current == nil {
		return
	}

	job.Version = current.Version
	if current.Cancelled {
		job.Cancelled = true
	}
	if _, err := s.consul.WriteJob(job); err != nil {
		logging.Warning("core/supervisor: unable to refresh the heartbeat "+
			"of job %v: %v", job.ID, err)
	}
}

// withRetry invokes a provider call with bounded exponential backoff on
// transient failure, tracking the attempt count on the job record. The
// call is never retried once it has been confirmed to take effect; create
// submissions stay safe under retry through the provider side client
// token.
func (s *Supervisor) withRetry(job *structs.Job, op string, fn func() error) error {
	threshold := s.config.RetryThreshold
	if threshold < 1 {
		threshold = 1
	}

	backoff := retryBackoffBase
	var err error

	for attempt := 1; attempt <= threshold; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		job.Attempts++
		metrics.IncrCounter([]string{"supervisor", "retry"}, 1)
		logging.Warning("core/supervisor: %v failed for job %v (attempt "+
			"%v/%v): %v", op, job.ID, attempt, threshold, err)

		if attempt == threshold {
			break
		}

		select {
		case <-s.stopCh:
			return fmt.Errorf("%w during %v for job %v", errShutdown, op, job.ID)
		case <-time.After(backoff):
		}

		if backoff < retryBackoffCap {
			backoff *= 2
		}
	}

	return fmt.Errorf("%v exhausted its retry budget for job %v: %v", op,
		job.ID, err)
}

// failJob records a terminal job failure: the pending reservation is
// released, the group transitions to ERROR with the fault message, the
// configured notifiers fire and the job record is removed now that the
// failure has been accounted for.
func (s *Supervisor) failJob(job *structs.Job, cause error) {
	logging.Error("core/supervisor: job %v (%v) for group %v failed "+
		"permanently: %v", job.ID, job.Kind, job.Group, cause)
	metrics.IncrCounter([]string{"supervisor", "job", "failed"}, 1)

	message := fmt.Sprintf("job %v (%v) failed: %v", job.ID, job.Kind, cause)

	err := s.updateGroupState(job.Group, func(state *structs.GroupState) {
		delete(state.Pending, job.ID)
		state.SetError(message)
	})
	if err != nil {
		logging.Error("core/supervisor: unable to record the failure of job "+
			"%v in group state: %v", job.ID, err)
		return
	}

	s.sendFailureNotification(job.Group, message, job.ServerID)

	if err := s.consul.DeleteJob(job.ID); err != nil {
		logging.Error("core/supervisor: unable to remove the record of "+
			"failed job %v: %v", job.ID, err)
	}
}
