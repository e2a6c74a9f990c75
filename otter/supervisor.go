package otter

import (
	"fmt"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/google/uuid"

	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/notifier"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

const (
	// stateUpdateRetryLimit bounds the check-and-set retry loop used for
	// group state mutations reported outside the group lock.
	stateUpdateRetryLimit = 5

	// jobPersistRetryLimit bounds the check-and-set retry loop used when
	// advancing a job record's step.
	jobPersistRetryLimit = 3
)

// Job status values reported by the supervisor.
const (
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// JobStatus is the supervisor's answer to a job status query.
type JobStatus struct {
	Status string
	Step   string
	Error  string
}

// Supervisor executes the provider operations implied by a capacity delta.
// It is homogeneous: any worker instance can execute any job, and any
// instance can adopt and finish a job it did not start by reading the job's
// recorded step. Concurrency is bounded to protect provider API rate
// limits.
type Supervisor struct {
	config   *structs.Config
	consul   structs.ConsulClient
	provider structs.ScalingProvider

	sem    chan struct{}
	stopCh chan struct{}

	// pollInterval is the pause between provider polls and heartbeat
	// refreshes inside long waits; tests shorten it.
	pollInterval time.Duration
}

// NewSupervisor sets up the Supervisor with the configured concurrency
// bound.
func NewSupervisor(config *structs.Config) *Supervisor {
	concurrency := config.ScalingConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Supervisor{
		config:       config,
		consul:       config.ConsulClient,
		provider:     config.ScalingProvider,
		sem:          make(chan struct{}, concurrency),
		stopCh:       make(chan struct{}),
		pollInterval: serverPollInterval,
	}
}

// Stop halts the supervisor's background work. In-flight provider calls
// are tracked to completion rather than aborted; a submitted create or
// delete cannot generally be cancelled provider side.
func (s *Supervisor) Stop() {
	close(s.stopCh)
}

// LaunchServers persists count create job records for the group and
// returns them without starting them. The caller records the job IDs as
// pending reservations and commits the state before dispatching, so a job
// can never report completion ahead of its own reservation. A job whose
// record cannot be persisted is not returned.
func (s *Supervisor) LaunchServers(group *structs.ScalingGroup, count int) []*structs.Job {
	jobs := make([]*structs.Job, 0, count)

	for i := 0; i < count; i++ {
		job := &structs.Job{
			ID:      uuid.New().String(),
			Group:   group.ID,
			Kind:    structs.JobKindCreate,
			Step:    structs.StepSubmitCreate,
			Launch:  group.Launch,
			Created: time.Now().UTC(),
		}

		ok, err := s.consul.WriteJob(job)
		if err != nil || !ok {
			logging.Error("core/supervisor: unable to persist create job %v "+
				"for group %v: %v", job.ID, group.ID, err)
			continue
		}

		metrics.IncrCounter([]string{"supervisor", "job", "create"}, 1)
		jobs = append(jobs, job)
	}

	return jobs
}

// Dispatch starts the runners for previously persisted job records. If the
// caller never reaches this point the records are still adopted by a later
// recovery sweep.
func (s *Supervisor) Dispatch(jobs []*structs.Job) {
	for _, job := range jobs {
		go s.runJob(job)
	}
}

// DeleteServers dispatches delete jobs for the selected victim servers.
// The launch blueprint is snapshotted onto each job so the draining
// configuration stays available to whichever worker finishes the job.
func (s *Supervisor) DeleteServers(group *structs.ScalingGroup,
	victims []structs.ActiveServer) []string {

	jobIDs := make([]string, 0, len(victims))

	for _, victim := range victims {
		job := &structs.Job{
			ID:       uuid.New().String(),
			Group:    group.ID,
			Kind:     structs.JobKindDelete,
			Step:     structs.StepDrainLB,
			ServerID: victim.ID,
			Launch:   group.Launch,
			Created:  time.Now().UTC(),
		}

		ok, err := s.consul.WriteJob(job)
		if err != nil || !ok {
			logging.Error("core/supervisor: unable to persist delete job %v "+
				"for server %v: %v", job.ID, victim.ID, err)
			continue
		}

		metrics.IncrCounter([]string{"supervisor", "job", "delete"}, 1)
		jobIDs = append(jobIDs, job.ID)
		go s.runJob(job)
	}

	return jobIDs
}

// CancelPending flags an in-flight create job whose pending reservation was
// reclaimed during scale-in. The job runner observes the flag between steps
// and tears the server down instead of placing it in service.
func (s *Supervisor) CancelPending(jobID string) error {
	for attempt := 0; attempt < jobPersistRetryLimit; attempt++ {
		job, err := s.consul.ReadJob(jobID)
		if err != nil {
			return err
		}
		if job == nil {
			// The job already reached a terminal step; the reservation has
			// resolved and the regular victim path will reclaim the server.
			return nil
		}

		job.Cancelled = true
		ok, err := s.consul.WriteJob(job)
		if err != nil {
			return err
		}
		if ok {
			logging.Info("core/supervisor: flagged create job %v as cancelled",
				jobID)
			return nil
		}
	}

	return fmt.Errorf("core/supervisor: unable to flag job %v as cancelled "+
		"after repeated write conflicts", jobID)
}

// Status reports the state of a job. A job whose record is gone has reached
// a terminal state; whether it succeeded is visible in the group state,
// which is the authoritative record of outcomes.
func (s *Supervisor) Status(jobID string) (*JobStatus, error) {
	job, err := s.consul.ReadJob(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &JobStatus{Status: JobStatusSucceeded}, nil
	}
	return &JobStatus{Status: JobStatusRunning, Step: job.Step}, nil
}

// RunRecoverySweep adopts job records orphaned by crashed workers. Any job
// whose heartbeat is older than the configured orphan age and whose group
// is owned by this worker is claimed with a conditional write, then resumed
// from its recorded step rather than restarted, so provider side effects
// are never repeated.
func (s *Supervisor) RunRecoverySweep(owns func(structs.GroupID) bool) {
	defer metrics.MeasureSince([]string{"supervisor", "recovery_sweep"}, time.Now())

	jobs, err := s.consul.ListJobs()
	if err != nil {
		logging.Error("core/supervisor: unable to list job records during "+
			"the recovery sweep: %v", err)
		return
	}

	cutoff := time.Now().Add(-time.Duration(s.config.OrphanJobAge) * time.Second)

	for _, job := range jobs {
		if job.Touched.After(cutoff) {
			continue
		}
		if !owns(job.Group) {
			continue
		}

		// Re-read before claiming; a runner heartbeat since the listing
		// means the job is live, not orphaned.
		current, err := s.consul.ReadJob(job.ID)
		if err != nil || current == nil {
			continue
		}
		if current.Touched.After(cutoff) {
			continue
		}

		// Claim the job with a conditional touch; losing the write means
		// another worker adopted it first.
		claimed, err := s.consul.WriteJob(current)
		if err != nil || !claimed {
			continue
		}

		logging.Info("core/supervisor: adopting orphaned job %v for group %v "+
			"at step %v", current.ID, current.Group, current.Step)
		metrics.IncrCounter([]string{"supervisor", "job", "adopted"}, 1)
		go s.runJob(current)
	}
}

// updateGroupState applies a mutation to the group state record through
// the state store's check-and-set primitive, re-reading and re-applying on
// conflict. This is the fine-grained safety mechanism that lets the
// supervisor report job completion without holding the group lock.
func (s *Supervisor) updateGroupState(id structs.GroupID,
	mutate func(*structs.GroupState)) error {

	for attempt := 0; attempt < stateUpdateRetryLimit; attempt++ {
		state, err := s.consul.ReadGroupState(id)
		if err != nil {
			return err
		}

		mutate(state)

		ok, err := s.consul.WriteGroupState(id, state)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		logging.Debug("core/supervisor: state write conflict for group %v, "+
			"re-reading and retrying", id)
	}

	return fmt.Errorf("core/supervisor: unable to update state for group %v "+
		"after %v conflicting writes", id, stateUpdateRetryLimit)
}

// sendFailureNotification dispatches a convergence failure to every
// configured notification backend.
func (s *Supervisor) sendFailureNotification(id structs.GroupID, reason,
	failedResource string) {

	if s.config.Notification == nil {
		return
	}

	message := notifier.FailureMessage{
		AlertUID:             s.config.Notification.AlertUID,
		DeploymentIdentifier: s.config.Notification.DeploymentIdentifier,
		GroupKey:             id.Key(),
		Reason:               reason,
		FailedResource:       failedResource,
	}

	for _, backend := range s.config.Notification.Notifiers {
		go backend.SendNotification(message)
	}
}
