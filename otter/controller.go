package otter

import (
	"fmt"
	"time"

	metrics "github.com/armon/go-metrics"

	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// Controller is the convergence state machine. Given a group and a
// trigger it computes the capacity target, clamps it to the configured
// bounds and hands the effective delta to the supervisor, all under the
// group's distributed lock so passes for one group are totally ordered.
type Controller struct {
	config     *structs.Config
	consul     structs.ConsulClient
	provider   structs.ScalingProvider
	supervisor *Supervisor
	session    string
}

// NewController sets up the Controller. The session backs group lock
// acquisition and belongs to this worker process.
func NewController(config *structs.Config, supervisor *Supervisor,
	session string) *Controller {

	return &Controller{
		config:     config,
		consul:     config.ConsulClient,
		provider:   config.ScalingProvider,
		supervisor: supervisor,
		session:    session,
	}
}

// Converge runs one convergence pass for a group. The caller must not
// already hold the group's lock. Failure to obtain the lock inside the
// configured wait window drops the trigger silently; the next trigger or
// self-heal sweep retries. Coordination failures are never escalated to
// group ERROR.
func (c *Controller) Converge(id structs.GroupID, trigger *structs.Trigger) error {
	defer metrics.MeasureSince([]string{"controller", "converge"}, time.Now())

	lockWait := time.Duration(c.config.LockWait) * time.Second

	acquired, err := c.consul.AcquireLock(id, c.session, lockWait)
	if err != nil {
		logging.Error("core/controller: coordination failure while locking "+
			"group %v, the trigger will be dropped: %v", id, err)
		return nil
	}
	if !acquired {
		logging.Debug("core/controller: the lock for group %v was not "+
			"obtained within %v, the trigger will be dropped", id, lockWait)
		metrics.IncrCounter([]string{"controller", "lock_timeout"}, 1)
		return nil
	}
	defer func() {
		if err := c.consul.ReleaseLock(id, c.session); err != nil {
			logging.Error("core/controller: %v", err)
		}
	}()

	group, err := c.consul.ReadGroup(id)
	if err != nil {
		return err
	}
	state := group.State

	if state.Paused {
		logging.Debug("core/controller: group %v is paused, the trigger "+
			"produces no delta", id)
		return nil
	}

	now := time.Now().UTC()
	if !cooldownPermitted(now, group.Config, state, trigger) {
		metrics.IncrCounter([]string{"controller", "cooldown_rejected"}, 1)
		return nil
	}

	// The state store version of the config may have been corrupted by a
	// bad update since boundary validation; unsatisfiable bounds make
	// convergence impossible and the group surfaces ERROR.
	if err := group.Config.Validate(); err != nil {
		message := fmt.Sprintf("convergence is impossible under the current "+
			"configuration: %v", err)
		logging.Error("core/controller: group %v: %v", id, message)

		c.commit(id, state, []mutation{func(s *structs.GroupState) {
			s.SetError(message)
		}})
		c.supervisor.sendFailureNotification(id, message, "")
		return fmt.Errorf("core/controller: %v", message)
	}

	// A one-shot schedule executes at most once per policy content. The
	// execution marker is committed with the pass itself under the group
	// lock, so a worker restart or a partition move cannot replay a
	// past-due one-shot.
	if trigger.ScheduleKey != "" {
		if _, done := state.ScheduleExecutions[trigger.ScheduleKey]; done {
			logging.Debug("core/controller: the one-shot schedule of policy "+
				"%v for group %v has already executed", trigger.Policy.ID, id)
			return nil
		}
	}

	var mutations []mutation
	var launched []*structs.Job

	if trigger.ScheduleKey != "" {
		mutations = append(mutations, func(s *structs.GroupState) {
			if s.ScheduleExecutions == nil {
				s.ScheduleExecutions = make(map[string]time.Time)
			}
			s.ScheduleExecutions[trigger.ScheduleKey] = now
		})
	}

	if trigger.Kind == structs.TriggerResync {
		drift := c.reconcileDrift(group)
		mutations = append(mutations, drift...)
	}

	current := state.Total()
	target, delta := computeTarget(trigger, group.Config, current)

	mutations = append(mutations, func(s *structs.GroupState) {
		s.DesiredCapacity = target
	})

	logging.Debug("core/controller: group %v: current %v, target %v, "+
		"delta %v (trigger %v)", id, current, target, delta, trigger.Kind)

	switch {
	case delta > 0:
		var out []mutation
		out, launched = c.scaleOut(group, delta)
		mutations = append(mutations, out...)
	case delta < 0:
		mutations = append(mutations, c.scaleIn(group, -delta)...)
	}

	if delta != 0 {
		metrics.IncrCounter([]string{"controller", "scaling_action"}, 1)
		mutations = append(mutations, func(s *structs.GroupState) {
			touchCooldowns(now, s, trigger)
		})
	}

	// A pass that reaches this point leaves the group healthy; this is
	// also how an ERROR group recovers once its configuration is fixed.
	mutations = append(mutations, func(s *structs.GroupState) {
		s.ClearError()
	})

	if err := c.commit(id, state, mutations); err != nil {
		return err
	}

	// Create jobs only start once their pending reservations are durable,
	// so a completion report can never race its own reservation.
	c.supervisor.Dispatch(launched)
	return nil
}

// mutation is one idempotent edit of the group state record. Mutations are
// replayed against a freshly read state when a conditional write conflicts
// with a concurrent supervisor completion report.
type mutation func(*structs.GroupState)

// commit applies the accumulated mutations through the state store's
// check-and-set primitive.
func (c *Controller) commit(id structs.GroupID, state *structs.GroupState,
	mutations []mutation) error {

	for attempt := 0; attempt < stateUpdateRetryLimit; attempt++ {
		for _, mutate := range mutations {
			mutate(state)
		}

		ok, err := c.consul.WriteGroupState(id, state)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		logging.Debug("core/controller: state write conflict for group %v, "+
			"re-reading and retrying", id)

		state, err = c.consul.ReadGroupState(id)
		if err != nil {
			return err
		}
	}

	return fmt.Errorf("core/controller: unable to commit state for group %v "+
		"after %v conflicting writes", id, stateUpdateRetryLimit)
}

// scaleOut persists delta create jobs and records them as pending
// reservations, which happens before the group lock is released. The jobs
// themselves are dispatched by the caller after the reservations commit.
func (c *Controller) scaleOut(group *structs.ScalingGroup, delta int) ([]mutation, []*structs.Job) {
	if group.Launch == nil {
		message := "cannot launch servers: the group carries no launch configuration"
		logging.Error("core/controller: group %v: %v", group.ID, message)
		return []mutation{func(s *structs.GroupState) {
			s.SetError(message)
		}}, nil
	}

	logging.Info("core/controller: launching %v servers for group %v",
		delta, group.ID)

	jobs := c.supervisor.LaunchServers(group, delta)
	dispatched := time.Now().UTC()

	return []mutation{func(s *structs.GroupState) {
		for _, job := range jobs {
			s.Pending[job.ID] = dispatched
		}
	}}, jobs
}

// scaleIn selects victims and dispatches their removal. Pending creates
// are reclaimed first by flagging their jobs as cancelled; active servers
// leave through delete jobs, oldest first, honouring any configured load
// balancer draining timeout. Servers already targeted by an in-flight
// delete job are excluded so repeated passes do not double up.
func (c *Controller) scaleIn(group *structs.ScalingGroup, count int) []mutation {
	excluded := make(map[string]bool)
	if jobs, err := c.consul.ListJobs(); err == nil {
		for _, job := range jobs {
			if job.Group == group.ID && job.Kind == structs.JobKindDelete {
				excluded[job.ServerID] = true
			}
		}
	}

	pendingVictims, serverVictims := selectVictims(group.State, count, excluded)

	for _, jobID := range pendingVictims {
		if err := c.supervisor.CancelPending(jobID); err != nil {
			logging.Error("core/controller: %v", err)
		}
	}

	if len(serverVictims) > 0 {
		logging.Info("core/controller: deleting %v servers from group %v",
			len(serverVictims), group.ID)
		c.supervisor.DeleteServers(group, serverVictims)
	}

	// The pending reservations are released here; the cancelled jobs tear
	// down their servers without ever reporting them active. The victim
	// servers themselves stay in the active set until their delete jobs
	// report completion.
	return []mutation{func(s *structs.GroupState) {
		for _, jobID := range pendingVictims {
			delete(s.Pending, jobID)
		}
	}}
}

// reconcileDrift compares the provider's authoritative server list against
// the recorded active set and drops entries that disappeared out of band.
// Drift is not an error; the removal silently shrinks the current total so
// the clamp computation schedules replacements when the group falls below
// its minimum. A provider failure skips drift correction for this pass.
func (c *Controller) reconcileDrift(group *structs.ScalingGroup) []mutation {
	observed, err := c.provider.ListServers(group.ID)
	if err != nil {
		logging.Error("core/controller: unable to list provider servers for "+
			"group %v, drift detection skipped: %v", group.ID, err)
		return nil
	}

	known := make(map[string]bool, len(observed))
	for _, server := range observed {
		known[server.ID] = true
	}

	var vanished []string
	for id := range group.State.Active {
		if !known[id] {
			vanished = append(vanished, id)
		}
	}

	if len(vanished) == 0 {
		return nil
	}

	logging.Info("core/controller: group %v drifted, %v servers vanished "+
		"out of band: %v", group.ID, len(vanished), vanished)
	metrics.IncrCounter([]string{"controller", "drift_detected"}, 1)

	mutations := []mutation{func(s *structs.GroupState) {
		for _, id := range vanished {
			delete(s.Active, id)
		}
	}}

	// Apply immediately as well so the delta computation in this pass
	// works from the corrected total; the commit replay is an idempotent
	// re-application.
	for _, mutate := range mutations {
		mutate(group.State)
	}

	return mutations
}
