package otter

import (
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure"
	"github.com/robfig/cron/v3"

	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// scheduleTracker records the evaluation window between schedule sweeps.
// Which one-shot policies have already fired is not tracked here; that
// record lives in the group state so it survives worker restarts and
// partition moves.
type scheduleTracker struct {
	lock      sync.Mutex
	lastSweep time.Time
}

func newScheduleTracker() *scheduleTracker {
	return &scheduleTracker{}
}

// evaluateSchedules runs one schedule sweep across the groups this worker
// owns, firing a convergence pass for every schedule driven policy that
// came due since the previous sweep.
func (s *Server) evaluateSchedules() {
	now := time.Now()

	s.scheduler.lock.Lock()
	prev := s.scheduler.lastSweep
	s.scheduler.lastSweep = now
	s.scheduler.lock.Unlock()

	// The first sweep after startup only establishes the window anchor;
	// firing against a zero anchor would replay every past occurrence.
	if prev.IsZero() {
		return
	}

	groups, err := s.config.ConsulClient.ListGroups()
	if err != nil {
		logging.Error("core/scheduler: unable to enumerate scaling groups "+
			"for the schedule sweep: %v", err)
		return
	}

	for _, id := range s.partitioner.OwnedGroups(groups) {
		policies, err := s.config.ConsulClient.ReadPolicies(id)
		if err != nil {
			logging.Error("core/scheduler: unable to read the policies of "+
				"group %v: %v", id, err)
			continue
		}

		state, err := s.config.ConsulClient.ReadGroupState(id)
		if err != nil {
			logging.Error("core/scheduler: unable to read the state of "+
				"group %v: %v", id, err)
			continue
		}

		for _, policy := range policies {
			if policy.Schedule == nil {
				continue
			}
			if due, key := scheduleDue(id, policy, state, prev, now); due {
				s.fireSchedule(id, policy, key)
			}
		}
	}
}

// scheduleDue reports whether a schedule driven policy came due inside the
// evaluation window (prev, now]. For a one-shot policy the returned key
// names its content hash; the convergence pass records the key in the
// group state, and a policy whose key is already recorded is never due
// again. Editing an executed one-shot changes its hash and arms it again.
func scheduleDue(id structs.GroupID, policy *structs.ScalingPolicy,
	state *structs.GroupState, prev, now time.Time) (bool, string) {

	if policy.Schedule.Cron != "" {
		spec, err := cron.ParseStandard(policy.Schedule.Cron)
		if err != nil {
			logging.Error("core/scheduler: policy %v of group %v carries an "+
				"unparsable cron expression %q: %v", policy.ID, id,
				policy.Schedule.Cron, err)
			return false, ""
		}
		next := spec.Next(prev)
		return !next.IsZero() && !next.After(now), ""
	}

	if policy.Schedule.At != nil {
		at := *policy.Schedule.At
		if at.After(now) {
			return false, ""
		}

		hash, err := hashstructure.Hash(policy, nil)
		if err != nil {
			logging.Error("core/scheduler: unable to hash policy %v of "+
				"group %v: %v", policy.ID, id, err)
			return false, ""
		}
		key := fmt.Sprintf("%s/%s/%d", id, policy.ID, hash)

		if _, done := state.ScheduleExecutions[key]; done {
			return false, ""
		}
		return true, key
	}

	return false, ""
}

// fireSchedule runs a schedule triggered convergence pass asynchronously.
func (s *Server) fireSchedule(id structs.GroupID, policy *structs.ScalingPolicy,
	key string) {

	logging.Info("core/scheduler: policy %v of group %v has come due",
		policy.ID, id)

	go func() {
		trigger := &structs.Trigger{
			Kind:        structs.TriggerSchedule,
			Policy:      policy,
			ScheduleKey: key,
		}
		if err := s.controller.Converge(id, trigger); err != nil {
			logging.Error("core/scheduler: scheduled execution of policy %v "+
				"for group %v failed: %v", policy.ID, id, err)
		}
	}()
}
