package otter

import (
	"time"

	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// cooldownPermitted checks the two independent cooldown clocks before a
// trigger is admitted: the group clock, anchored on the last effective
// scaling action, and the policy clock, anchored on the last execution of
// the triggering policy. Either clock being unexpired rejects the trigger.
//
// Schedule driven triggers bypass both clocks, and resync triggers never
// consult them since drift correction is not a policy action.
func cooldownPermitted(now time.Time, config *structs.GroupConfig,
	state *structs.GroupState, trigger *structs.Trigger) bool {

	if trigger.Kind != structs.TriggerPolicy {
		return true
	}

	groupExpiry := state.LastScalingEvent.Add(
		time.Duration(config.Cooldown) * time.Second)
	if now.Before(groupExpiry) {
		logging.Debug("core/cooldown: the group cooldown clock is unexpired "+
			"until %v, the trigger will be dropped", groupExpiry)
		return false
	}

	if trigger.Policy != nil {
		last, ok := state.PolicyExecutions[trigger.Policy.ID]
		if ok {
			policyExpiry := last.Add(
				time.Duration(trigger.Policy.Cooldown) * time.Second)
			if now.Before(policyExpiry) {
				logging.Debug("core/cooldown: the cooldown clock for policy %v "+
					"is unexpired until %v, the trigger will be dropped",
					trigger.Policy.ID, policyExpiry)
				return false
			}
		}
	}

	return true
}

// touchCooldowns advances the cooldown clocks after an effective
// convergence pass. No-op passes never reach here, so a quiescent group is
// not kept perpetually in cooldown by the self-heal sweep.
func touchCooldowns(now time.Time, state *structs.GroupState,
	trigger *structs.Trigger) {

	state.LastScalingEvent = now

	if trigger.Policy != nil {
		if state.PolicyExecutions == nil {
			state.PolicyExecutions = make(map[string]time.Time)
		}
		state.PolicyExecutions[trigger.Policy.ID] = now
	}
}
