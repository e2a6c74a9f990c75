package otter

import (
	"math"

	"github.com/dariubs/percent"

	"github.com/rackerlabs/otter-sub001/helper"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// computeRawDelta derives the unclamped capacity adjustment implied by a
// trigger, given the current total of active and pending servers.
//
// Policy adjustments follow the declared mode: an absolute change, a
// percentage of the current total with rounding always moving the magnitude
// away from zero, or an absolute desired capacity target. A resync carries
// no explicit adjustment and only enforces the configured bounds.
func computeRawDelta(trigger *structs.Trigger, config *structs.GroupConfig,
	current int) int {

	if trigger.Policy == nil {
		return helper.Clamp(current, config.MinEntities, config.MaxEntities) - current
	}

	policy := trigger.Policy

	switch {
	case policy.Change != nil:
		return *policy.Change

	case policy.ChangePercent != nil:
		raw := percent.PercentFloat(*policy.ChangePercent, float64(current))
		return ceilAwayFromZero(raw)

	case policy.DesiredCapacity != nil:
		return *policy.DesiredCapacity - current
	}

	return 0
}

// computeTarget clamps the adjusted total to the configured bounds and
// returns both the capacity target and the effective delta the supervisor
// must realize.
func computeTarget(trigger *structs.Trigger, config *structs.GroupConfig,
	current int) (target, delta int) {

	raw := computeRawDelta(trigger, config, current)
	target = helper.Clamp(current+raw, config.MinEntities, config.MaxEntities)
	delta = target - current
	return target, delta
}

// ceilAwayFromZero rounds a fractional server count so the magnitude always
// increases; a quarter of a server to remove still removes a whole one.
func ceilAwayFromZero(f float64) int {
	if f > 0 {
		return int(math.Ceil(f))
	}
	return int(math.Floor(f))
}
