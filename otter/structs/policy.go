package structs

import (
	"fmt"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// ScalingPolicy describes a user declared capacity adjustment. Exactly one
// of the three adjustment modes must be set per policy.
type ScalingPolicy struct {
	// ID is the unique identifier of the policy within its group.
	ID string `json:"id"`

	// Name is a human friendly identifier for the policy.
	Name string `json:"name"`

	// Change adjusts desired capacity by an absolute number of servers.
	Change *int `json:"change,omitempty"`

	// ChangePercent adjusts desired capacity by a percentage of the current
	// total, with rounding always moving the magnitude away from zero.
	ChangePercent *float64 `json:"change_percent,omitempty"`

	// DesiredCapacity sets the desired capacity to an absolute target.
	DesiredCapacity *int `json:"desired_capacity,omitempty"`

	// Cooldown is the number of seconds which must pass between successive
	// executions of this policy.
	Cooldown int `json:"cooldown"`

	// Schedule optionally drives the policy from a cron expression or a
	// fixed timestamp instead of a webhook.
	Schedule *Schedule `json:"schedule,omitempty"`
}

// Schedule describes when a schedule driven policy fires. Either Cron or At
// is set, never both.
type Schedule struct {
	// Cron is a standard five field cron expression.
	Cron string `json:"cron,omitempty"`

	// At fires the policy exactly once at the given timestamp.
	At *time.Time `json:"at,omitempty"`
}

// Validate checks a scaling policy document, accumulating every violation.
// Policies which fail validation are rejected at the boundary and never
// reach the convergence controller.
func (p *ScalingPolicy) Validate() error {
	var mErr *multierror.Error

	modes := 0
	if p.Change != nil {
		modes++
	}
	if p.ChangePercent != nil {
		modes++
	}
	if p.DesiredCapacity != nil {
		modes++
	}

	if modes != 1 {
		mErr = multierror.Append(mErr, fmt.Errorf(
			"exactly one of change, change_percent or desired_capacity must "+
				"be set, found %v", modes))
	}

	if p.DesiredCapacity != nil && *p.DesiredCapacity < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf(
			"desired_capacity must not be negative, got %v", *p.DesiredCapacity))
	}

	if p.Cooldown < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf(
			"cooldown must not be negative, got %v", p.Cooldown))
	}

	if p.Schedule != nil {
		if p.Schedule.Cron != "" && p.Schedule.At != nil {
			mErr = multierror.Append(mErr, fmt.Errorf(
				"a schedule may set either cron or at, not both"))
		}
		if p.Schedule.Cron == "" && p.Schedule.At == nil {
			mErr = multierror.Append(mErr, fmt.Errorf(
				"a schedule must set one of cron or at"))
		}
	}

	return mErr.ErrorOrNil()
}

// Webhook binds an unguessable capability hash to a scaling policy.
// Possession of the hash alone authorizes execution of the bound policy; the
// hash is generated at creation time and is immutable.
type Webhook struct {
	// ID is the unique identifier of the webhook.
	ID string `json:"id"`

	// Group identifies the scaling group owning the bound policy.
	Group GroupID `json:"group"`

	// PolicyID identifies the policy this webhook executes.
	PolicyID string `json:"policy_id"`

	// CapabilityHash is the random token which authorizes execution.
	CapabilityHash string `json:"capability_hash"`
}
