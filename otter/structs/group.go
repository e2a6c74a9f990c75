package structs

import (
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"

	"github.com/rackerlabs/otter-sub001/helper"
)

// Launch blueprint types supported by the daemon. The launch arguments are
// opaque to the convergence controller and are only interpreted by the
// scaling provider.
const (
	LaunchTypeServer = "launch_server"
	LaunchTypeStack  = "launch_stack"
)

// GroupID uniquely identifies a scaling group within a tenant.
type GroupID struct {
	Tenant string `json:"tenant"`
	ID     string `json:"id"`
}

// Key returns the flattened identifier used for KV paths, lock keys and
// partition hashing.
func (g GroupID) Key() string {
	return g.Tenant + "/" + g.ID
}

// String implements the Stringer interface for log output.
func (g GroupID) String() string {
	return g.Key()
}

// GroupConfig is the user declared scaling configuration of a group. Every
// mutation of this document is a trigger for re-evaluation of the group.
type GroupConfig struct {
	// Name is a human friendly identifier for the scaling group.
	Name string `json:"name"`

	// Cooldown is the number of seconds after an effective scaling action
	// completes before another policy driven action can begin.
	Cooldown int `json:"cooldown"`

	// MinEntities is the minimum number of servers the group may hold.
	MinEntities int `json:"min_entities"`

	// MaxEntities is the maximum number of servers the group may hold.
	MaxEntities int `json:"max_entities"`

	// Metadata is free-form operator metadata carried on the group.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks a group configuration document for internal consistency
// and returns an accumulated error describing every violation found.
func (c *GroupConfig) Validate() error {
	var mErr *multierror.Error

	if c.MinEntities < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf(
			"min_entities must not be negative, got %v", c.MinEntities))
	}

	if c.MaxEntities < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf(
			"max_entities must not be negative, got %v", c.MaxEntities))
	}

	if c.MinEntities > c.MaxEntities {
		mErr = multierror.Append(mErr, fmt.Errorf(
			"min_entities %v is greater than max_entities %v",
			c.MinEntities, c.MaxEntities))
	}

	if c.Cooldown < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf(
			"cooldown must not be negative, got %v", c.Cooldown))
	}

	return mErr.ErrorOrNil()
}

// LaunchConfig is the blueprint used when launching new servers into a
// group. The args payload is forwarded verbatim to the scaling provider and
// is overwritten wholesale on update, never merged.
type LaunchConfig struct {
	// Type is the blueprint type, one of the LaunchType constants.
	Type string `json:"type"`

	// Args holds the provider specific launch arguments such as image,
	// flavor, networks and load balancer attachments.
	Args map[string]interface{} `json:"args"`
}

// Validate checks the launch configuration at the boundary. The args
// payload itself is deliberately not interpreted here.
func (l *LaunchConfig) Validate() error {
	if !helper.StringInList([]string{LaunchTypeServer, LaunchTypeStack}, l.Type) {
		return fmt.Errorf("unknown launch configuration type %q", l.Type)
	}

	if l.Args == nil {
		return fmt.Errorf("launch configuration args must be present")
	}

	return nil
}

// LoadBalancerSpec describes a load balancer a launched server should be
// attached to, including the optional connection draining timeout honoured
// before the server is deleted.
type LoadBalancerSpec struct {
	Name            string `mapstructure:"name"`
	Port            int    `mapstructure:"port"`
	DrainingTimeout int    `mapstructure:"draining_timeout"`
}

// LoadBalancers decodes the load balancer attachments from the launch args,
// if any are configured. A malformed document is reported rather than
// silently dropped so operators can correct the blueprint.
func (l *LaunchConfig) LoadBalancers() ([]LoadBalancerSpec, error) {
	raw, ok := l.Args["load_balancers"]
	if !ok {
		return nil, nil
	}

	var specs []LoadBalancerSpec
	if err := mapstructure.WeakDecode(raw, &specs); err != nil {
		return nil, fmt.Errorf("unable to decode load balancer attachments "+
			"from the launch configuration: %v", err)
	}

	return specs, nil
}

// ScalingGroup ties together the configuration, launch blueprint and
// observed state of one autoscaling group as read from the state store.
type ScalingGroup struct {
	ID     GroupID
	Config *GroupConfig
	Launch *LaunchConfig
	State  *GroupState
}
