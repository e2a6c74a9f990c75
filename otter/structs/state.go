package structs

import (
	"time"
)

// Group status values surfaced to users through the state store.
const (
	GroupStatusActive = "ACTIVE"
	GroupStatusError  = "ERROR"
)

// Trigger kinds accepted by the convergence controller.
const (
	// TriggerPolicy is a webhook or API driven policy execution.
	TriggerPolicy = "policy"

	// TriggerSchedule is a schedule driven policy execution. Schedule
	// triggers are exempt from cooldown checks.
	TriggerSchedule = "schedule"

	// TriggerResync re-derives desired state from observed state without an
	// explicit adjustment; it is issued on config changes and by the
	// periodic self-heal sweep.
	TriggerResync = "resync"
)

// Trigger describes one convergence request for a group.
type Trigger struct {
	// Kind is one of the Trigger constants.
	Kind string

	// Policy is the resolved scaling policy for policy and schedule
	// triggers, and nil for resync triggers.
	Policy *ScalingPolicy

	// ScheduleKey identifies the content of a one-shot scheduled policy.
	// It is set only for one-shot schedule triggers; the convergence pass
	// commits it into the group state so the execution is recorded
	// durably rather than in any single worker's memory.
	ScheduleKey string
}

// ActiveServer records one provider assigned server currently in service
// within a group.
type ActiveServer struct {
	// ID is the provider assigned server identifier.
	ID string `json:"id"`

	// Created is the provider reported creation time, used to select the
	// oldest servers first during scale-in.
	Created time.Time `json:"created"`
}

// GroupState is the observed state of one scaling group. It is mutated
// exclusively by the convergence controller and the supervisor; multi-field
// mutations happen under the group lock and every write goes through the
// state store's check-and-set primitive.
type GroupState struct {
	// Active is the set of servers currently in service, keyed by the
	// provider assigned server identifier.
	Active map[string]ActiveServer `json:"active"`

	// Pending is the set of in-flight create job identifiers which have not
	// yet resolved to a server identifier, keyed by job ID with the
	// dispatch time as the value.
	Pending map[string]time.Time `json:"pending"`

	// DesiredCapacity is the derived capacity target of the group.
	DesiredCapacity int `json:"desired_capacity"`

	// Paused indicates triggers are accepted but produce no deltas.
	Paused bool `json:"paused"`

	// Status is either ACTIVE or ERROR.
	Status string `json:"status"`

	// Errors carries human readable messages when Status is ERROR.
	Errors []string `json:"errors,omitempty"`

	// LastScalingEvent is the completion time of the last effective scaling
	// action, used for the group level cooldown clock. No-op convergence
	// passes do not advance it.
	LastScalingEvent time.Time `json:"last_scaling_event"`

	// PolicyExecutions tracks the last execution time of each policy, used
	// for the policy level cooldown clocks.
	PolicyExecutions map[string]time.Time `json:"policy_executions,omitempty"`

	// ScheduleExecutions records which one-shot scheduled policies have
	// already executed, keyed by the policy content hash. Editing an
	// executed policy changes its hash and arms it again.
	ScheduleExecutions map[string]time.Time `json:"schedule_executions,omitempty"`

	// Version is the state store modify index backing conditional writes.
	// It is transport metadata, never serialized into the record itself.
	Version uint64 `json:"-"`
}

// NewGroupState returns an initialized, empty state record.
func NewGroupState() *GroupState {
	return &GroupState{
		Active:             make(map[string]ActiveServer),
		Pending:            make(map[string]time.Time),
		Status:             GroupStatusActive,
		PolicyExecutions:   make(map[string]time.Time),
		ScheduleExecutions: make(map[string]time.Time),
	}
}

// Total returns the combined count of active servers and pending creates,
// which is the current total the delta computation works from.
func (s *GroupState) Total() int {
	return len(s.Active) + len(s.Pending)
}

// SetError transitions the group to ERROR status, recording the message for
// operators. Duplicate messages are collapsed.
func (s *GroupState) SetError(message string) {
	s.Status = GroupStatusError
	for _, existing := range s.Errors {
		if existing == message {
			return
		}
	}
	s.Errors = append(s.Errors, message)
}

// ClearError returns the group to ACTIVE status and drops any recorded
// error messages.
func (s *GroupState) ClearError() {
	s.Status = GroupStatusActive
	s.Errors = nil
}

// WorkerStatus is the membership view returned by the agent status
// endpoints.
type WorkerStatus struct {
	// Workers is the sorted list of live worker identifiers.
	Workers []string `json:"workers"`

	// WorkerID is the identifier of the worker answering the query.
	WorkerID string `json:"worker_id"`

	// OwnedGroups is the number of groups currently assigned to the
	// answering worker.
	OwnedGroups int `json:"owned_groups"`
}
