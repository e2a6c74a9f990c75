package structs

import "time"

// Job operation kinds.
const (
	JobKindCreate = "create"
	JobKindDelete = "delete"
)

// Job steps. Each step is persisted before the work it names is considered
// complete, so any worker can resume an orphaned job from its recorded step
// without repeating provider side effects.
const (
	// StepSubmitCreate submits the create request to the provider, keyed by
	// the job ID so duplicate submissions are detected provider side.
	StepSubmitCreate = "submit-create"

	// StepPollServer polls the provider until the server is active or the
	// provider reports a fault.
	StepPollServer = "poll-server"

	// StepAttachLB attaches the new server to the configured load
	// balancers.
	StepAttachLB = "attach-lb"

	// StepDrainLB places the server's load balancer nodes in draining mode
	// and waits out the configured draining timeout.
	StepDrainLB = "drain-lb"

	// StepDeleteServer deletes the server from the provider.
	StepDeleteServer = "delete-server"
)

// Job is the ephemeral record of one in-flight provider operation. Job
// records are persisted in the state store so they survive the crash of the
// worker that created them; jobs are owned by groups, not workers.
type Job struct {
	// ID is the unique job identifier, also used as the provider side
	// idempotency token for create submissions.
	ID string `json:"id"`

	// Group identifies the scaling group the job operates on.
	Group GroupID `json:"group"`

	// Kind is one of the JobKind constants.
	Kind string `json:"kind"`

	// Step is the last persisted step of the job state machine.
	Step string `json:"step"`

	// ServerID is the target server identifier. For delete jobs it is set
	// at dispatch; for create jobs it is recorded once the provider has
	// assigned one.
	ServerID string `json:"server_id,omitempty"`

	// ProviderRef is the provider request reference returned by the create
	// submission, used for status polling.
	ProviderRef string `json:"provider_ref,omitempty"`

	// Launch is the blueprint snapshot create jobs run with, so a job
	// remains executable by any worker even if the group's launch
	// configuration is rewritten mid-flight.
	Launch *LaunchConfig `json:"launch,omitempty"`

	// Cancelled marks a create job whose pending reservation was selected
	// as a scale-in victim. The job runner tears down rather than attaches.
	Cancelled bool `json:"cancelled,omitempty"`

	// Attempts counts provider call retries for the current step.
	Attempts int `json:"attempts"`

	// Created is the dispatch time of the job.
	Created time.Time `json:"created"`

	// Touched is the liveness heartbeat used for orphan detection.
	Touched time.Time `json:"touched"`

	// Version is the state store modify index backing conditional writes.
	Version uint64 `json:"-"`
}
