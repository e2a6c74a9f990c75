package structs

import "time"

// The ConsulClient interface provides the method signatures for the state
// store and coordination service backing the daemon. Both concerns are
// served by Consul: the KV store with check-and-set writes is the state
// store, while sessions provide ephemeral worker membership and the
// distributed per-group locks.
type ConsulClient interface {
	// CreateSession creates a Consul session used for locking and ephemeral
	// membership, and spawns the renewal keepalive which runs until the
	// renew channel is closed.
	CreateSession(ttl int, renewChan chan struct{}) (string, error)

	// DestroySession removes the session during a graceful shutdown so
	// locks and membership entries are released without waiting for the
	// TTL to expire.
	DestroySession(session string) error

	// AcquireLock attempts to acquire the distributed lock for a group
	// using the provided session, blocking up to the wait duration. It
	// returns false if the lock could not be obtained inside the window.
	AcquireLock(group GroupID, session string, wait time.Duration) (bool, error)

	// ReleaseLock releases a previously acquired group lock.
	ReleaseLock(group GroupID, session string) error

	// RegisterWorker publishes an ephemeral membership entry for this
	// worker, bound to the session so it disappears when the worker dies.
	RegisterWorker(workerID, session string) error

	// WatchWorkers emits the sorted list of live worker identifiers on the
	// update channel every time the membership set changes, until the stop
	// channel is closed.
	WatchWorkers(updateCh chan []string, stopCh chan struct{})

	// ListGroups enumerates every scaling group known to the state store.
	ListGroups() ([]GroupID, error)

	// ReadGroup reads the configuration, launch blueprint and state of a
	// group. The state carries the modify index used for conditional
	// writes.
	ReadGroup(id GroupID) (*ScalingGroup, error)

	// ReadGroupState reads only the state record of a group.
	ReadGroupState(id GroupID) (*GroupState, error)

	// WriteGroupState writes the state record conditionally on the version
	// it was read at, returning false on conflict.
	WriteGroupState(id GroupID, state *GroupState) (bool, error)

	// WriteGroupConfig stores the group configuration document.
	WriteGroupConfig(id GroupID, config *GroupConfig) error

	// WriteLaunchConfig stores the launch blueprint, overwriting it
	// wholesale.
	WriteLaunchConfig(id GroupID, launch *LaunchConfig) error

	// ReadPolicies returns the scaling policies defined for a group.
	ReadPolicies(id GroupID) ([]*ScalingPolicy, error)

	// ReadPolicy returns a single scaling policy of a group.
	ReadPolicy(id GroupID, policyID string) (*ScalingPolicy, error)

	// WritePolicy stores a scaling policy document.
	WritePolicy(id GroupID, policy *ScalingPolicy) error

	// WriteWebhook stores a webhook record, indexed by capability hash.
	WriteWebhook(webhook *Webhook) error

	// FindWebhook resolves a capability hash to its webhook record,
	// returning nil when no webhook carries the hash.
	FindWebhook(capabilityHash string) (*Webhook, error)

	// WriteJob writes a job record conditionally on the version it was
	// read at; a version of zero creates the record only if absent.
	WriteJob(job *Job) (bool, error)

	// ReadJob reads a job record, returning nil when the record is gone.
	ReadJob(jobID string) (*Job, error)

	// ListJobs enumerates every in-flight job record.
	ListJobs() ([]*Job, error)

	// DeleteJob removes a job record on terminal completion.
	DeleteJob(jobID string) error
}
