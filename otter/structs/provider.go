package structs

import "time"

// Provider reported server states.
const (
	ServerStateBuilding = "building"
	ServerStateActive   = "active"
	ServerStateError    = "error"
)

// ServerStatus is the provider's view of one server.
type ServerStatus struct {
	// State is one of the ServerState constants.
	State string

	// ServerID is the provider assigned server identifier.
	ServerID string

	// Created is the provider reported creation time.
	Created time.Time

	// Fault carries the provider's fault message when State is error.
	Fault string
}

// ScalingProvider provides a standardized interface for implementing
// server lifecycle support across different cloud providers. Every call is
// independently retryable; create submissions are keyed by a client token
// so duplicate submissions with the same intent never double-create.
type ScalingProvider interface {
	// CreateServer submits a create request built from the launch
	// blueprint, tagging the server with its owning group. The returned
	// reference is used for status polling. The client token makes the
	// submission idempotent provider side.
	CreateServer(group GroupID, launch *LaunchConfig, clientToken string) (string, error)

	// ServerStatus polls the provider for the state of a previously
	// submitted create request.
	ServerStatus(providerRef string) (*ServerStatus, error)

	// DeleteServer deletes a server. Deleting a server that is already
	// gone is not an error.
	DeleteServer(serverID string) error

	// ListServers returns the provider's authoritative view of the servers
	// belonging to a group, used for drift detection.
	ListServers(group GroupID) ([]ActiveServer, error)

	// AttachLoadBalancer registers a server with a load balancer.
	AttachLoadBalancer(serverID string, lb LoadBalancerSpec) error

	// SetNodeDraining places a server's load balancer node in connection
	// draining mode with the given timeout in seconds.
	SetNodeDraining(serverID string, lb LoadBalancerSpec, timeout int) error

	// DetachLoadBalancer deregisters a server from a load balancer.
	DetachLoadBalancer(serverID string, lb LoadBalancerSpec) error
}
