package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	metrics "github.com/armon/go-metrics"
	consul "github.com/hashicorp/consul/api"

	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// The client object is a wrapper to the Consul client provided by the
// Consul API library. The KV store with check-and-set writes backs group
// documents and job records; sessions back locks and worker membership.
type consulClient struct {
	consul  *consul.Client
	keyRoot string
}

// NewConsulClient is used to construct a new Consul client using the
// default configuration and supporting the ability to specify a Consul API
// address endpoint in the form of address:port.
func NewConsulClient(addr, token, keyRoot string) (structs.ConsulClient, error) {
	config := consul.DefaultConfig()
	config.Address = addr

	if token != "" {
		config.Token = token
	}

	c, err := consul.NewClient(config)
	if err != nil {
		return nil, err
	}

	return &consulClient{
		consul:  c,
		keyRoot: strings.TrimSuffix(keyRoot, "/"),
	}, nil
}

// groupKey builds the KV path of one document belonging to a group.
func (c *consulClient) groupKey(id structs.GroupID, leaf string) string {
	return c.keyRoot + "/groups/" + id.Key() + "/" + leaf
}

// ListGroups enumerates every scaling group known to the state store by
// walking the group config documents under the key root.
func (c *consulClient) ListGroups() ([]structs.GroupID, error) {
	prefix := c.keyRoot + "/groups/"

	keys, _, err := c.consul.KV().Keys(prefix, "", nil)
	if err != nil {
		return nil, err
	}

	var groups []structs.GroupID
	for _, key := range keys {
		if !strings.HasSuffix(key, "/config") {
			continue
		}

		parts := strings.Split(strings.TrimPrefix(key, prefix), "/")
		if len(parts) != 3 {
			logging.Warning("client/consul: ignoring malformed group key %v", key)
			continue
		}

		groups = append(groups, structs.GroupID{Tenant: parts[0], ID: parts[1]})
	}

	return groups, nil
}

// ReadGroup reads the configuration, launch blueprint and state of a group
// from the KV store. The state record carries the modify index backing
// subsequent conditional writes. A group with no state record yet yields a
// fresh empty state at version zero.
func (c *consulClient) ReadGroup(id structs.GroupID) (*structs.ScalingGroup, error) {
	defer metrics.MeasureSince([]string{"consul", "read_group"}, time.Now())

	group := &structs.ScalingGroup{ID: id}

	config := &structs.GroupConfig{}
	found, _, err := c.readJSON(c.groupKey(id, "config"), config)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("client/consul: scaling group %v is not present "+
			"in the state store", id)
	}
	group.Config = config

	launch := &structs.LaunchConfig{}
	found, _, err = c.readJSON(c.groupKey(id, "launch"), launch)
	if err != nil {
		return nil, err
	}
	if found {
		group.Launch = launch
	}

	state, err := c.ReadGroupState(id)
	if err != nil {
		return nil, err
	}
	group.State = state

	return group, nil
}

// ReadGroupState reads only the state record of a group.
func (c *consulClient) ReadGroupState(id structs.GroupID) (*structs.GroupState, error) {
	state := structs.NewGroupState()

	found, index, err := c.readJSON(c.groupKey(id, "state"), state)
	if err != nil {
		return nil, err
	}
	if found {
		state.Version = index
	}

	return state, nil
}

// WriteGroupState performs a check-and-set write of the group state record
// against the version it was read at, returning false on conflict so the
// caller can re-read and re-apply its mutation.
func (c *consulClient) WriteGroupState(id structs.GroupID, state *structs.GroupState) (bool, error) {
	defer metrics.MeasureSince([]string{"consul", "write_state"}, time.Now())

	value, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("client/consul: an error occurred when "+
			"attempting to serialize group state for persistent storage: %v", err)
	}

	pair := &consul.KVPair{
		Key:         c.groupKey(id, "state"),
		Value:       value,
		ModifyIndex: state.Version,
	}

	ok, _, err := c.consul.KV().CAS(pair, nil)
	if err != nil {
		return false, fmt.Errorf("client/consul: an error occurred when "+
			"attempting to write group state for %v: %v", id, err)
	}

	return ok, nil
}

// WriteGroupConfig stores the group configuration document.
func (c *consulClient) WriteGroupConfig(id structs.GroupID, config *structs.GroupConfig) error {
	return c.writeJSON(c.groupKey(id, "config"), config)
}

// WriteLaunchConfig stores the launch blueprint. The document is
// overwritten wholesale, never merged.
func (c *consulClient) WriteLaunchConfig(id structs.GroupID, launch *structs.LaunchConfig) error {
	return c.writeJSON(c.groupKey(id, "launch"), launch)
}

// ReadPolicies returns every scaling policy defined for a group.
func (c *consulClient) ReadPolicies(id structs.GroupID) ([]*structs.ScalingPolicy, error) {
	prefix := c.groupKey(id, "policies") + "/"

	pairs, _, err := c.consul.KV().List(prefix, nil)
	if err != nil {
		return nil, err
	}

	var policies []*structs.ScalingPolicy
	for _, pair := range pairs {
		policy := &structs.ScalingPolicy{}
		if err := json.Unmarshal(pair.Value, policy); err != nil {
			logging.Error("client/consul: unable to deserialize scaling policy "+
				"at %v: %v", pair.Key, err)
			continue
		}
		policies = append(policies, policy)
	}

	return policies, nil
}

// ReadPolicy returns a single scaling policy of a group, or nil if the
// policy does not exist.
func (c *consulClient) ReadPolicy(id structs.GroupID, policyID string) (*structs.ScalingPolicy, error) {
	policy := &structs.ScalingPolicy{}

	found, _, err := c.readJSON(c.groupKey(id, "policies")+"/"+policyID, policy)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	return policy, nil
}

// WritePolicy stores a scaling policy document.
func (c *consulClient) WritePolicy(id structs.GroupID, policy *structs.ScalingPolicy) error {
	return c.writeJSON(c.groupKey(id, "policies")+"/"+policy.ID, policy)
}

// WriteWebhook stores a webhook record indexed by its capability hash so
// execution requests resolve with a single read.
func (c *consulClient) WriteWebhook(webhook *structs.Webhook) error {
	return c.writeJSON(c.keyRoot+"/webhooks/"+webhook.CapabilityHash, webhook)
}

// FindWebhook resolves a capability hash to its webhook record.
func (c *consulClient) FindWebhook(capabilityHash string) (*structs.Webhook, error) {
	webhook := &structs.Webhook{}

	found, _, err := c.readJSON(c.keyRoot+"/webhooks/"+capabilityHash, webhook)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	return webhook, nil
}

// readJSON reads and deserializes one KV record, reporting whether the key
// was present and the modify index it was read at.
func (c *consulClient) readJSON(key string, out interface{}) (bool, uint64, error) {
	pair, _, err := c.consul.KV().Get(key, nil)
	if err != nil {
		return false, 0, fmt.Errorf("client/consul: an error occurred while "+
			"attempting to read %v: %v", key, err)
	}
	if pair == nil {
		return false, 0, nil
	}

	if err := json.Unmarshal(pair.Value, out); err != nil {
		return false, 0, fmt.Errorf("client/consul: an error occurred while "+
			"attempting to deserialize %v: %v", key, err)
	}

	return true, pair.ModifyIndex, nil
}

// writeJSON serializes and writes one KV record unconditionally.
func (c *consulClient) writeJSON(key string, in interface{}) error {
	value, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("client/consul: an error occurred when attempting "+
			"to serialize %v for persistent storage: %v", key, err)
	}

	_, err = c.consul.KV().Put(&consul.KVPair{Key: key, Value: value}, nil)
	if err != nil {
		return fmt.Errorf("client/consul: an error occurred when attempting "+
			"to write %v: %v", key, err)
	}

	return nil
}
