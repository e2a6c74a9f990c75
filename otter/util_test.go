package otter

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// fakeConsulClient is an in-memory state store and coordination service
// with the same conditional write semantics as the Consul backed client.
type fakeConsulClient struct {
	mu sync.Mutex

	groups   map[string]*structs.ScalingGroup
	states   map[string]*structs.GroupState
	versions map[string]uint64

	policies map[string]map[string]*structs.ScalingPolicy
	webhooks map[string]*structs.Webhook

	jobs        map[string]*structs.Job
	jobVersions map[string]uint64
	jobCounter  uint64

	locks map[string]string

	workers []string
}

func newFakeConsulClient() *fakeConsulClient {
	return &fakeConsulClient{
		groups:      make(map[string]*structs.ScalingGroup),
		states:      make(map[string]*structs.GroupState),
		versions:    make(map[string]uint64),
		policies:    make(map[string]map[string]*structs.ScalingPolicy),
		webhooks:    make(map[string]*structs.Webhook),
		jobs:        make(map[string]*structs.Job),
		jobVersions: make(map[string]uint64),
		locks:       make(map[string]string),
	}
}

func copyState(state *structs.GroupState) *structs.GroupState {
	dup := *state
	dup.Active = make(map[string]structs.ActiveServer, len(state.Active))
	for k, v := range state.Active {
		dup.Active[k] = v
	}
	dup.Pending = make(map[string]time.Time, len(state.Pending))
	for k, v := range state.Pending {
		dup.Pending[k] = v
	}
	dup.PolicyExecutions = make(map[string]time.Time, len(state.PolicyExecutions))
	for k, v := range state.PolicyExecutions {
		dup.PolicyExecutions[k] = v
	}
	dup.ScheduleExecutions = make(map[string]time.Time, len(state.ScheduleExecutions))
	for k, v := range state.ScheduleExecutions {
		dup.ScheduleExecutions[k] = v
	}
	dup.Errors = append([]string(nil), state.Errors...)
	return &dup
}

func copyJob(job *structs.Job) *structs.Job {
	dup := *job
	return &dup
}

// setGroup seeds a group document and its state record.
func (f *fakeConsulClient) setGroup(group *structs.ScalingGroup) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := group.ID.Key()
	f.groups[key] = group
	if group.State == nil {
		group.State = structs.NewGroupState()
	}
	f.versions[key]++
	stored := copyState(group.State)
	f.states[key] = stored
}

func (f *fakeConsulClient) CreateSession(ttl int, renewChan chan struct{}) (string, error) {
	return "fake-session", nil
}

func (f *fakeConsulClient) DestroySession(session string) error {
	return nil
}

// AcquireLock blocks on a contended lock until the holder releases it or
// the wait window elapses, matching the session lock semantics of the
// Consul backed client.
func (f *fakeConsulClient) AcquireLock(group structs.GroupID, session string,
	wait time.Duration) (bool, error) {

	key := group.Key()
	deadline := time.Now().Add(wait)

	for {
		f.mu.Lock()
		holder, held := f.locks[key]
		if !held || holder == session {
			f.locks[key] = session
			f.mu.Unlock()
			return true, nil
		}
		f.mu.Unlock()

		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(time.Millisecond)
	}
}

// lockHeld reports whether any session currently holds the group lock.
func (f *fakeConsulClient) lockHeld(group structs.GroupID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, held := f.locks[group.Key()]
	return held
}

func (f *fakeConsulClient) ReleaseLock(group structs.GroupID, session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.locks, group.Key())
	return nil
}

func (f *fakeConsulClient) RegisterWorker(workerID, session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.workers = append(f.workers, workerID)
	sort.Strings(f.workers)
	return nil
}

func (f *fakeConsulClient) WatchWorkers(updateCh chan []string, stopCh chan struct{}) {
	f.mu.Lock()
	workers := append([]string(nil), f.workers...)
	f.mu.Unlock()

	select {
	case updateCh <- workers:
	case <-stopCh:
	}
}

func (f *fakeConsulClient) ListGroups() ([]structs.GroupID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]structs.GroupID, 0, len(f.groups))
	for _, group := range f.groups {
		ids = append(ids, group.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Key() < ids[j].Key() })
	return ids, nil
}

func (f *fakeConsulClient) ReadGroup(id structs.GroupID) (*structs.ScalingGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	group, ok := f.groups[id.Key()]
	if !ok {
		return nil, fmt.Errorf("group %v is not known", id)
	}

	dup := *group
	dup.State = copyState(f.states[id.Key()])
	dup.State.Version = f.versions[id.Key()]
	return &dup, nil
}

func (f *fakeConsulClient) ReadGroupState(id structs.GroupID) (*structs.GroupState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.states[id.Key()]
	if !ok {
		return nil, fmt.Errorf("group %v is not known", id)
	}

	dup := copyState(state)
	dup.Version = f.versions[id.Key()]
	return dup, nil
}

func (f *fakeConsulClient) WriteGroupState(id structs.GroupID,
	state *structs.GroupState) (bool, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	key := id.Key()
	if state.Version != f.versions[key] {
		return false, nil
	}

	f.versions[key]++
	f.states[key] = copyState(state)
	state.Version = f.versions[key]
	return true, nil
}

func (f *fakeConsulClient) WriteGroupConfig(id structs.GroupID, config *structs.GroupConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if group, ok := f.groups[id.Key()]; ok {
		group.Config = config
	}
	return nil
}

func (f *fakeConsulClient) WriteLaunchConfig(id structs.GroupID, launch *structs.LaunchConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if group, ok := f.groups[id.Key()]; ok {
		group.Launch = launch
	}
	return nil
}

func (f *fakeConsulClient) ReadPolicies(id structs.GroupID) ([]*structs.ScalingPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var policies []*structs.ScalingPolicy
	for _, policy := range f.policies[id.Key()] {
		policies = append(policies, policy)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].ID < policies[j].ID })
	return policies, nil
}

func (f *fakeConsulClient) ReadPolicy(id structs.GroupID, policyID string) (*structs.ScalingPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	policy := f.policies[id.Key()][policyID]
	return policy, nil
}

func (f *fakeConsulClient) WritePolicy(id structs.GroupID, policy *structs.ScalingPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := id.Key()
	if f.policies[key] == nil {
		f.policies[key] = make(map[string]*structs.ScalingPolicy)
	}
	f.policies[key][policy.ID] = policy
	return nil
}

func (f *fakeConsulClient) WriteWebhook(webhook *structs.Webhook) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.webhooks[webhook.CapabilityHash] = webhook
	return nil
}

func (f *fakeConsulClient) FindWebhook(capabilityHash string) (*structs.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.webhooks[capabilityHash], nil
}

func (f *fakeConsulClient) WriteJob(job *structs.Job) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, exists := f.jobVersions[job.ID]
	if job.Version != current && !(job.Version == 0 && !exists) {
		return false, nil
	}

	job.Touched = time.Now().UTC()
	f.jobCounter++
	f.jobVersions[job.ID] = f.jobCounter
	job.Version = f.jobCounter
	f.jobs[job.ID] = copyJob(job)
	return true, nil
}

func (f *fakeConsulClient) ReadJob(jobID string) (*structs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[jobID]
	if !ok {
		return nil, nil
	}
	return copyJob(job), nil
}

func (f *fakeConsulClient) ListJobs() ([]*structs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var jobs []*structs.Job
	for _, job := range f.jobs {
		jobs = append(jobs, copyJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

func (f *fakeConsulClient) DeleteJob(jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.jobs, jobID)
	delete(f.jobVersions, jobID)
	return nil
}

// fakeProvider is an in-memory scaling provider. Creates are idempotent on
// the client token, matching the real provider contract.
type fakeProvider struct {
	mu sync.Mutex

	servers map[string]*structs.ServerStatus
	deleted map[string]bool

	attached map[string][]string
	drained  map[string]int
	detached map[string][]string

	createErr error
	listed    []structs.ActiveServer
	listErr   error

	// buildingPolls makes status polls report a building server for that
	// many calls before it settles active.
	buildingPolls int

	// listGate, when set, blocks ListServers until the channel closes.
	listGate chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		servers:  make(map[string]*structs.ServerStatus),
		deleted:  make(map[string]bool),
		attached: make(map[string][]string),
		drained:  make(map[string]int),
		detached: make(map[string][]string),
	}
}

func (p *fakeProvider) CreateServer(group structs.GroupID,
	launch *structs.LaunchConfig, clientToken string) (string, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.createErr != nil {
		return "", p.createErr
	}

	ref := "srv-" + clientToken
	if _, exists := p.servers[ref]; !exists {
		p.servers[ref] = &structs.ServerStatus{
			State:    structs.ServerStateActive,
			ServerID: ref,
			Created:  time.Now().UTC(),
		}
	}
	return ref, nil
}

func (p *fakeProvider) ServerStatus(providerRef string) (*structs.ServerStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.servers[providerRef]
	if !ok {
		return nil, fmt.Errorf("unknown server reference %v", providerRef)
	}
	dup := *status
	if p.buildingPolls > 0 {
		p.buildingPolls--
		dup.State = structs.ServerStateBuilding
	}
	return &dup, nil
}

func (p *fakeProvider) setBuildingPolls(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buildingPolls = n
}

func (p *fakeProvider) DeleteServer(serverID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.deleted[serverID] = true
	delete(p.servers, serverID)
	return nil
}

func (p *fakeProvider) ListServers(group structs.GroupID) ([]structs.ActiveServer, error) {
	p.mu.Lock()
	gate := p.listGate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]structs.ActiveServer(nil), p.listed...), nil
}

func (p *fakeProvider) AttachLoadBalancer(serverID string, lb structs.LoadBalancerSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attached[serverID] = append(p.attached[serverID], lb.Name)
	return nil
}

func (p *fakeProvider) SetNodeDraining(serverID string, lb structs.LoadBalancerSpec, timeout int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.drained[serverID] = timeout
	return nil
}

func (p *fakeProvider) DetachLoadBalancer(serverID string, lb structs.LoadBalancerSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.detached[serverID] = append(p.detached[serverID], lb.Name)
	return nil
}

func (p *fakeProvider) wasDeleted(serverID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.deleted[serverID]
}

// testConfig wires a fake consul client and a fake provider into a
// configuration with short timers.
func testConfig(consul *fakeConsulClient, provider *fakeProvider) *structs.Config {
	return &structs.Config{
		LockWait:           1,
		ScalingConcurrency: 4,
		RetryThreshold:     1,
		OrphanJobAge:       1,
		ConsulClient:       consul,
		ScalingProvider:    provider,
		Notification:       &structs.Notification{},
	}
}

func testGroup(min, max int) *structs.ScalingGroup {
	return &structs.ScalingGroup{
		ID: structs.GroupID{Tenant: "t1", ID: "g1"},
		Config: &structs.GroupConfig{
			Name:        "web",
			Cooldown:    0,
			MinEntities: min,
			MaxEntities: max,
		},
		Launch: &structs.LaunchConfig{
			Type: structs.LaunchTypeServer,
			Args: map[string]interface{}{
				"image":  "ami-123456",
				"flavor": "t2.small",
			},
		},
		State: structs.NewGroupState(),
	}
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %v", what)
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
