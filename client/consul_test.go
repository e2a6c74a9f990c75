package client

import (
	"reflect"
	"testing"
	"time"

	"github.com/hashicorp/consul/sdk/testutil"

	"github.com/rackerlabs/otter-sub001/otter/structs"
)

func makeTestClient(t *testing.T) (structs.ConsulClient, *testutil.TestServer) {
	srv, err := testutil.NewTestServerConfigT(t, nil)
	if err != nil {
		t.Fatalf("failed to start test consul server: %v", err)
	}

	consul, err := NewConsulClient(srv.HTTPAddr, "", "otter")
	if err != nil {
		srv.Stop()
		t.Fatalf("failed to build consul client: %v", err)
	}

	return consul, srv
}

func TestClient_GroupRoundTrip(t *testing.T) {
	t.Parallel()

	consul, srv := makeTestClient(t)
	defer srv.Stop()

	id := structs.GroupID{Tenant: "t1", ID: "g1"}

	config := &structs.GroupConfig{
		Name:        "cache",
		Cooldown:    60,
		MinEntities: 1,
		MaxEntities: 10,
	}
	if err := consul.WriteGroupConfig(id, config); err != nil {
		t.Fatalf("error writing group config: %v", err)
	}

	launch := &structs.LaunchConfig{
		Type: structs.LaunchTypeServer,
		Args: map[string]interface{}{"image": "ubuntu-22.04"},
	}
	if err := consul.WriteLaunchConfig(id, launch); err != nil {
		t.Fatalf("error writing launch config: %v", err)
	}

	group, err := consul.ReadGroup(id)
	if err != nil {
		t.Fatalf("error reading group: %v", err)
	}

	if !reflect.DeepEqual(group.Config, config) {
		t.Fatalf("expected \n%#v\n\n, got \n\n%#v\n\n", config, group.Config)
	}
	if !reflect.DeepEqual(group.Launch, launch) {
		t.Fatalf("expected \n%#v\n\n, got \n\n%#v\n\n", launch, group.Launch)
	}

	groups, err := consul.ListGroups()
	if err != nil {
		t.Fatalf("error listing groups: %v", err)
	}
	if len(groups) != 1 || groups[0] != id {
		t.Fatalf("expected [%v] got %v", id, groups)
	}
}

func TestClient_GroupStateCheckAndSet(t *testing.T) {
	t.Parallel()

	consul, srv := makeTestClient(t)
	defer srv.Stop()

	id := structs.GroupID{Tenant: "t1", ID: "g1"}

	state := structs.NewGroupState()
	state.DesiredCapacity = 2

	ok, err := consul.WriteGroupState(id, state)
	if err != nil || !ok {
		t.Fatalf("expected the initial state write to succeed, got %v, %v", ok, err)
	}

	fresh, err := consul.ReadGroupState(id)
	if err != nil {
		t.Fatalf("error reading group state: %v", err)
	}
	if fresh.DesiredCapacity != 2 || fresh.Version == 0 {
		t.Fatalf("unexpected state record %#v", fresh)
	}

	// A write carrying the current version succeeds; replaying the same
	// stale version afterwards must be refused.
	fresh.DesiredCapacity = 3
	if ok, err := consul.WriteGroupState(id, fresh); err != nil || !ok {
		t.Fatalf("expected the conditional write to succeed, got %v, %v", ok, err)
	}

	if ok, _ := consul.WriteGroupState(id, fresh); ok {
		t.Fatal("expected the stale conditional write to be refused")
	}
}

func TestClient_JobRoundTrip(t *testing.T) {
	t.Parallel()

	consul, srv := makeTestClient(t)
	defer srv.Stop()

	job := &structs.Job{
		ID:      "7b0a2c6e",
		Group:   structs.GroupID{Tenant: "t1", ID: "g1"},
		Kind:    structs.JobKindCreate,
		Step:    structs.StepSubmitCreate,
		Created: time.Now(),
	}

	if ok, err := consul.WriteJob(job); err != nil || !ok {
		t.Fatalf("expected the initial job write to succeed, got %v, %v", ok, err)
	}

	jobs, err := consul.ListJobs()
	if err != nil {
		t.Fatalf("error listing jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Fatalf("expected the written job to be listed, got %v", jobs)
	}

	if err := consul.DeleteJob(job.ID); err != nil {
		t.Fatalf("error deleting job: %v", err)
	}

	gone, err := consul.ReadJob(job.ID)
	if err != nil {
		t.Fatalf("error reading deleted job: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected the deleted job to be gone, got %#v", gone)
	}
}

func TestClient_WebhookLookup(t *testing.T) {
	t.Parallel()

	consul, srv := makeTestClient(t)
	defer srv.Stop()

	webhook := &structs.Webhook{
		ID:             "wh1",
		Group:          structs.GroupID{Tenant: "t1", ID: "g1"},
		PolicyID:       "p1",
		CapabilityHash: "0f5a9c3d7e214b86",
	}
	if err := consul.WriteWebhook(webhook); err != nil {
		t.Fatalf("error writing webhook: %v", err)
	}

	found, err := consul.FindWebhook(webhook.CapabilityHash)
	if err != nil {
		t.Fatalf("error finding webhook: %v", err)
	}
	if !reflect.DeepEqual(found, webhook) {
		t.Fatalf("expected \n%#v\n\n, got \n\n%#v\n\n", webhook, found)
	}

	missing, err := consul.FindWebhook("not-a-hash")
	if err != nil {
		t.Fatalf("error on unknown hash lookup: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected no webhook for an unknown hash, got %#v", missing)
	}
}
