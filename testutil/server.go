package testutil

import (
	"testing"

	"github.com/hashicorp/consul/sdk/testutil"

	"github.com/rackerlabs/otter-sub001/client"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// MakeConfigWithConsul starts a throwaway Consul test server and returns a
// configuration wired against it. The caller owns the returned server and
// must stop it.
func MakeConfigWithConsul(t *testing.T) (*structs.Config, *testutil.TestServer) {

	srv, err := testutil.NewTestServerConfigT(t, nil)
	if err != nil {
		t.Fatalf("failed to start test consul server: %v", err)
	}

	consulClient, err := client.NewConsulClient(srv.HTTPAddr, "", "otter")
	if err != nil {
		srv.Stop()
		t.Fatalf("failed to build consul client: %v", err)
	}

	config := &structs.Config{
		Consul:        srv.HTTPAddr,
		ConsulKeyRoot: "otter",
		ConsulClient:  consulClient,
		Notification:  &structs.Notification{},
	}

	return config, srv
}
