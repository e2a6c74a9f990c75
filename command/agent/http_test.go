package agent

import (
	"errors"
	"net"
	"testing"

	"github.com/rackerlabs/otter-sub001/api"
	"github.com/rackerlabs/otter-sub001/otter"
	"github.com/rackerlabs/otter-sub001/otter/structs"
	"github.com/rackerlabs/otter-sub001/testutil"
)

// stubProvider satisfies the scaling provider interface for API tests
// which never reach a provider call.
type stubProvider struct{}

func (stubProvider) CreateServer(structs.GroupID, *structs.LaunchConfig, string) (string, error) {
	return "", errors.New("no provider in this test")
}

func (stubProvider) ServerStatus(string) (*structs.ServerStatus, error) {
	return nil, errors.New("no provider in this test")
}

func (stubProvider) DeleteServer(string) error {
	return errors.New("no provider in this test")
}

func (stubProvider) ListServers(structs.GroupID) ([]structs.ActiveServer, error) {
	return nil, nil
}

func (stubProvider) AttachLoadBalancer(string, structs.LoadBalancerSpec) error {
	return errors.New("no provider in this test")
}

func (stubProvider) SetNodeDraining(string, structs.LoadBalancerSpec, int) error {
	return errors.New("no provider in this test")
}

func (stubProvider) DetachLoadBalancer(string, structs.LoadBalancerSpec) error {
	return errors.New("no provider in this test")
}

// makeHTTPServer starts a worker and its HTTP API against a throwaway
// Consul server.
func makeHTTPServer(t *testing.T) (*HTTPServer, *otter.Server, func()) {
	config, consul := testutil.MakeConfigWithConsul(t)
	config.ScalingProvider = stubProvider{}
	config.BindAddress = "127.0.0.1"
	config.HTTPPort = "0"
	config.RPCAddr = &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}
	config.LockWait = 1
	config.ScalingConcurrency = 4
	config.RetryThreshold = 1
	config.OrphanJobAge = 120
	config.SelfHealInterval = 300
	config.ScheduleInterval = 300
	config.JobSweepInterval = 300

	server, err := otter.NewServer(config)
	if err != nil {
		consul.Stop()
		t.Fatalf("failed to start worker: %v", err)
	}

	agent := &Command{server: server}
	srv, err := NewHTTPServer(agent, config)
	if err != nil {
		server.Shutdown()
		consul.Stop()
		t.Fatalf("failed to start HTTP server: %v", err)
	}

	cleanup := func() {
		srv.Shutdown()
		server.Shutdown()
		consul.Stop()
	}
	return srv, server, cleanup
}

func TestHTTP_ExecutePolicyAlwaysAcknowledged(t *testing.T) {
	t.Parallel()

	srv, _, cleanup := makeHTTPServer(t)
	defer cleanup()

	client, err := api.NewClient(&api.Config{Address: "http://" + srv.Addr})
	if err != nil {
		t.Fatalf("failed to build API client: %v", err)
	}

	// A trigger against a policy that does not resolve is still
	// acknowledged; the endpoint never distinguishes unknown policies
	// from internal rejections.
	if err := client.Groups().ExecutePolicy("t1", "g1", "no-such-policy"); err != nil {
		t.Fatalf("expected the trigger acknowledged, got %v", err)
	}
}
