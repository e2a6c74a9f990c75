package structs

import (
	"reflect"
	"testing"
)

func TestStructs_ConfigMerge(t *testing.T) {
	c := &Config{
		Consul:             "localhost:8500",
		ConsulKeyRoot:      "otter",
		LogLevel:           "INFO",
		BindAddress:        "127.0.0.1",
		HTTPPort:           "8000",
		RPCPort:            8001,
		SelfHealInterval:   300,
		ScheduleInterval:   30,
		JobSweepInterval:   60,
		OrphanJobAge:       120,
		LockWait:           10,
		ScalingConcurrency: 10,
		RetryThreshold:     3,
		Provider:           map[string]string{"provider": "aws"},
		Telemetry:          &Telemetry{},
		Notification:       &Notification{},
	}

	partialConfig := &Config{
		Consul:           "consul.rackspace.systems",
		ConsulToken:      "afb3bc3a-6acd-11e7-b70c-784f43a63381",
		LogLevel:         "ERROR",
		SelfHealInterval: 120,
		Provider: map[string]string{
			"provider": "aws",
			"region":   "us-east-1",
		},
		Telemetry: &Telemetry{
			StatsdAddress: "8.8.8.8:8125",
		},
		Notification: &Notification{
			DeploymentIdentifier: "otter-prod",
			PagerDutyServiceKey:  "onlyopsoncall",
		},
	}

	expected := &Config{
		Consul:             "consul.rackspace.systems",
		ConsulKeyRoot:      "otter",
		ConsulToken:        "afb3bc3a-6acd-11e7-b70c-784f43a63381",
		LogLevel:           "ERROR",
		BindAddress:        "127.0.0.1",
		HTTPPort:           "8000",
		RPCPort:            8001,
		SelfHealInterval:   120,
		ScheduleInterval:   30,
		JobSweepInterval:   60,
		OrphanJobAge:       120,
		LockWait:           10,
		ScalingConcurrency: 10,
		RetryThreshold:     3,
		Provider: map[string]string{
			"provider": "aws",
			"region":   "us-east-1",
		},
		Telemetry: &Telemetry{
			StatsdAddress: "8.8.8.8:8125",
		},
		Notification: &Notification{
			DeploymentIdentifier: "otter-prod",
			PagerDutyServiceKey:  "onlyopsoncall",
		},
	}

	merged := c.Merge(partialConfig)
	if !reflect.DeepEqual(merged, expected) {
		t.Fatalf("expected \n%#v\n\n, got \n\n%#v\n\n", expected, merged)
	}
}
