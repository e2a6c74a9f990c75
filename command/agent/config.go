package agent

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rackerlabs/otter-sub001/client"
	"github.com/rackerlabs/otter-sub001/cloud"
	"github.com/rackerlabs/otter-sub001/notifier"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// LocalConsulAddress is the default local Consul agent address.
const LocalConsulAddress = "localhost:8500"

// DefaultConfig returns a default configuration struct with sane defaults.
func DefaultConfig() *structs.Config {

	return &structs.Config{
		Consul:        LocalConsulAddress,
		ConsulKeyRoot: "otter",
		LogLevel:      "INFO",
		BindAddress:   "127.0.0.1",
		HTTPPort:      "8000",
		RPCPort:       8001,

		SelfHealInterval:   300,
		ScheduleInterval:   30,
		JobSweepInterval:   60,
		OrphanJobAge:       120,
		LockWait:           10,
		ScalingConcurrency: 10,
		RetryThreshold:     3,

		Provider: map[string]string{
			"provider": "aws",
		},

		Telemetry:    &structs.Telemetry{},
		Notification: &structs.Notification{},
	}
}

// DevConfig returns a configuration struct with sane defaults for
// development and testing purposes.
func DevConfig() *structs.Config {

	return &structs.Config{
		Consul:        LocalConsulAddress,
		ConsulKeyRoot: "otter",
		LogLevel:      "DEBUG",
		BindAddress:   "127.0.0.1",
		HTTPPort:      "8000",
		RPCPort:       8001,

		SelfHealInterval:   30,
		ScheduleInterval:   10,
		JobSweepInterval:   15,
		OrphanJobAge:       30,
		LockWait:           2,
		ScalingConcurrency: 2,
		RetryThreshold:     1,

		Provider: map[string]string{
			"provider": "aws",
		},

		Telemetry:    &structs.Telemetry{},
		Notification: &structs.Notification{},
	}
}

// InitializeClients builds the backend clients the daemon depends on: the
// Consul client, the scaling provider and the notification backends. The
// RPC bind address is resolved here as well.
func InitializeClients(config *structs.Config) error {

	consulClient, err := client.NewConsulClient(
		config.Consul, config.ConsulToken, config.ConsulKeyRoot)
	if err != nil {
		return err
	}
	config.ConsulClient = consulClient

	provider, err := cloud.NewScalingProvider(config.Provider)
	if err != nil {
		return err
	}
	config.ScalingProvider = provider

	addr, err := net.ResolveTCPAddr("tcp",
		fmt.Sprintf("%s:%d", config.BindAddress, config.RPCPort))
	if err != nil {
		return fmt.Errorf("unable to resolve the RPC bind address: %v", err)
	}
	config.RPCAddr = addr

	return initializeNotifiers(config)
}

// initializeNotifiers sets up the notification backends for which the
// operator supplied credentials.
func initializeNotifiers(config *structs.Config) error {
	if config.Notification == nil {
		return nil
	}

	if config.Notification.PagerDutyServiceKey != "" {
		pd, err := notifier.NewProvider("pagerduty", map[string]string{
			"PagerDutyServiceKey": config.Notification.PagerDutyServiceKey,
		})
		if err != nil {
			return err
		}
		config.Notification.Notifiers = append(config.Notification.Notifiers, pd)
	}

	if config.Notification.OpsgenieAPIKey != "" {
		og, err := notifier.NewProvider("opsgenie", map[string]string{
			"OpsgenieAPIKey": config.Notification.OpsgenieAPIKey,
		})
		if err != nil {
			return err
		}
		config.Notification.Notifiers = append(config.Notification.Notifiers, og)
	}

	return nil
}

// LoadConfig loads the configuration at the given path whether the specified
// path is an individual file or a directory of numerous configuration files.
func LoadConfig(path string) (*structs.Config, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if fi.IsDir() {
		return LoadConfigDir(path)
	}

	cleaned := filepath.Clean(path)
	config, err := ParseConfigFile(cleaned)
	if err != nil {
		return nil, fmt.Errorf("Error loading %s: %s", cleaned, err)
	}

	return config, nil
}

// LoadConfigDir loads all the configurations in the given directory
// in lexicographic order.
func LoadConfigDir(dir string) (*structs.Config, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf(
			"configuration path must be a directory: %s", dir)
	}

	var files []string
	err = nil
	for err != io.EOF {
		var fis []os.FileInfo
		fis, err = f.Readdir(128)
		if err != nil && err != io.EOF {
			return nil, err
		}

		for _, fi := range fis {

			// We do not wish to navigate directories.
			if fi.IsDir() {
				continue
			}

			// Otter can only parse HCL, and therefore json files, and so we
			// ignore all other file extensions.
			name := fi.Name()
			skip := true
			if strings.HasSuffix(name, ".hcl") {
				skip = false
			} else if strings.HasSuffix(name, ".json") {
				skip = false
			}
			if skip {
				continue
			}

			path := filepath.Join(dir, name)
			files = append(files, path)
		}
	}

	// If there are no files, there is no need to continue and therefore we exit
	// quickly.
	if len(files) == 0 {
		return &structs.Config{}, nil
	}

	sort.Strings(files)

	var result *structs.Config

	for _, f := range files {
		config, err := ParseConfigFile(f)
		if err != nil {
			return nil, fmt.Errorf("Error loading %s: %s", f, err)
		}

		if result == nil {
			result = config
		} else {
			result = result.Merge(config)
		}
	}

	return result, nil
}
