package agent

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	metrics "github.com/armon/go-metrics"

	"github.com/rackerlabs/otter-sub001/command"
	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter"
	"github.com/rackerlabs/otter-sub001/otter/structs"
	"github.com/rackerlabs/otter-sub001/version"
)

// Command is the agent command structure used to track passed args as well
// as the CLI meta.
type Command struct {
	command.Meta
	args []string

	server *otter.Server
	http   *HTTPServer
}

// Run triggers a run of the otter agent by setting up and parsing the
// configuration and then starting the worker and its HTTP API.
func (c *Command) Run(args []string) int {

	c.args = args
	conf := c.parseFlags()
	if conf == nil {
		return 1
	}

	// Set the logging level for the logger.
	logging.SetLevel(conf.LogLevel)

	// Initialize telemetry if this was configured by the user.
	if conf.Telemetry.StatsdAddress != "" {
		sink, statsErr := metrics.NewStatsdSink(conf.Telemetry.StatsdAddress)
		if statsErr != nil {
			c.UI.Error(fmt.Sprintf("unable to setup telemetry correctly: %v", statsErr))
			return 1
		}
		metrics.NewGlobal(metrics.DefaultConfig("otter"), sink)
	}

	logging.Info("command/agent: running version %v", version.Get())

	if err := c.start(conf); err != nil {
		c.UI.Error(fmt.Sprintf("unable to start the otter agent: %v", err))
		return 1
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	for {
		select {
		case s := <-signalCh:
			switch s {
			case syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				c.stop()
				return 0

			case syscall.SIGHUP:
				logging.Info("command/agent: received SIGHUP, reloading configuration")
				c.stop()

				// Reload the configuration in order to make proper use of
				// SIGHUP.
				conf := c.parseFlags()
				if conf == nil {
					return 1
				}
				logging.SetLevel(conf.LogLevel)

				if err := c.start(conf); err != nil {
					c.UI.Error(fmt.Sprintf("unable to restart the otter agent: %v", err))
					return 1
				}
			}
		}
	}
}

// start builds the backend clients and launches the worker and the HTTP
// API server.
func (c *Command) start(conf *structs.Config) error {
	if err := InitializeClients(conf); err != nil {
		return err
	}

	server, err := otter.NewServer(conf)
	if err != nil {
		return err
	}
	c.server = server

	http, err := NewHTTPServer(c, conf)
	if err != nil {
		server.Shutdown()
		return err
	}
	c.http = http

	return nil
}

// stop gracefully halts the HTTP API and the worker.
func (c *Command) stop() {
	c.http.Shutdown()
	c.server.Shutdown()
}

// RPC is used by the HTTP endpoints to invoke the in-process RPC
// endpoints of the running worker.
func (c *Command) RPC(method string, reply interface{}) error {
	return c.server.RPC(method, reply)
}

func (c *Command) parseFlags() *structs.Config {

	var configPath string
	var dev bool

	// An empty new config is setup here to allow us to fill this with any
	// passed cli flags for later merging.
	cliConfig := &structs.Config{
		Telemetry:    &structs.Telemetry{},
		Notification: &structs.Notification{},
	}

	flags := c.Meta.FlagSet("agent", command.FlagSetClient)
	flags.Usage = func() { c.UI.Error(c.Help()) }

	flags.StringVar(&configPath, "config", "", "")
	flags.BoolVar(&dev, "dev", false, "")

	// Top level configuration flags
	flags.StringVar(&cliConfig.Consul, "consul", "", "")
	flags.StringVar(&cliConfig.ConsulKeyRoot, "consul-key-root", "", "")
	flags.StringVar(&cliConfig.ConsulToken, "consul-token", "", "")
	flags.StringVar(&cliConfig.LogLevel, "log-level", "", "")
	flags.StringVar(&cliConfig.BindAddress, "bind-address", "", "")
	flags.StringVar(&cliConfig.HTTPPort, "http-port", "", "")
	flags.IntVar(&cliConfig.RPCPort, "rpc-port", 0, "")

	// Convergence configuration flags
	flags.IntVar(&cliConfig.SelfHealInterval, "self-heal-interval", 0, "")
	flags.IntVar(&cliConfig.ScheduleInterval, "schedule-interval", 0, "")
	flags.IntVar(&cliConfig.JobSweepInterval, "job-sweep-interval", 0, "")
	flags.IntVar(&cliConfig.OrphanJobAge, "orphan-job-age", 0, "")
	flags.IntVar(&cliConfig.LockWait, "lock-wait", 0, "")
	flags.IntVar(&cliConfig.ScalingConcurrency, "scaling-concurrency", 0, "")
	flags.IntVar(&cliConfig.RetryThreshold, "retry-threshold", 0, "")

	// Telemetry configuration flags
	flags.StringVar(&cliConfig.Telemetry.StatsdAddress, "statsd-address", "", "")

	if err := flags.Parse(c.args); err != nil {
		return nil
	}

	// Load the default configuration which will be the basis for merging
	// with the supplied configuration file(s)
	config := DefaultConfig()
	if dev {
		config = DevConfig()
	}

	if configPath != "" {
		current, err := LoadConfig(configPath)
		if err != nil {
			c.UI.Error(fmt.Sprintf("Error loading configuration from %s: %s", configPath, err))
			return nil
		}

		config = config.Merge(current)
	}

	config = config.Merge(cliConfig)
	return config
}

// Help provides the help information for the agent command.
func (c *Command) Help() string {
	helpText := `
  Usage: otter agent [options]

    Starts the Otter agent and runs until an interrupt is received.
    The Otter agent's configuration primarily comes from the config
    files used. If no config file is passed, a default config will be
    used.

  General Options:

    -config=<path>
      The path to either a single config file or a directory of config
      files to use for configuring the Otter agent. Otter processes
      configuration files in lexicographic order.

    -dev
      Start the agent with a development oriented configuration using
      short timers and debug logging.

    -consul=<address:port>
      This is the address of the Consul agent. By default, this is
      localhost:8500, which is the default bind and port for a local
      Consul agent. It is not recommended that you communicate directly
      with a Consul server, and instead communicate with the local
      Consul agent. There are many reasons for this, most importantly
      the Consul agent is able to multiplex connections to the Consul
      server and reduce the number of open HTTP connections. Additionally,
      it provides a "well-known" IP address for which clients can connect.

    -consul-key-root=<key>
      The Consul Key/Value Store location where Otter persists group
      documents, scaling policies, job records, locks and worker
      membership. By default, this is otter.

    -consul-token=<token>
      The Consul ACL token to use when communicating with an ACL
      protected Consul cluster.

    -log-level=<level>
      Specify the verbosity level of Otter's logs. The default is INFO.

    -bind-address=<address>
      The address the agent HTTP API and RPC listeners bind to. The
      default is 127.0.0.1.

    -http-port=<port>
      The port the agent HTTP API listens on. The default is 8000.

    -rpc-port=<port>
      The port the agent RPC listener binds to. The default is 8001.

    -self-heal-interval=<num>
      The time period in seconds between self-heal sweeps over the
      groups owned by this worker. The default is 300.

    -schedule-interval=<num>
      The time period in seconds between evaluations of schedule driven
      scaling policies. The default is 30.

    -job-sweep-interval=<num>
      The time period in seconds between sweeps for orphaned scaling
      job records. The default is 60.

    -orphan-job-age=<num>
      The number of seconds a scaling job record may go without a
      heartbeat before another worker may adopt it. The default is 120.

    -lock-wait=<num>
      The number of seconds a convergence pass will wait to acquire a
      group lock before the trigger is dropped. The default is 10.

    -scaling-concurrency=<num>
      The maximum number of cloud provider scaling jobs the agent will
      run concurrently. The default is 10.

    -retry-threshold=<num>
      The number of times a transient cloud provider failure is retried
      within a job step before the job is marked failed. The default
      is 3.

    -statsd-address=<address:port>
      Specifies the address of a statsd server to forward metrics
      to and should include the port.

`
	return strings.TrimSpace(helpText)
}

// Synopsis is provides a brief summary of the agent command.
func (c *Command) Synopsis() string {
	return "Runs an Otter agent"
}
