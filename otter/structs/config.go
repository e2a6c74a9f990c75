package structs

import (
	"net"

	"github.com/rackerlabs/otter-sub001/notifier"
)

// Config is the main configuration struct used to configure the otter
// daemon.
type Config struct {
	// Consul is the location of the Consul instance or cluster endpoint to
	// query (may be an IP address or FQDN) with port.
	Consul string `mapstructure:"consul"`

	// ConsulKeyRoot is the Consul key root location where otter stores and
	// fetches group documents, job records, locks and worker membership.
	ConsulKeyRoot string `mapstructure:"consul_key_root"`

	// ConsulToken is the Consul ACL token used to access the KV store on a
	// secure Consul installation.
	ConsulToken string `mapstructure:"consul_token"`

	// LogLevel is the level at which the daemon should log.
	LogLevel string `mapstructure:"log_level"`

	// BindAddress is the address the agent HTTP API listens on.
	BindAddress string `mapstructure:"bind_address"`

	// HTTPPort is the port the agent HTTP API listens on.
	HTTPPort string `mapstructure:"http_port"`

	// RPCPort is the port the agent RPC listener binds to.
	RPCPort int `mapstructure:"rpc_port"`

	// RPCAddr is the resolved RPC bind address.
	RPCAddr *net.TCPAddr `mapstructure:"-" json:"-"`

	// SelfHealInterval is the duration in seconds between self-heal sweeps
	// over the groups owned by this worker.
	SelfHealInterval int `mapstructure:"self_heal_interval"`

	// ScheduleInterval is the duration in seconds between evaluations of
	// schedule driven policies.
	ScheduleInterval int `mapstructure:"schedule_interval"`

	// JobSweepInterval is the duration in seconds between sweeps for
	// orphaned job records left behind by crashed workers.
	JobSweepInterval int `mapstructure:"job_sweep_interval"`

	// OrphanJobAge is the number of seconds a job record may go without a
	// heartbeat before any worker may adopt it.
	OrphanJobAge int `mapstructure:"orphan_job_age"`

	// LockWait is the number of seconds a convergence pass will wait to
	// acquire a group lock before the trigger is dropped.
	LockWait int `mapstructure:"lock_wait"`

	// ScalingConcurrency bounds the number of provider jobs the supervisor
	// runs concurrently, protecting provider API rate limits.
	ScalingConcurrency int `mapstructure:"scaling_concurrency"`

	// RetryThreshold is the number of times a transient provider failure is
	// retried within a job step before the job is marked failed.
	RetryThreshold int `mapstructure:"retry_threshold"`

	// Provider is the scaling provider configuration. The provider name is
	// carried under the "provider" key; the remaining keys are provider
	// specific.
	Provider map[string]string `mapstructure:"provider"`

	// Telemetry is the configuration struct that controls the telemetry
	// settings.
	Telemetry *Telemetry `mapstructure:"telemetry"`

	// Notification is the configuration struct that controls operator
	// notifications on convergence failure.
	Notification *Notification `mapstructure:"notification"`

	// ConsulClient provides a client to interact with the Consul API.
	ConsulClient ConsulClient `mapstructure:"-" json:"-"`

	// ScalingProvider provides the compute and load balancer operations of
	// the configured cloud provider.
	ScalingProvider ScalingProvider `mapstructure:"-" json:"-"`
}

// Telemetry is the struct that controls the telemetry configuration. If a
// value is present then telemetry is enabled. Currently statsd is the only
// supported sink.
type Telemetry struct {
	// StatsdAddress specifies the address of a statsd server to forward
	// metrics to and should include the port.
	StatsdAddress string `mapstructure:"statsd_address"`
}

// Notification is the control struct for operator notifications.
type Notification struct {
	// AlertUID is the UID to associate to convergence failure alerts.
	AlertUID string `mapstructure:"alert_uid"`

	// DeploymentIdentifier is a friendly name which is used when sending
	// notifications for easy human identification.
	DeploymentIdentifier string `mapstructure:"deployment_identifier"`

	// PagerDutyServiceKey is the PD integration key for the Events API.
	PagerDutyServiceKey string `mapstructure:"pagerduty_service_key"`

	// OpsgenieAPIKey is the Opsgenie integration API key.
	OpsgenieAPIKey string `mapstructure:"opsgenie_api_key"`

	// Notifiers is where our initialized notification backends are stored
	// so they can be used on the fly when required.
	Notifiers []notifier.Notifier `mapstructure:"-" json:"-"`
}

// Merge merges two configurations.
func (c *Config) Merge(b *Config) *Config {
	config := *c

	if b.Consul != "" {
		config.Consul = b.Consul
	}

	if b.ConsulKeyRoot != "" {
		config.ConsulKeyRoot = b.ConsulKeyRoot
	}

	if b.ConsulToken != "" {
		config.ConsulToken = b.ConsulToken
	}

	if b.LogLevel != "" {
		config.LogLevel = b.LogLevel
	}

	if b.BindAddress != "" {
		config.BindAddress = b.BindAddress
	}

	if b.HTTPPort != "" {
		config.HTTPPort = b.HTTPPort
	}

	if b.RPCPort > 0 {
		config.RPCPort = b.RPCPort
	}

	if b.SelfHealInterval > 0 {
		config.SelfHealInterval = b.SelfHealInterval
	}

	if b.ScheduleInterval > 0 {
		config.ScheduleInterval = b.ScheduleInterval
	}

	if b.JobSweepInterval > 0 {
		config.JobSweepInterval = b.JobSweepInterval
	}

	if b.OrphanJobAge > 0 {
		config.OrphanJobAge = b.OrphanJobAge
	}

	if b.LockWait > 0 {
		config.LockWait = b.LockWait
	}

	if b.ScalingConcurrency > 0 {
		config.ScalingConcurrency = b.ScalingConcurrency
	}

	if b.RetryThreshold > 0 {
		config.RetryThreshold = b.RetryThreshold
	}

	if len(b.Provider) != 0 {
		if config.Provider == nil {
			config.Provider = make(map[string]string)
		}
		for k, v := range b.Provider {
			config.Provider[k] = v
		}
	}

	// Apply the Telemetry config
	if config.Telemetry == nil && b.Telemetry != nil {
		telemetry := *b.Telemetry
		config.Telemetry = &telemetry
	} else if b.Telemetry != nil {
		config.Telemetry = config.Telemetry.Merge(b.Telemetry)
	}

	// Apply the Notification config
	if config.Notification == nil && b.Notification != nil {
		notification := *b.Notification
		config.Notification = &notification
	} else if b.Notification != nil {
		config.Notification = config.Notification.Merge(b.Notification)
	}

	return &config
}

// Merge is used to merge two Telemetry configurations together.
func (t *Telemetry) Merge(b *Telemetry) *Telemetry {
	config := *t

	if b.StatsdAddress != "" {
		config.StatsdAddress = b.StatsdAddress
	}

	return &config
}

// Merge is used to merge two Notification configurations together.
func (n *Notification) Merge(b *Notification) *Notification {
	config := *n

	if b.AlertUID != "" {
		config.AlertUID = b.AlertUID
	}

	if b.DeploymentIdentifier != "" {
		config.DeploymentIdentifier = b.DeploymentIdentifier
	}

	if b.PagerDutyServiceKey != "" {
		config.PagerDutyServiceKey = b.PagerDutyServiceKey
	}

	if b.OpsgenieAPIKey != "" {
		config.OpsgenieAPIKey = b.OpsgenieAPIKey
	}

	return &config
}
