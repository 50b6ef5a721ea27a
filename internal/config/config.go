package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/javanstorm/stasis/internal/transport"
)

// Config holds all stasis configuration.
type Config struct {
	// QGASocket is the guest agent endpoint.
	QGASocket string `mapstructure:"qga_socket" yaml:"qga_socket"`

	// QMPSocket is the hypervisor monitor endpoint.
	QMPSocket string `mapstructure:"qmp_socket" yaml:"qmp_socket"`

	// Timeout is the per-read and per-write socket timeout in seconds.
	Timeout int `mapstructure:"timeout" yaml:"timeout"`

	// SnapshotName is the name passed to savevm.
	SnapshotName string `mapstructure:"snapshot_name" yaml:"snapshot_name"`

	// MaxWait is how long unfreeze --wait polls for the agent, in seconds.
	MaxWait int `mapstructure:"max_wait" yaml:"max_wait"`

	// PollInterval is the pause between agent polls, in seconds.
	PollInterval int `mapstructure:"poll_interval" yaml:"poll_interval"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// SSHKey is the private key used for ssh:// endpoints.
	SSHKey string `mapstructure:"ssh_key" yaml:"ssh_key,omitempty"`

	// SSHKnownHosts is the known_hosts file for ssh:// endpoints.
	SSHKnownHosts string `mapstructure:"ssh_known_hosts" yaml:"ssh_known_hosts,omitempty"`

	// SSHInsecureIgnoreHostKey disables host key checking for ssh:// endpoints.
	SSHInsecureIgnoreHostKey bool `mapstructure:"ssh_insecure_ignore_host_key" yaml:"ssh_insecure_ignore_host_key"`

	// MetricsTextfile is where run metrics are written, if set.
	MetricsTextfile string `mapstructure:"metrics_textfile" yaml:"metrics_textfile,omitempty"`
}

// DefaultConfig returns a Config with the defaults of a local QEMU setup.
func DefaultConfig() *Config {
	return &Config{
		QGASocket:    "/tmp/qga.sock",
		QMPSocket:    "/tmp/qemu-sock",
		Timeout:      30,
		SnapshotName: "vm_snapshot_latest",
		MaxWait:      60,
		PollInterval: 2,
		LogLevel:     "info",
		LogFormat:    "auto",
	}
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("qga_socket", defaults.QGASocket)
	v.SetDefault("qmp_socket", defaults.QMPSocket)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("snapshot_name", defaults.SnapshotName)
	v.SetDefault("max_wait", defaults.MaxWait)
	v.SetDefault("poll_interval", defaults.PollInterval)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("ssh_key", defaults.SSHKey)
	v.SetDefault("ssh_known_hosts", defaults.SSHKnownHosts)
	v.SetDefault("ssh_insecure_ignore_host_key", defaults.SSHInsecureIgnoreHostKey)
	v.SetDefault("metrics_textfile", defaults.MetricsTextfile)
}

// BindFlags binds each flag in fs to the config key of the same name with
// dashes turned into underscores.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load reads configuration from file, environment, and defaults into v.
// An explicit configFile must exist; otherwise config.yaml is looked up in
// the platform config directory and is optional.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if paths, err := GetPaths(); err == nil {
			v.AddConfigPath(paths.ConfigDir)
		}
	}

	// Environment variable support: STASIS_QGA_SOCKET, STASIS_TIMEOUT, etc.
	v.SetEnvPrefix("STASIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// SSHAuth returns the ssh credentials for ssh:// endpoints.
func (c *Config) SSHAuth() transport.SSHAuth {
	return transport.SSHAuth{
		KeyPath:               c.SSHKey,
		KnownHostsPath:        c.SSHKnownHosts,
		InsecureIgnoreHostKey: c.SSHInsecureIgnoreHostKey,
	}
}

// AgentEndpoint parses QGASocket with the configured timeout and credentials.
func (c *Config) AgentEndpoint() (transport.Endpoint, error) {
	return transport.ParseEndpoint(c.QGASocket,
		transport.WithTimeout(c.TimeoutDuration()), transport.WithSSHAuth(c.SSHAuth()))
}

// MonitorEndpoint parses QMPSocket with the configured timeout and credentials.
func (c *Config) MonitorEndpoint() (transport.Endpoint, error) {
	return transport.ParseEndpoint(c.QMPSocket,
		transport.WithTimeout(c.TimeoutDuration()), transport.WithSSHAuth(c.SSHAuth()))
}
