// Package cli provides the command-line interface for stasis.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/javanstorm/stasis/internal/config"
	"github.com/javanstorm/stasis/internal/logging"
	"github.com/javanstorm/stasis/internal/metrics"
	"github.com/javanstorm/stasis/internal/version"
)

// app is the state shared by the commands of one invocation.
type app struct {
	v          *viper.Viper
	configFile string

	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Recorder
}

// NewRootCommand builds the stasis command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "stasis",
		Short: "stasis - crash-consistent snapshots of QEMU VMs",
		Long: `stasis takes crash-consistent snapshots of running QEMU virtual machines.

It freezes the guest filesystems through the QEMU guest agent, saves the VM
state through the QEMU monitor, thaws the filesystems again and powers the
VM down. The thaw always runs once a freeze has succeeded.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := rootCmd.PersistentFlags()
	defaults := config.DefaultConfig()
	pf.StringVar(&a.configFile, "config", "", "config file (default: config.yaml in the stasis config directory)")
	pf.String("qga-socket", defaults.QGASocket, "guest agent socket path or endpoint URI")
	pf.String("qmp-socket", defaults.QMPSocket, "QEMU monitor socket path or endpoint URI")
	pf.Int("timeout", defaults.Timeout, "socket read/write timeout in seconds")
	pf.String("snapshot-name", defaults.SnapshotName, "name of the snapshot to save")
	pf.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	pf.String("log-format", defaults.LogFormat, "log format (auto, console, json)")
	pf.String("ssh-key", "", "private key for ssh:// endpoints")
	pf.String("ssh-known-hosts", "", "known_hosts file for ssh:// endpoints")
	pf.Bool("ssh-insecure-ignore-host-key", false, "skip host key verification for ssh:// endpoints")
	pf.String("metrics-textfile", "", "write run metrics to this file in Prometheus text format")

	rootCmd.AddCommand(a.newSnapshotCommand())
	rootCmd.AddCommand(a.newUnfreezeCommand())
	rootCmd.AddCommand(a.newStatusCommand())
	rootCmd.AddCommand(a.newConfigCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// setup loads and validates configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	// Skip config loading for commands that don't need it
	switch cmd.Name() {
	case "version", "completion", "help":
		return nil
	}

	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}

	if problems := config.ValidateConfig(cfg); len(problems) > 0 {
		fmt.Fprint(cmd.ErrOrStderr(), config.FormatValidationErrors(problems))
		if config.HasFatal(problems) {
			return errors.New("invalid configuration")
		}
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.metrics = metrics.NewRecorder(logger)
	logger.Debug().Str("version", version.Get().String()).Str("config_file", a.v.ConfigFileUsed()).Msg("Configuration loaded")
	return nil
}

// finish records the outcome of command and writes the metrics textfile.
// A metrics failure is logged and never changes the command's result.
func (a *app) finish(command string, err error) error {
	a.metrics.RecordRun(command, time.Now(), err)
	if werr := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); werr != nil {
		a.logger.Warn().Err(werr).Msg("Failed to write metrics")
	}
	return err
}

// Execute runs the root command. SIGINT and SIGTERM cancel any dial that is
// still in progress.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}
