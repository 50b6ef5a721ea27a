package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/javanstorm/stasis/internal/config"
)

func (a *app) newUnfreezeCommand() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "unfreeze",
		Short: "Thaw the guest filesystems",
		Long: `Thaw the guest filesystems without taking a snapshot.

Use this to recover a guest left frozen by an interrupted run. With --wait
the guest agent is polled until it answers, which helps right after the VM
was restored from a snapshot and the agent is not up yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUnfreeze(cmd, wait)
		},
	}

	defaults := config.DefaultConfig()
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the guest agent is available")
	cmd.Flags().Int("max-wait", defaults.MaxWait, "maximum seconds to wait for the guest agent")
	cmd.Flags().Int("poll-interval", defaults.PollInterval, "seconds between guest agent polls")

	return cmd
}

func (a *app) runUnfreeze(cmd *cobra.Command, wait bool) error {
	o, err := a.orchestrator()
	if err != nil {
		return err
	}

	if !wait {
		thawed, err := o.Unfreeze(cmd.Context())
		a.metrics.RecordFilesystems(0, thawed)
		return a.finish("unfreeze", err)
	}

	maxWait := time.Duration(a.cfg.MaxWait) * time.Second
	interval := time.Duration(a.cfg.PollInterval) * time.Second
	rep, err := o.Poller(maxWait, interval).Run(cmd.Context())
	a.metrics.RecordAgentWait(rep.Elapsed)
	a.metrics.RecordFilesystems(0, rep.Thawed)
	return a.finish("unfreeze", err)
}
