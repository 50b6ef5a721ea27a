package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/javanstorm/stasis/internal/snapshot"
	"github.com/javanstorm/stasis/internal/timing"
)

func (a *app) newSnapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Freeze, snapshot, thaw and shut down the VM",
		Long: `Take a crash-consistent snapshot of the VM.

The guest filesystems are frozen through the guest agent, the VM state is
saved with savevm under --snapshot-name, the filesystems are thawed and the
VM is powered down. Both sockets must already exist.`,
		Args: cobra.NoArgs,
		RunE: a.runSnapshot,
	}
}

func (a *app) runSnapshot(cmd *cobra.Command, args []string) error {
	o, err := a.orchestrator()
	if err != nil {
		return err
	}

	rep, err := o.Snapshot(cmd.Context())
	if a.logger.GetLevel() <= zerolog.DebugLevel {
		timing.WriteReport(cmd.ErrOrStderr(), rep.Phases, rep.Elapsed)
	}
	a.metrics.RecordPhases(rep.Phases)
	a.metrics.RecordFilesystems(rep.Frozen, rep.Thawed)
	return a.finish("snapshot", err)
}

// orchestrator builds a snapshot.Orchestrator from the loaded config.
func (a *app) orchestrator() (*snapshot.Orchestrator, error) {
	agent, err := a.cfg.AgentEndpoint()
	if err != nil {
		return nil, err
	}
	monitor, err := a.cfg.MonitorEndpoint()
	if err != nil {
		return nil, err
	}

	return snapshot.New(snapshot.Config{
		Agent:        agent,
		Monitor:      monitor,
		SnapshotName: a.cfg.SnapshotName,
	}, snapshot.WithLogger(a.logger)), nil
}
